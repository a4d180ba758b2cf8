package expr

import (
	"github.com/brimdata/docpipe"
)

type zipOpts struct {
	ninputs int
	longest bool
}

func parseZip(p *parser, arg docpipe.Value, depth int) ([]int32, any, error) {
	if !arg.IsDocument() {
		return nil, nil, parseErrorf(34460, "$zip only supports an object as an argument, found %s", arg.TypeName())
	}
	var inputs, defaults []int32
	var longest bool
	for _, f := range arg.Document().Fields() {
		switch f.Name {
		case "inputs":
			if !f.Value.IsArray() {
				return nil, nil, parseErrorf(34461, "inputs must be an array of expressions, found %s", f.Value.TypeName())
			}
			for _, elem := range f.Value.Array() {
				id, err := p.parse(elem, depth+1)
				if err != nil {
					return nil, nil, err
				}
				inputs = append(inputs, id)
			}
		case "defaults":
			if !f.Value.IsArray() {
				return nil, nil, parseErrorf(34462, "defaults must be an array of expressions, found %s", f.Value.TypeName())
			}
			for _, elem := range f.Value.Array() {
				id, err := p.parse(elem, depth+1)
				if err != nil {
					return nil, nil, err
				}
				defaults = append(defaults, id)
			}
		case "useLongestLength":
			if f.Value.Kind() != docpipe.KindBool {
				return nil, nil, parseErrorf(34463, "useLongestLength must be a bool, found %s", f.Value.TypeName())
			}
			longest = f.Value.Bool()
		default:
			return nil, nil, parseErrorf(34464, "$zip found an unknown argument: %s", f.Name)
		}
	}
	if len(inputs) == 0 {
		return nil, nil, parseErrorf(34465, "$zip requires at least one input array")
	}
	if !longest && len(defaults) > 0 {
		return nil, nil, parseErrorf(34466, "cannot specify defaults unless useLongestLength is true")
	}
	if len(defaults) > 0 && len(defaults) != len(inputs) {
		return nil, nil, parseErrorf(34467, "defaults and inputs must have the same length")
	}
	return append(inputs, defaults...), zipOpts{ninputs: len(inputs), longest: longest}, nil
}

// evalZip transposes its input arrays.  The result has the length of the
// shortest input, or of the longest when useLongestLength is set, in which
// case short inputs are padded from defaults or with null.
func evalZip(_ *Context, n *node, args []docpipe.Value) (docpipe.Value, error) {
	opts := n.data.(zipOpts)
	inputs := make([][]docpipe.Value, opts.ninputs)
	length := -1
	for k, arg := range args[:opts.ninputs] {
		if arg.IsNullish() {
			return docpipe.Null, nil
		}
		if !arg.IsArray() {
			return docpipe.Missing, errorf(34468, "$zip found a non-array expression in input: %s", arg)
		}
		inputs[k] = arg.Array()
		switch l := len(inputs[k]); {
		case length < 0:
			length = l
		case opts.longest && l > length:
			length = l
		case !opts.longest && l < length:
			length = l
		}
	}
	defaults := args[opts.ninputs:]
	out := make([]docpipe.Value, length)
	for row := range out {
		tuple := make([]docpipe.Value, opts.ninputs)
		for k, input := range inputs {
			switch {
			case row < len(input):
				tuple[k] = input[row]
			case len(defaults) > 0:
				tuple[k] = defaults[k]
			default:
				tuple[k] = docpipe.Null
			}
			if tuple[k].IsMissing() {
				tuple[k] = docpipe.Null
			}
		}
		out[row] = docpipe.NewArray(tuple)
	}
	return docpipe.NewArray(out), nil
}

func evalSize(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	if !args[0].IsArray() {
		return docpipe.Missing, typeErrorf(17124, "The argument to $size must be an array. Type of argument is %s", args[0].TypeName())
	}
	return docpipe.NewInt32(int32(len(args[0].Array()))), nil
}

func evalArrayElemAt(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	arr, idx := args[0], args[1]
	if arr.IsNullish() || idx.IsNullish() {
		return docpipe.Null, nil
	}
	if !arr.IsArray() {
		return docpipe.Missing, typeErrorf(28689, "$arrayElemAt's first argument must be an array, but is %s", arr.TypeName())
	}
	if !idx.IsNumber() {
		return docpipe.Missing, typeErrorf(28690, "$arrayElemAt's second argument must be a numeric value, but is %s", idx.TypeName())
	}
	i, ok := int32Arg(idx)
	if !ok {
		return docpipe.Missing, errorf(28691, "$arrayElemAt's second argument must be representable as a 32-bit integer: %s", idx)
	}
	elems := arr.Array()
	if i < 0 {
		i += len(elems)
	}
	if i < 0 || i >= len(elems) {
		return docpipe.Missing, nil
	}
	return elems[i], nil
}

func evalConcatArrays(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	var out []docpipe.Value
	for _, arg := range args {
		if arg.IsNullish() {
			return docpipe.Null, nil
		}
		if !arg.IsArray() {
			return docpipe.Missing, typeErrorf(28664, "$concatArrays only supports arrays, not %s", arg.TypeName())
		}
		out = append(out, arg.Array()...)
	}
	return docpipe.NewArray(out), nil
}

func evalIn(ectx *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	if !args[1].IsArray() {
		return docpipe.Missing, errorf(40081, "$in requires an array as a second argument, found: %s", args[1].TypeName())
	}
	for _, elem := range args[1].Array() {
		if docpipe.CompareWithCollator(args[0], elem, ectx.Collator) == 0 {
			return docpipe.True, nil
		}
	}
	return docpipe.False, nil
}

func evalIsArray(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	return docpipe.NewBool(args[0].IsArray()), nil
}
