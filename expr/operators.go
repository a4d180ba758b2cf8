package expr

import (
	"github.com/brimdata/docpipe"
)

type evalFunc func(ectx *Context, n *node, args []docpipe.Value) (docpipe.Value, error)

// controlFunc drives operators that evaluate their operands lazily.  Given
// the operand values computed so far and the number of operand nodes, it
// returns either the index of the next operand to evaluate or the result.
type controlFunc func(args []docpipe.Value, nargs int) (next int, result docpipe.Value, done bool)

type parseFunc func(p *parser, arg docpipe.Value, depth int) ([]int32, any, error)

type operator struct {
	name string
	// max is -1 for variadic operators.
	min, max int
	parse    parseFunc
	eval     evalFunc
	control  controlFunc
}

var operators map[string]*operator

func register(name string, min, max int, eval evalFunc) *operator {
	op := &operator{name: name, min: min, max: max, eval: eval}
	operators[name] = op
	return op
}

func lookupOperator(name string) *operator {
	return operators[name]
}

// IsOperator is true if name is a known expression operator.
func IsOperator(name string) bool {
	return lookupOperator(name) != nil
}

func init() {
	operators = make(map[string]*operator)

	register("$add", 0, -1, evalAdd)
	register("$subtract", 2, 2, evalSubtract)
	register("$multiply", 0, -1, evalMultiply)
	register("$divide", 2, 2, evalDivide)
	register("$mod", 2, 2, evalMod)
	register("$abs", 1, 1, evalAbs)

	register("$eq", 2, 2, compareOp(func(c int) bool { return c == 0 }))
	register("$ne", 2, 2, compareOp(func(c int) bool { return c != 0 }))
	register("$gt", 2, 2, compareOp(func(c int) bool { return c > 0 }))
	register("$gte", 2, 2, compareOp(func(c int) bool { return c >= 0 }))
	register("$lt", 2, 2, compareOp(func(c int) bool { return c < 0 }))
	register("$lte", 2, 2, compareOp(func(c int) bool { return c <= 0 }))
	register("$cmp", 2, 2, evalCmp)

	register("$and", 0, -1, nil).control = controlAnd
	register("$or", 0, -1, nil).control = controlOr
	register("$not", 1, 1, evalNot)
	register("$cond", 3, 3, nil).control = controlCond
	operators["$cond"].parse = parseCond
	register("$ifNull", 2, -1, nil).control = controlIfNull

	register("$concat", 0, -1, evalConcat)
	register("$split", 2, 2, evalSplit)
	register("$toLower", 1, 1, evalToLower)
	register("$toUpper", 1, 1, evalToUpper)
	register("$strLenCP", 1, 1, evalStrLenCP)
	register("$substrCP", 3, 3, evalSubstrCP)

	register("$zip", 1, 1, evalZip).parse = parseZip
	register("$size", 1, 1, evalSize)
	register("$arrayElemAt", 2, 2, evalArrayElemAt)
	register("$concatArrays", 0, -1, evalConcatArrays)
	register("$in", 2, 2, evalIn)
	register("$isArray", 1, 1, evalIsArray)

	register("$type", 1, 1, evalType)
	register("$literal", 1, 1, evalLiteral).parse = parseLiteral
	register("$meta", 1, 1, evalMeta).parse = parseMeta
	register("$dateFromString", 1, 1, evalDateFromString).parse = parseDateFromString
}

func compareOp(pred func(int) bool) evalFunc {
	return func(ectx *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
		return docpipe.NewBool(pred(docpipe.CompareWithCollator(args[0], args[1], ectx.Collator))), nil
	}
}

func evalCmp(ectx *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	return docpipe.NewInt32(int32(docpipe.CompareWithCollator(args[0], args[1], ectx.Collator))), nil
}

func evalNot(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	return docpipe.NewBool(!args[0].Truthy()), nil
}

func controlAnd(args []docpipe.Value, nargs int) (int, docpipe.Value, bool) {
	if n := len(args); n > 0 && !args[n-1].Truthy() {
		return 0, docpipe.False, true
	}
	if len(args) == nargs {
		return 0, docpipe.True, true
	}
	return len(args), docpipe.Missing, false
}

func controlOr(args []docpipe.Value, nargs int) (int, docpipe.Value, bool) {
	if n := len(args); n > 0 && args[n-1].Truthy() {
		return 0, docpipe.True, true
	}
	if len(args) == nargs {
		return 0, docpipe.False, true
	}
	return len(args), docpipe.Missing, false
}

// controlCond evaluates the condition and then exactly one branch.
func controlCond(args []docpipe.Value, _ int) (int, docpipe.Value, bool) {
	switch len(args) {
	case 0:
		return 0, docpipe.Missing, false
	case 1:
		if args[0].Truthy() {
			return 1, docpipe.Missing, false
		}
		return 2, docpipe.Missing, false
	}
	return 0, args[1], true
}

func parseCond(p *parser, arg docpipe.Value, depth int) ([]int32, any, error) {
	if arg.IsDocument() {
		ids := make([]int32, 3)
		names := []string{"if", "then", "else"}
		for k := range ids {
			ids[k] = -1
		}
		for _, f := range arg.Document().Fields() {
			k := indexOf(names, f.Name)
			if k < 0 {
				return nil, nil, parseErrorf(17083, "Unrecognized parameter to $cond: %s", f.Name)
			}
			id, err := p.parse(f.Value, depth+1)
			if err != nil {
				return nil, nil, err
			}
			ids[k] = id
		}
		for k, id := range ids {
			if id < 0 {
				return nil, nil, parseErrorf(17080+k, "Missing '%s' parameter to $cond", names[k])
			}
		}
		return ids, nil, nil
	}
	operands := []docpipe.Value{arg}
	if arg.IsArray() {
		operands = arg.Array()
	}
	if err := operators["$cond"].checkArity(len(operands)); err != nil {
		return nil, nil, err
	}
	ids := make([]int32, 0, 3)
	for _, operand := range operands {
		id, err := p.parse(operand, depth+1)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil, nil
}

// controlIfNull returns the first operand that is not null, undefined, or
// missing; the final operand is the replacement and is returned as is.
func controlIfNull(args []docpipe.Value, nargs int) (int, docpipe.Value, bool) {
	if n := len(args); n > 0 {
		last := args[n-1]
		if !last.IsNullish() || n == nargs {
			return 0, last, true
		}
	}
	return len(args), docpipe.Missing, false
}

func parseLiteral(p *parser, arg docpipe.Value, _ int) ([]int32, any, error) {
	return []int32{p.add(node{op: opLiteral, lit: arg})}, nil, nil
}

func evalType(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	return docpipe.NewString(args[0].TypeName()), nil
}

func evalLiteral(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	return args[0], nil
}
