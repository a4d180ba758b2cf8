package expr

import (
	"errors"

	"github.com/brimdata/docpipe"
)

func evalAdd(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	sum := docpipe.NewInt32(0)
	var dates int
	for _, arg := range args {
		if arg.IsNullish() {
			return docpipe.Null, nil
		}
		switch {
		case arg.Kind() == docpipe.KindDate:
			if dates++; dates > 1 {
				return docpipe.Missing, typeErrorf(16612, "only one date allowed in an $add expression")
			}
		case !arg.IsNumber():
			return docpipe.Missing, typeErrorf(16554, "$add only supports numeric or date types, not %s", arg.TypeName())
		}
		var err error
		if sum, err = docpipe.Add(sum, arg); err != nil {
			return docpipe.Missing, typeErrorf(16554, "$add only supports numeric or date types, not %s", arg.TypeName())
		}
	}
	return sum, nil
}

func evalSubtract(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	a, b := args[0], args[1]
	if a.IsNullish() || b.IsNullish() {
		return docpipe.Null, nil
	}
	v, err := docpipe.Subtract(a, b)
	if err != nil {
		return docpipe.Missing, typeErrorf(16556, "cant $subtract a %s from a %s", b.TypeName(), a.TypeName())
	}
	return v, nil
}

// evalMultiply folds the operands left to right.  The first null or missing
// operand makes the result null without examining the operands after it.
func evalMultiply(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	product := docpipe.NewInt32(1)
	for _, arg := range args {
		if arg.IsNullish() {
			return docpipe.Null, nil
		}
		if !arg.IsNumber() {
			return docpipe.Missing, typeErrorf(14, "$multiply only supports numeric types, not %s", arg.TypeName())
		}
		var err error
		if product, err = docpipe.Multiply(product, arg); err != nil {
			return docpipe.Missing, err
		}
	}
	return product, nil
}

func evalDivide(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	a, b := args[0], args[1]
	if a.IsNullish() || b.IsNullish() {
		return docpipe.Null, nil
	}
	v, err := docpipe.Divide(a, b)
	switch {
	case errors.Is(err, docpipe.ErrDivideByZero):
		return docpipe.Missing, errorf(16608, "can't $divide by zero")
	case err != nil:
		return docpipe.Missing, typeErrorf(16609, "$divide only supports numeric types, not %s and %s", a.TypeName(), b.TypeName())
	}
	return v, nil
}

func evalMod(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	a, b := args[0], args[1]
	if a.IsNullish() || b.IsNullish() {
		return docpipe.Null, nil
	}
	v, err := docpipe.Mod(a, b)
	switch {
	case errors.Is(err, docpipe.ErrDivideByZero):
		return docpipe.Missing, errorf(16610, "can't $mod by zero")
	case err != nil:
		return docpipe.Missing, typeErrorf(16611, "$mod only supports numeric types, not %s and %s", a.TypeName(), b.TypeName())
	}
	return v, nil
}

func evalAbs(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	if args[0].IsNullish() {
		return docpipe.Null, nil
	}
	v, err := docpipe.Abs(args[0])
	if err != nil {
		return docpipe.Missing, typeErrorf(28765, "$abs only supports numeric types, not %s", args[0].TypeName())
	}
	return v, nil
}
