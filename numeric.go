package docpipe

import (
	"math"
)

// widest returns the promoted numeric kind of a and b.
func widest(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

func intResult(n int64, k Kind) Value {
	if k == KindInt32 && n >= math.MinInt32 && n <= math.MaxInt32 {
		return NewInt32(int32(n))
	}
	return NewInt64(n)
}

func float(v Value) float64 {
	f, _ := v.AsFloat64()
	return f
}

// decimalOp applies op to two numbers where at least one is a Decimal128.
// NaN and infinite operands fall back to IEEE double semantics, which agree
// with decimal semantics for those cases.
func decimalOp(a, b Value, op func(dec, dec) dec, fop func(float64, float64) float64) Value {
	ad, aok := toDec(a)
	bd, bok := toDec(b)
	if !aok || !bok {
		return NewDecimal(floatToDecimal(fop(float(a), float(b))))
	}
	return NewDecimal(op(ad, bd).decimal())
}

// Add returns a+b.  A date plus a number is a date; numbers are promoted
// per Int32 < Int64 < Double < Decimal128 with integer overflow widening to
// the next kind.
func Add(a, b Value) (Value, error) {
	if a.kind == KindDate || b.kind == KindDate {
		if a.kind == KindDate && b.kind == KindDate {
			return Missing, ErrNotNumeric
		}
		date, n := a, b
		if b.kind == KindDate {
			date, n = b, a
		}
		if !n.IsNumber() {
			return Missing, ErrNotNumeric
		}
		return NewDate(date.n + roundMillis(n)), nil
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Missing, ErrNotNumeric
	}
	switch k := widest(a.kind, b.kind); k {
	case KindInt32, KindInt64:
		s := a.n + b.n
		if (a.n > 0 && b.n > 0 && s < 0) || (a.n < 0 && b.n < 0 && s >= 0) {
			return NewDouble(float64(a.n) + float64(b.n)), nil
		}
		return intResult(s, k), nil
	case KindDouble:
		return NewDouble(float(a) + float(b)), nil
	}
	return decimalOp(a, b, decAdd, func(x, y float64) float64 { return x + y }), nil
}

// Subtract returns a-b.  Date minus date is the difference in milliseconds
// as an Int64; date minus number is a date.
func Subtract(a, b Value) (Value, error) {
	if a.kind == KindDate {
		switch {
		case b.kind == KindDate:
			return NewInt64(a.n - b.n), nil
		case b.IsNumber():
			return NewDate(a.n - roundMillis(b)), nil
		}
		return Missing, ErrNotNumeric
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Missing, ErrNotNumeric
	}
	switch k := widest(a.kind, b.kind); k {
	case KindInt32, KindInt64:
		d := a.n - b.n
		if (a.n^b.n)&(a.n^d) < 0 {
			return NewDouble(float64(a.n) - float64(b.n)), nil
		}
		return intResult(d, k), nil
	case KindDouble:
		return NewDouble(float(a) - float(b)), nil
	}
	return decimalOp(a, b, decSub, func(x, y float64) float64 { return x - y }), nil
}

func Multiply(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Missing, ErrNotNumeric
	}
	switch k := widest(a.kind, b.kind); k {
	case KindInt32, KindInt64:
		if mulOverflows(a.n, b.n) {
			return NewDouble(float64(a.n) * float64(b.n)), nil
		}
		return intResult(a.n*b.n, k), nil
	case KindDouble:
		return NewDouble(float(a) * float(b)), nil
	}
	return decimalOp(a, b, decMul, func(x, y float64) float64 { return x * y }), nil
}

func mulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return true
	}
	p := a * b
	return p/b != a
}

// Divide returns a/b as a Double, or as a Decimal128 when either operand
// is a decimal.  A zero divisor is an error.
func Divide(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Missing, ErrNotNumeric
	}
	if isZero(b) {
		return Missing, ErrDivideByZero
	}
	if a.kind == KindDecimal128 || b.kind == KindDecimal128 {
		return decimalOp(a, b, decQuo, func(x, y float64) float64 { return x / y }), nil
	}
	return NewDouble(float(a) / float(b)), nil
}

// Mod returns the remainder of a/b truncated toward zero, which has the
// sign of a.
func Mod(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Missing, ErrNotNumeric
	}
	if isZero(b) {
		return Missing, ErrDivideByZero
	}
	switch k := widest(a.kind, b.kind); k {
	case KindInt32, KindInt64:
		return intResult(a.n%b.n, k), nil
	case KindDouble:
		return NewDouble(math.Mod(float(a), float(b))), nil
	}
	return decimalOp(a, b, decRem, math.Mod), nil
}

// Abs returns the absolute value of a number.  The absolute value of the
// smallest Int64 does not fit and is returned as a Double.
func Abs(v Value) (Value, error) {
	switch v.kind {
	case KindInt32:
		if v.n < 0 {
			return intResult(-v.n, KindInt32), nil
		}
		return v, nil
	case KindInt64:
		if v.n == math.MinInt64 {
			return NewDouble(-float64(v.n)), nil
		}
		if v.n < 0 {
			return NewInt64(-v.n), nil
		}
		return v, nil
	case KindDouble:
		return NewDouble(math.Abs(v.f)), nil
	case KindDecimal128:
		d, ok := toDec(v)
		if !ok {
			return NewDecimal(floatToDecimal(math.Abs(float(v)))), nil
		}
		d.coef.Abs(d.coef)
		return NewDecimal(d.decimal()), nil
	}
	return Missing, ErrNotNumeric
}

func isZero(v Value) bool {
	switch v.kind {
	case KindInt32, KindInt64:
		return v.n == 0
	case KindDouble:
		return v.f == 0
	case KindDecimal128:
		// Decimal128.IsZero only matches the all-zero bit pattern, not
		// zeros with an exponent such as 0.00 or -0.
		coef, _, err := v.Decimal().BigInt()
		return err == nil && coef.Sign() == 0
	}
	return false
}

func roundMillis(v Value) int64 {
	if v.kind == KindInt32 || v.kind == KindInt64 {
		return v.n
	}
	return int64(math.Round(float(v)))
}
