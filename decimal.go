package docpipe

import (
	"math"
	"math/big"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	decimalDigits = 34
	decimalMaxExp = 6111
	decimalMinExp = -6176
)

var (
	decimalNaN    = mustDecimal("NaN")
	decimalPosInf = mustDecimal("Infinity")
	decimalNegInf = mustDecimal("-Infinity")
	bigTen        = big.NewInt(10)
)

func mustDecimal(s string) primitive.Decimal128 {
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		panic(err)
	}
	return d
}

// dec is a finite decimal coef × 10^exp.
type dec struct {
	coef *big.Int
	exp  int
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

func numDigits(x *big.Int) int {
	if x.Sign() == 0 {
		return 1
	}
	return len(new(big.Int).Abs(x).Text(10))
}

// toDec converts a finite number to decimal form.  Doubles are converted
// with 15 significant digits.  ok is false for NaN and infinities.
func toDec(v Value) (dec, bool) {
	switch v.kind {
	case KindInt32, KindInt64:
		return dec{big.NewInt(v.n), 0}, true
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return dec{}, false
		}
		d, err := primitive.ParseDecimal128(strconv.FormatFloat(v.f, 'e', 14, 64))
		if err != nil {
			return dec{}, false
		}
		return toDec(NewDecimal(d))
	case KindDecimal128:
		coef, exp, err := v.Decimal().BigInt()
		if err != nil {
			return dec{}, false
		}
		return dec{coef, exp}, true
	}
	return dec{}, false
}

func decimalToFloat(d primitive.Decimal128) float64 {
	// Out of range values come back as ±Inf or zero along with an error.
	f, _ := strconv.ParseFloat(d.String(), 64)
	return f
}

func floatToDecimal(f float64) primitive.Decimal128 {
	switch {
	case math.IsNaN(f):
		return decimalNaN
	case math.IsInf(f, 1):
		return decimalPosInf
	case math.IsInf(f, -1):
		return decimalNegInf
	}
	d, err := primitive.ParseDecimal128(strconv.FormatFloat(f, 'e', 14, 64))
	if err != nil {
		return decimalNaN
	}
	return d
}

// round returns d rounded half-even to 34 significant digits and brought
// into the exponent range of Decimal128.
func (d dec) round() dec {
	coef, exp := new(big.Int).Set(d.coef), d.exp
	if drop := numDigits(coef) - decimalDigits; drop > 0 {
		coef, exp = roundHalfEven(coef, drop), exp+drop
		if numDigits(coef) > decimalDigits {
			coef.Quo(coef, bigTen)
			exp++
		}
	}
	for exp < decimalMinExp && coef.Sign() != 0 {
		coef, exp = roundHalfEven(coef, 1), exp+1
	}
	if exp < decimalMinExp {
		exp = decimalMinExp
	}
	for exp > decimalMaxExp && coef.Sign() != 0 && numDigits(coef) < decimalDigits {
		coef.Mul(coef, bigTen)
		exp--
	}
	if coef.Sign() == 0 && exp > decimalMaxExp {
		exp = decimalMaxExp
	}
	return dec{coef, exp}
}

// roundHalfEven divides x by 10^drop rounding half to even.
func roundHalfEven(x *big.Int, drop int) *big.Int {
	neg := x.Sign() < 0
	abs := new(big.Int).Abs(x)
	div := pow10(drop)
	q, r := new(big.Int).QuoRem(abs, div, new(big.Int))
	switch r.Lsh(r, 1).Cmp(div) {
	case 1:
		q.Add(q, big.NewInt(1))
	case 0:
		if q.Bit(0) == 1 {
			q.Add(q, big.NewInt(1))
		}
	}
	if neg {
		q.Neg(q)
	}
	return q
}

func (d dec) decimal() primitive.Decimal128 {
	r := d.round()
	if r.exp > decimalMaxExp {
		if r.coef.Sign() < 0 {
			return decimalNegInf
		}
		return decimalPosInf
	}
	out, ok := primitive.ParseDecimal128FromBigInt(r.coef, r.exp)
	if !ok {
		return decimalNaN
	}
	return out
}

func align(a, b dec) (*big.Int, *big.Int, int) {
	exp := a.exp
	if b.exp < exp {
		exp = b.exp
	}
	ac := new(big.Int).Mul(a.coef, pow10(a.exp-exp))
	bc := new(big.Int).Mul(b.coef, pow10(b.exp-exp))
	return ac, bc, exp
}

func decAdd(a, b dec) dec {
	ac, bc, exp := align(a, b)
	return dec{ac.Add(ac, bc), exp}
}

func decSub(a, b dec) dec {
	ac, bc, exp := align(a, b)
	return dec{ac.Sub(ac, bc), exp}
}

func decMul(a, b dec) dec {
	return dec{new(big.Int).Mul(a.coef, b.coef), a.exp + b.exp}
}

// decQuo divides a by b, which must be nonzero.  Exact quotients keep the
// ideal exponent a.exp-b.exp when they can.
func decQuo(a, b dec) dec {
	ideal := a.exp - b.exp
	k := decimalDigits + 1 + numDigits(b.coef) - numDigits(a.coef)
	if k < 0 {
		k = 0
	}
	num := new(big.Int).Mul(a.coef, pow10(k))
	q, r := new(big.Int).QuoRem(num, b.coef, new(big.Int))
	exp := ideal - k
	if r.Sign() != 0 {
		// Append a sticky digit so rounding sees a nonzero remainder.
		q.Mul(q, bigTen)
		if (num.Sign() < 0) != (b.coef.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
		return dec{q, exp - 1}
	}
	m := new(big.Int)
	for exp < ideal && q.Sign() != 0 {
		qq, rr := new(big.Int).QuoRem(q, bigTen, m)
		if rr.Sign() != 0 {
			break
		}
		q = qq
		exp++
	}
	if q.Sign() == 0 {
		exp = ideal
	}
	return dec{q, exp}
}

func decRem(a, b dec) dec {
	ac, bc, exp := align(a, b)
	return dec{ac.Rem(ac, bc), exp}
}
