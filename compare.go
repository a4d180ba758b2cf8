package docpipe

import (
	"bytes"
	"math"
	"math/big"
	"strings"
)

// Collator compares strings under a locale; *collate.Collator from
// golang.org/x/text satisfies it.
type Collator interface {
	CompareString(a, b string) int
}

// Compare orders a and b by the canonical BSON ordering.  Values of
// different type ranks order by rank, numbers by mathematical value (NaN
// below every other number), documents field by field, and arrays element
// by element then by length.
func Compare(a, b Value) int {
	return CompareWithCollator(a, b, nil)
}

func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func CompareWithCollator(a, b Value, c Collator) int {
	if ra, rb := a.kind.Rank(), b.kind.Rank(); ra != rb {
		return cmpInt(ra, rb)
	}
	switch a.kind {
	case KindMissing, KindMinKey, KindMaxKey, KindNull, KindUndefined:
		return 0
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return compareNumbers(a, b)
	case KindString:
		if c != nil {
			return c.CompareString(a.s, b.s)
		}
		return strings.Compare(a.s, b.s)
	case KindDocument:
		return compareDocuments(a.Document(), b.Document(), c)
	case KindArray:
		return compareArrays(a.Array(), b.Array(), c)
	case KindBinData:
		ab, bb := a.Binary(), b.Binary()
		if len(ab.Data) != len(bb.Data) {
			return cmpInt(len(ab.Data), len(bb.Data))
		}
		if ab.Subtype != bb.Subtype {
			return cmpInt(int(ab.Subtype), int(bb.Subtype))
		}
		return bytes.Compare(ab.Data, bb.Data)
	case KindObjectID:
		ao, bo := a.ObjectID(), b.ObjectID()
		return bytes.Compare(ao[:], bo[:])
	case KindBool, KindDate:
		return cmpInt64(a.n, b.n)
	case KindTimestamp:
		switch ua, ub := uint64(a.n), uint64(b.n); {
		case ua < ub:
			return -1
		case ua > ub:
			return 1
		}
		return 0
	case KindRegex:
		if r := strings.Compare(a.s, b.s); r != 0 {
			return r
		}
		_, ao := a.Regex()
		_, bo := b.Regex()
		return strings.Compare(ao, bo)
	case KindJavaScript:
		return strings.Compare(a.s, b.s)
	}
	panic("docpipe: unknown kind in Compare")
}

func compareDocuments(a, b *Document, c Collator) int {
	af, bf := a.Fields(), b.Fields()
	for k := 0; k < len(af) && k < len(bf); k++ {
		if r := cmpInt(af[k].Value.kind.Rank(), bf[k].Value.kind.Rank()); r != 0 {
			return r
		}
		if r := strings.Compare(af[k].Name, bf[k].Name); r != 0 {
			return r
		}
		if r := CompareWithCollator(af[k].Value, bf[k].Value, c); r != 0 {
			return r
		}
	}
	return cmpInt(len(af), len(bf))
}

func compareArrays(a, b []Value, c Collator) int {
	for k := 0; k < len(a) && k < len(b); k++ {
		if r := CompareWithCollator(a[k], b[k], c); r != 0 {
			return r
		}
	}
	return cmpInt(len(a), len(b))
}

func compareNumbers(a, b Value) int {
	if a.kind <= KindInt64 && b.kind <= KindInt64 {
		return cmpInt64(a.n, b.n)
	}
	if a.kind == KindDouble && b.kind == KindDouble && !math.IsNaN(a.f) && !math.IsNaN(b.f) {
		return cmpFloat(a.f, b.f)
	}
	switch an, bn := a.IsNaN(), b.IsNaN(); {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	ai, bi := infSign(a), infSign(b)
	if ai != 0 || bi != 0 {
		return cmpInt(ai, bi)
	}
	return toRat(a).Cmp(toRat(b))
}

// infSign returns +1 or -1 for an infinite double or decimal and 0 otherwise.
func infSign(v Value) int {
	switch v.kind {
	case KindDouble:
		switch {
		case math.IsInf(v.f, 1):
			return 1
		case math.IsInf(v.f, -1):
			return -1
		}
	case KindDecimal128:
		return v.Decimal().IsInf()
	}
	return 0
}

// toRat returns the exact value of a finite number.
func toRat(v Value) *big.Rat {
	switch v.kind {
	case KindInt32, KindInt64:
		return new(big.Rat).SetInt64(v.n)
	case KindDouble:
		return new(big.Rat).SetFloat64(v.f)
	case KindDecimal128:
		coef, exp, err := v.Decimal().BigInt()
		if err != nil {
			return new(big.Rat)
		}
		if exp >= 0 {
			return new(big.Rat).SetInt(coef.Mul(coef, pow10(exp)))
		}
		return new(big.Rat).SetFrac(coef, pow10(-exp))
	}
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
