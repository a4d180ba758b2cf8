package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Interval is a range of values in the canonical ordering.
type Interval struct {
	Lo, Hi      docpipe.Value
	LoInclusive bool
	HiInclusive bool
}

func point(v docpipe.Value) Interval {
	return Interval{Lo: v, Hi: v, LoInclusive: true, HiInclusive: true}
}

var nullInterval = Interval{Lo: docpipe.Missing, Hi: docpipe.Null, LoInclusive: true, HiInclusive: true}

// Overlaps is true when i intersects the closed range [min, max].
func (i Interval) Overlaps(min, max docpipe.Value) bool {
	if c := docpipe.Compare(i.Hi, min); c < 0 || (c == 0 && !i.HiInclusive) {
		return false
	}
	if c := docpipe.Compare(i.Lo, max); c > 0 || (c == 0 && !i.LoInclusive) {
		return false
	}
	return true
}

func (i Interval) String() string {
	lo, hi := "(", ")"
	if i.LoInclusive {
		lo = "["
	}
	if i.HiInclusive {
		hi = "]"
	}
	return fmt.Sprintf("%s%s, %s%s", lo, i.Lo, i.Hi, hi)
}

// Bound constrains the values a matching document can hold at Path: every
// match has at least one value at Path, as returned by Values, inside one
// of Intervals.  A Bound with no intervals is unsatisfiable.
type Bound struct {
	Path      field.Path
	Intervals []Interval
}

// Overlaps is false when no document whose values at b.Path all lie in
// [min, max] can match.
func (b Bound) Overlaps(min, max docpipe.Value) bool {
	for _, i := range b.Intervals {
		if i.Overlaps(min, max) {
			return true
		}
	}
	return false
}

func (b Bound) String() string {
	s := make([]string, 0, len(b.Intervals))
	for _, i := range b.Intervals {
		s = append(s, i.String())
	}
	return fmt.Sprintf("%s: %s", b.Path, strings.Join(s, " U "))
}

// Bounds derives per-path value bounds from the conjunction at the top of
// f.  Predicates that cannot be bounded contribute nothing.  When collated
// is true, string comparisons follow a collation that the canonical
// ordering of stats does not know, so bounds involving strings are left
// out.
func (f *Filter) Bounds(collated bool) []Bound {
	var out []Bound
	f.bounds(f.root, nil, collated, &out)
	return out
}

func (f *Filter) bounds(id int32, prefix field.Path, collated bool, out *[]Bound) {
	n := &f.nodes[id]
	path := append(append(field.Path(nil), prefix...), n.path...)
	switch n.op {
	case opAnd:
		for _, kid := range n.kids {
			f.bounds(kid, prefix, collated, out)
		}
	case opElemMatch:
		if n.objects {
			f.bounds(n.kids[0], path, collated, out)
		}
	case opCompare:
		if collated && hasString(n.val) {
			return
		}
		if intervals, ok := compareIntervals(n.cmp, n.val); ok {
			*out = append(*out, Bound{Path: path, Intervals: intervals})
		}
	case opIn:
		var intervals []Interval
		for _, v := range n.vals {
			if collated && hasString(v) {
				return
			}
			if v.Kind() == docpipe.KindNull {
				intervals = append(intervals, nullInterval)
			} else {
				intervals = append(intervals, point(v))
			}
		}
		if len(n.res) > 0 {
			if collated {
				return
			}
			intervals = append(intervals, bracket(docpipe.KindString.Rank()))
		}
		*out = append(*out, Bound{Path: path, Intervals: intervals})
	case opRegex:
		if collated {
			return
		}
		*out = append(*out, Bound{Path: path, Intervals: []Interval{
			bracket(docpipe.KindString.Rank()),
			point(n.val),
		}})
	case opConst:
		if !n.exists {
			*out = append(*out, Bound{Path: field.Path{}})
		}
	}
}

func compareIntervals(op cmpOp, v docpipe.Value) ([]Interval, bool) {
	if v.Kind() == docpipe.KindNull {
		switch op {
		case cmpEQ, cmpGTE, cmpLTE:
			return []Interval{nullInterval}, true
		}
		return nil, true
	}
	if op == cmpEQ {
		return []Interval{point(v)}, true
	}
	if v.IsNaN() {
		return nil, false
	}
	switch v.Kind() {
	case docpipe.KindMinKey:
		return []Interval{{Lo: v, Hi: docpipe.MaxKey, LoInclusive: op == cmpGTE, HiInclusive: true}}, true
	case docpipe.KindMaxKey:
		return []Interval{{Lo: docpipe.MinKey, Hi: v, LoInclusive: true, HiInclusive: op == cmpLTE}}, true
	}
	b := bracket(v.Kind().Rank())
	switch op {
	case cmpGT, cmpGTE:
		b.Lo, b.LoInclusive = v, op == cmpGTE
	default:
		b.Hi, b.HiInclusive = v, op == cmpLTE
	}
	return []Interval{b}, true
}

// bracket is the interval covering every value of the given rank.
func bracket(rank int) Interval {
	return Interval{Lo: rankFloor(rank), Hi: rankFloor(rank + 1), LoInclusive: true}
}

// rankFloor is the least value of rank in the canonical ordering.
func rankFloor(rank int) docpipe.Value {
	switch rank {
	case 0:
		return docpipe.MinKey
	case 1:
		return docpipe.Missing
	case 2:
		return docpipe.Null
	case 3:
		return docpipe.NewDouble(math.NaN())
	case 4:
		return docpipe.NewString("")
	case 5:
		return docpipe.NewDocumentValue(docpipe.EmptyDocument)
	case 6:
		return docpipe.NewArray(nil)
	case 7:
		return docpipe.NewBinary(0, nil)
	case 8:
		return docpipe.NewObjectID(primitive.NilObjectID)
	case 9:
		return docpipe.False
	case 10:
		return docpipe.NewDate(math.MinInt64)
	case 11:
		return docpipe.NewTimestamp(0, 0)
	case 12:
		return docpipe.NewRegex("", "")
	case 13:
		return docpipe.NewJavaScript("")
	}
	return docpipe.MaxKey
}

func hasString(v docpipe.Value) bool {
	switch v.Kind() {
	case docpipe.KindString:
		return true
	case docpipe.KindDocument:
		for _, f := range v.Document().Fields() {
			if hasString(f.Value) {
				return true
			}
		}
	case docpipe.KindArray:
		for _, elem := range v.Array() {
			if hasString(elem) {
				return true
			}
		}
	}
	return false
}
