// Package densify implements $densify, which fills gaps in a numeric or
// date sequence with generated documents.
package densify

import (
	"math"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/order"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/spill"
	"github.com/brimdata/docpipe/zbuf"
)

var units = map[string]time.Duration{
	"millisecond": time.Millisecond,
	"second":      time.Second,
	"minute":      time.Minute,
	"hour":        time.Hour,
	"day":         24 * time.Hour,
	"week":        7 * 24 * time.Hour,
}

// Op is a blocking $densify.  Its output is sorted by the partition
// fields and then the densified field.
type Op struct {
	octx   *op.Context
	parent zbuf.Puller
	spec   *dag.Densify
	out    []*docpipe.Document
	done   bool
}

func New(octx *op.Context, parent zbuf.Puller, spec *dag.Densify) *Op {
	return &Op{octx: octx, parent: parent, spec: spec}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	if done {
		o.done = true
		o.out = nil
		return o.parent.Pull(true)
	}
	if !o.done {
		o.done = true
		docs, err := zbuf.PullAll(o.parent)
		if err != nil {
			return nil, err
		}
		if o.out, err = o.densify(docs); err != nil {
			return nil, err
		}
	}
	if len(o.out) == 0 {
		return nil, nil
	}
	n := op.BatchLen
	if n > len(o.out) {
		n = len(o.out)
	}
	batch := zbuf.NewArray(o.out[:n:n])
	o.out = o.out[n:]
	return batch, nil
}

func (o *Op) keys() order.SortKeys {
	var keys order.SortKeys
	for _, p := range o.spec.PartitionBy {
		keys = append(keys, order.NewSortKey(order.Asc, p))
	}
	return append(keys, order.NewSortKey(order.Asc, o.spec.Field))
}

type partition struct {
	key  []docpipe.Value
	docs []*docpipe.Document
	// lo and hi are the least and greatest densified values.
	lo, hi docpipe.Value
}

func (o *Op) densify(docs []*docpipe.Document) ([]*docpipe.Document, error) {
	spill.SortStable(docs, zbuf.NewComparator(o.keys(), o.octx.Expr.Collator))
	var parts []*partition
	var cur *partition
	var lo, hi docpipe.Value
	for _, doc := range docs {
		v := doc.Lookup(o.spec.Field)
		if err := o.check(v); err != nil {
			return nil, err
		}
		key := o.partitionKey(doc)
		if cur == nil || !equalKeys(cur.key, key) {
			cur = &partition{key: key}
			parts = append(parts, cur)
		}
		cur.docs = append(cur.docs, doc)
		if v.IsNullish() {
			continue
		}
		if cur.lo.IsMissing() || docpipe.Compare(v, cur.lo) < 0 {
			cur.lo = v
		}
		if cur.hi.IsMissing() || docpipe.Compare(v, cur.hi) > 0 {
			cur.hi = v
		}
		if lo.IsMissing() || docpipe.Compare(v, lo) < 0 {
			lo = v
		}
		if hi.IsMissing() || docpipe.Compare(v, hi) > 0 {
			hi = v
		}
	}
	var out []*docpipe.Document
	for _, p := range parts {
		r := rng{step: o.spec.Step, unit: units[o.spec.Unit], inclusive: true}
		switch o.spec.Bounds {
		case "full":
			r.lo, r.hi = lo, hi
		case "partition":
			r.lo, r.hi = p.lo, p.hi
		default:
			r.lo, r.hi, r.inclusive = o.spec.Lo, o.spec.Hi, false
		}
		var err error
		if out, err = o.fill(out, p, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *Op) check(v docpipe.Value) error {
	if v.IsNullish() {
		return nil
	}
	if o.spec.Unit != "" {
		if v.Kind() != docpipe.KindDate {
			return dperr.E(dperr.TypeMismatch, dperr.Code(6053600), "densify field with a unit must be a date, found %s", v.TypeName())
		}
		return nil
	}
	if !v.IsNumber() {
		return dperr.E(dperr.TypeMismatch, dperr.Code(5733201), "densify field must be numeric, found %s", v.TypeName())
	}
	return nil
}

func (o *Op) partitionKey(doc *docpipe.Document) []docpipe.Value {
	key := make([]docpipe.Value, len(o.spec.PartitionBy))
	for k, p := range o.spec.PartitionBy {
		key[k] = doc.Lookup(p)
	}
	return key
}

func equalKeys(a, b []docpipe.Value) bool {
	for k := range a {
		if docpipe.Key(a[k]) != docpipe.Key(b[k]) {
			return false
		}
	}
	return true
}

// rng is the sequence lo, lo+step, lo+2*step, ... up to hi.
type rng struct {
	lo, hi    docpipe.Value
	step      docpipe.Value
	unit      time.Duration
	inclusive bool
}

func (r rng) in(v docpipe.Value) bool {
	c := docpipe.Compare(v, r.hi)
	return c < 0 || (c == 0 && r.inclusive)
}

func (r rng) add(v docpipe.Value, n int64) (docpipe.Value, error) {
	if r.unit != 0 {
		return docpipe.NewDate(v.Int() + n*r.step.Int()*r.unit.Milliseconds()), nil
	}
	delta, err := docpipe.Multiply(docpipe.NewInt64(n), r.step)
	if err != nil {
		return docpipe.Value{}, err
	}
	return docpipe.Add(v, delta)
}

// after returns the least step of r strictly greater than v, which must be
// at least r.lo.
func (r rng) after(v docpipe.Value) (docpipe.Value, error) {
	var k int64
	if r.unit != 0 {
		k = (v.Int()-r.lo.Int())/(r.step.Int()*r.unit.Milliseconds()) + 1
	} else {
		x, _ := v.AsFloat64()
		lo, _ := r.lo.AsFloat64()
		step, _ := r.step.AsFloat64()
		k = int64(math.Floor((x-lo)/step)) + 1
	}
	next, err := r.add(r.lo, k)
	if err != nil {
		return next, err
	}
	// Guard against floating point steps landing on or below v.
	for docpipe.Compare(next, v) <= 0 {
		k++
		if next, err = r.add(r.lo, k); err != nil {
			return next, err
		}
	}
	return next, nil
}

func (o *Op) fill(out []*docpipe.Document, p *partition, r rng) ([]*docpipe.Document, error) {
	if r.lo.IsMissing() || r.hi.IsMissing() {
		return append(out, p.docs...), nil
	}
	cur := r.lo
	var n int64
	var err error
	for _, doc := range p.docs {
		v := doc.Lookup(o.spec.Field)
		if v.IsNullish() {
			out = append(out, doc)
			continue
		}
		for docpipe.Compare(cur, v) < 0 && r.in(cur) {
			out = append(out, o.generate(p.key, cur))
			n++
			if cur, err = r.add(r.lo, n); err != nil {
				return nil, err
			}
		}
		out = append(out, doc)
		if docpipe.Compare(v, cur) >= 0 {
			if cur, err = r.after(v); err != nil {
				return nil, err
			}
			n = r.steps(cur)
		}
	}
	for r.in(cur) {
		out = append(out, o.generate(p.key, cur))
		n++
		if cur, err = r.add(r.lo, n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// steps is the number of steps from r.lo to v, which is on a step.
func (r rng) steps(v docpipe.Value) int64 {
	if r.unit != 0 {
		return (v.Int() - r.lo.Int()) / (r.step.Int() * r.unit.Milliseconds())
	}
	x, _ := v.AsFloat64()
	lo, _ := r.lo.AsFloat64()
	step, _ := r.step.AsFloat64()
	return int64(math.Round((x - lo) / step))
}

func (o *Op) generate(key []docpipe.Value, v docpipe.Value) *docpipe.Document {
	doc := docpipe.EmptyDocument
	for k, p := range o.spec.PartitionBy {
		if !key[k].IsMissing() {
			doc = doc.SetPath(p, key[k])
		}
	}
	return doc.SetPath(o.spec.Field, v)
}
