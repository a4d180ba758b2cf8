// Package groupby implements $group and $count.  Both can run split in two
// halves: partitions emit partial results and the merger combines them.
package groupby

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/expr/agg"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/zbuf"
)

type Aggregator struct {
	Name    string
	Expr    *expr.Program
	Pattern agg.Pattern
}

// NewAggregators resolves the accumulator patterns of aggs.
func NewAggregators(aggs []dag.Agg) ([]Aggregator, error) {
	out := make([]Aggregator, 0, len(aggs))
	for _, a := range aggs {
		p, err := agg.NewPattern(a.Op)
		if err != nil {
			return nil, err
		}
		out = append(out, Aggregator{Name: a.Name, Expr: a.Expr, Pattern: p})
	}
	return out, nil
}

type row struct {
	id   docpipe.Value
	cols []agg.Function
}

// Op is a blocking $group.  Groups are emitted in the order their keys
// were first seen.
type Op struct {
	octx   *op.Context
	parent zbuf.Puller
	id     *expr.Program
	aggs   []Aggregator
	mode   dag.GroupMode

	rows  map[string]*row
	order []*row
	out   []*docpipe.Document
	done  bool
}

func New(octx *op.Context, parent zbuf.Puller, id *expr.Program, aggs []Aggregator, mode dag.GroupMode) *Op {
	return &Op{
		octx:   octx,
		parent: parent,
		id:     id,
		aggs:   aggs,
		mode:   mode,
		rows:   make(map[string]*row),
	}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	if done {
		o.done = true
		o.out = nil
		return o.parent.Pull(true)
	}
	if !o.done {
		if err := o.consumeAll(); err != nil {
			return nil, err
		}
		o.done = true
		o.out = o.results()
		o.rows, o.order = nil, nil
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

func (o *Op) consumeAll() error {
	for {
		batch, err := o.parent.Pull(false)
		if batch == nil || err != nil {
			return err
		}
		for _, doc := range batch.Documents() {
			if err := o.consume(doc); err != nil {
				batch.Unref()
				return err
			}
		}
		batch.Unref()
	}
}

func (o *Op) consume(doc *docpipe.Document) error {
	var id docpipe.Value
	if o.mode == dag.GroupMerge {
		id = doc.Get("_id")
	} else {
		var err error
		if id, err = o.id.Eval(o.octx.Expr, doc); err != nil {
			return err
		}
	}
	if id.IsMissing() {
		id = docpipe.Null
	}
	r := o.lookup(id)
	for k, a := range o.aggs {
		if o.mode == dag.GroupMerge {
			r.cols[k].ConsumeAsPartial(doc.Get(a.Name))
			continue
		}
		v, err := a.Expr.Eval(o.octx.Expr, doc)
		if err != nil {
			return err
		}
		r.cols[k].Consume(v)
	}
	return nil
}

func (o *Op) lookup(id docpipe.Value) *row {
	key := docpipe.Key(id)
	if r, ok := o.rows[key]; ok {
		return r
	}
	r := &row{id: id, cols: make([]agg.Function, 0, len(o.aggs))}
	for _, a := range o.aggs {
		r.cols = append(r.cols, a.Pattern())
	}
	o.rows[key] = r
	o.order = append(o.order, r)
	return r
}

func (o *Op) results() []*docpipe.Document {
	out := make([]*docpipe.Document, 0, len(o.order))
	for _, r := range o.order {
		var b docpipe.Builder
		b.Append("_id", r.id)
		for k, a := range o.aggs {
			if o.mode == dag.GroupPartial {
				b.Append(a.Name, r.cols[k].ResultAsPartial())
			} else {
				b.Append(a.Name, r.cols[k].Result())
			}
		}
		out = append(out, b.Document())
	}
	return out
}
