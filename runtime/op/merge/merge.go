// Package merge combines sorted input streams into one sorted stream.
package merge

import (
	"container/heap"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/order"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/zbuf"
)

// Op is a k-way merge of parents, each of which must already be sorted by
// the merge keys.  Documents that compare equal are taken from the
// lower-numbered parent first, so merging per-partition stable sorts gives
// the same result as one stable sort over the partitions concatenated in
// order.
type Op struct {
	octx       *op.Context
	comparator *zbuf.Comparator
	parents    []*input
	started    bool
	done       bool
}

type input struct {
	zbuf.Puller
	id    int
	docs  []*docpipe.Document
	key   []docpipe.Value
	batch zbuf.Batch
}

func New(octx *op.Context, parents []zbuf.Puller, keys order.SortKeys) *Op {
	inputs := make([]*input, 0, len(parents))
	for k, p := range parents {
		inputs = append(inputs, &input{Puller: p, id: k})
	}
	return &Op{
		octx:       octx,
		comparator: zbuf.NewComparator(keys, octx.Expr.Collator),
		parents:    inputs,
	}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	if o.done {
		return nil, nil
	}
	if done {
		return nil, o.propagateDone()
	}
	if !o.started {
		o.started = true
		if err := o.start(); err != nil {
			return nil, err
		}
	}
	var out []*docpipe.Document
	for len(out) < op.BatchLen && o.Len() > 0 {
		in := o.parents[0]
		out = append(out, in.docs[0])
		ok, err := o.advance(in)
		if err != nil {
			return nil, err
		}
		if ok {
			heap.Fix(o, 0)
		} else {
			heap.Pop(o)
		}
	}
	if len(out) == 0 {
		o.done = true
		return nil, nil
	}
	return zbuf.NewArray(out), nil
}

func (o *Op) start() error {
	live := make([]*input, 0, len(o.parents))
	for _, in := range o.parents {
		ok, err := o.fill(in)
		if err != nil {
			return err
		}
		if ok {
			live = append(live, in)
		}
	}
	o.parents = live
	heap.Init(o)
	return nil
}

// advance moves in past its head document.  It returns false when in is
// exhausted.
func (o *Op) advance(in *input) (bool, error) {
	in.docs = in.docs[1:]
	if len(in.docs) > 0 {
		in.key = o.comparator.Key(in.docs[0])
		return true, nil
	}
	return o.fill(in)
}

func (o *Op) fill(in *input) (bool, error) {
	for {
		if in.batch != nil {
			in.batch.Unref()
			in.batch = nil
		}
		batch, err := in.Pull(false)
		if err != nil {
			return false, err
		}
		if batch == nil {
			return false, nil
		}
		if docs := batch.Documents(); len(docs) > 0 {
			in.batch = batch
			in.docs = docs
			in.key = o.comparator.Key(docs[0])
			return true, nil
		}
	}
}

func (o *Op) propagateDone() error {
	o.done = true
	var first error
	for _, in := range o.parents {
		if _, err := in.Pull(true); err != nil && first == nil {
			first = err
		}
	}
	o.parents = nil
	return first
}

func (o *Op) Len() int { return len(o.parents) }

func (o *Op) Less(i, j int) bool {
	a, b := o.parents[i], o.parents[j]
	if c := o.comparator.CompareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

func (o *Op) Swap(i, j int) { o.parents[i], o.parents[j] = o.parents[j], o.parents[i] }

func (o *Op) Push(x interface{}) {
	o.parents = append(o.parents, x.(*input))
}

func (o *Op) Pop() interface{} {
	n := len(o.parents) - 1
	in := o.parents[n]
	o.parents = o.parents[:n]
	return in
}
