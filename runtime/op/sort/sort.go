// Package sort implements $sort.  Documents are buffered in memory and
// sorted stably; when the buffer exceeds the context's memory bound it is
// spilled as a sorted run and the runs are merged at end of input.
package sort

import (
	"sync"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/order"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/spill"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/zap"
)

type Op struct {
	octx       *op.Context
	parent     zbuf.Puller
	comparator *zbuf.Comparator
	limit      int64

	once     sync.Once
	resultCh chan op.Result
	doneCh   chan struct{}
	running  bool
	eos      bool
	spills   int
}

// New returns a stable sort of parent by keys.  A positive limit keeps
// only the first limit documents of the sorted order.
func New(octx *op.Context, parent zbuf.Puller, keys order.SortKeys, limit int64) *Op {
	return &Op{
		octx:       octx,
		parent:     parent,
		comparator: zbuf.NewComparator(keys, octx.Expr.Collator),
		limit:      limit,
		resultCh:   make(chan op.Result),
		doneCh:     make(chan struct{}),
	}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	if o.eos {
		return nil, nil
	}
	o.once.Do(func() {
		if done {
			return
		}
		o.running = true
		// Block the context's Cancel until run finishes its cleanup.
		o.octx.WaitGroup.Add(1)
		go o.run()
	})
	if done {
		o.eos = true
		if !o.running {
			return o.parent.Pull(true)
		}
		close(o.doneCh)
		// Drain until run has cleaned up and closed the channel.
		for r := range o.resultCh {
			if r.Batch != nil {
				r.Batch.Unref()
			}
		}
		return nil, nil
	}
	select {
	case r, ok := <-o.resultCh:
		if !ok {
			o.eos = true
			return nil, o.octx.Check()
		}
		if r.Err != nil {
			o.eos = true
		}
		return r.Batch, r.Err
	case <-o.octx.Done():
		return nil, o.octx.Check()
	}
}

// Spills reports how many sorted runs were written to disk.
func (o *Op) Spills() int {
	return o.spills
}

func (o *Op) run() {
	var spiller *spill.MergeSort
	defer func() {
		if spiller != nil {
			if err := spiller.Cleanup(); err != nil {
				o.octx.Logger.Warn("removing sort spill files", zap.Error(err))
			}
		}
		close(o.resultCh)
		o.octx.WaitGroup.Done()
	}()
	var nbytes int
	var out []*docpipe.Document
	for {
		select {
		case <-o.doneCh:
			o.parent.Pull(true)
			return
		default:
		}
		batch, err := o.parent.Pull(false)
		if err != nil {
			o.sendResult(nil, err)
			return
		}
		if batch == nil {
			break
		}
		for _, doc := range batch.Documents() {
			out = append(out, doc)
			nbytes += docSize(doc)
		}
		batch.Unref()
		if o.limit > 0 {
			// A top-k sort never holds more than twice the limit.
			if int64(len(out)) >= 2*o.limit {
				spill.SortStable(out, o.comparator)
				out = out[:o.limit:o.limit]
			}
			continue
		}
		if o.octx.MemMaxBytes <= 0 || nbytes < o.octx.MemMaxBytes {
			continue
		}
		if spiller == nil {
			spiller = spill.NewMergeSort(o.comparator, "")
		}
		if err := spiller.Spill(o.octx, out); err != nil {
			o.sendResult(nil, err)
			return
		}
		o.spills++
		o.octx.Logger.Debug("sort spilled", zap.Int("docs", len(out)), zap.Int("bytes", nbytes))
		out = nil
		nbytes = 0
	}
	if spiller == nil {
		spill.SortStable(out, o.comparator)
		if o.limit > 0 && int64(len(out)) > o.limit {
			out = out[:o.limit]
		}
		o.sendDocs(out)
		return
	}
	if len(out) > 0 {
		if err := spiller.Spill(o.octx, out); err != nil {
			o.sendResult(nil, err)
			return
		}
		o.spills++
	}
	// Reading from the spiller merges the spilled runs.
	puller := zbuf.NewPuller(spiller, op.BatchLen)
	for {
		b, err := puller.Pull(false)
		if b == nil || err != nil {
			if err != nil {
				o.sendResult(nil, err)
			}
			return
		}
		if !o.sendResult(b, nil) {
			return
		}
	}
}

func (o *Op) sendDocs(docs []*docpipe.Document) {
	for len(docs) > 0 {
		n := op.BatchLen
		if n > len(docs) {
			n = len(docs)
		}
		if !o.sendResult(zbuf.NewArray(docs[:n:n]), nil) {
			return
		}
		docs = docs[n:]
	}
}

func (o *Op) sendResult(b zbuf.Batch, err error) bool {
	select {
	case o.resultCh <- op.Result{Batch: b, Err: err}:
		return true
	case <-o.doneCh:
		return false
	case <-o.octx.Done():
		return false
	}
}

// docSize approximates the memory held by doc.
func docSize(doc *docpipe.Document) int {
	n := 16
	for _, f := range doc.Fields() {
		n += len(f.Name) + valueSize(f.Value)
	}
	return n
}

func valueSize(v docpipe.Value) int {
	switch v.Kind() {
	case docpipe.KindString, docpipe.KindJavaScript:
		return 16 + len(v.Str())
	case docpipe.KindDocument:
		return docSize(v.Document())
	case docpipe.KindArray:
		n := 24
		for _, elem := range v.Array() {
			n += valueSize(elem)
		}
		return n
	case docpipe.KindBinData:
		return 24 + len(v.Binary().Data)
	}
	return 16
}
