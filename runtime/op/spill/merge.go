package spill

import (
	"container/heap"
	"context"
	"sort"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/multierr"
)

// MergeSort spills sorted runs of documents to temporary files and then
// merges them back into one sorted stream.  Documents that compare equal
// come out in the order they were spilled, so the merge is stable.
type MergeSort struct {
	comparator *zbuf.Comparator
	dir        string
	runs       []*run
	merging    bool
}

type run struct {
	file *File
	key  []docpipe.Value
	doc  *docpipe.Document
	seq  int
}

var _ zbuf.Reader = (*MergeSort)(nil)

// NewMergeSort returns a MergeSort that writes its runs in dir, or the
// default temporary directory if dir is empty.
func NewMergeSort(comparator *zbuf.Comparator, dir string) *MergeSort {
	return &MergeSort{comparator: comparator, dir: dir}
}

// SortStable sorts docs by c.
func SortStable(docs []*docpipe.Document, c *zbuf.Comparator) {
	keys := make([][]docpipe.Value, len(docs))
	for k, doc := range docs {
		keys[k] = c.Key(doc)
	}
	sort.Stable(&keyed{docs: docs, keys: keys, c: c})
}

type keyed struct {
	docs []*docpipe.Document
	keys [][]docpipe.Value
	c    *zbuf.Comparator
}

func (k *keyed) Len() int           { return len(k.docs) }
func (k *keyed) Less(i, j int) bool { return k.c.CompareKeys(k.keys[i], k.keys[j]) < 0 }
func (k *keyed) Swap(i, j int) {
	k.docs[i], k.docs[j] = k.docs[j], k.docs[i]
	k.keys[i], k.keys[j] = k.keys[j], k.keys[i]
}

// Spill sorts docs and writes them to a new run.
func (m *MergeSort) Spill(ctx context.Context, docs []*docpipe.Document) error {
	SortStable(docs, m.comparator)
	f, err := NewTempFile(m.dir)
	if err != nil {
		return err
	}
	m.runs = append(m.runs, &run{file: f, seq: len(m.runs)})
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Write(doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *MergeSort) Runs() int {
	return len(m.runs)
}

// Read returns the least document across all runs, or nil when every run
// is exhausted.
func (m *MergeSort) Read() (*docpipe.Document, error) {
	if !m.merging {
		if err := m.start(); err != nil {
			return nil, err
		}
	}
	if len(m.runs) == 0 {
		return nil, nil
	}
	r := m.runs[0]
	doc := r.doc
	if err := r.next(m.comparator); err != nil {
		return nil, err
	}
	if r.doc == nil {
		heap.Pop(m)
	} else {
		heap.Fix(m, 0)
	}
	return doc, nil
}

func (m *MergeSort) start() error {
	m.merging = true
	live := m.runs[:0]
	for _, r := range m.runs {
		if err := r.file.Rewind(); err != nil {
			return err
		}
		if err := r.next(m.comparator); err != nil {
			return err
		}
		if r.doc != nil {
			live = append(live, r)
		} else {
			r.file.CloseAndRemove()
		}
	}
	m.runs = live
	heap.Init(m)
	return nil
}

func (r *run) next(c *zbuf.Comparator) error {
	doc, err := r.file.Read()
	if err != nil {
		return err
	}
	r.doc = doc
	if doc != nil {
		r.key = c.Key(doc)
	}
	return nil
}

// Cleanup removes every run's file.
func (m *MergeSort) Cleanup() error {
	var err error
	for _, r := range m.runs {
		err = multierr.Append(err, r.file.CloseAndRemove())
	}
	m.runs = nil
	return err
}

func (m *MergeSort) Len() int { return len(m.runs) }

func (m *MergeSort) Less(i, j int) bool {
	if c := m.comparator.CompareKeys(m.runs[i].key, m.runs[j].key); c != 0 {
		return c < 0
	}
	return m.runs[i].seq < m.runs[j].seq
}

func (m *MergeSort) Swap(i, j int) { m.runs[i], m.runs[j] = m.runs[j], m.runs[i] }

func (m *MergeSort) Push(x interface{}) {
	m.runs = append(m.runs, x.(*run))
}

func (m *MergeSort) Pop() interface{} {
	n := len(m.runs) - 1
	r := m.runs[n]
	m.runs = m.runs[:n]
	r.file.CloseAndRemove()
	return r
}
