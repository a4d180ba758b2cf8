package zbuf

import (
	"github.com/brimdata/docpipe"
)

// PullerBatchSize is the number of documents NewPuller puts in a batch
// when given a non-positive size.
var PullerBatchSize = 100

type puller struct {
	r    Reader
	n    int
	done bool
}

// NewPuller returns a Puller that reads batches of up to n documents
// from r.
func NewPuller(r Reader, n int) Puller {
	if n <= 0 {
		n = PullerBatchSize
	}
	return &puller{r: r, n: n}
}

func (p *puller) Pull(done bool) (Batch, error) {
	if done {
		p.done = true
	}
	if p.done {
		return nil, nil
	}
	return ReadBatch(p.r, p.n)
}

// NewSlicePuller returns a Puller over docs, for tests and literal sources.
func NewSlicePuller(docs ...*docpipe.Document) Puller {
	return NewPuller(NewArray(docs), 0)
}

// PullerReader adapts a Puller to the Reader interface.
type PullerReader struct {
	p    Puller
	docs []*docpipe.Document
}

func NewPullerReader(p Puller) *PullerReader {
	return &PullerReader{p: p}
}

func (r *PullerReader) Read() (*docpipe.Document, error) {
	for len(r.docs) == 0 {
		batch, err := r.p.Pull(false)
		if batch == nil || err != nil {
			return nil, err
		}
		r.docs = batch.Documents()
	}
	doc := r.docs[0]
	r.docs = r.docs[1:]
	return doc, nil
}

// CopyPuller writes every document pulled from p to w.
func CopyPuller(w Writer, p Puller) error {
	for {
		batch, err := p.Pull(false)
		if batch == nil || err != nil {
			return err
		}
		for _, doc := range batch.Documents() {
			if err := w.Write(doc); err != nil {
				return err
			}
		}
		batch.Unref()
	}
}

// PullAll drains p into a slice.
func PullAll(p Puller) ([]*docpipe.Document, error) {
	var a Array
	if err := CopyPuller(&a, p); err != nil {
		return nil, err
	}
	return a.Documents(), nil
}
