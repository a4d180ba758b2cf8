// Package zbuf provides the batch and puller plumbing that carries
// documents between operators.
package zbuf

import (
	"io"

	"github.com/brimdata/docpipe"
)

// Batch is an interface to a bundle of documents.  Batches can be shared
// across goroutines via reference counting and should be copied on
// modification when the reference count is greater than 1.
type Batch interface {
	Ref()
	Unref()
	Documents() []*docpipe.Document
}

// Puller is the pull-model interface every operator implements.  A
// Pull(false) returns the next batch, or a nil batch at end of stream.
// Pull(true) tells the puller that its consumer needs nothing further; the
// puller releases its resources, propagates done upstream, and returns a
// nil batch.
type Puller interface {
	Pull(done bool) (Batch, error)
}

type PullerCloser interface {
	Puller
	io.Closer
}

type Reader interface {
	Read() (*docpipe.Document, error)
}

type Writer interface {
	Write(*docpipe.Document) error
}

// ReadBatch reads up to n documents from r and returns them as a Batch.
// At EOF, it returns a nil Batch and nil error.
func ReadBatch(r Reader, n int) (Batch, error) {
	docs := make([]*docpipe.Document, 0, n)
	for len(docs) < n {
		doc, err := r.Read()
		if err != nil {
			return nil, err
		}
		if doc == nil {
			break
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return NewArray(docs), nil
}

type batchReader struct {
	batch Batch
	n     int
}

func NewBatchReader(batch Batch) Reader {
	return &batchReader{batch: batch}
}

func (b *batchReader) Read() (*docpipe.Document, error) {
	docs := b.batch.Documents()
	if b.n >= len(docs) {
		return nil, nil
	}
	doc := docs[b.n]
	b.n++
	return doc, nil
}
