package zbuf

import (
	"github.com/brimdata/docpipe"
)

// Array is a slice of documents that implements the Batch, Reader and
// Writer interfaces.
type Array struct {
	docs []*docpipe.Document
}

var _ Batch = (*Array)(nil)
var _ Reader = (*Array)(nil)
var _ Writer = (*Array)(nil)

func NewArray(docs []*docpipe.Document) *Array {
	return &Array{docs: docs}
}

func (a *Array) Ref() {
	// do nothing... let the GC reclaim it
}

func (a *Array) Unref() {
	// do nothing... let the GC reclaim it
}

func (a *Array) Documents() []*docpipe.Document {
	return a.docs
}

func (a *Array) Append(doc *docpipe.Document) {
	a.docs = append(a.docs, doc)
}

// Write appends doc.  Documents are immutable so no copy is made.
func (a *Array) Write(doc *docpipe.Document) error {
	a.Append(doc)
	return nil
}

// Read removes the first element of the Array and returns it,
// or it returns nil if the Array is empty.
func (a *Array) Read() (*docpipe.Document, error) {
	var doc *docpipe.Document
	if len(a.docs) > 0 {
		doc = a.docs[0]
		a.docs = a.docs[1:]
	}
	return doc, nil
}

func (a Array) NewReader() Reader {
	return &a
}
