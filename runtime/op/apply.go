package op

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/zbuf"
)

// Func transforms one document.  It returns false to drop the document.
type Func func(*docpipe.Document) (*docpipe.Document, bool, error)

type applier struct {
	octx   *Context
	parent zbuf.Puller
	fn     Func
}

// NewApplier returns a Puller that runs fn over each document from parent.
// It serves the stages that look at one document at a time: $match,
// $project, $addFields, $unset and $replaceRoot.
func NewApplier(octx *Context, parent zbuf.Puller, fn Func) *applier {
	return &applier{
		octx:   octx,
		parent: parent,
		fn:     fn,
	}
}

func (a *applier) Pull(done bool) (zbuf.Batch, error) {
	for {
		batch, err := a.parent.Pull(done)
		if batch == nil || err != nil {
			return nil, err
		}
		docs := batch.Documents()
		out := make([]*docpipe.Document, 0, len(docs))
		for _, doc := range docs {
			doc, ok, err := a.fn(doc)
			if err != nil {
				batch.Unref()
				return nil, err
			}
			if ok {
				out = append(out, doc)
			}
		}
		batch.Unref()
		if len(out) > 0 {
			return zbuf.NewArray(out), nil
		}
	}
}
