package skip

import (
	"github.com/brimdata/docpipe/zbuf"
)

// Op implements $skip.
type Op struct {
	parent  zbuf.Puller
	skip    int64
	skipped int64
}

func New(parent zbuf.Puller, n int64) *Op {
	return &Op{parent: parent, skip: n}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	for {
		batch, err := o.parent.Pull(done)
		if batch == nil || err != nil {
			return nil, err
		}
		docs := batch.Documents()
		remaining := o.skip - o.skipped
		if remaining <= 0 {
			return batch, nil
		}
		if n := int64(len(docs)); n <= remaining {
			o.skipped += n
			batch.Unref()
			continue
		}
		o.skipped = o.skip
		return zbuf.NewArray(docs[remaining:]), nil
	}
}
