package head

import (
	"github.com/brimdata/docpipe/zbuf"
)

// Op implements $limit.
type Op struct {
	parent       zbuf.Puller
	limit, count int64
}

func New(parent zbuf.Puller, limit int64) *Op {
	return &Op{
		parent: parent,
		limit:  limit,
	}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	if o.count >= o.limit {
		// We already sent a done upstream when we reached the limit.
		return nil, nil
	}
	if done {
		o.count = o.limit
		return o.parent.Pull(true)
	}
	for {
		batch, err := o.parent.Pull(false)
		if batch == nil || err != nil {
			o.count = o.limit
			return nil, err
		}
		docs := batch.Documents()
		if len(docs) == 0 {
			continue
		}
		remaining := o.limit - o.count
		if n := int64(len(docs)); n < remaining {
			o.count += n
			return batch, nil
		}
		// This batch completes the limit.  Tell the parent we are done so
		// it can release its resources.
		if _, err := o.parent.Pull(true); err != nil {
			return nil, err
		}
		o.count = o.limit
		return zbuf.NewArray(docs[:remaining]), nil
	}
}
