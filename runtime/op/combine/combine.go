// Package combine concatenates input streams.
package combine

import (
	"github.com/brimdata/docpipe/zbuf"
)

// Op returns every document of its first parent, then of its second, and
// so on.
type Op struct {
	parents []zbuf.Puller
	next    int
}

func New(parents []zbuf.Puller) *Op {
	return &Op{parents: parents}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	if done {
		var first error
		for ; o.next < len(o.parents); o.next++ {
			if _, err := o.parents[o.next].Pull(true); err != nil && first == nil {
				first = err
			}
		}
		return nil, first
	}
	for o.next < len(o.parents) {
		batch, err := o.parents[o.next].Pull(false)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			return batch, nil
		}
		o.next++
	}
	return nil, nil
}
