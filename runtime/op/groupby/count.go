package groupby

import (
	"math"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/zbuf"
)

// Count implements $count.  Nothing is emitted for empty input.  In merge
// mode it sums the counts of the partial documents it reads.
type Count struct {
	parent zbuf.Puller
	field  string
	mode   dag.GroupMode
	done   bool
}

func NewCount(parent zbuf.Puller, field string, mode dag.GroupMode) *Count {
	return &Count{parent: parent, field: field, mode: mode}
}

func (c *Count) Pull(done bool) (zbuf.Batch, error) {
	if c.done {
		return nil, nil
	}
	c.done = true
	if done {
		return c.parent.Pull(true)
	}
	var n int64
	var seen bool
	for {
		batch, err := c.parent.Pull(false)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for _, doc := range batch.Documents() {
			seen = true
			if c.mode == dag.GroupMerge {
				k, _ := doc.Get(c.field).AsInt64()
				n += k
			} else {
				n++
			}
		}
		batch.Unref()
	}
	if !seen || n == 0 {
		return nil, nil
	}
	v := docpipe.NewInt64(n)
	if n <= math.MaxInt32 {
		v = docpipe.NewInt32(int32(n))
	}
	return zbuf.NewArray([]*docpipe.Document{docpipe.D(c.field, v)}), nil
}
