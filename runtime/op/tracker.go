package op

import (
	"github.com/brimdata/docpipe/zbuf"
)

type State int

const (
	NotStarted State = iota
	Pulling
	Exhausted
	Closed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "notStarted"
	case Pulling:
		return "pulling"
	case Exhausted:
		return "exhausted"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Tracker wraps the output of one stage.  It checks for cancellation and
// deadlines before each pull, moves the stage through its states, and
// counts what the stage returns.  Once exhausted or closed, a stage is not
// pulled again.
type Tracker struct {
	octx   *Context
	parent zbuf.Puller
	Stage  string
	state  State
	docs   int64
	nbatch int64
}

func NewTracker(octx *Context, stage string, parent zbuf.Puller) *Tracker {
	return &Tracker{
		octx:   octx,
		parent: parent,
		Stage:  stage,
	}
}

func (t *Tracker) Pull(done bool) (zbuf.Batch, error) {
	switch t.state {
	case Exhausted, Closed:
		return nil, nil
	}
	if done {
		t.state = Closed
		return t.parent.Pull(true)
	}
	if err := t.octx.Check(); err != nil {
		return nil, err
	}
	t.state = Pulling
	batch, err := t.parent.Pull(false)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		t.state = Exhausted
		return nil, nil
	}
	t.nbatch++
	t.docs += int64(len(batch.Documents()))
	return batch, nil
}

func (t *Tracker) State() State {
	return t.state
}

// Docs is the number of documents the stage has returned.
func (t *Tracker) Docs() int64 {
	return t.docs
}

func (t *Tracker) Batches() int64 {
	return t.nbatch
}
