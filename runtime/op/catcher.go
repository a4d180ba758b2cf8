package op

import (
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/zap"
)

// Catcher wraps a Puller with a Pull method that recovers panics and turns
// them into InternalAssertion errors.  It should be wrapped around the
// output puller of a pipeline and the top-level puller of any goroutine
// created inside of one.  Errors from a done context come out as dperr
// errors.
type Catcher struct {
	parent zbuf.Puller
	logger *zap.Logger
}

func NewCatcher(octx *Context, parent zbuf.Puller) *Catcher {
	return &Catcher{parent: parent, logger: octx.Logger}
}

func (c *Catcher) Pull(done bool) (b zbuf.Batch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dperr.RecoverError(r)
			c.logger.Error("operator panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	b, err = c.parent.Pull(done)
	return b, ContextError(err)
}
