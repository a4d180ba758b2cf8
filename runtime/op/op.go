// Package op holds the state shared by the pull-model operators that
// execute a pipeline.  Each operator lives in its own package under op.
package op

import (
	"context"
	"errors"
	"sync"

	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/zap"
)

const BatchLen = 100

// Result is a convenient way to bundle the result of Pull() to
// send over channels.
type Result struct {
	Batch zbuf.Batch
	Err   error
}

// Context provides states used by all operators to provide the outside
// context in which they are running.
type Context struct {
	context.Context
	Logger *zap.Logger
	Expr   *expr.Context
	// WaitGroup is held by operators that run goroutines so Cancel can wait
	// for their cleanup.
	WaitGroup sync.WaitGroup
	// MemMaxBytes bounds the documents a blocking operator such as $sort
	// holds in memory before spilling.  Zero means no bound.
	MemMaxBytes int

	cancel   context.CancelFunc
	mu       sync.Mutex
	warnings []string
}

func NewContext(ctx context.Context, ectx *expr.Context, logger *zap.Logger) *Context {
	ctx, cancel := context.WithCancel(ctx)
	if logger == nil {
		logger = zap.NewNop()
	}
	if ectx == nil {
		ectx = expr.NewContext()
	}
	octx := &Context{
		Context: ctx,
		Logger:  logger,
		cancel:  cancel,
	}
	e := *ectx
	if e.Logger == nil {
		e.Logger = logger
	}
	if e.Warn == nil {
		e.Warn = octx.Warn
	}
	octx.Expr = &e
	return octx
}

func DefaultContext() *Context {
	return NewContext(context.Background(), nil, nil)
}

// Cancel stops every operator running under c and waits for their
// goroutines to clean up.
func (c *Context) Cancel() {
	c.cancel()
	c.WaitGroup.Wait()
}

// Check reports why c is done, as a dperr error, or nil.  Operators call
// it between pulls.
func (c *Context) Check() error {
	return ContextError(c.Err())
}

// ContextError maps the errors of a done context to their dperr kinds.
func ContextError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return dperr.ErrMaxTimeExpired()
	case errors.Is(err, context.Canceled):
		return dperr.ErrInterrupted()
	}
	return err
}

// Warn records a non-fatal diagnostic for the query.
func (c *Context) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, msg)
}

func (c *Context) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warnings...)
}
