package logger

import (
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// nameFilterCore passes only entries from the logger with the given name
// or its descendants ("cluster" matches "cluster.cursor").
type nameFilterCore struct {
	zapcore.Core
	name string
}

func newNameFilterCore(next zapcore.Core, name string) zapcore.Core {
	return &nameFilterCore{next, name}
}

func (c *nameFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &nameFilterCore{c.Core.With(fields), c.name}
}

func (c *nameFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.LoggerName == c.name || strings.HasPrefix(e.LoggerName, c.name+".") {
		return c.Core.Check(e, ce)
	}
	return ce
}

type waterfallCore []zapcore.Core

// NewWaterfall returns a core that hands each entry to the first of cores
// that accepts it.
func NewWaterfall(cores ...zapcore.Core) zapcore.Core {
	switch len(cores) {
	case 0:
		return zapcore.NewNopCore()
	case 1:
		return cores[0]
	}
	return waterfallCore(cores)
}

func (w waterfallCore) With(fields []zapcore.Field) zapcore.Core {
	clone := make(waterfallCore, len(w))
	for k := range w {
		clone[k] = w[k].With(fields)
	}
	return clone
}

func (w waterfallCore) Enabled(lvl zapcore.Level) bool {
	for _, c := range w {
		if c.Enabled(lvl) {
			return true
		}
	}
	return false
}

func (w waterfallCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	for _, c := range w {
		if out := c.Check(e, nil); out != nil {
			return ce.AddCore(e, c)
		}
	}
	return ce
}

func (w waterfallCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	for _, c := range w {
		if c.Enabled(e.Level) {
			return c.Write(e, fields)
		}
	}
	return nil
}

func (w waterfallCore) Sync() error {
	var err error
	for _, c := range w {
		err = multierr.Append(err, c.Sync())
	}
	return err
}
