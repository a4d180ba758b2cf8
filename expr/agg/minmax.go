package agg

import (
	"github.com/brimdata/docpipe"
)

// MinMax keeps the least (or greatest) non-null value in the canonical
// value order.
type MinMax struct {
	less bool
	val  docpipe.Value
}

var _ Function = (*MinMax)(nil)

func (m *MinMax) Consume(val docpipe.Value) {
	if val.IsNullish() {
		return
	}
	if m.val.IsMissing() {
		m.val = val
		return
	}
	c := docpipe.Compare(val, m.val)
	if (m.less && c < 0) || (!m.less && c > 0) {
		m.val = val
	}
}

func (m *MinMax) Result() docpipe.Value {
	if m.val.IsMissing() {
		return docpipe.Null
	}
	return m.val
}

func (m *MinMax) ConsumeAsPartial(partial docpipe.Value) {
	m.Consume(partial)
}

func (m *MinMax) ResultAsPartial() docpipe.Value {
	return m.Result()
}

// First keeps the value from the first document of the group.  A group
// exists in a partition only once it has seen a document, so partials
// always carry a value.
type First struct {
	seen bool
	val  docpipe.Value
}

var _ Function = (*First)(nil)

func (f *First) Consume(val docpipe.Value) {
	if f.seen {
		return
	}
	f.seen = true
	if val.IsMissing() {
		val = docpipe.Null
	}
	f.val = val
}

func (f *First) Result() docpipe.Value {
	if !f.seen {
		return docpipe.Null
	}
	return f.val
}

func (f *First) ConsumeAsPartial(partial docpipe.Value) {
	f.Consume(partial)
}

func (f *First) ResultAsPartial() docpipe.Value {
	return f.Result()
}

type Last struct {
	val docpipe.Value
}

var _ Function = (*Last)(nil)

func (l *Last) Consume(val docpipe.Value) {
	if val.IsMissing() {
		val = docpipe.Null
	}
	l.val = val
}

func (l *Last) Result() docpipe.Value {
	if l.val.IsMissing() {
		return docpipe.Null
	}
	return l.val
}

func (l *Last) ConsumeAsPartial(partial docpipe.Value) {
	l.Consume(partial)
}

func (l *Last) ResultAsPartial() docpipe.Value {
	return l.Result()
}
