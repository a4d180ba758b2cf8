package agg

import (
	"github.com/brimdata/docpipe"
)

// Push collects values in arrival order.  Missing values are skipped.
type Push struct {
	vals []docpipe.Value
}

var _ Function = (*Push)(nil)

func (p *Push) Consume(val docpipe.Value) {
	if !val.IsMissing() {
		p.vals = append(p.vals, val)
	}
}

func (p *Push) Result() docpipe.Value {
	return docpipe.NewArray(append([]docpipe.Value{}, p.vals...))
}

func (p *Push) ConsumeAsPartial(partial docpipe.Value) {
	if !partial.IsArray() {
		panic("push: partial is not an array")
	}
	p.vals = append(p.vals, partial.Array()...)
}

func (p *Push) ResultAsPartial() docpipe.Value {
	return p.Result()
}

// AddToSet collects distinct values, keeping first-seen order.  Values
// that compare equal (e.g., 1 and 1.0) are the same element.
type AddToSet struct {
	seen map[string]struct{}
	vals []docpipe.Value
}

var _ Function = (*AddToSet)(nil)

func newAddToSet() *AddToSet {
	return &AddToSet{seen: make(map[string]struct{})}
}

func (a *AddToSet) Consume(val docpipe.Value) {
	if val.IsMissing() {
		return
	}
	key := docpipe.Key(val)
	if _, ok := a.seen[key]; ok {
		return
	}
	a.seen[key] = struct{}{}
	a.vals = append(a.vals, val)
}

func (a *AddToSet) Result() docpipe.Value {
	return docpipe.NewArray(append([]docpipe.Value{}, a.vals...))
}

func (a *AddToSet) ConsumeAsPartial(partial docpipe.Value) {
	if !partial.IsArray() {
		panic("addToSet: partial is not an array")
	}
	for _, v := range partial.Array() {
		a.Consume(v)
	}
}

func (a *AddToSet) ResultAsPartial() docpipe.Value {
	return a.Result()
}
