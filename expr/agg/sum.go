package agg

import (
	"github.com/brimdata/docpipe"
)

// Sum adds numeric inputs and ignores everything else.
type Sum struct {
	sum docpipe.Value
}

var _ Function = (*Sum)(nil)

func newSum() *Sum {
	return &Sum{sum: docpipe.NewInt32(0)}
}

func (s *Sum) Consume(val docpipe.Value) {
	if !val.IsNumber() {
		return
	}
	// Add cannot fail on two numbers.
	s.sum, _ = docpipe.Add(s.sum, val)
}

func (s *Sum) Result() docpipe.Value {
	return s.sum
}

func (s *Sum) ConsumeAsPartial(partial docpipe.Value) {
	if !partial.IsNumber() {
		panic("sum: partial is not a number")
	}
	s.Consume(partial)
}

func (s *Sum) ResultAsPartial() docpipe.Value {
	return s.sum
}

// Count counts documents; {$count: {}} is {$sum: 1}.
type Count int64

var _ Function = (*Count)(nil)

func (c *Count) Consume(docpipe.Value) {
	*c++
}

func (c Count) Result() docpipe.Value {
	if int64(c) == int64(int32(c)) {
		return docpipe.NewInt32(int32(c))
	}
	return docpipe.NewInt64(int64(c))
}

func (c *Count) ConsumeAsPartial(partial docpipe.Value) {
	n, ok := partial.AsInt64()
	if !ok {
		panic("count: partial is not an integer")
	}
	*c += Count(n)
}

func (c Count) ResultAsPartial() docpipe.Value {
	return c.Result()
}
