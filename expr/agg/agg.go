// Package agg implements the $group accumulators.  Every accumulator can run
// in two halves: partitions consume documents and emit a partial result with
// ResultAsPartial, and the merger folds partials with ConsumeAsPartial.
package agg

import (
	"fmt"
	"sort"

	"github.com/brimdata/docpipe"
)

// Function is an accumulator over one group.
type Function interface {
	Consume(docpipe.Value)
	Result() docpipe.Value
	ConsumeAsPartial(docpipe.Value)
	ResultAsPartial() docpipe.Value
}

// Pattern creates a fresh Function for each new group.
type Pattern func() Function

var patterns = map[string]Pattern{
	"$sum":      func() Function { return newSum() },
	"$avg":      func() Function { return &Avg{} },
	"$min":      func() Function { return &MinMax{less: true} },
	"$max":      func() Function { return &MinMax{} },
	"$first":    func() Function { return &First{} },
	"$last":     func() Function { return &Last{} },
	"$push":     func() Function { return &Push{} },
	"$addToSet": func() Function { return newAddToSet() },
	"$count":    func() Function { return new(Count) },
}

func NewPattern(op string) (Pattern, error) {
	p, ok := patterns[op]
	if !ok {
		return nil, fmt.Errorf("unknown group operator '%s'", op)
	}
	return p, nil
}

func IsAccumulator(op string) bool {
	_, ok := patterns[op]
	return ok
}

// Names returns the accumulator operator names in sorted order.
func Names() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
