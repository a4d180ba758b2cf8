package optimizer

import (
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/order"
)

const passSortElision = "sortElision"

// elideSorts drops the first $sort whose keys the documents arriving at it
// are already ordered by.  A top-k sort becomes a $limit.
func (o *Optimizer) elideSorts(seq *dag.Sequential) bool {
	var keys order.SortKeys
	for k, op := range seq.Ops {
		if sort, ok := op.(*dag.Sort); ok && !keys.IsNil() && !hasMeta(sort.Keys) && keys.HasPrefix(sort.Keys) {
			if sort.Limit > 0 {
				seq.Ops[k] = &dag.Limit{Kind: "Limit", Count: sort.Limit}
			} else {
				replace(seq, k, k+1)
			}
			o.record(passSortElision, "$sort %s already satisfied by upstream order %s", sort.Keys, keys)
			return true
		}
		keys = orderAfter(op, keys)
	}
	return false
}

// SortKeys returns the order of the documents leaving seq, or nil.
func SortKeys(seq *dag.Sequential) order.SortKeys {
	var keys order.SortKeys
	for _, op := range seq.Ops {
		keys = orderAfter(op, keys)
	}
	return keys
}

func hasMeta(keys order.SortKeys) bool {
	for _, k := range keys {
		if k.Meta != "" {
			return true
		}
	}
	return false
}

// orderAfter returns how an input order maps to an output order based on
// the semantics of op.  An order can go from unknown to known (e.g., $sort)
// or from known to unknown (e.g., a stage that rewrites a key field).
func orderAfter(op dag.Op, in order.SortKeys) order.SortKeys {
	switch op.(type) {
	case *dag.Sort, *dag.Densify:
		return dag.OrderOf(op)
	}
	if in.IsNil() {
		return nil
	}
	paths := in.Paths()
	if len(paths) != len(in) {
		return nil
	}
	switch op := op.(type) {
	case *dag.Match, *dag.Limit, *dag.Skip:
		return in
	case *dag.AddFields:
		for _, p := range paths {
			if op.Fields.Writes(p) {
				return nil
			}
		}
		return in
	case *dag.Project:
		for _, p := range paths {
			if !op.Projection.Preserves(p) {
				return nil
			}
		}
		return in
	case *dag.Unset:
		for _, p := range paths {
			if !op.Projection.Preserves(p) {
				return nil
			}
		}
		return in
	case *dag.Unwind:
		if paths.Overlaps(op.Path) || (op.IncludeArrayIndex != "" && paths.Overlaps(field.Dotted(op.IncludeArrayIndex))) {
			return nil
		}
		return in
	case *dag.Lookup:
		if paths.Overlaps(op.As) {
			return nil
		}
		return in
	case *dag.GraphLookup:
		if paths.Overlaps(op.As) {
			return nil
		}
		return in
	}
	return nil
}
