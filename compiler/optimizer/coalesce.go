package optimizer

import (
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
)

const passCoalesce = "coalesce"

// coalesce fuses the first pair of adjacent stages it can and reports
// whether it changed seq.  The caller loops until nothing changes.
func (o *Optimizer) coalesce(seq *dag.Sequential) (bool, error) {
	for k := 0; k+1 < len(seq.Ops); k++ {
		op, rule, err := fuse(seq.Ops[k], seq.Ops[k+1])
		if err != nil {
			return false, err
		}
		if op != nil {
			replace(seq, k, k+2, op)
			o.record(passCoalesce, "%s", rule)
			return true, nil
		}
	}
	return false, nil
}

// fuse returns a single stage equivalent to a followed by b, or nil.
func fuse(a, b dag.Op) (dag.Op, string, error) {
	switch a := a.(type) {
	case *dag.Match:
		b, ok := b.(*dag.Match)
		if !ok || a.Filter.HasText() || b.Filter.HasText() {
			return nil, "", nil
		}
		f, err := match.And(a.Filter, b.Filter, nil)
		if err != nil {
			// Too deep to combine; leave the stages apart.
			return nil, "", nil
		}
		return &dag.Match{Kind: "Match", Filter: f}, "$match+$match", nil
	case *dag.AddFields:
		b, ok := b.(*dag.AddFields)
		if !ok || !independent(a.Fields, b.Fields.Dependencies()) {
			return nil, "", nil
		}
		return &dag.AddFields{Kind: "AddFields", Fields: a.Fields.Concat(b.Fields)}, "$addFields+$addFields", nil
	case *dag.Unset:
		b, ok := b.(*dag.Unset)
		if !ok {
			return nil, "", nil
		}
		op, err := unset(append(append(field.List(nil), a.Paths...), b.Paths...))
		if op == nil || err != nil {
			return nil, "", err
		}
		return op, "$unset+$unset", nil
	case *dag.Project:
		b, ok := b.(*dag.Project)
		if !ok {
			return nil, "", nil
		}
		ap, aok := a.Projection.Excluded()
		bp, bok := b.Projection.Excluded()
		if !aok || !bok {
			return nil, "", nil
		}
		op, err := unset(append(ap, bp...))
		if op == nil || err != nil {
			return nil, "", err
		}
		return op, "$project+$project", nil
	case *dag.Limit:
		b, ok := b.(*dag.Limit)
		if !ok {
			return nil, "", nil
		}
		return &dag.Limit{Kind: "Limit", Count: minInt64(a.Count, b.Count)}, "$limit+$limit", nil
	case *dag.Skip:
		b, ok := b.(*dag.Skip)
		if !ok {
			return nil, "", nil
		}
		return &dag.Skip{Kind: "Skip", Count: a.Count + b.Count}, "$skip+$skip", nil
	case *dag.Sort:
		b, ok := b.(*dag.Limit)
		if !ok {
			return nil, "", nil
		}
		limit := b.Count
		if a.Limit > 0 {
			limit = minInt64(limit, a.Limit)
		}
		return &dag.Sort{Kind: "Sort", Keys: a.Keys, Limit: limit}, "$sort+$limit", nil
	}
	return nil, "", nil
}

// independent is true when nothing in deps observes a path a writes, so
// the expressions of both stages can be evaluated against the same input.
func independent(a *expr.AddFields, deps expr.Dependencies) bool {
	if deps.WholeDocument {
		return false
	}
	for _, p := range a.Paths() {
		if deps.Reads(p) {
			return false
		}
	}
	return true
}

// unset returns a single $unset of paths, or nil when the paths cannot be
// expressed as one (e.g., one is a prefix of another).
func unset(paths field.List) (dag.Op, error) {
	var out field.List
	for _, p := range paths {
		if out.Has(p) {
			continue
		}
		for _, q := range out {
			if p.Overlaps(q) {
				return nil, nil
			}
		}
		out = append(out, p)
	}
	proj, err := expr.NewExclusion(out)
	if err != nil {
		return nil, err
	}
	return &dag.Unset{Kind: "Unset", Paths: out, Projection: proj}, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
