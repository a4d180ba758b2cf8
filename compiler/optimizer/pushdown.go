package optimizer

import (
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/match"
)

const passPushdown = "pushdown"

// pushdown moves a $match that directly follows an unlimited $sort ahead
// of it and folds a $match that directly follows the Scan into the scan's
// filter.  It reports whether seq changed.
func (o *Optimizer) pushdown(seq *dag.Sequential) bool {
	for k := 1; k < len(seq.Ops); k++ {
		m, ok := seq.Ops[k].(*dag.Match)
		if !ok {
			continue
		}
		if sort, ok := seq.Ops[k-1].(*dag.Sort); ok && sort.Limit == 0 {
			seq.Ops[k-1], seq.Ops[k] = m, sort
			o.record(passPushdown, "$match before $sort")
			return true
		}
	}
	scan, ok := scanOf(seq)
	if !ok || len(seq.Ops) < 2 {
		return false
	}
	m, ok := seq.Ops[1].(*dag.Match)
	if !ok {
		return false
	}
	filter := m.Filter
	if scan.Filter != nil {
		if scan.Filter.HasText() || filter.HasText() {
			return false
		}
		var err error
		filter, err = match.And(scan.Filter, filter, nil)
		if err != nil {
			return false
		}
	}
	pushed := *scan
	pushed.Filter = filter
	seq.Ops[0] = &pushed
	replace(seq, 1, 2)
	o.record(passPushdown, "$match into scan of %s", scan.Collection)
	return true
}
