package optimizer

import (
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/order"
)

// Split is a pipeline divided into the stages every partition runs over its
// own documents and the stages the merger runs over their union.
type Split struct {
	Shard *dag.Sequential
	Merge *dag.Sequential
	// MergeKeys is the order the merger restores with a k-way merge of the
	// partition streams.  When nil, the streams are concatenated in
	// partition order.
	MergeKeys order.SortKeys
	// Reason names the stage that forced the split, or is empty when the
	// whole pipeline runs on the partitions.
	Reason string
}

// IsLocal is true when the merger has nothing to do but concatenate.
func (s *Split) IsLocal() bool {
	return len(s.Merge.Ops) == 0 && s.MergeKeys.IsNil()
}

// splittable is true for stages that transform each document on its own
// and so give the same result whether run on each partition or after the
// partition streams are combined.
func splittable(op dag.Op) bool {
	switch op.(type) {
	case *dag.Scan, *dag.Match, *dag.Project, *dag.AddFields, *dag.Unset, *dag.ReplaceRoot, *dag.Unwind:
		return true
	}
	return false
}

// Parallelize splits seq at the first stage that needs to see documents
// from every partition.  The shard half ends with whatever part of that
// stage can run on each partition: a sort (so the merger can do an ordered
// merge), a copy of a limit, or the partial half of a group or count.
// A pipeline that begins with $documents has no partition input, so it
// runs entirely at the merger.
func Parallelize(seq *dag.Sequential) *Split {
	if len(seq.Ops) > 0 {
		if _, ok := seq.Ops[0].(*dag.Documents); ok {
			return &Split{
				Shard:  dag.NewSequential(),
				Merge:  seq.Copy(),
				Reason: "$documents",
			}
		}
	}
	n := 0
	for n < len(seq.Ops) && splittable(seq.Ops[n]) {
		n++
	}
	shard := dag.NewSequential(copyOps(seq.Ops[:n])...)
	if n == len(seq.Ops) {
		return &Split{Shard: shard, Merge: dag.NewSequential()}
	}
	rest := copyOps(seq.Ops[n+1:])
	switch ingress := seq.Ops[n].(type) {
	case *dag.Sort:
		// Sort in each partition then do an ordered merge.  A top-k sort
		// keeps at most k documents per partition and the merger applies
		// the limit again.
		shard.Ops = append(shard.Ops, copyOp(ingress))
		var suffix []dag.Op
		if ingress.Limit > 0 {
			suffix = append(suffix, &dag.Limit{Kind: "Limit", Count: ingress.Limit})
		}
		return &Split{
			Shard:     shard,
			Merge:     dag.NewSequential(append(suffix, rest...)...),
			MergeKeys: ingress.Keys,
			Reason:    "$sort",
		}
	case *dag.Limit:
		// Copy the limit into each partition and leave the original in
		// place to apply another limit after the merge.
		shard.Ops = append(shard.Ops, copyOp(ingress))
		return &Split{
			Shard:  shard,
			Merge:  dag.NewSequential(append([]dag.Op{copyOp(ingress)}, rest...)...),
			Reason: "$limit",
		}
	case *dag.Group:
		// Partitions emit one partial document per group and the merger
		// combines partials that share an _id.
		egress := copyOp(ingress).(*dag.Group)
		egress.Mode = dag.GroupPartial
		merge := copyOp(ingress).(*dag.Group)
		merge.Mode = dag.GroupMerge
		shard.Ops = append(shard.Ops, egress)
		return &Split{
			Shard:  shard,
			Merge:  dag.NewSequential(append([]dag.Op{merge}, rest...)...),
			Reason: "$group",
		}
	case *dag.Count:
		egress := copyOp(ingress).(*dag.Count)
		egress.Mode = dag.GroupPartial
		merge := copyOp(ingress).(*dag.Count)
		merge.Mode = dag.GroupMerge
		shard.Ops = append(shard.Ops, egress)
		return &Split{
			Shard:  shard,
			Merge:  dag.NewSequential(append([]dag.Op{merge}, rest...)...),
			Reason: "$count",
		}
	default:
		// Everything from here on needs the combined stream.
		return &Split{
			Shard:  shard,
			Merge:  dag.NewSequential(copyOps(seq.Ops[n:])...),
			Reason: dag.StageName(ingress),
		}
	}
}

func copyOps(ops []dag.Op) []dag.Op {
	out := make([]dag.Op, 0, len(ops))
	for _, op := range ops {
		out = append(out, copyOp(op))
	}
	return out
}

// copyOp returns a shallow copy of op.  Parsed expressions and filters are
// immutable so they may be shared.
func copyOp(op dag.Op) dag.Op {
	switch op := op.(type) {
	case *dag.Match:
		c := *op
		return &c
	case *dag.Project:
		c := *op
		return &c
	case *dag.AddFields:
		c := *op
		return &c
	case *dag.Unset:
		c := *op
		return &c
	case *dag.ReplaceRoot:
		c := *op
		return &c
	case *dag.Sort:
		c := *op
		return &c
	case *dag.Limit:
		c := *op
		return &c
	case *dag.Skip:
		c := *op
		return &c
	case *dag.Unwind:
		c := *op
		return &c
	case *dag.Group:
		c := *op
		c.Aggs = append([]dag.Agg(nil), op.Aggs...)
		return &c
	case *dag.Count:
		c := *op
		return &c
	case *dag.Scan:
		c := *op
		return &c
	}
	return op
}
