package cluster

import (
	"fmt"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/describe"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/match"
)

type LocationKind int

const (
	CoordinatorOnly LocationKind = iota
	AnyPartition
	SpecificPartition
	LocalOnly
)

// Location is the policy that picks where the merge half of a split
// pipeline runs.
type Location struct {
	Kind LocationKind
	// Shard names the partition for SpecificPartition.
	Shard string
}

// ParseLocation parses coordinatorOnly, anyPartition, localOnly or
// specificPartition:<id>.
func ParseLocation(s string) (Location, error) {
	switch s {
	case "", "coordinatorOnly":
		return Location{Kind: CoordinatorOnly}, nil
	case "anyPartition":
		return Location{Kind: AnyPartition}, nil
	case "localOnly":
		return Location{Kind: LocalOnly}, nil
	}
	if id, ok := strings.CutPrefix(s, "specificPartition:"); ok && id != "" {
		return Location{Kind: SpecificPartition, Shard: id}, nil
	}
	return Location{}, dperr.E(dperr.InvalidArgument, "unknown merge location %q", s)
}

func (l Location) String() string {
	switch l.Kind {
	case AnyPartition:
		return "anyPartition"
	case SpecificPartition:
		return "specificPartition:" + l.Shard
	case LocalOnly:
		return "localOnly"
	}
	return "coordinatorOnly"
}

// Locations lists one instance of every policy, naming shard for
// specificPartition.
func Locations(shard string) []Location {
	return []Location{
		{Kind: CoordinatorOnly},
		{Kind: AnyPartition},
		{Kind: SpecificPartition, Shard: shard},
		{Kind: LocalOnly},
	}
}

// SplitPipeline is a pipeline divided for execution under a merge
// location policy.
type SplitPipeline struct {
	*optimizer.Split
	Location Location
}

// Split divides seq, which must begin with its source stage, at the first
// stage that needs the documents of every partition.
func Split(seq *dag.Sequential, loc Location) (*SplitPipeline, error) {
	if len(seq.Ops) == 0 {
		return nil, dperr.E(dperr.InternalAssertion, "pipeline has no source stage")
	}
	switch seq.Ops[0].(type) {
	case *dag.Scan, *dag.Documents:
	default:
		return nil, dperr.E(dperr.InternalAssertion, "pipeline begins with %s instead of a source", dag.StageName(seq.Ops[0]))
	}
	if loc.Kind == SpecificPartition && loc.Shard == "" {
		return nil, dperr.E(dperr.InvalidArgument, "specificPartition requires a partition id")
	}
	return &SplitPipeline{Split: optimizer.Parallelize(seq), Location: loc}, nil
}

// Collection returns the collection the shard half scans, or "" when the
// pipeline has no partition input.
func (s *SplitPipeline) Collection() string {
	if len(s.Shard.Ops) > 0 {
		if scan, ok := s.Shard.Ops[0].(*dag.Scan); ok {
			return scan.Collection
		}
	}
	return ""
}

// Bounds gathers the value bounds implied by the scan filter and the
// $match stages that directly follow the scan.
func (s *SplitPipeline) Bounds(collated bool) []match.Bound {
	var out []match.Bound
	for k, o := range s.Shard.Ops {
		switch o := o.(type) {
		case *dag.Scan:
			if k != 0 {
				return out
			}
			if o.Filter != nil {
				out = append(out, o.Filter.Bounds(collated)...)
			}
		case *dag.Match:
			out = append(out, o.Filter.Bounds(collated)...)
		default:
			return out
		}
	}
	return out
}

// Plan is where each half of a split pipeline runs.
type Plan struct {
	Split *SplitPipeline
	// Targets are the partitions that receive the shard half, in id order.
	Targets []string
	// Merger is the partition that runs the merge half or "" for the
	// coordinator.
	Merger string
	// Direct is true when the only target's stream is read without a
	// fan-out.
	Direct  bool
	Version string
}

func (p *Plan) MergeLocation() string {
	if p.Merger == "" {
		return "coordinator"
	}
	return fmt.Sprintf("partition:%s", p.Merger)
}

// Document renders p for explain.
func (p *Plan) Document() *docpipe.Document {
	var b docpipe.Builder
	b.Append("splitPipeline", docpipe.NewDocumentValue(describe.Split(p.Split.Split)))
	b.Append("mergeLocationPolicy", docpipe.NewString(p.Split.Location.String()))
	b.Append("mergeLocation", docpipe.NewString(p.MergeLocation()))
	targets := make([]docpipe.Value, 0, len(p.Targets))
	for _, t := range p.Targets {
		targets = append(targets, docpipe.NewString(t))
	}
	b.Append("targetedPartitions", docpipe.NewArray(targets))
	if p.Version != "" {
		b.Append("routingVersion", docpipe.NewString(p.Version))
	}
	return b.Document()
}
