// Package describe renders compiled pipelines back into stage documents for
// explain output.
package describe

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/field"
)

// Pipeline renders seq as an array of stage documents.
func Pipeline(seq *dag.Sequential) docpipe.Value {
	if seq == nil {
		return docpipe.NewArray(nil)
	}
	stages := make([]docpipe.Value, 0, len(seq.Ops))
	for _, op := range seq.Ops {
		stages = append(stages, docpipe.NewDocumentValue(Stage(op)))
	}
	return docpipe.NewArray(stages)
}

// Stage renders op as a single-field stage document.
func Stage(op dag.Op) *docpipe.Document {
	return docpipe.D(dag.StageName(op), stageArg(op))
}

func stageArg(op dag.Op) docpipe.Value {
	switch op := op.(type) {
	case *dag.Scan:
		var b docpipe.Builder
		b.Append("collection", docpipe.NewString(op.Collection))
		if op.Filter != nil {
			b.Append("filter", docpipe.NewDocumentValue(op.Filter.Spec()))
		}
		if len(op.Bounds) > 0 {
			bounds := make([]docpipe.Value, 0, len(op.Bounds))
			for _, bound := range op.Bounds {
				bounds = append(bounds, docpipe.NewString(bound.String()))
			}
			b.Append("bounds", docpipe.NewArray(bounds))
		}
		return doc(&b)
	case *dag.Match:
		return docpipe.NewDocumentValue(op.Filter.Spec())
	case *dag.Project:
		if op.Spec != nil {
			return docpipe.NewDocumentValue(op.Spec)
		}
		var b docpipe.Builder
		if paths, ok := op.Projection.Excluded(); ok {
			for _, p := range paths {
				b.Append(p.String(), docpipe.False)
			}
		}
		return doc(&b)
	case *dag.AddFields:
		if op.Spec != nil {
			return docpipe.NewDocumentValue(op.Spec)
		}
		var b docpipe.Builder
		exprs := op.Fields.Exprs()
		for k, p := range op.Fields.Paths() {
			b.Set(p.String(), exprs[k].Spec())
		}
		return doc(&b)
	case *dag.Unset:
		return paths(op.Paths)
	case *dag.ReplaceRoot:
		return docpipe.NewDocumentValue(docpipe.D("newRoot", op.NewRoot.Spec()))
	case *dag.Sort:
		keys := docpipe.NewDocumentValue(op.Keys.Document())
		if op.Limit == 0 {
			return keys
		}
		return docpipe.NewDocumentValue(docpipe.D("sortKey", keys, "limit", docpipe.NewInt64(op.Limit)))
	case *dag.Limit:
		return docpipe.NewInt64(op.Count)
	case *dag.Skip:
		return docpipe.NewInt64(op.Count)
	case *dag.Unwind:
		var b docpipe.Builder
		b.Append("path", docpipe.NewString("$"+op.Path.String()))
		if op.IncludeArrayIndex != "" {
			b.Append("includeArrayIndex", docpipe.NewString(op.IncludeArrayIndex))
		}
		if op.PreserveEmpty {
			b.Append("preserveNullAndEmptyArrays", docpipe.True)
		}
		return doc(&b)
	case *dag.Group:
		spec := docpipe.EmptyDocument
		if op.Spec.IsDocument() {
			spec = op.Spec.Document()
		}
		b := docpipe.NewBuilder(spec)
		switch op.Mode {
		case dag.GroupPartial:
			b.Append("$partial", docpipe.True)
		case dag.GroupMerge:
			b.Append("$doingMerge", docpipe.True)
		}
		return doc(b)
	case *dag.Count:
		if op.Mode == dag.GroupComplete {
			return docpipe.NewString(op.Field)
		}
		return docpipe.NewDocumentValue(docpipe.D("field", docpipe.NewString(op.Field), "mode", docpipe.NewString(op.Mode.String())))
	case *dag.Densify:
		var rng docpipe.Builder
		rng.Append("step", op.Step)
		if op.Unit != "" {
			rng.Append("unit", docpipe.NewString(op.Unit))
		}
		if op.Bounds != "" {
			rng.Append("bounds", docpipe.NewString(op.Bounds))
		} else {
			rng.Append("bounds", docpipe.NewArray([]docpipe.Value{op.Lo, op.Hi}))
		}
		var b docpipe.Builder
		b.Append("field", docpipe.NewString(op.Field.String()))
		if len(op.PartitionBy) > 0 {
			b.Append("partitionByFields", paths(op.PartitionBy))
		}
		b.Append("range", doc(&rng))
		return doc(&b)
	case *dag.Lookup:
		return docpipe.NewDocumentValue(docpipe.D(
			"from", docpipe.NewString(op.From),
			"localField", docpipe.NewString(op.LocalField.String()),
			"foreignField", docpipe.NewString(op.ForeignField.String()),
			"as", docpipe.NewString(op.As.String()),
		))
	case *dag.GraphLookup:
		var b docpipe.Builder
		b.Append("from", docpipe.NewString(op.From))
		b.Append("startWith", op.StartWith.Spec())
		b.Append("connectFromField", docpipe.NewString(op.ConnectFromField.String()))
		b.Append("connectToField", docpipe.NewString(op.ConnectToField.String()))
		b.Append("as", docpipe.NewString(op.As.String()))
		if op.MaxDepth >= 0 {
			b.Append("maxDepth", docpipe.NewInt64(op.MaxDepth))
		}
		if len(op.DepthField) > 0 {
			b.Append("depthField", docpipe.NewString(op.DepthField.String()))
		}
		if op.Restrict != nil {
			b.Append("restrictSearchWithMatch", docpipe.NewDocumentValue(op.Restrict.Spec()))
		}
		return doc(&b)
	case *dag.UnionWith:
		var b docpipe.Builder
		if op.Coll != "" {
			b.Append("coll", docpipe.NewString(op.Coll))
		}
		b.Append("pipeline", Pipeline(op.Pipeline))
		return doc(&b)
	case *dag.Documents:
		return op.Expr.Spec()
	case *dag.Merge:
		var b docpipe.Builder
		b.Append("into", namespace(op.Into))
		b.Append("on", paths(op.On))
		if op.WhenMatched == "pipeline" {
			b.Append("whenMatched", Pipeline(op.UpdatePipeline))
		} else {
			b.Append("whenMatched", docpipe.NewString(op.WhenMatched))
		}
		if len(op.Let) > 0 {
			var let docpipe.Builder
			for _, v := range op.Let {
				let.Set(v.Name, v.Expr.Spec())
			}
			b.Append("let", doc(&let))
		}
		b.Append("whenNotMatched", docpipe.NewString(op.WhenNotMatched))
		return doc(&b)
	case *dag.Out:
		return namespace(op.Into)
	}
	return docpipe.Null
}

func doc(b *docpipe.Builder) docpipe.Value {
	return docpipe.NewDocumentValue(b.Document())
}

func paths(list field.List) docpipe.Value {
	vals := make([]docpipe.Value, 0, len(list))
	for _, p := range list {
		vals = append(vals, docpipe.NewString(p.String()))
	}
	return docpipe.NewArray(vals)
}

func namespace(ns dag.Namespace) docpipe.Value {
	if ns.DB == "" {
		return docpipe.NewString(ns.Coll)
	}
	return docpipe.NewDocumentValue(docpipe.D("db", docpipe.NewString(ns.DB), "coll", docpipe.NewString(ns.Coll)))
}

// Split renders a split pipeline the way explain reports it.
func Split(s *optimizer.Split) *docpipe.Document {
	mergeType := "concat"
	if !s.MergeKeys.IsNil() {
		mergeType = "sortedMerge"
	}
	var b docpipe.Builder
	b.Append("shardsPart", Pipeline(s.Shard))
	b.Append("mergerPart", Pipeline(s.Merge))
	b.Append("mergeType", docpipe.NewString(mergeType))
	if !s.MergeKeys.IsNil() {
		b.Append("sortKey", docpipe.NewDocumentValue(s.MergeKeys.Document()))
	}
	if s.Reason != "" {
		b.Append("splitAt", docpipe.NewString(s.Reason))
	}
	return b.Document()
}

// Rewrites renders the optimizer's applied rewrites.
func Rewrites(rewrites []optimizer.Rewrite) docpipe.Value {
	vals := make([]docpipe.Value, 0, len(rewrites))
	for _, r := range rewrites {
		vals = append(vals, docpipe.NewDocumentValue(docpipe.D(
			"pass", docpipe.NewString(r.Pass),
			"rule", docpipe.NewString(r.Rule),
		)))
	}
	return docpipe.NewArray(vals)
}
