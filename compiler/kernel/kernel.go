// Package kernel builds the operator chain that executes a pipeline.  The
// Builder walks a dag.Sequential and dispatches on each stage's Go type,
// wrapping every stage in an op.Tracker so explain can report per-stage
// counts.
package kernel

import (
	"context"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/combine"
	"github.com/brimdata/docpipe/runtime/op/densify"
	"github.com/brimdata/docpipe/runtime/op/groupby"
	"github.com/brimdata/docpipe/runtime/op/head"
	"github.com/brimdata/docpipe/runtime/op/load"
	"github.com/brimdata/docpipe/runtime/op/lookup"
	"github.com/brimdata/docpipe/runtime/op/skip"
	"github.com/brimdata/docpipe/runtime/op/sort"
	"github.com/brimdata/docpipe/runtime/op/unwind"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/zap"
)

// Environment is where a pipeline's data comes from and goes to.
type Environment interface {
	// Scan reads the partition-local documents of a collection.
	Scan(ctx context.Context, ectx *expr.Context, scan *dag.Scan) (zbuf.Puller, error)
	// Open reads a collection across every partition.  A nil filter
	// matches every document.
	Open(ctx context.Context, coll string, filter *match.Filter) (zbuf.Puller, error)
	// Target resolves the collection a writer stage modifies.
	Target(ctx context.Context, ns dag.Namespace) (load.Target, error)
}

type Builder struct {
	octx     *op.Context
	env      Environment
	explain  bool
	trackers []*op.Tracker
}

// NewBuilder returns a Builder for operators that run under octx.  In
// explain mode writer stages drain their input without writing.
func NewBuilder(octx *op.Context, env Environment, explain bool) *Builder {
	return &Builder{octx: octx, env: env, explain: explain}
}

// Build returns the output of seq.  A nil parent means seq begins with its
// own source, a Scan or $documents.
func (b *Builder) Build(seq *dag.Sequential, parent zbuf.Puller) (zbuf.Puller, error) {
	out, err := b.compileSeq(seq, parent)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, dperr.E(dperr.InternalAssertion, "pipeline has no source")
	}
	return op.NewCatcher(b.octx, out), nil
}

// Stats reports each stage built so far in pipeline order.
func (b *Builder) Stats() []StageStats {
	out := make([]StageStats, 0, len(b.trackers))
	for _, t := range b.trackers {
		out = append(out, StageStats{Stage: t.Stage, Docs: t.Docs(), State: t.State().String()})
	}
	return out
}

// StageStats is the executionStats entry of one stage.
type StageStats struct {
	Stage string
	Docs  int64
	State string
}

func (s StageStats) Document() *docpipe.Document {
	return docpipe.D(
		"stage", docpipe.NewString(s.Stage),
		"nReturned", docpipe.NewInt64(s.Docs),
		"state", docpipe.NewString(s.State),
	)
}

func (b *Builder) compileSeq(seq *dag.Sequential, parent zbuf.Puller) (zbuf.Puller, error) {
	for _, o := range seq.Ops {
		p, err := b.compileLeaf(o, parent)
		if err != nil {
			return nil, err
		}
		t := op.NewTracker(b.octx, dag.StageName(o), p)
		b.trackers = append(b.trackers, t)
		parent = t
	}
	return parent, nil
}

func (b *Builder) compileLeaf(o dag.Op, parent zbuf.Puller) (zbuf.Puller, error) {
	if parent == nil {
		switch o.(type) {
		case *dag.Scan, *dag.Documents:
		default:
			return nil, dperr.E(dperr.InternalAssertion, "%s has no input", dag.StageName(o))
		}
	}
	ectx := b.octx.Expr
	switch v := o.(type) {
	case *dag.Scan:
		if parent != nil {
			return nil, dperr.E(dperr.InternalAssertion, "scan cannot have a parent operator")
		}
		return b.env.Scan(b.octx, ectx, v)
	case *dag.Documents:
		if parent != nil {
			return nil, dperr.E(dperr.InternalAssertion, "$documents cannot have a parent operator")
		}
		docs, err := b.evalDocuments(v)
		if err != nil {
			return nil, err
		}
		return zbuf.NewPuller(zbuf.NewArray(docs), op.BatchLen), nil
	case *dag.Match:
		return op.NewApplier(b.octx, parent, func(doc *docpipe.Document) (*docpipe.Document, bool, error) {
			return v.Filter.Apply(ectx, doc)
		}), nil
	case *dag.Project:
		return op.NewApplier(b.octx, parent, projector(ectx, v.Projection)), nil
	case *dag.Unset:
		return op.NewApplier(b.octx, parent, projector(ectx, v.Projection)), nil
	case *dag.AddFields:
		return op.NewApplier(b.octx, parent, func(doc *docpipe.Document) (*docpipe.Document, bool, error) {
			out, err := v.Fields.Apply(ectx, doc)
			return out, err == nil, err
		}), nil
	case *dag.ReplaceRoot:
		return op.NewApplier(b.octx, parent, func(doc *docpipe.Document) (*docpipe.Document, bool, error) {
			out, err := replaceRoot(ectx, v.NewRoot, doc)
			return out, err == nil, err
		}), nil
	case *dag.Sort:
		return sort.New(b.octx, parent, v.Keys, v.Limit), nil
	case *dag.Limit:
		return head.New(parent, v.Count), nil
	case *dag.Skip:
		return skip.New(parent, v.Count), nil
	case *dag.Unwind:
		return unwind.New(parent, v.Path, field.Dotted(v.IncludeArrayIndex), v.PreserveEmpty), nil
	case *dag.Group:
		aggs, err := groupby.NewAggregators(v.Aggs)
		if err != nil {
			return nil, err
		}
		return groupby.New(b.octx, parent, v.ID, aggs, v.Mode), nil
	case *dag.Count:
		return groupby.NewCount(parent, v.Field, v.Mode), nil
	case *dag.Densify:
		return densify.New(b.octx, parent, v), nil
	case *dag.Lookup:
		return lookup.New(b.octx, parent, b.env, v), nil
	case *dag.GraphLookup:
		return lookup.NewGraph(b.octx, parent, b.env, v), nil
	case *dag.UnionWith:
		return b.compileUnionWith(parent, v)
	case *dag.Merge:
		target, err := b.env.Target(b.octx, v.Into)
		if err != nil {
			return nil, err
		}
		var update load.Update
		if v.UpdatePipeline != nil {
			update = updateFunc(v.UpdatePipeline)
		}
		return load.NewMerge(b.octx, parent, target, v, update, b.explain), nil
	case *dag.Out:
		target, err := b.env.Target(b.octx, v.Into)
		if err != nil {
			return nil, err
		}
		return load.NewOut(b.octx, parent, target, b.explain), nil
	case *dag.Sequential:
		return b.compileSeq(v, parent)
	default:
		return nil, dperr.E(dperr.InternalAssertion, "unknown stage type %T", v)
	}
}

func projector(ectx *expr.Context, p *expr.Projection) op.Func {
	return func(doc *docpipe.Document) (*docpipe.Document, bool, error) {
		out, err := p.Apply(ectx, doc)
		return out, err == nil, err
	}
}

func replaceRoot(ectx *expr.Context, root *expr.Program, doc *docpipe.Document) (*docpipe.Document, error) {
	v, err := root.Eval(ectx, doc)
	if err != nil {
		return nil, err
	}
	d := v.Document()
	if d == nil {
		return nil, dperr.E(dperr.TypeMismatch, dperr.Code(40228), "'newRoot' expression must evaluate to an object, but resulting value was: %s. Type of resulting value: '%s'. Input document: %s", v, v.TypeName(), doc)
	}
	return d, nil
}

// evalDocuments evaluates the $documents expression once.
func (b *Builder) evalDocuments(v *dag.Documents) ([]*docpipe.Document, error) {
	val, err := v.Expr.Eval(b.octx.Expr, docpipe.EmptyDocument)
	if err != nil {
		return nil, err
	}
	if !val.IsArray() {
		return nil, dperr.E(dperr.TypeMismatch, dperr.Code(5858203), "error during evaluation of $documents: expected an array, found %s", val.TypeName())
	}
	docs := make([]*docpipe.Document, 0, len(val.Array()))
	for _, elem := range val.Array() {
		d := elem.Document()
		if d == nil {
			return nil, dperr.E(dperr.TypeMismatch, dperr.Code(40228), "$documents elements must be objects, found %s", elem.TypeName())
		}
		docs = append(docs, d.StripMeta())
	}
	b.octx.Logger.Debug("$documents evaluated", zap.Int("docs", len(docs)))
	return docs, nil
}

// compileUnionWith appends the output of the sub-pipeline to parent.  The
// documents of the other collection carry no metadata.
func (b *Builder) compileUnionWith(parent zbuf.Puller, u *dag.UnionWith) (zbuf.Puller, error) {
	var source zbuf.Puller
	if u.Coll != "" {
		p, err := b.env.Open(b.octx, u.Coll, nil)
		if err != nil {
			return nil, err
		}
		source = op.NewApplier(b.octx, p, func(doc *docpipe.Document) (*docpipe.Document, bool, error) {
			return doc.StripMeta(), true, nil
		})
	}
	sub := parent
	if u.Pipeline != nil {
		sb := &Builder{octx: b.octx, env: b.env, explain: b.explain}
		var err error
		if sub, err = sb.compileSeq(u.Pipeline, source); err != nil {
			return nil, err
		}
	} else {
		sub = source
	}
	return combine.New([]zbuf.Puller{parent, sub}), nil
}

// updateFunc runs the whenMatched pipeline of a $merge over one document.
// The parser allows only per-document stages there.
func updateFunc(seq *dag.Sequential) load.Update {
	return func(ectx *expr.Context, doc *docpipe.Document) (*docpipe.Document, error) {
		var err error
		for _, o := range seq.Ops {
			switch v := o.(type) {
			case *dag.AddFields:
				doc, err = v.Fields.Apply(ectx, doc)
			case *dag.Project:
				doc, err = v.Projection.Apply(ectx, doc)
			case *dag.Unset:
				doc, err = v.Projection.Apply(ectx, doc)
			case *dag.ReplaceRoot:
				doc, err = replaceRoot(ectx, v.NewRoot, doc)
			default:
				err = dperr.E(dperr.InternalAssertion, "%s in $merge update pipeline", dag.StageName(o))
			}
			if err != nil {
				return nil, err
			}
		}
		return doc, nil
	}
}
