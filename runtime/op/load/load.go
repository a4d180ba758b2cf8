// Package load implements the writer stages $merge and $out.  Writers
// consume their whole input, apply it to a target collection and emit
// nothing.
package load

import (
	"context"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/zbuf"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Target is the collection a writer modifies.
type Target interface {
	// Exists is false when the collection has never been created.
	Exists(ctx context.Context) (bool, error)
	Find(ctx context.Context, on field.List, key []docpipe.Value) (*docpipe.Document, bool, error)
	// Replace overwrites the document matching key on the paths in on.
	Replace(ctx context.Context, on field.List, key []docpipe.Value, doc *docpipe.Document) error
	Insert(ctx context.Context, doc *docpipe.Document) error
	// ReplaceAll atomically swaps the collection's contents for docs.
	ReplaceAll(ctx context.Context, docs []*docpipe.Document) error
}

// Update transforms a matched target document for whenMatched: pipeline.
// Its expression context binds the $merge let variables.
type Update func(ectx *expr.Context, doc *docpipe.Document) (*docpipe.Document, error)

// Merge is the $merge writer.
type Merge struct {
	octx    *op.Context
	parent  zbuf.Puller
	target  Target
	spec    *dag.Merge
	update  Update
	explain bool
	done    bool

	Inserted, Replaced, Discarded int64
}

// NewMerge returns a $merge writer.  In explain mode it drains its input
// without writing.
func NewMerge(octx *op.Context, parent zbuf.Puller, target Target, spec *dag.Merge, update Update, explain bool) *Merge {
	return &Merge{
		octx:    octx,
		parent:  parent,
		target:  target,
		spec:    spec,
		update:  update,
		explain: explain,
	}
}

func (m *Merge) Pull(done bool) (zbuf.Batch, error) {
	if m.done {
		return nil, nil
	}
	m.done = true
	if done {
		return m.parent.Pull(true)
	}
	if !m.explain && m.spec.WhenNotMatched == "fail" {
		ok, err := m.target.Exists(m.octx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, dperr.E(dperr.NamespaceError, dperr.NamespaceNotFound, "$merge target collection %s does not exist", m.spec.Into)
		}
	}
	for {
		batch, err := m.parent.Pull(false)
		if batch == nil || err != nil {
			if err == nil {
				m.octx.Logger.Debug("$merge finished",
					zap.Stringer("into", m.spec.Into),
					zap.Int64("inserted", m.Inserted),
					zap.Int64("replaced", m.Replaced),
					zap.Int64("discarded", m.Discarded))
			}
			return nil, err
		}
		for _, doc := range batch.Documents() {
			if m.explain {
				continue
			}
			if err := m.write(doc.StripMeta()); err != nil {
				batch.Unref()
				return nil, err
			}
		}
		batch.Unref()
	}
}

func (m *Merge) write(doc *docpipe.Document) error {
	if err := m.checkFieldNames(doc); err != nil {
		return err
	}
	doc, key, err := m.key(doc)
	if err != nil {
		return err
	}
	existing, ok, err := m.target.Find(m.octx, m.spec.On, key)
	if err != nil {
		return err
	}
	if !ok {
		switch m.spec.WhenNotMatched {
		case "insert":
			m.Inserted++
			return m.target.Insert(m.octx, doc)
		case "fail":
			return dperr.E(dperr.WriteConflict, dperr.MergeNotMatched, "$merge could not find a matching document in the target collection for at least one document in the source collection")
		}
		m.Discarded++
		return nil
	}
	var out *docpipe.Document
	switch m.spec.WhenMatched {
	case "replace":
		out = keepID(doc, existing)
	case "merge":
		b := docpipe.NewBuilder(existing)
		for _, f := range doc.Fields() {
			b.Set(f.Name, f.Value)
		}
		out = b.Document()
	case "keepExisting":
		return nil
	case "fail":
		return dperr.E(dperr.WriteConflict, dperr.DuplicateKey, "E11000 duplicate key error collection: %s", m.spec.Into)
	case "pipeline":
		ectx := m.octx.Expr
		for _, v := range m.spec.Let {
			val, err := v.Expr.Eval(m.octx.Expr, doc)
			if err != nil {
				return err
			}
			ectx = ectx.WithVar(v.Name, val)
		}
		if out, err = m.update(ectx, existing); err != nil {
			return err
		}
		if err := checkNames(out, dperr.DollarPrefixedField); err != nil {
			return err
		}
		out = keepID(out, existing)
	}
	m.Replaced++
	return m.target.Replace(m.octx, m.spec.On, key, out)
}

// checkFieldNames rejects source documents with dollar-prefixed field
// names.  A merge into an existing document reports FailedToParse where
// the other modes report DollarPrefixedFieldName.
func (m *Merge) checkFieldNames(doc *docpipe.Document) error {
	switch {
	case m.spec.WhenMatched == "merge":
		return checkNames(doc, dperr.FailedToParse)
	case m.spec.WhenMatched != "pipeline", m.spec.WhenNotMatched == "insert":
		return checkNames(doc, dperr.DollarPrefixedField)
	}
	return nil
}

func checkNames(doc *docpipe.Document, code dperr.Code) error {
	for _, f := range doc.Fields() {
		if strings.HasPrefix(f.Name, "$") {
			return dperr.E(dperr.InvalidArgument, code, "The dollar ($) prefixed field '%s' is not valid for storage", f.Name)
		}
		if d := f.Value.Document(); d != nil {
			if err := checkNames(d, code); err != nil {
				return err
			}
		}
	}
	return nil
}

// key extracts the values of the on fields, adding a fresh _id to doc when
// it has none.
func (m *Merge) key(doc *docpipe.Document) (*docpipe.Document, []docpipe.Value, error) {
	if !doc.Has("_id") {
		doc = withID(doc)
	}
	key := make([]docpipe.Value, 0, len(m.spec.On))
	for _, p := range m.spec.On {
		v := doc.Lookup(p)
		switch {
		case v.IsNullish():
			return nil, nil, dperr.E(dperr.InvalidArgument, dperr.Code(51132), "$merge write error: 'on' field '%s' cannot be missing, null or undefined if supporting an upsert", p)
		case v.IsArray():
			return nil, nil, dperr.E(dperr.InvalidArgument, dperr.Code(51185), "$merge write error: 'on' field '%s' cannot be an array", p)
		}
		key = append(key, v)
	}
	return doc, key, nil
}

func withID(doc *docpipe.Document) *docpipe.Document {
	var b docpipe.Builder
	b.Append("_id", docpipe.NewObjectID(primitive.NewObjectID()))
	for _, f := range doc.Fields() {
		b.Append(f.Name, f.Value)
	}
	return b.Document()
}

// keepID gives doc the _id of existing.
func keepID(doc, existing *docpipe.Document) *docpipe.Document {
	id := existing.Get("_id")
	if id.IsMissing() || docpipe.Equal(doc.Get("_id"), id) {
		return doc
	}
	var b docpipe.Builder
	b.Append("_id", id)
	for _, f := range doc.Fields() {
		if f.Name != "_id" {
			b.Append(f.Name, f.Value)
		}
	}
	return b.Document()
}

// Out is the $out writer.  It replaces the target's contents when its
// input ends, so a failure leaves the target untouched.
type Out struct {
	octx    *op.Context
	parent  zbuf.Puller
	target  Target
	explain bool
	done    bool
}

func NewOut(octx *op.Context, parent zbuf.Puller, target Target, explain bool) *Out {
	return &Out{octx: octx, parent: parent, target: target, explain: explain}
}

func (o *Out) Pull(done bool) (zbuf.Batch, error) {
	if o.done {
		return nil, nil
	}
	o.done = true
	if done {
		return o.parent.Pull(true)
	}
	docs, err := zbuf.PullAll(o.parent)
	if err != nil || o.explain {
		return nil, err
	}
	ids := make(map[string]struct{}, len(docs))
	for k, doc := range docs {
		doc = doc.StripMeta()
		if !doc.Has("_id") {
			doc = withID(doc)
		}
		if err := checkNames(doc, dperr.DollarPrefixedField); err != nil {
			return nil, err
		}
		key := docpipe.Key(doc.Get("_id"))
		if _, ok := ids[key]; ok {
			return nil, dperr.E(dperr.WriteConflict, dperr.DuplicateKey, "E11000 duplicate key error: _id %s", doc.Get("_id"))
		}
		ids[key] = struct{}{}
		docs[k] = doc
	}
	return nil, o.target.ReplaceAll(o.octx, docs)
}
