package expr

import (
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
)

// Projection is a compiled $project specification.  An inclusion
// projection keeps only the named paths (plus _id unless it is excluded)
// and may compute new fields; an exclusion projection drops the named
// paths and keeps everything else.
type Projection struct {
	inclusion bool
	root      *projNode
	deps      Dependencies
}

type projNode struct {
	// names holds child names in specification order.
	names    []string
	children map[string]*projChild
	computed bool
}

type projChild struct {
	leaf    bool
	include bool
	expr    *Program
	sub     *projNode
}

func newProjNode() *projNode {
	return &projNode{children: make(map[string]*projChild)}
}

type projMode int

const (
	modeUnset projMode = iota
	modeInclude
	modeExclude
)

type projParser struct {
	pctx *ParseContext
	mode projMode
	// id is the explicit _id setting, if any.
	id   projMode
	root *projNode
	deps Dependencies
}

// ParseProjection compiles spec as a $project stage argument.
func ParseProjection(spec *docpipe.Document, pctx *ParseContext) (*Projection, error) {
	if spec.Len() == 0 {
		return nil, parseErrorf(51272, "projection specification must have at least one field")
	}
	pp := &projParser{pctx: pctx, root: newProjNode()}
	if err := pp.parseLevel(nil, spec); err != nil {
		return nil, err
	}
	inclusion := pp.mode == modeInclude
	if pp.mode == modeUnset {
		inclusion = pp.id == modeInclude
	}
	if inclusion && pp.id != modeExclude {
		if _, ok := pp.root.children["_id"]; !ok {
			pp.root.names = append([]string{"_id"}, pp.root.names...)
			pp.root.children["_id"] = &projChild{leaf: true, include: true}
		}
	}
	deps := pp.deps
	if inclusion {
		collectIncluded(pp.root, nil, &deps)
	} else {
		deps.WholeDocument = true
	}
	return &Projection{inclusion: inclusion, root: pp.root, deps: deps}, nil
}

// NewExclusion returns an exclusion projection of paths, as used by $unset.
func NewExclusion(paths field.List) (*Projection, error) {
	pp := &projParser{root: newProjNode(), mode: modeExclude}
	for _, p := range paths {
		if err := pp.insert(p, &projChild{leaf: true}); err != nil {
			return nil, err
		}
	}
	return &Projection{root: pp.root, deps: Dependencies{WholeDocument: true}}, nil
}

func collectIncluded(n *projNode, prefix field.Path, deps *Dependencies) {
	for _, name := range n.names {
		c := n.children[name]
		path := prefix.Append(name)
		switch {
		case c.leaf && c.include:
			if !deps.Paths.Has(path) {
				deps.Paths = append(deps.Paths, path)
			}
		case c.sub != nil:
			collectIncluded(c.sub, path, deps)
		}
	}
}

func (pp *projParser) parseLevel(prefix field.Path, spec *docpipe.Document) error {
	for _, f := range spec.Fields() {
		if f.Name == "" {
			return parseErrorf(40352, "FieldPath cannot be constructed with empty string")
		}
		if strings.HasPrefix(f.Name, "$") {
			return parseErrorf(16410, "FieldPath field names may not start with '$'")
		}
		var path field.Path
		for _, name := range strings.Split(f.Name, ".") {
			if name == "" {
				return parseErrorf(15998, "FieldPath field names may not be empty strings")
			}
			path = append(path, name)
		}
		path = append(append(field.Path{}, prefix...), path...)
		if err := pp.parseValue(path, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (pp *projParser) parseValue(path field.Path, v docpipe.Value) error {
	switch {
	case v.Kind() == docpipe.KindBool || v.IsNumber():
		include := v.Truthy()
		if v.IsNumber() {
			f, _ := v.AsFloat64()
			include = f != 0
		}
		mode := modeExclude
		if include {
			mode = modeInclude
		}
		if len(path) == 1 && path[0] == "_id" {
			pp.id = mode
		} else if err := pp.setMode(mode, path); err != nil {
			return err
		}
		return pp.insert(path, &projChild{leaf: true, include: include})
	case v.IsDocument():
		d := v.Document()
		if d.Len() == 0 {
			return parseErrorf(51270, "An empty sub-projection is not a valid value. Found empty object at path %s", path)
		}
		if strings.HasPrefix(d.Fields()[0].Name, "$") {
			return pp.parseComputed(path, v)
		}
		return pp.parseLevel(path, d)
	}
	return pp.parseComputed(path, v)
}

func (pp *projParser) parseComputed(path field.Path, v docpipe.Value) error {
	prog, err := Parse(v, pp.pctx)
	if err != nil {
		return err
	}
	// $meta is allowed in either kind of projection.
	if !isMetaExpr(v) {
		if err := pp.setMode(modeInclude, path); err != nil {
			if pp.mode == modeExclude {
				return parseErrorf(31252, "Cannot use expression other than $meta in exclusion projection")
			}
			return err
		}
	}
	pp.deps.Merge(prog.Dependencies())
	return pp.insert(path, &projChild{leaf: true, expr: prog})
}

func isMetaExpr(v docpipe.Value) bool {
	if !v.IsDocument() {
		return false
	}
	fields := v.Document().Fields()
	return len(fields) == 1 && fields[0].Name == "$meta"
}

func (pp *projParser) setMode(mode projMode, path field.Path) error {
	switch {
	case pp.mode == modeUnset:
		pp.mode = mode
	case pp.mode == modeInclude && mode == modeExclude:
		return parseErrorf(31254, "Cannot do exclusion on field %s in inclusion projection", path)
	case pp.mode == modeExclude && mode == modeInclude:
		return parseErrorf(31253, "Cannot do inclusion on field %s in exclusion projection", path)
	}
	return nil
}

func (pp *projParser) insert(path field.Path, c *projChild) error {
	n := pp.root
	for k, name := range path {
		existing := n.children[name]
		if k == len(path)-1 {
			if existing != nil {
				return parseErrorf(31250, "Path collision at %s", path)
			}
			n.names = append(n.names, name)
			n.children[name] = c
			if c.expr != nil {
				n.computed = true
			}
			return nil
		}
		if existing == nil {
			existing = &projChild{sub: newProjNode()}
			n.names = append(n.names, name)
			n.children[name] = existing
		} else if existing.leaf {
			return parseErrorf(31250, "Path collision at %s remaining portion %s", path, field.Path(path[k+1:]))
		}
		if c.expr != nil {
			n.computed = true
		}
		n = existing.sub
	}
	return nil
}

func (p *Projection) IsInclusion() bool {
	return p.inclusion
}

func (p *Projection) Dependencies() Dependencies {
	return p.deps
}

// Excluded returns the paths removed by an exclusion projection that
// computes nothing.  The boolean is false for any other projection.
func (p *Projection) Excluded() (field.List, bool) {
	if p.inclusion {
		return nil, false
	}
	var out field.List
	if !excluded(p.root, nil, &out) {
		return nil, false
	}
	return out, true
}

func excluded(n *projNode, prefix field.Path, out *field.List) bool {
	for _, name := range n.names {
		c := n.children[name]
		path := append(append(field.Path(nil), prefix...), name)
		switch {
		case c.expr != nil:
			return false
		case c.leaf && c.include:
			if len(path) != 1 || name != "_id" {
				return false
			}
		case c.leaf:
			*out = append(*out, path)
		default:
			if !excluded(c.sub, path, out) {
				return false
			}
		}
	}
	return true
}

// Preserves is true if the value at path passes through p unchanged.
func (p *Projection) Preserves(path field.Path) bool {
	n := p.root
	for _, name := range path {
		c := n.children[name]
		if c == nil {
			return !p.inclusion
		}
		if c.expr != nil {
			return false
		}
		if c.leaf {
			return c.include
		}
		n = c.sub
	}
	// path names an interior node whose children are reshaped.
	return false
}

// Apply projects doc.  Computed fields are evaluated against doc as a
// whole regardless of their nesting.
func (p *Projection) Apply(ectx *Context, doc *docpipe.Document) (*docpipe.Document, error) {
	var out *docpipe.Document
	var err error
	if p.inclusion {
		out, err = p.include(ectx, p.root, doc, doc)
	} else {
		out, err = p.exclude(ectx, p.root, doc, doc)
	}
	if err != nil {
		return nil, err
	}
	return out.WithMetaFrom(doc), nil
}

func (p *Projection) include(ectx *Context, n *projNode, in, root *docpipe.Document) (*docpipe.Document, error) {
	var b docpipe.Builder
	for _, f := range in.Fields() {
		c := n.children[f.Name]
		if c == nil || c.expr != nil {
			continue
		}
		if c.leaf {
			if c.include {
				b.Append(f.Name, f.Value)
			}
			continue
		}
		v, err := p.includeValue(ectx, c.sub, f.Value, root)
		if err != nil {
			return nil, err
		}
		b.Append(f.Name, v)
	}
	if err := p.addComputed(ectx, n, in, root, &b); err != nil {
		return nil, err
	}
	return b.Document(), nil
}

func (p *Projection) includeValue(ectx *Context, n *projNode, v docpipe.Value, root *docpipe.Document) (docpipe.Value, error) {
	switch v.Kind() {
	case docpipe.KindDocument:
		d, err := p.include(ectx, n, v.Document(), root)
		if err != nil {
			return docpipe.Missing, err
		}
		return docpipe.NewDocumentValue(d), nil
	case docpipe.KindArray:
		var out []docpipe.Value
		for _, elem := range v.Array() {
			e, err := p.includeValue(ectx, n, elem, root)
			if err != nil {
				return docpipe.Missing, err
			}
			if !e.IsMissing() {
				out = append(out, e)
			}
		}
		return docpipe.NewArray(out), nil
	}
	if n.computed {
		d, err := p.include(ectx, n, docpipe.EmptyDocument, root)
		if err != nil {
			return docpipe.Missing, err
		}
		return docpipe.NewDocumentValue(d), nil
	}
	return docpipe.Missing, nil
}

// addComputed appends the computed fields of n, and the subtrees of n that
// contain computed fields but have no counterpart in the input, in
// specification order.
func (p *Projection) addComputed(ectx *Context, n *projNode, in, root *docpipe.Document, b *docpipe.Builder) error {
	if !n.computed {
		return nil
	}
	for _, name := range n.names {
		c := n.children[name]
		switch {
		case c.expr != nil:
			v, err := c.expr.Eval(ectx, root)
			if err != nil {
				return err
			}
			b.Set(name, v)
		case c.sub != nil && c.sub.computed && !in.Has(name):
			apply := p.include
			if !p.inclusion {
				apply = p.exclude
			}
			d, err := apply(ectx, c.sub, docpipe.EmptyDocument, root)
			if err != nil {
				return err
			}
			b.Set(name, docpipe.NewDocumentValue(d))
		}
	}
	return nil
}

func (p *Projection) exclude(ectx *Context, n *projNode, in, root *docpipe.Document) (*docpipe.Document, error) {
	var b docpipe.Builder
	for _, f := range in.Fields() {
		c := n.children[f.Name]
		switch {
		case c == nil:
			b.Append(f.Name, f.Value)
		case c.expr != nil:
			// Set in place below.
			b.Append(f.Name, f.Value)
		case c.leaf:
			if c.include {
				b.Append(f.Name, f.Value)
			}
		default:
			v, err := p.excludeValue(ectx, c.sub, f.Value, root)
			if err != nil {
				return nil, err
			}
			b.Append(f.Name, v)
		}
	}
	if err := p.addComputed(ectx, n, in, root, &b); err != nil {
		return nil, err
	}
	return b.Document(), nil
}

func (p *Projection) excludeValue(ectx *Context, n *projNode, v docpipe.Value, root *docpipe.Document) (docpipe.Value, error) {
	switch v.Kind() {
	case docpipe.KindDocument:
		d, err := p.exclude(ectx, n, v.Document(), root)
		if err != nil {
			return docpipe.Missing, err
		}
		return docpipe.NewDocumentValue(d), nil
	case docpipe.KindArray:
		elems := v.Array()
		out := make([]docpipe.Value, 0, len(elems))
		for _, elem := range elems {
			e, err := p.excludeValue(ectx, n, elem, root)
			if err != nil {
				return docpipe.Missing, err
			}
			out = append(out, e)
		}
		return docpipe.NewArray(out), nil
	}
	return v, nil
}

// AddFields is a compiled $addFields (or $set) specification.  Nested
// objects that are not expressions name dotted paths, so {a: {b: 1}} sets
// a.b and leaves the other fields of a alone.
type AddFields struct {
	paths []field.Path
	exprs []*Program
	deps  Dependencies
}

func ParseAddFields(stage string, spec *docpipe.Document, pctx *ParseContext) (*AddFields, error) {
	if spec.Len() == 0 {
		return nil, parseErrorf(40177, "Invalid %s :: caused by :: specification must have at least one field", stage)
	}
	a := &AddFields{}
	if err := a.parseLevel(nil, spec, pctx); err != nil {
		return nil, err
	}
	for k, p := range a.paths {
		for _, q := range a.paths[:k] {
			if p.Overlaps(q) {
				return nil, parseErrorf(31250, "Invalid %s :: caused by :: Path collision at %s", stage, p)
			}
		}
	}
	return a, nil
}

// NewAddFields returns an AddFields that sets each path to the value of the
// corresponding program.
func NewAddFields(paths []field.Path, exprs []*Program) *AddFields {
	a := &AddFields{paths: paths, exprs: exprs}
	for _, e := range exprs {
		a.deps.Merge(e.Dependencies())
	}
	return a
}

func (a *AddFields) parseLevel(prefix field.Path, spec *docpipe.Document, pctx *ParseContext) error {
	for _, f := range spec.Fields() {
		if strings.HasPrefix(f.Name, "$") {
			return parseErrorf(16410, "FieldPath field names may not start with '$'")
		}
		sub, err := field.Parse(f.Name)
		if err != nil {
			return parseErrorf(15998, "%s", err)
		}
		path := append(append(field.Path{}, prefix...), sub...)
		if f.Value.IsDocument() {
			d := f.Value.Document()
			if d.Len() > 0 && !strings.HasPrefix(d.Fields()[0].Name, "$") {
				if err := a.parseLevel(path, d, pctx); err != nil {
					return err
				}
				continue
			}
		}
		prog, err := Parse(f.Value, pctx)
		if err != nil {
			return err
		}
		a.paths = append(a.paths, path)
		a.exprs = append(a.exprs, prog)
		a.deps.Merge(prog.Dependencies())
	}
	return nil
}

func (a *AddFields) Paths() []field.Path {
	return a.paths
}

func (a *AddFields) Exprs() []*Program {
	return a.exprs
}

func (a *AddFields) Dependencies() Dependencies {
	return a.deps
}

// Writes is true if a may change the value at path.
func (a *AddFields) Writes(path field.Path) bool {
	for _, p := range a.paths {
		if p.Overlaps(path) {
			return true
		}
	}
	return false
}

// Concat returns the fusion of a followed by b.  It is only equivalent to
// running a then b when b does not read anything a writes.
func (a *AddFields) Concat(b *AddFields) *AddFields {
	out := &AddFields{
		paths: append(append([]field.Path{}, a.paths...), b.paths...),
		exprs: append(append([]*Program{}, a.exprs...), b.exprs...),
		deps:  a.deps,
	}
	out.deps.Merge(b.deps)
	return out
}

// Apply evaluates every expression against doc and then sets the results
// in order.  A missing result removes the target field.
func (a *AddFields) Apply(ectx *Context, doc *docpipe.Document) (*docpipe.Document, error) {
	vals := make([]docpipe.Value, len(a.exprs))
	for k, e := range a.exprs {
		v, err := e.Eval(ectx, doc)
		if err != nil {
			return nil, err
		}
		vals[k] = v
	}
	out := doc
	for k, v := range vals {
		if v.IsMissing() {
			out = out.RemovePath(a.paths[k])
			continue
		}
		out = out.SetPath(a.paths[k], v)
	}
	return out, nil
}
