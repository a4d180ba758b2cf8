package expr

import (
	"fmt"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/field"
)

const DefaultMaxDepth = 200

// ParseContext describes what is in scope where an expression appears.
type ParseContext struct {
	// MaxDepth bounds expression nesting; zero means DefaultMaxDepth.
	MaxDepth int
	// Vars names the user variables in scope (the let option plus
	// stage-bound variables such as "new").
	Vars map[string]bool
}

// Dependencies summarizes what an expression reads.
type Dependencies struct {
	Paths field.List
	// WholeDocument is set when the expression references $$ROOT or
	// $$CURRENT without a path.
	WholeDocument bool
	Meta          []string
	Vars          []string
}

// Reads is true if evaluating the expression may observe path p.
func (d Dependencies) Reads(p field.Path) bool {
	return d.WholeDocument || d.Paths.Overlaps(p)
}

func (d Dependencies) ReadsMeta(key string) bool {
	for _, m := range d.Meta {
		if m == key {
			return true
		}
	}
	return false
}

func (d *Dependencies) Merge(other Dependencies) {
	for _, p := range other.Paths {
		if !d.Paths.Has(p) {
			d.Paths = append(d.Paths, p)
		}
	}
	d.WholeDocument = d.WholeDocument || other.WholeDocument
	for _, m := range other.Meta {
		if !d.ReadsMeta(m) {
			d.Meta = append(d.Meta, m)
		}
	}
	d.Vars = append(d.Vars, other.Vars...)
}

func errorf(code int, format string, args ...interface{}) error {
	return dperr.Errorf(dperr.InvalidArgument, dperr.Code(code), format, args...)
}

func parseErrorf(code int, format string, args ...interface{}) error {
	return dperr.Errorf(dperr.ParseError, dperr.Code(code), format, args...)
}

func typeErrorf(code int, format string, args ...interface{}) error {
	return dperr.Errorf(dperr.TypeMismatch, dperr.Code(code), format, args...)
}

type parser struct {
	pctx  *ParseContext
	nodes []node
	deps  Dependencies
	max   int
}

// Parse compiles the expression v.
func Parse(v docpipe.Value, pctx *ParseContext) (*Program, error) {
	if pctx == nil {
		pctx = &ParseContext{}
	}
	p := &parser{pctx: pctx, max: pctx.MaxDepth}
	if p.max == 0 {
		p.max = DefaultMaxDepth
	}
	root, err := p.parse(v, 0)
	if err != nil {
		return nil, err
	}
	return &Program{nodes: p.nodes, root: root, deps: p.deps, spec: v}, nil
}

// MustParse compiles the extended JSON expression s and panics on error.
func MustParse(s string) *Program {
	prog, err := Parse(docpipe.MustParse(s), nil)
	if err != nil {
		panic(err)
	}
	return prog
}

// NewLiteral returns a Program that evaluates to v.
func NewLiteral(v docpipe.Value) *Program {
	return &Program{
		nodes: []node{{op: opLiteral, lit: v}},
		spec:  docpipe.NewDocumentValue(docpipe.D("$literal", v)),
	}
}

// NewFieldRef returns a Program that evaluates the field path p.
func NewFieldRef(path field.Path) *Program {
	return &Program{
		nodes: []node{{op: opField, path: path}},
		deps:  Dependencies{Paths: field.List{path}},
		spec:  docpipe.NewString("$" + path.String()),
	}
}

func (p *parser) add(n node) int32 {
	p.nodes = append(p.nodes, n)
	return int32(len(p.nodes) - 1)
}

func (p *parser) parse(v docpipe.Value, depth int) (int32, error) {
	if depth > p.max {
		return 0, parseErrorf(int(dperr.FailedToParse), "expression nesting exceeds maximum depth of %d", p.max)
	}
	switch v.Kind() {
	case docpipe.KindString:
		s := v.Str()
		if strings.HasPrefix(s, "$$") {
			return p.parseVar(s[2:])
		}
		if strings.HasPrefix(s, "$") {
			return p.parseFieldPath(s[1:])
		}
	case docpipe.KindArray:
		elems := v.Array()
		args := make([]int32, 0, len(elems))
		for _, elem := range elems {
			id, err := p.parse(elem, depth+1)
			if err != nil {
				return 0, err
			}
			args = append(args, id)
		}
		return p.add(node{op: opArray, args: args}), nil
	case docpipe.KindDocument:
		return p.parseDocument(v.Document(), depth)
	}
	return p.add(node{op: opLiteral, lit: v}), nil
}

func (p *parser) parseFieldPath(s string) (int32, error) {
	if s == "" {
		return 0, parseErrorf(16872, "'$' by itself is not a valid FieldPath")
	}
	path, err := field.Parse(s)
	if err != nil {
		code := 15998
		if err == field.ErrDollarPrefix {
			code = 16410
		}
		return 0, parseErrorf(code, "%s", err)
	}
	if !p.deps.Paths.Has(path) {
		p.deps.Paths = append(p.deps.Paths, path)
	}
	return p.add(node{op: opField, path: path}), nil
}

func (p *parser) parseVar(s string) (int32, error) {
	name, rest, _ := strings.Cut(s, ".")
	if name == "" {
		return 0, parseErrorf(16869, "empty variable name")
	}
	var path field.Path
	if rest != "" {
		var err error
		if path, err = field.Parse(rest); err != nil {
			return 0, parseErrorf(15998, "%s", err)
		}
	}
	switch name {
	case "ROOT", "CURRENT":
		if path == nil {
			p.deps.WholeDocument = true
		} else if !p.deps.Paths.Has(path) {
			p.deps.Paths = append(p.deps.Paths, path)
		}
	case "REMOVE", "NOW":
	default:
		if !p.pctx.Vars[name] {
			return 0, parseErrorf(17276, "Use of undefined variable: %s", name)
		}
		p.deps.Vars = append(p.deps.Vars, name)
	}
	return p.add(node{op: opVar, name: name, path: path}), nil
}

func (p *parser) parseDocument(d *docpipe.Document, depth int) (int32, error) {
	fields := d.Fields()
	if len(fields) > 0 && strings.HasPrefix(fields[0].Name, "$") {
		if len(fields) != 1 {
			return 0, parseErrorf(15983, "an expression specification must contain exactly one field, the name of the expression. Found %d fields in %s", len(fields), docpipe.NewDocumentValue(d))
		}
		return p.parseOperator(fields[0].Name, fields[0].Value, depth)
	}
	keys := make([]string, 0, len(fields))
	args := make([]int32, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f.Name, "$") {
			return 0, parseErrorf(16410, "FieldPath field names may not start with '$'. Consider using $getField or $setField.")
		}
		if strings.Contains(f.Name, ".") {
			return 0, parseErrorf(16412, "FieldPath field names may not contain '.'. Consider using $getField or $setField.")
		}
		id, err := p.parse(f.Value, depth+1)
		if err != nil {
			return 0, err
		}
		keys = append(keys, f.Name)
		args = append(args, id)
	}
	return p.add(node{op: opObject, keys: keys, args: args}), nil
}

func (p *parser) parseOperator(name string, arg docpipe.Value, depth int) (int32, error) {
	op := lookupOperator(name)
	if op == nil {
		return 0, parseErrorf(int(dperr.InvalidExpression), "Unrecognized expression '%s'", name)
	}
	n := node{op: opCall, name: name, fn: op}
	if op.parse != nil {
		args, data, err := op.parse(p, arg, depth)
		if err != nil {
			return 0, err
		}
		n.args, n.data = args, data
		return p.add(n), nil
	}
	var operands []docpipe.Value
	if arg.IsArray() {
		operands = arg.Array()
	} else {
		operands = []docpipe.Value{arg}
	}
	if err := op.checkArity(len(operands)); err != nil {
		return 0, err
	}
	for _, operand := range operands {
		id, err := p.parse(operand, depth+1)
		if err != nil {
			return 0, err
		}
		n.args = append(n.args, id)
	}
	return p.add(n), nil
}

func (o *operator) checkArity(n int) error {
	if o.min == o.max && n != o.min {
		plural := "s"
		if o.min == 1 {
			plural = ""
		}
		return dperr.E(dperr.WrongArgumentCount, dperr.WrongArgumentCountCode,
			"Expression %s takes exactly %d argument%s. %d were passed in.", o.name, o.min, plural, n)
	}
	if n < o.min {
		return dperr.E(dperr.WrongArgumentCount, dperr.WrongArgumentCountCode,
			"Expression %s takes at least %d arguments, and %d were passed in.", o.name, o.min, n)
	}
	if o.max >= 0 && n > o.max {
		return dperr.E(dperr.WrongArgumentCount, dperr.WrongArgumentCountCode,
			"Expression %s takes at most %d arguments, and %d were passed in.", o.name, o.max, n)
	}
	return nil
}

// parseNamedArgs parses an object of named operands, e.g., {if, then, else},
// returning their node ids in the order of names.  Absent operands are -1.
func (p *parser) parseNamedArgs(op string, arg docpipe.Value, names []string, depth int) ([]int32, error) {
	if !arg.IsDocument() {
		return nil, parseErrorf(int(dperr.FailedToParse), "%s expects an object of named arguments but found: %s", op, arg.TypeName())
	}
	ids := make([]int32, len(names))
	for k := range ids {
		ids[k] = -1
	}
	for _, f := range arg.Document().Fields() {
		k := indexOf(names, f.Name)
		if k < 0 {
			return nil, parseErrorf(40415, "%s found an unknown argument: %s", op, f.Name)
		}
		id, err := p.parse(f.Value, depth+1)
		if err != nil {
			return nil, err
		}
		ids[k] = id
	}
	return ids, nil
}

func indexOf(names []string, name string) int {
	for k, n := range names {
		if n == name {
			return k
		}
	}
	return -1
}

// Spec returns the expression p was compiled from.
func (p *Program) Spec() docpipe.Value {
	return p.spec
}

func (p *Program) String() string {
	if p.spec.IsMissing() {
		return fmt.Sprintf("expr(%d nodes)", len(p.nodes))
	}
	return p.spec.String()
}
