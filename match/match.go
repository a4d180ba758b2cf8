// Package match compiles query predicates (the argument of $match and the
// query of $graphLookup's restrictSearchWithMatch) into an arena of nodes
// evaluated with an explicit stack.
package match

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
)

const DefaultMaxDepth = 100

type opcode uint8

const (
	opAnd opcode = iota
	opOr
	opNor
	opNot
	// opElemMatch evaluates its only child against each element of the
	// arrays found at path.
	opElemMatch
	opCompare
	opIn
	opExists
	opType
	opSize
	opRegex
	opMod
	opExpr
	opText
	opConst
)

type cmpOp uint8

const (
	cmpEQ cmpOp = iota
	cmpGT
	cmpGTE
	cmpLT
	cmpLTE
)

type node struct {
	op   opcode
	path field.Path
	cmp  cmpOp
	val  docpipe.Value
	vals []docpipe.Value
	res  []*regexp.Regexp
	// kinds and number hold $type arguments.
	kinds  []docpipe.Kind
	number bool
	n      int64
	rem    int64
	exists bool
	// objects is set for the object form of $elemMatch, whose child sees
	// only document elements.
	objects bool
	prog    *expr.Program
	kids    []int32
}

// Filter is a compiled predicate.  Filters are immutable and safe for
// concurrent use.
type Filter struct {
	spec  *docpipe.Document
	nodes []node
	root  int32
	text  *textSearch
	deps  expr.Dependencies
}

type ParseContext struct {
	MaxDepth int
	// Expr is used to compile $expr arguments.
	Expr *expr.ParseContext
}

type parser struct {
	pctx  *ParseContext
	max   int
	nodes []node
	text  *textSearch
	deps  expr.Dependencies
}

func badValue(format string, args ...interface{}) error {
	return dperr.Errorf(dperr.ParseError, dperr.BadValue, format, args...)
}

// Parse compiles the query document q.
func Parse(q *docpipe.Document, pctx *ParseContext) (*Filter, error) {
	if pctx == nil {
		pctx = &ParseContext{}
	}
	p := &parser{pctx: pctx, max: pctx.MaxDepth}
	if p.max == 0 {
		p.max = DefaultMaxDepth
	}
	root, err := p.parseQuery(q, 0, true)
	if err != nil {
		return nil, err
	}
	return &Filter{spec: q, nodes: p.nodes, root: root, text: p.text, deps: p.deps}, nil
}

// MustParse compiles the extended JSON query s and panics on error.
func MustParse(s string) *Filter {
	f, err := Parse(docpipe.MustParseDocument(s), nil)
	if err != nil {
		panic(err)
	}
	return f
}

// And returns the conjunction of filters a and b.
func And(a, b *Filter, pctx *ParseContext) (*Filter, error) {
	spec := docpipe.D("$and", docpipe.NewArray([]docpipe.Value{
		docpipe.NewDocumentValue(a.spec),
		docpipe.NewDocumentValue(b.spec),
	}))
	return Parse(spec, pctx)
}

func (f *Filter) Spec() *docpipe.Document {
	return f.spec
}

func (f *Filter) Dependencies() expr.Dependencies {
	return f.deps
}

// HasText is true if the filter contains a $text predicate, in which case
// matching documents carry textScore metadata.
func (f *Filter) HasText() bool {
	return f.text != nil
}

func (p *parser) add(n node) int32 {
	p.nodes = append(p.nodes, n)
	return int32(len(p.nodes) - 1)
}

func (p *parser) addPath(path field.Path) {
	if len(path) > 0 && !p.deps.Paths.Has(path) {
		p.deps.Paths = append(p.deps.Paths, path)
	}
}

// parseQuery compiles a query document into a conjunction of its fields.
// top is true where $text is permitted.
func (p *parser) parseQuery(q *docpipe.Document, depth int, top bool) (int32, error) {
	if depth > p.max {
		return 0, badValue("exceeded maximum query tree depth of %d", p.max)
	}
	var kids []int32
	for _, f := range q.Fields() {
		var id int32
		var err error
		if strings.HasPrefix(f.Name, "$") {
			id, err = p.parseTopLevel(f.Name, f.Value, depth, top)
		} else {
			var path field.Path
			if path, err = parsePath(f.Name); err == nil {
				id, err = p.parsePathValue(path, f.Value, depth)
			}
		}
		if err != nil {
			return 0, err
		}
		kids = append(kids, id)
	}
	if len(kids) == 1 {
		return kids[0], nil
	}
	return p.add(node{op: opAnd, kids: kids}), nil
}

func parsePath(s string) (field.Path, error) {
	path := field.Dotted(s)
	for _, name := range path {
		if name == "" {
			return nil, badValue("empty path component in query path %q", s)
		}
	}
	return path, nil
}

func (p *parser) parseTopLevel(name string, v docpipe.Value, depth int, top bool) (int32, error) {
	switch name {
	case "$and", "$or", "$nor":
		if !v.IsArray() || len(v.Array()) == 0 {
			return 0, badValue("%s must be a nonempty array", name)
		}
		op := map[string]opcode{"$and": opAnd, "$or": opOr, "$nor": opNor}[name]
		var kids []int32
		for _, elem := range v.Array() {
			if !elem.IsDocument() {
				return 0, badValue("%s argument's entries must be objects", name)
			}
			id, err := p.parseQuery(elem.Document(), depth+1, top && op == opAnd)
			if err != nil {
				return 0, err
			}
			kids = append(kids, id)
		}
		return p.add(node{op: op, kids: kids}), nil
	case "$expr":
		prog, err := expr.Parse(v, p.pctx.Expr)
		if err != nil {
			return 0, err
		}
		p.deps.Merge(prog.Dependencies())
		return p.add(node{op: opExpr, prog: prog}), nil
	case "$text":
		if !top {
			return 0, badValue("$text is not allowed in this context")
		}
		if p.text != nil {
			return 0, badValue("Too many text expressions")
		}
		ts, err := parseText(v)
		if err != nil {
			return 0, err
		}
		p.text = ts
		p.deps.WholeDocument = true
		return p.add(node{op: opText}), nil
	case "$comment":
		return p.add(node{op: opConst, exists: true}), nil
	case "$alwaysTrue", "$alwaysFalse":
		return p.add(node{op: opConst, exists: name == "$alwaysTrue"}), nil
	}
	return 0, badValue("unknown top level operator: %s", name)
}

func isOperatorDoc(v docpipe.Value) bool {
	if !v.IsDocument() {
		return false
	}
	fields := v.Document().Fields()
	return len(fields) > 0 && strings.HasPrefix(fields[0].Name, "$")
}

// parsePathValue compiles {path: v}, where v is either a value to compare
// for equality or an object of operators.
func (p *parser) parsePathValue(path field.Path, v docpipe.Value, depth int) (int32, error) {
	p.addPath(path)
	if !isOperatorDoc(v) {
		if v.Kind() == docpipe.KindRegex {
			return p.regexNode(path, v)
		}
		return p.add(node{op: opCompare, path: path, cmp: cmpEQ, val: v}), nil
	}
	ops := v.Document()
	var kids []int32
	for _, f := range ops.Fields() {
		if f.Name == "$options" {
			if !ops.Has("$regex") {
				return 0, badValue("$options needs a $regex")
			}
			continue
		}
		id, err := p.parseOperator(path, f.Name, f.Value, ops, depth)
		if err != nil {
			return 0, err
		}
		kids = append(kids, id)
	}
	if len(kids) == 1 {
		return kids[0], nil
	}
	return p.add(node{op: opAnd, kids: kids}), nil
}

var comparisons = map[string]cmpOp{
	"$eq":  cmpEQ,
	"$gt":  cmpGT,
	"$gte": cmpGTE,
	"$lt":  cmpLT,
	"$lte": cmpLTE,
}

func (p *parser) parseOperator(path field.Path, name string, v docpipe.Value, ops *docpipe.Document, depth int) (int32, error) {
	if depth > p.max {
		return 0, badValue("exceeded maximum query tree depth of %d", p.max)
	}
	if cmp, ok := comparisons[name]; ok {
		return p.add(node{op: opCompare, path: path, cmp: cmp, val: v}), nil
	}
	switch name {
	case "$ne":
		id, err := p.parseOperator(path, "$eq", v, ops, depth)
		if err != nil {
			return 0, err
		}
		return p.add(node{op: opNot, kids: []int32{id}}), nil
	case "$in", "$nin":
		if !v.IsArray() {
			return 0, badValue("%s needs an array", name)
		}
		n := node{op: opIn, path: path}
		for _, elem := range v.Array() {
			if elem.Kind() == docpipe.KindRegex {
				re, err := compileRegex(elem.Regex())
				if err != nil {
					return 0, err
				}
				n.res = append(n.res, re)
				continue
			}
			if isOperatorDoc(elem) {
				return 0, badValue("cannot nest $ under %s", name)
			}
			n.vals = append(n.vals, elem)
		}
		id := p.add(n)
		if name == "$nin" {
			id = p.add(node{op: opNot, kids: []int32{id}})
		}
		return id, nil
	case "$exists":
		return p.add(node{op: opExists, path: path, exists: v.Truthy()}), nil
	case "$type":
		return p.parseType(path, v)
	case "$size":
		n, ok := v.AsInt64()
		if !ok || !v.IsNumber() {
			return 0, badValue("$size needs a number")
		}
		if n < 0 {
			return 0, badValue("$size may not be negative")
		}
		return p.add(node{op: opSize, path: path, n: n}), nil
	case "$regex":
		pattern, options := "", ""
		switch v.Kind() {
		case docpipe.KindString:
			pattern = v.Str()
		case docpipe.KindRegex:
			pattern, options = v.Regex()
		default:
			return 0, badValue("$regex has to be a string")
		}
		if o := ops.Get("$options"); !o.IsMissing() {
			if o.Kind() != docpipe.KindString {
				return 0, badValue("$options has to be a string")
			}
			options = o.Str()
		}
		return p.regexNode(path, docpipe.NewRegex(pattern, options))
	case "$mod":
		return p.parseMod(path, v)
	case "$all":
		return p.parseAll(path, v, depth)
	case "$elemMatch":
		return p.parseElemMatch(path, v, depth)
	case "$not":
		return p.parseNot(path, v, ops, depth)
	}
	return 0, badValue("unknown operator: %s", name)
}

func (p *parser) regexNode(path field.Path, v docpipe.Value) (int32, error) {
	re, err := compileRegex(v.Regex())
	if err != nil {
		return 0, err
	}
	return p.add(node{op: opRegex, path: path, val: v, res: []*regexp.Regexp{re}}), nil
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags string
	for _, c := range options {
		switch c {
		case 'i', 'm', 's':
			if !strings.ContainsRune(flags, c) {
				flags += string(c)
			}
		case 'x', 'u':
		default:
			return nil, badValue("invalid flag in regex options: %c", c)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, dperr.E(dperr.ParseError, dperr.Code(51091), "Regular expression is invalid: %s", err)
	}
	return re, nil
}

func (p *parser) parseType(path field.Path, v docpipe.Value) (int32, error) {
	n := node{op: opType, path: path}
	args := []docpipe.Value{v}
	if v.IsArray() {
		args = v.Array()
	}
	for _, arg := range args {
		switch {
		case arg.Kind() == docpipe.KindString:
			k, ok := docpipe.LookupKind(arg.Str())
			if !ok {
				return 0, badValue("Unknown type name alias: %s", arg.Str())
			}
			if arg.Str() == "number" {
				n.number = true
				continue
			}
			n.kinds = append(n.kinds, k)
		case arg.IsNumber():
			code, ok := arg.AsInt64()
			if !ok {
				return 0, badValue("Invalid numerical type code: %s", arg)
			}
			k, ok := docpipe.LookupKindCode(int(code))
			if !ok {
				return 0, badValue("Invalid numerical type code: %d", code)
			}
			n.kinds = append(n.kinds, k)
		default:
			return 0, badValue("type must be represented as a number or a string")
		}
	}
	return p.add(n), nil
}

func (p *parser) parseMod(path field.Path, v docpipe.Value) (int32, error) {
	if !v.IsArray() || len(v.Array()) != 2 {
		return 0, badValue("malformed mod, needs to be an array of two numbers")
	}
	args := v.Array()
	div, ok1 := args[0].AsInt64()
	rem, ok2 := args[1].AsInt64()
	if !ok1 || !ok2 {
		return 0, badValue("malformed mod, divisor and remainder must be integers")
	}
	if div == 0 {
		return 0, badValue("divisor cannot be 0")
	}
	return p.add(node{op: opMod, path: path, n: div, rem: rem}), nil
}

func (p *parser) parseAll(path field.Path, v docpipe.Value, depth int) (int32, error) {
	if !v.IsArray() {
		return 0, badValue("$all needs an array")
	}
	elems := v.Array()
	if len(elems) == 0 {
		return p.add(node{op: opConst}), nil
	}
	var kids []int32
	for _, elem := range elems {
		var id int32
		var err error
		switch {
		case isOperatorDoc(elem):
			f := elem.Document().Fields()[0]
			if f.Name != "$elemMatch" {
				return 0, badValue("no $ expressions in $all")
			}
			id, err = p.parseElemMatch(path, f.Value, depth)
		case elem.Kind() == docpipe.KindRegex:
			id, err = p.regexNode(path, elem)
		default:
			id = p.add(node{op: opCompare, path: path, cmp: cmpEQ, val: elem})
		}
		if err != nil {
			return 0, err
		}
		kids = append(kids, id)
	}
	if len(kids) == 1 {
		return kids[0], nil
	}
	return p.add(node{op: opAnd, kids: kids}), nil
}

// parseElemMatch compiles $elemMatch.  When the argument is a set of
// operators ({$gt: 1}) they apply to each element itself; otherwise the
// argument is a query over each document element.
func (p *parser) parseElemMatch(path field.Path, v docpipe.Value, depth int) (int32, error) {
	if !v.IsDocument() {
		return 0, badValue("$elemMatch needs an Object")
	}
	d := v.Document()
	var child int32
	var err error
	objects := true
	// Paths inside $elemMatch are relative to the elements.
	npaths := len(p.deps.Paths)
	if isOperatorDoc(v) && !isLogical(d.Fields()[0].Name) {
		objects = false
		child, err = p.parsePathValue(nil, v, depth+1)
	} else {
		child, err = p.parseQuery(d, depth+1, false)
	}
	if err != nil {
		return 0, err
	}
	p.deps.Paths = p.deps.Paths[:npaths]
	return p.add(node{op: opElemMatch, path: path, objects: objects, kids: []int32{child}}), nil
}

func isLogical(name string) bool {
	switch name {
	case "$and", "$or", "$nor", "$expr":
		return true
	}
	return false
}

func (p *parser) parseNot(path field.Path, v docpipe.Value, ops *docpipe.Document, depth int) (int32, error) {
	var child int32
	var err error
	switch {
	case v.Kind() == docpipe.KindRegex:
		child, err = p.regexNode(path, v)
	case v.IsDocument():
		if v.Document().Len() == 0 {
			return 0, badValue("$not cannot be empty")
		}
		if !isOperatorDoc(v) {
			return 0, badValue("$not needs a regex or a document")
		}
		child, err = p.parsePathValue(path, v, depth+1)
	default:
		return 0, badValue("$not needs a regex or a document")
	}
	if err != nil {
		return 0, err
	}
	return p.add(node{op: opNot, kids: []int32{child}}), nil
}

// arrayIndex is true when name is a non-negative array index.
func arrayIndex(name string) (int, bool) {
	if name == "" || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n > math.MaxInt32 {
		return 0, false
	}
	return n, true
}
