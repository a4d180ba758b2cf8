// Package expr compiles aggregation expressions into a flat arena of nodes
// and evaluates them with an explicit stack so that deeply nested
// expressions cannot exhaust the goroutine stack.
package expr

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
	"go.uber.org/zap"
)

type opcode uint8

const (
	opLiteral opcode = iota
	opField
	opVar
	opObject
	opArray
	opCall
)

type node struct {
	op   opcode
	lit  docpipe.Value
	path field.Path
	// name is the variable name for opVar and the operator name for opCall.
	name string
	keys []string
	args []int32
	fn   *operator
	// data holds operator-specific parse results, e.g., zip options.
	data any
}

// Program is a compiled expression.  Programs are immutable and may be
// evaluated concurrently.
type Program struct {
	nodes []node
	root  int32
	deps  Dependencies
	spec  docpipe.Value
}

// Evaluator is implemented by Program and by anything else that computes a
// value from a document.
type Evaluator interface {
	Eval(*Context, *docpipe.Document) (docpipe.Value, error)
}

var _ Evaluator = (*Program)(nil)

// Context carries the per-query state visible to expressions.  It is passed
// explicitly rather than held in globals.
type Context struct {
	// Now is the value of $$NOW.
	Now docpipe.Value
	// Vars holds user variables from the aggregate's let option and
	// bindings such as $$new in $merge pipelines.
	Vars     map[string]docpipe.Value
	Collator docpipe.Collator
	Logger   *zap.Logger
	// Warn, when set, collects non-fatal diagnostics.
	Warn func(string)
}

func NewContext() *Context {
	return &Context{Logger: zap.NewNop()}
}

// WithVar returns a copy of ectx with name bound to v.
func (c *Context) WithVar(name string, v docpipe.Value) *Context {
	vars := make(map[string]docpipe.Value, len(c.Vars)+1)
	for k, v := range c.Vars {
		vars[k] = v
	}
	vars[name] = v
	return &Context{
		Now:      c.Now,
		Vars:     vars,
		Collator: c.Collator,
		Logger:   c.Logger,
		Warn:     c.Warn,
	}
}

func (c *Context) warn(msg string) {
	if c.Warn != nil {
		c.Warn(msg)
	}
}

type frame struct {
	node int32
	// next is the index of the next child to evaluate.
	next int
	args []docpipe.Value
}

// Literal returns the value of p if it is a constant.
func (p *Program) Literal() (docpipe.Value, bool) {
	n := &p.nodes[p.root]
	if n.op == opLiteral {
		return n.lit, true
	}
	return docpipe.Missing, false
}

// FieldPath returns the path of p when p is a plain field reference such as
// "$a.b".
func (p *Program) FieldPath() (field.Path, bool) {
	n := &p.nodes[p.root]
	if n.op == opField {
		return n.path, true
	}
	return nil, false
}

func (p *Program) Dependencies() Dependencies {
	return p.deps
}

// Eval evaluates p against doc, which is bound to $$ROOT and $$CURRENT.
func (p *Program) Eval(ectx *Context, doc *docpipe.Document) (docpipe.Value, error) {
	if ectx == nil {
		ectx = NewContext()
	}
	if doc == nil {
		doc = docpipe.EmptyDocument
	}
	stack := make([]frame, 1, 16)
	stack[0] = frame{node: p.root}
	var result docpipe.Value
	for len(stack) > 0 {
		top := len(stack) - 1
		f := &stack[top]
		n := &p.nodes[f.node]
		var val docpipe.Value
		switch n.op {
		case opLiteral:
			val = n.lit
		case opField:
			val = doc.Lookup(n.path)
		case opVar:
			v, err := lookupVar(ectx, doc, n)
			if err != nil {
				return docpipe.Missing, err
			}
			val = v
		case opObject, opArray:
			if f.next < len(n.args) {
				f.next++
				stack = append(stack, frame{node: n.args[f.next-1]})
				continue
			}
			val = build(n, f.args)
		case opCall:
			fn := n.fn
			if fn.control != nil {
				next, v, done := fn.control(f.args, len(n.args))
				if !done {
					f.next = next
					stack = append(stack, frame{node: n.args[next]})
					continue
				}
				val = v
				break
			}
			if f.next < len(n.args) {
				f.next++
				stack = append(stack, frame{node: n.args[f.next-1]})
				continue
			}
			v, err := fn.eval(ectx, n, f.args)
			if err != nil {
				return docpipe.Missing, err
			}
			val = v
		}
		stack = stack[:top]
		if top == 0 {
			result = val
			break
		}
		parent := &stack[top-1]
		parent.args = append(parent.args, val)
	}
	return result, nil
}

func build(n *node, vals []docpipe.Value) docpipe.Value {
	if n.op == opArray {
		out := make([]docpipe.Value, len(vals))
		for k, v := range vals {
			if v.IsMissing() {
				v = docpipe.Null
			}
			out[k] = v
		}
		return docpipe.NewArray(out)
	}
	var b docpipe.Builder
	for k, v := range vals {
		b.Set(n.keys[k], v)
	}
	return docpipe.NewDocumentValue(b.Document())
}

func lookupVar(ectx *Context, doc *docpipe.Document, n *node) (docpipe.Value, error) {
	var v docpipe.Value
	switch n.name {
	case "ROOT", "CURRENT":
		v = docpipe.NewDocumentValue(doc)
	case "REMOVE":
		return docpipe.Missing, nil
	case "NOW":
		v = ectx.Now
	default:
		var ok bool
		v, ok = ectx.Vars[n.name]
		if !ok {
			return docpipe.Missing, errorf(17276, "Use of undefined variable: %s", n.name)
		}
	}
	return v.Lookup(n.path), nil
}
