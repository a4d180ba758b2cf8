package match

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
)

type frame struct {
	node    int32
	subject docpipe.Value
	next    int
	// elems holds the elements visited by $elemMatch.
	elems []docpipe.Value
}

// Match reports whether doc satisfies f.
func (f *Filter) Match(ectx *expr.Context, doc *docpipe.Document) (bool, error) {
	if ectx == nil {
		ectx = expr.NewContext()
	}
	stack := make([]frame, 1, 16)
	stack[0] = frame{node: f.root, subject: docpipe.NewDocumentValue(doc)}
	var result, returned bool
	for {
		top := len(stack) - 1
		fr := &stack[top]
		n := &f.nodes[fr.node]
		done := false
		switch n.op {
		case opAnd, opOr, opNor, opNot:
			if returned {
				returned = false
				switch {
				case n.op == opAnd && !result:
					done = true
				case n.op == opOr && result:
					done = true
				case n.op == opNor && result:
					result, done = false, true
				case n.op == opNot:
					result, done = !result, true
				}
				if done {
					break
				}
			}
			if fr.next < len(n.kids) {
				fr.next++
				stack = append(stack, frame{node: n.kids[fr.next-1], subject: fr.subject})
				continue
			}
			result, done = n.op != opOr, true
		case opElemMatch:
			if returned {
				returned = false
				if result {
					done = true
					break
				}
			} else {
				fr.elems = elemMatchCandidates(fr.subject, n)
			}
			if fr.next < len(fr.elems) {
				fr.next++
				stack = append(stack, frame{node: n.kids[0], subject: fr.elems[fr.next-1]})
				continue
			}
			result, done = false, true
		default:
			ok, err := f.evalLeaf(ectx, n, fr.subject, doc)
			if err != nil {
				return false, err
			}
			result, done = ok, true
		}
		if done {
			stack = stack[:top]
			if top == 0 {
				return result, nil
			}
			returned = true
		}
	}
}

func elemMatchCandidates(subject docpipe.Value, n *node) []docpipe.Value {
	var elems []docpipe.Value
	for _, c := range lookup(subject, n.path, nil) {
		if !c.IsArray() {
			continue
		}
		for _, elem := range c.Array() {
			if n.objects && !elem.IsDocument() {
				continue
			}
			elems = append(elems, elem)
		}
	}
	return elems
}

// lookup appends the values found at path below v.  Arrays met along the
// path are traversed, and a numeric component also indexes into them.
// Where the path leads nowhere, Missing is appended.
func lookup(v docpipe.Value, path field.Path, out []docpipe.Value) []docpipe.Value {
	if len(path) == 0 {
		return append(out, v)
	}
	switch v.Kind() {
	case docpipe.KindDocument:
		return lookup(v.Document().Get(path[0]), path[1:], out)
	case docpipe.KindArray:
		elems := v.Array()
		before := len(out)
		if idx, ok := arrayIndex(path[0]); ok && idx < len(elems) {
			out = lookup(elems[idx], path[1:], out)
		}
		for _, elem := range elems {
			if elem.IsDocument() {
				out = lookup(elem, path, out)
			}
		}
		if len(out) == before {
			out = append(out, docpipe.Missing)
		}
		return out
	}
	return append(out, docpipe.Missing)
}

// Lookup returns the values at path in doc, traversing the arrays met
// along the way.  The result is never empty.
func Lookup(doc *docpipe.Document, path field.Path) []docpipe.Value {
	return lookup(docpipe.NewDocumentValue(doc), path, nil)
}

// Values returns every value that a comparison on path can observe in doc:
// the values at path and the elements of those that are arrays.
func Values(doc *docpipe.Document, path field.Path) []docpipe.Value {
	return expand(lookup(docpipe.NewDocumentValue(doc), path, nil))
}

func expand(vals []docpipe.Value) []docpipe.Value {
	out := vals
	for _, v := range vals {
		if v.IsArray() {
			out = append(out, v.Array()...)
		}
	}
	return out
}

func (f *Filter) evalLeaf(ectx *expr.Context, n *node, subject docpipe.Value, root *docpipe.Document) (bool, error) {
	switch n.op {
	case opConst:
		return n.exists, nil
	case opExpr:
		v, err := n.prog.Eval(ectx, root)
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	case opText:
		return f.text.score(root) > 0, nil
	}
	cands := lookup(subject, n.path, nil)
	switch n.op {
	case opExists:
		found := false
		for _, c := range cands {
			if !c.IsMissing() {
				found = true
				break
			}
		}
		return found == n.exists, nil
	case opSize:
		for _, c := range cands {
			if c.IsArray() && int64(len(c.Array())) == n.n {
				return true, nil
			}
		}
		return false, nil
	}
	for _, c := range expand(cands) {
		if matchValue(ectx, n, c) {
			return true, nil
		}
	}
	return false, nil
}

func matchValue(ectx *expr.Context, n *node, c docpipe.Value) bool {
	switch n.op {
	case opCompare:
		return compare(ectx, n.cmp, n.val, c)
	case opIn:
		for _, v := range n.vals {
			if compare(ectx, cmpEQ, v, c) {
				return true
			}
		}
		return c.Kind() == docpipe.KindString && matchAny(n, c.Str())
	case opRegex:
		switch c.Kind() {
		case docpipe.KindString:
			return matchAny(n, c.Str())
		case docpipe.KindRegex:
			return docpipe.Equal(n.val, c)
		}
	case opType:
		if c.IsMissing() {
			return false
		}
		if n.number && c.IsNumber() {
			return true
		}
		for _, k := range n.kinds {
			if c.Kind() == k {
				return true
			}
		}
	case opMod:
		if !c.IsNumber() {
			return false
		}
		f, _ := c.AsFloat64()
		return int64(f)%n.n == n.rem
	}
	return false
}

func matchAny(n *node, s string) bool {
	for _, re := range n.res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// compare applies a query comparison of c against q.  Ordering comparisons
// only match values of the same canonical type, and null matches missing.
func compare(ectx *expr.Context, op cmpOp, q, c docpipe.Value) bool {
	if q.Kind() == docpipe.KindNull {
		switch op {
		case cmpEQ, cmpGTE, cmpLTE:
			return c.IsNullish()
		}
		return false
	}
	if c.IsMissing() {
		return false
	}
	if op != cmpEQ && q.Kind() != docpipe.KindMinKey && q.Kind() != docpipe.KindMaxKey {
		if c.Kind().Rank() != q.Kind().Rank() {
			return false
		}
		if c.IsNaN() != q.IsNaN() {
			return false
		}
	}
	r := docpipe.CompareWithCollator(c, q, ectx.Collator)
	switch op {
	case cmpEQ:
		return r == 0
	case cmpGT:
		return r > 0
	case cmpGTE:
		return r >= 0
	case cmpLT:
		return r < 0
	}
	return r <= 0
}
