package parser

import (
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/expr/agg"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/order"
)

func parseMatch(p *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(15959, "the match filter must be an expression in an object")
	}
	f, err := match.Parse(arg.Document(), p.matchContext())
	if err != nil {
		return nil, err
	}
	return &dag.Match{Kind: "Match", Filter: f}, nil
}

func parseProject(p *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(15969, "$project specification must be an object")
	}
	proj, err := expr.ParseProjection(arg.Document(), p.exprContext())
	if err != nil {
		return nil, err
	}
	return &dag.Project{Kind: "Project", Spec: arg.Document(), Projection: proj}, nil
}

func parseAddFields(p *parser, name string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(40272, "%s specification stage must be an object, got %s", name, arg.TypeName())
	}
	fields, err := expr.ParseAddFields(name, arg.Document(), p.exprContext())
	if err != nil {
		return nil, err
	}
	return &dag.AddFields{Kind: "AddFields", Spec: arg.Document(), Fields: fields}, nil
}

func parseUnset(_ *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	var names []docpipe.Value
	switch arg.Kind() {
	case docpipe.KindString:
		names = []docpipe.Value{arg}
	case docpipe.KindArray:
		names = arg.Array()
		if len(names) == 0 {
			return nil, errorf(31119, "$unset specification must be a string or an array with at least one field")
		}
	default:
		return nil, errorf(31002, "$unset specification must be a string or an array")
	}
	var paths field.List
	for _, n := range names {
		if n.Kind() != docpipe.KindString {
			return nil, errorf(31120, "$unset specification must be a string or an array containing only string values")
		}
		path, err := field.Parse(n.Str())
		if err != nil {
			return nil, errorf(31002, "invalid $unset path %q: %s", n.Str(), err)
		}
		paths = append(paths, path)
	}
	proj, err := expr.NewExclusion(paths)
	if err != nil {
		return nil, err
	}
	return &dag.Unset{Kind: "Unset", Paths: paths, Projection: proj}, nil
}

func parseReplaceRoot(p *parser, name string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(40228, "%s expects an object, got %s", name, arg.TypeName())
	}
	var newRoot docpipe.Value
	for _, f := range arg.Document().Fields() {
		if f.Name != "newRoot" {
			return nil, unknownArgument(name, f.Name)
		}
		newRoot = f.Value
	}
	if newRoot.IsMissing() {
		return nil, errorf(40231, "no newRoot specified for the $replaceRoot stage")
	}
	return replaceRoot(p, newRoot)
}

func parseReplaceWith(p *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	return replaceRoot(p, arg)
}

func replaceRoot(p *parser, v docpipe.Value) (dag.Op, error) {
	prog, err := expr.Parse(v, p.exprContext())
	if err != nil {
		return nil, err
	}
	return &dag.ReplaceRoot{Kind: "ReplaceRoot", Spec: v, NewRoot: prog}, nil
}

func parseSort(_ *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	keys, err := order.ParseSortSpec(arg)
	if err != nil {
		return nil, err
	}
	return &dag.Sort{Kind: "Sort", Keys: keys}, nil
}

func parseLimit(_ *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsNumber() {
		return nil, errorf(15957, "the limit must be specified as a number")
	}
	n, ok := arg.AsInt64()
	if !ok {
		return nil, errorf(15957, "the limit must be specified as a whole number")
	}
	if n <= 0 {
		return nil, errorf(15958, "the limit must be positive")
	}
	return &dag.Limit{Kind: "Limit", Count: n}, nil
}

func parseSkip(_ *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsNumber() {
		return nil, errorf(15972, "Argument to $skip must be a number")
	}
	n, ok := arg.AsInt64()
	if !ok {
		return nil, errorf(15972, "Argument to $skip must be a whole number")
	}
	if n < 0 {
		return nil, errorf(15956, "Argument to $skip cannot be negative")
	}
	return &dag.Skip{Kind: "Skip", Count: n}, nil
}

func parseUnwind(_ *parser, name string, arg docpipe.Value) (dag.Op, error) {
	u := &dag.Unwind{Kind: "Unwind"}
	var path string
	switch arg.Kind() {
	case docpipe.KindString:
		path = arg.Str()
	case docpipe.KindDocument:
		for _, f := range arg.Document().Fields() {
			switch f.Name {
			case "path":
				if f.Value.Kind() != docpipe.KindString {
					return nil, errorf(28808, "expected a string as the path for $unwind stage, got %s", f.Value.TypeName())
				}
				path = f.Value.Str()
			case "includeArrayIndex":
				if f.Value.Kind() != docpipe.KindString {
					return nil, errorf(28810, "expected a non-empty string for the includeArrayIndex option to $unwind stage")
				}
				s := f.Value.Str()
				if s == "" {
					return nil, errorf(28810, "expected a non-empty string for the includeArrayIndex option to $unwind stage")
				}
				if s[0] == '$' {
					return nil, errorf(28822, "includeArrayIndex option to $unwind stage should not be prefixed with a '$': %s", s)
				}
				u.IncludeArrayIndex = s
			case "preserveNullAndEmptyArrays":
				if f.Value.Kind() != docpipe.KindBool {
					return nil, errorf(28809, "expected a boolean for the preserveNullAndEmptyArrays option to $unwind stage")
				}
				u.PreserveEmpty = f.Value.Bool()
			default:
				return nil, unknownArgument(name, f.Name)
			}
		}
		if path == "" {
			return nil, errorf(28812, "no path specified to $unwind stage")
		}
	default:
		return nil, errorf(15981, "expected either a string or an object as specification for $unwind stage, got %s", arg.TypeName())
	}
	if !strings.HasPrefix(path, "$") {
		return nil, errorf(28818, "path option to $unwind stage should be prefixed with a '$': %s", path)
	}
	p, err := field.Parse(path[1:])
	if err != nil {
		return nil, errorf(28818, "invalid $unwind path %q: %s", path, err)
	}
	u.Path = p
	return u, nil
}

func parseGroup(p *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(15947, "a group's fields must be specified in an object")
	}
	g := &dag.Group{Kind: "Group", Spec: arg}
	pctx := p.exprContext()
	for _, f := range arg.Document().Fields() {
		if f.Name == "_id" {
			id, err := expr.Parse(f.Value, pctx)
			if err != nil {
				return nil, err
			}
			g.ID = id
			continue
		}
		if strings.Contains(f.Name, ".") {
			return nil, errorf(40235, "The field name '%s' cannot contain '.'", f.Name)
		}
		if strings.HasPrefix(f.Name, "$") {
			return nil, errorf(40236, "The field name '%s' cannot be an operator name", f.Name)
		}
		if !f.Value.IsDocument() {
			return nil, errorf(40234, "The field '%s' must be an accumulator object", f.Name)
		}
		acc := f.Value.Document()
		if acc.Len() != 1 {
			return nil, errorf(40238, "The field '%s' must specify one accumulator", f.Name)
		}
		af := acc.Fields()[0]
		if !agg.IsAccumulator(af.Name) {
			return nil, errorf(15952, "unknown group operator '%s'", af.Name)
		}
		if af.Name == "$count" && (!af.Value.IsDocument() || af.Value.Document().Len() != 0) {
			return nil, errorf(15952, "$count takes no arguments, i.e. $count:{}")
		}
		e, err := expr.Parse(af.Value, pctx)
		if err != nil {
			return nil, err
		}
		g.Aggs = append(g.Aggs, dag.Agg{Name: f.Name, Op: af.Name, Expr: e})
	}
	if g.ID == nil {
		return nil, errorf(15955, "a group specification must include an _id")
	}
	return g, nil
}

func parseCount(_ *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	if arg.Kind() != docpipe.KindString {
		return nil, errorf(40156, "the count field must be a non-empty string")
	}
	s := arg.Str()
	switch {
	case s == "":
		return nil, errorf(40157, "the count field must be a non-empty string")
	case s[0] == '$':
		return nil, errorf(40158, "the count field cannot be a $-prefixed path")
	case strings.Contains(s, "."):
		return nil, errorf(40160, "the count field cannot contain '.'")
	}
	return &dag.Count{Kind: "Count", Field: s}, nil
}

func parseDocuments(p *parser, _ string, arg docpipe.Value) (dag.Op, error) {
	prog, err := expr.Parse(arg, p.exprContext())
	if err != nil {
		return nil, err
	}
	if deps := prog.Dependencies(); len(deps.Paths) > 0 || deps.WholeDocument {
		return nil, errorf(5858203, "$documents expression cannot reference document fields")
	}
	return &dag.Documents{Kind: "Documents", Expr: prog}, nil
}

func parseUnionWith(p *parser, name string, arg docpipe.Value) (dag.Op, error) {
	u := &dag.UnionWith{Kind: "UnionWith"}
	var pipeline docpipe.Value
	switch arg.Kind() {
	case docpipe.KindString:
		u.Coll = arg.Str()
	case docpipe.KindDocument:
		for _, f := range arg.Document().Fields() {
			switch f.Name {
			case "coll":
				if f.Value.Kind() != docpipe.KindString {
					return nil, typeErrorf("BSON field '$unionWith.coll' is the wrong type '%s', expected type 'string'", f.Value.TypeName())
				}
				u.Coll = f.Value.Str()
			case "pipeline":
				if !f.Value.IsArray() {
					return nil, typeErrorf("BSON field '$unionWith.pipeline' is the wrong type '%s', expected type 'array'", f.Value.TypeName())
				}
				pipeline = f.Value
			default:
				return nil, unknownArgument(name, f.Name)
			}
		}
	default:
		return nil, typeErrorf("the $unionWith stage specification must be an object or string, but found %s", arg.TypeName())
	}
	if pipeline.IsArray() {
		seq, err := p.sub(unionPipeline, p.vars).parseStages(pipeline.Array())
		if err != nil {
			return nil, err
		}
		u.Pipeline = seq
	}
	if u.Coll == "" {
		if u.Pipeline == nil || len(u.Pipeline.Ops) == 0 {
			return nil, missingArgument(name, "coll")
		}
		if _, ok := u.Pipeline.Ops[0].(*dag.Documents); !ok {
			return nil, missingArgument(name, "coll")
		}
	}
	return u, nil
}

func stringField(stage, name string, v docpipe.Value) (string, error) {
	if v.Kind() != docpipe.KindString {
		return "", typeErrorf("BSON field '%s.%s' is the wrong type '%s', expected type 'string'", stage, name, v.TypeName())
	}
	return v.Str(), nil
}

func pathField(stage, name string, v docpipe.Value) (field.Path, error) {
	s, err := stringField(stage, name, v)
	if err != nil {
		return nil, err
	}
	p, err := field.Parse(s)
	if err != nil {
		return nil, errorf(16410, "invalid %s.%s %q: %s", stage, name, s, err)
	}
	return p, nil
}

func parseLookup(_ *parser, name string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(15954, "the $lookup specification must be an object")
	}
	l := &dag.Lookup{Kind: "Lookup"}
	var err error
	for _, f := range arg.Document().Fields() {
		switch f.Name {
		case "from":
			l.From, err = stringField(name, f.Name, f.Value)
		case "localField":
			l.LocalField, err = pathField(name, f.Name, f.Value)
		case "foreignField":
			l.ForeignField, err = pathField(name, f.Name, f.Value)
		case "as":
			l.As, err = pathField(name, f.Name, f.Value)
		default:
			return nil, unknownArgument(name, f.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	switch {
	case l.From == "":
		return nil, errorf(4572, "$lookup requires the 'from' option")
	case l.As == nil:
		return nil, errorf(4572, "must specify 'as' field for a $lookup")
	case l.LocalField == nil || l.ForeignField == nil:
		return nil, errorf(4572, "$lookup requires both or neither of 'localField' and 'foreignField' to be specified")
	}
	return l, nil
}

func parseGraphLookup(p *parser, name string, arg docpipe.Value) (dag.Op, error) {
	if !arg.IsDocument() {
		return nil, errorf(40327, "the $graphLookup specification must be an object")
	}
	g := &dag.GraphLookup{Kind: "GraphLookup", MaxDepth: -1}
	var err error
	for _, f := range arg.Document().Fields() {
		switch f.Name {
		case "from":
			g.From, err = stringField(name, f.Name, f.Value)
		case "startWith":
			g.StartWith, err = expr.Parse(f.Value, p.exprContext())
		case "connectFromField":
			g.ConnectFromField, err = pathField(name, f.Name, f.Value)
		case "connectToField":
			g.ConnectToField, err = pathField(name, f.Name, f.Value)
		case "as":
			g.As, err = pathField(name, f.Name, f.Value)
		case "depthField":
			g.DepthField, err = pathField(name, f.Name, f.Value)
		case "maxDepth":
			if !f.Value.IsNumber() {
				return nil, errorf(40100, "maxDepth must be numeric, found type: %s", f.Value.TypeName())
			}
			n, ok := f.Value.AsInt64()
			if !ok || n < 0 {
				return nil, errorf(40101, "maxDepth requires a nonnegative argument, found: %s", f.Value)
			}
			g.MaxDepth = n
		case "restrictSearchWithMatch":
			if !f.Value.IsDocument() {
				return nil, errorf(40185, "restrictSearchWithMatch must be an object, found %s", f.Value.TypeName())
			}
			g.Restrict, err = match.Parse(f.Value.Document(), p.matchContext())
			if err == nil && g.Restrict.HasText() {
				err = errorf(40186, "$text is not allowed in restrictSearchWithMatch")
			}
		default:
			return nil, unknownArgument(name, f.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	switch {
	case g.From == "":
		return nil, errorf(40105, "from was not specified")
	case g.StartWith == nil:
		return nil, errorf(40105, "startWith was not specified")
	case g.ConnectFromField == nil:
		return nil, errorf(40105, "connectFromField was not specified")
	case g.ConnectToField == nil:
		return nil, errorf(40105, "connectToField was not specified")
	case g.As == nil:
		return nil, errorf(40105, "as was not specified")
	}
	return g, nil
}
