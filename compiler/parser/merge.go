package parser

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
)

var (
	whenMatchedModes    = []string{"replace", "merge", "keepExisting", "fail", "pipeline"}
	whenNotMatchedModes = []string{"insert", "fail", "discard"}
)

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func badEnum(stage, name, val string) error {
	return dperr.E(dperr.ParseError, dperr.BadValue, "Enumeration value '%s' for field '%s.%s' is not a valid value.", val, stage, name)
}

func parseNamespace(stage string, v docpipe.Value) (dag.Namespace, error) {
	switch v.Kind() {
	case docpipe.KindString:
		if v.Str() == "" {
			return dag.Namespace{}, errorf(73, "Invalid %s target namespace: ''", stage)
		}
		return dag.Namespace{Coll: v.Str()}, nil
	case docpipe.KindDocument:
		var ns dag.Namespace
		for _, f := range v.Document().Fields() {
			s, err := stringField(stage+".into", f.Name, f.Value)
			if err != nil {
				return ns, err
			}
			switch f.Name {
			case "db":
				ns.DB = s
			case "coll":
				ns.Coll = s
			default:
				return ns, unknownArgument(stage+".into", f.Name)
			}
		}
		if ns.Coll == "" {
			return ns, missingArgument(stage+".into", "coll")
		}
		return ns, nil
	}
	return dag.Namespace{}, errorf(51178, "%s 'into' field must be either a string or an object, but found %s", stage, v.TypeName())
}

func parseOut(_ *parser, name string, arg docpipe.Value) (dag.Op, error) {
	ns, err := parseNamespace(name, arg)
	if err != nil {
		return nil, err
	}
	return &dag.Out{Kind: "Out", Into: ns}, nil
}

func parseMerge(p *parser, name string, arg docpipe.Value) (dag.Op, error) {
	m := &dag.Merge{
		Kind:           "Merge",
		On:             field.List{field.New("_id")},
		WhenMatched:    "merge",
		WhenNotMatched: "insert",
	}
	if arg.Kind() == docpipe.KindString {
		ns, err := parseNamespace(name, arg)
		if err != nil {
			return nil, err
		}
		m.Into = ns
		return m, nil
	}
	if !arg.IsDocument() {
		return nil, errorf(51182, "$merge only supports a string or object argument, but found %s", arg.TypeName())
	}
	var into, let, pipeline docpipe.Value
	for _, f := range arg.Document().Fields() {
		switch f.Name {
		case "into":
			into = f.Value
		case "on":
			on, err := parseOn(f.Value)
			if err != nil {
				return nil, err
			}
			m.On = on
		case "let":
			if !f.Value.IsDocument() {
				return nil, typeErrorf("BSON field '$merge.let' is the wrong type '%s', expected type 'object'", f.Value.TypeName())
			}
			let = f.Value
		case "whenMatched":
			if f.Value.IsArray() {
				m.WhenMatched = "pipeline"
				pipeline = f.Value
				continue
			}
			s, err := stringField(name, f.Name, f.Value)
			if err != nil {
				return nil, err
			}
			if !contains(whenMatchedModes, s) || s == "pipeline" {
				return nil, badEnum(name, f.Name, s)
			}
			m.WhenMatched = s
		case "whenNotMatched":
			s, err := stringField(name, f.Name, f.Value)
			if err != nil {
				return nil, err
			}
			if !contains(whenNotMatchedModes, s) {
				return nil, badEnum(name, f.Name, s)
			}
			m.WhenNotMatched = s
		default:
			return nil, unknownArgument(name, f.Name)
		}
	}
	if into.IsMissing() {
		return nil, missingArgument(name, "into")
	}
	ns, err := parseNamespace(name, into)
	if err != nil {
		return nil, err
	}
	m.Into = ns
	if !let.IsMissing() && m.WhenMatched != "pipeline" {
		return nil, errorf(51199, "Cannot use 'let' variables with 'whenMatched: %s' mode", m.WhenMatched)
	}
	if pipeline.IsArray() {
		if err := p.parseUpdatePipeline(m, let, pipeline); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func parseOn(v docpipe.Value) (field.List, error) {
	var names []docpipe.Value
	switch v.Kind() {
	case docpipe.KindString:
		names = []docpipe.Value{v}
	case docpipe.KindArray:
		names = v.Array()
		if len(names) == 0 {
			return nil, errorf(51187, "If explicitly specifying $merge 'on', must include at least one field")
		}
	default:
		return nil, errorf(51186, "$merge 'on' field must be either a string or an array of strings, but found %s", v.TypeName())
	}
	var on field.List
	for _, n := range names {
		if n.Kind() != docpipe.KindString {
			return nil, errorf(51134, "$merge 'on' array elements must be strings, but found %s", n.TypeName())
		}
		p, err := field.Parse(n.Str())
		if err != nil {
			return nil, errorf(51134, "invalid $merge 'on' field %q: %s", n.Str(), err)
		}
		if on.Has(p) {
			return nil, errorf(31465, "Found a duplicate field %s", p)
		}
		on = append(on, p)
	}
	return on, nil
}

// parseUpdatePipeline compiles the whenMatched pipeline.  Inside it $$new
// is the source document unless let rebinds it, and the let variables are
// evaluated against the source document.
func (p *parser) parseUpdatePipeline(m *dag.Merge, let, pipeline docpipe.Value) error {
	vars := make(map[string]bool, len(p.vars)+1)
	for k := range p.vars {
		vars[k] = true
	}
	vars["new"] = true
	root, err := expr.Parse(docpipe.NewString("$$ROOT"), nil)
	if err != nil {
		return err
	}
	m.Let = []dag.LetVar{{Name: "new", Expr: root}}
	if let.IsDocument() {
		if let.Document().Has("new") {
			m.Let = nil
		}
		for _, f := range let.Document().Fields() {
			e, err := expr.Parse(f.Value, p.exprContext())
			if err != nil {
				return err
			}
			m.Let = append(m.Let, dag.LetVar{Name: f.Name, Expr: e})
			vars[f.Name] = true
		}
	}
	seq, err := p.sub(updatePipeline, vars).parseStages(pipeline.Array())
	if err != nil {
		return err
	}
	m.UpdatePipeline = seq
	return nil
}
