// Package parser turns an aggregation pipeline specification (an array of
// single-field stage documents) into a dag.Sequential.
package parser

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/match"
)

// Options controls pipeline parsing.
type Options struct {
	// MaxDepth bounds expression and query nesting; zero means the
	// package defaults.
	MaxDepth int
	// Let names the user variables defined by the aggregate's let option.
	Let []string
}

type scope int

const (
	topLevel scope = iota
	// unionPipeline is the sub-pipeline of $unionWith.
	unionPipeline
	// updatePipeline is the whenMatched pipeline of $merge.
	updatePipeline
)

type parser struct {
	opts *Options
	ctx  scope
	vars map[string]bool
}

type stageFunc func(p *parser, name string, arg docpipe.Value) (dag.Op, error)

var stages map[string]stageFunc

func init() {
	stages = map[string]stageFunc{
		"$addFields":   parseAddFields,
		"$count":       parseCount,
		"$densify":     parseDensify,
		"$documents":   parseDocuments,
		"$graphLookup": parseGraphLookup,
		"$group":       parseGroup,
		"$limit":       parseLimit,
		"$lookup":      parseLookup,
		"$match":       parseMatch,
		"$merge":       parseMerge,
		"$out":         parseOut,
		"$project":     parseProject,
		"$replaceRoot": parseReplaceRoot,
		"$replaceWith": parseReplaceWith,
		"$set":         parseAddFields,
		"$skip":        parseSkip,
		"$sort":        parseSort,
		"$unionWith":   parseUnionWith,
		"$unset":       parseUnset,
		"$unwind":      parseUnwind,
	}
}

// StageNames returns the supported stage names in sorted order.
func StageNames() []string {
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func errorf(code int, format string, args ...interface{}) error {
	return dperr.Errorf(dperr.ParseError, dperr.Code(code), format, args...)
}

func typeErrorf(format string, args ...interface{}) error {
	return dperr.Errorf(dperr.TypeMismatch, 0, format, args...)
}

func unknownArgument(stage, name string) error {
	return dperr.E(dperr.UnknownArgument, dperr.Code(40415), "BSON field '%s.%s' is an unknown field.", stage, name)
}

func missingArgument(stage, name string) error {
	return errorf(40414, "BSON field '%s.%s' is missing but a required field", stage, name)
}

// ParsePipeline parses a pipeline given as an array value.
func ParsePipeline(v docpipe.Value, opts *Options) (*dag.Sequential, error) {
	if !v.IsArray() {
		return nil, dperr.E(dperr.TypeMismatch, "'pipeline' option must be specified as an array")
	}
	return ParseStages(v.Array(), opts)
}

// ParseStages parses the stages of a top-level pipeline.
func ParseStages(stages []docpipe.Value, opts *Options) (*dag.Sequential, error) {
	if opts == nil {
		opts = &Options{}
	}
	vars := make(map[string]bool)
	for _, name := range opts.Let {
		vars[name] = true
	}
	p := &parser{opts: opts, ctx: topLevel, vars: vars}
	seq, err := p.parseStages(stages)
	if err != nil {
		return nil, err
	}
	if err := checkMeta(seq); err != nil {
		return nil, err
	}
	return seq, nil
}

func (p *parser) sub(ctx scope, vars map[string]bool) *parser {
	return &parser{opts: p.opts, ctx: ctx, vars: vars}
}

func (p *parser) exprContext() *expr.ParseContext {
	return &expr.ParseContext{MaxDepth: p.opts.MaxDepth, Vars: p.vars}
}

func (p *parser) matchContext() *match.ParseContext {
	return &match.ParseContext{MaxDepth: p.opts.MaxDepth, Expr: p.exprContext()}
}

func (p *parser) parseStages(specs []docpipe.Value) (*dag.Sequential, error) {
	seq := dag.NewSequential()
	for k, spec := range specs {
		name, op, err := p.parseStage(spec)
		if err != nil {
			return nil, err
		}
		switch op := op.(type) {
		case *dag.Documents:
			if k != 0 {
				return nil, errorf(40602, "%s is only valid as the first stage in a pipeline", name)
			}
		case *dag.Merge, *dag.Out:
			if p.ctx != topLevel {
				return nil, errorf(31441, "%s is not allowed within a $unionWith's sub-pipeline", name)
			}
			if k != len(specs)-1 {
				return nil, errorf(40601, "%s can only be the final stage in the pipeline", name)
			}
		case *dag.Match:
			if op.Filter.HasText() && k != 0 {
				return nil, errorf(17313, "$match with $text is only allowed as the first pipeline stage")
			}
		}
		if p.ctx == updatePipeline {
			switch op.(type) {
			case *dag.AddFields, *dag.Project, *dag.Unset, *dag.ReplaceRoot:
			default:
				return nil, errorf(51187, "%s is not allowed to be used within an update", name)
			}
		}
		seq.Ops = append(seq.Ops, op)
	}
	return seq, nil
}

func (p *parser) parseStage(spec docpipe.Value) (string, dag.Op, error) {
	if !spec.IsDocument() || spec.Document().Len() != 1 {
		return "", nil, errorf(40323, "A pipeline stage specification object must contain exactly one field.")
	}
	f := spec.Document().Fields()[0]
	fn, ok := stages[f.Name]
	if !ok {
		msg := fmt.Sprintf("Unrecognized pipeline stage name: '%s'", f.Name)
		if s := suggest(f.Name); s != "" {
			msg += fmt.Sprintf(", did you mean '%s'?", s)
		}
		return "", nil, errorf(40324, "%s", msg)
	}
	op, err := fn(p, f.Name, f.Value)
	return f.Name, op, err
}

// suggest returns the stage name closest to name when it is a plausible
// misspelling.
func suggest(name string) string {
	best, dist := "", 4
	for _, s := range StageNames() {
		if d := levenshtein.ComputeDistance(name, s); d < dist {
			best, dist = s, d
		}
	}
	return best
}

// checkMeta rejects textScore references where no preceding $text match
// has attached the score.
func checkMeta(seq *dag.Sequential) error {
	var text bool
	for _, op := range seq.Ops {
		if m, ok := op.(*dag.Match); ok && m.Filter.HasText() {
			text = true
			continue
		}
		if !text && dag.Dependencies(op).ReadsMeta(expr.MetaTextScore) {
			return errorf(40218, "query requires text score metadata, but it is not available")
		}
		if dag.StripsMeta(op) {
			text = false
		}
	}
	return nil
}
