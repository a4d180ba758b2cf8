// Package dag holds the closed set of pipeline stage variants.  The parser
// maps each wire stage name to one of these types once; the optimizer
// rewrites them and the kernel dispatches on their Go types.
package dag

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/order"
)

type Op interface {
	OpNode()
}

// GroupMode selects how a Group consumes and produces accumulator state
// when a pipeline is split across partitions.
type GroupMode int

const (
	// GroupComplete consumes documents and emits final results.
	GroupComplete GroupMode = iota
	// GroupPartial consumes documents and emits partial state.
	GroupPartial
	// GroupMerge consumes partial state and emits final results.
	GroupMerge
)

func (m GroupMode) String() string {
	switch m {
	case GroupPartial:
		return "partial"
	case GroupMerge:
		return "merge"
	}
	return "complete"
}

// Ops

type (
	Match struct {
		Kind   string        `json:"kind" unpack:""`
		Filter *match.Filter `json:"-"`
	}
	Project struct {
		Kind       string           `json:"kind" unpack:""`
		Spec       *docpipe.Document `json:"-"`
		Projection *expr.Projection `json:"-"`
	}
	// AddFields is $addFields or its alias $set.
	AddFields struct {
		Kind   string           `json:"kind" unpack:""`
		Spec   *docpipe.Document `json:"-"`
		Fields *expr.AddFields  `json:"-"`
	}
	Unset struct {
		Kind       string           `json:"kind" unpack:""`
		Paths      field.List       `json:"paths"`
		Projection *expr.Projection `json:"-"`
	}
	// ReplaceRoot is $replaceRoot or $replaceWith.
	ReplaceRoot struct {
		Kind    string        `json:"kind" unpack:""`
		Spec    docpipe.Value `json:"-"`
		NewRoot *expr.Program `json:"-"`
	}
	// Sort is a stable sort.  A positive Limit makes it a top-k sort.
	Sort struct {
		Kind  string         `json:"kind" unpack:""`
		Keys  order.SortKeys `json:"keys"`
		Limit int64          `json:"limit,omitempty"`
	}
	Limit struct {
		Kind  string `json:"kind" unpack:""`
		Count int64  `json:"count"`
	}
	Skip struct {
		Kind  string `json:"kind" unpack:""`
		Count int64  `json:"count"`
	}
	Unwind struct {
		Kind              string     `json:"kind" unpack:""`
		Path              field.Path `json:"path"`
		IncludeArrayIndex string     `json:"include_array_index,omitempty"`
		PreserveEmpty     bool       `json:"preserve_null_and_empty_arrays"`
	}
	Group struct {
		Kind string        `json:"kind" unpack:""`
		Spec docpipe.Value `json:"-"`
		ID   *expr.Program `json:"-"`
		Aggs []Agg         `json:"aggs"`
		Mode GroupMode     `json:"mode"`
	}
	// Count emits a single document {Field: n}.  In partial mode it emits
	// {Field: n} per partition and in merge mode it sums those.
	Count struct {
		Kind  string    `json:"kind" unpack:""`
		Field string    `json:"field"`
		Mode  GroupMode `json:"mode"`
	}
	Densify struct {
		Kind        string        `json:"kind" unpack:""`
		Field       field.Path    `json:"field"`
		PartitionBy field.List    `json:"partition_by"`
		Step        docpipe.Value `json:"-"`
		Unit        string        `json:"unit,omitempty"`
		// Bounds is "full", "partition" or "" when Lo and Hi are given.
		Bounds string        `json:"bounds"`
		Lo     docpipe.Value `json:"-"`
		Hi     docpipe.Value `json:"-"`
	}
	Lookup struct {
		Kind         string     `json:"kind" unpack:""`
		From         string     `json:"from"`
		LocalField   field.Path `json:"local_field"`
		ForeignField field.Path `json:"foreign_field"`
		As           field.Path `json:"as"`
	}
	GraphLookup struct {
		Kind             string        `json:"kind" unpack:""`
		From             string        `json:"from"`
		StartWith        *expr.Program `json:"-"`
		ConnectFromField field.Path    `json:"connect_from_field"`
		ConnectToField   field.Path    `json:"connect_to_field"`
		As               field.Path    `json:"as"`
		// MaxDepth is negative when unbounded.
		MaxDepth   int64         `json:"max_depth"`
		DepthField field.Path    `json:"depth_field,omitempty"`
		Restrict   *match.Filter `json:"-"`
	}
	UnionWith struct {
		Kind     string      `json:"kind" unpack:""`
		Coll     string      `json:"coll"`
		Pipeline *Sequential `json:"pipeline"`
	}
	// Documents is a source stage.  Expr evaluates to an array of
	// documents once, when the pipeline is built.
	Documents struct {
		Kind string        `json:"kind" unpack:""`
		Expr *expr.Program `json:"-"`
	}
	Merge struct {
		Kind           string      `json:"kind" unpack:""`
		Into           Namespace   `json:"into"`
		On             field.List  `json:"on"`
		WhenMatched    string      `json:"when_matched"`
		UpdatePipeline *Sequential `json:"update_pipeline,omitempty"`
		Let            []LetVar    `json:"-"`
		WhenNotMatched string      `json:"when_not_matched"`
	}
	Out struct {
		Kind string    `json:"kind" unpack:""`
		Into Namespace `json:"into"`
	}
	Sequential struct {
		Kind string `json:"kind" unpack:""`
		Ops  []Op   `json:"ops"`
	}
)

// Agg is one accumulator field of a Group.
type Agg struct {
	Name string        `json:"name"`
	Op   string        `json:"op"`
	Expr *expr.Program `json:"-"`
}

// LetVar binds a $merge variable, evaluated against the source document.
type LetVar struct {
	Name string
	Expr *expr.Program
}

type Namespace struct {
	DB   string `json:"db,omitempty"`
	Coll string `json:"coll"`
}

func (n Namespace) String() string {
	if n.DB == "" {
		return n.Coll
	}
	return n.DB + "." + n.Coll
}

// Sources

type (
	// Scan reads a collection.  The optimizer pushes leading $match
	// stages into Filter and derives Bounds from it for bucket skipping.
	Scan struct {
		Kind       string        `json:"kind" unpack:""`
		Collection string        `json:"collection"`
		Filter     *match.Filter `json:"-"`
		Bounds     []match.Bound `json:"-"`
	}
)

func (*Match) OpNode()       {}
func (*Project) OpNode()     {}
func (*AddFields) OpNode()   {}
func (*Unset) OpNode()       {}
func (*ReplaceRoot) OpNode() {}
func (*Sort) OpNode()        {}
func (*Limit) OpNode()       {}
func (*Skip) OpNode()        {}
func (*Unwind) OpNode()      {}
func (*Group) OpNode()       {}
func (*Count) OpNode()       {}
func (*Densify) OpNode()     {}
func (*Lookup) OpNode()      {}
func (*GraphLookup) OpNode() {}
func (*UnionWith) OpNode()   {}
func (*Documents) OpNode()   {}
func (*Merge) OpNode()       {}
func (*Out) OpNode()         {}
func (*Sequential) OpNode()  {}
func (*Scan) OpNode()        {}

// IsWriter is true for the terminal stages that write a collection.
func IsWriter(op Op) bool {
	switch op.(type) {
	case *Merge, *Out:
		return true
	}
	return false
}

// PreservesOrder is true when op emits its input documents in input order
// (possibly dropping or rewriting some).
func PreservesOrder(op Op) bool {
	switch op.(type) {
	case *Match, *Project, *AddFields, *Unset, *ReplaceRoot, *Limit, *Skip, *Unwind, *Lookup, *GraphLookup:
		return true
	}
	return false
}

// OrderOf returns the order op imposes on its output, or nil.  $densify
// emits in (partition fields, field) order except when it is partitioned
// with full bounds.
func OrderOf(op Op) order.SortKeys {
	switch op := op.(type) {
	case *Sort:
		return op.Keys
	case *Densify:
		if len(op.PartitionBy) > 0 && op.Bounds == "full" {
			return nil
		}
		var keys order.SortKeys
		for _, p := range op.PartitionBy {
			keys = append(keys, order.NewSortKey(order.Asc, p))
		}
		return append(keys, order.NewSortKey(order.Asc, op.Field))
	}
	return nil
}

// Copy returns a shallow copy of seq whose op slice may be modified
// without affecting seq.
func (s *Sequential) Copy() *Sequential {
	return &Sequential{Kind: "Sequential", Ops: append([]Op(nil), s.Ops...)}
}

func NewSequential(ops ...Op) *Sequential {
	return &Sequential{Kind: "Sequential", Ops: ops}
}
