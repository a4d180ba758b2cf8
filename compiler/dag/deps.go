package dag

import (
	"github.com/brimdata/docpipe/expr"
)

// Dependencies returns what op reads from its input documents, including
// their metadata.  Stages that read their whole input report WholeDocument.
func Dependencies(op Op) expr.Dependencies {
	var deps expr.Dependencies
	switch op := op.(type) {
	case *Match:
		deps = op.Filter.Dependencies()
	case *Project:
		deps = op.Projection.Dependencies()
	case *AddFields:
		deps = op.Fields.Dependencies()
	case *ReplaceRoot:
		deps = op.NewRoot.Dependencies()
	case *Sort:
		for _, k := range op.Keys {
			if k.Meta != "" {
				deps.Meta = append(deps.Meta, k.Meta)
			} else {
				deps.Paths = append(deps.Paths, k.Key)
			}
		}
	case *Group:
		deps = op.ID.Dependencies()
		for _, a := range op.Aggs {
			deps.Merge(a.Expr.Dependencies())
		}
	case *GraphLookup:
		deps = op.StartWith.Dependencies()
	case *Densify:
		deps.Paths = append(deps.Paths, op.Field)
		deps.Paths = append(deps.Paths, op.PartitionBy...)
	case *Lookup:
		deps.Paths = append(deps.Paths, op.LocalField)
	case *Unwind:
		deps.Paths = append(deps.Paths, op.Path)
	case *Merge:
		deps.WholeDocument = true
		for _, l := range op.Let {
			deps.Merge(l.Expr.Dependencies())
		}
	case *Unset, *Limit, *Skip, *Count, *Documents, *UnionWith:
	default:
		deps.WholeDocument = true
	}
	return deps
}

// StripsMeta is true for stages whose output documents carry no metadata
// from their input.
func StripsMeta(op Op) bool {
	switch op.(type) {
	case *Group, *ReplaceRoot, *Count, *Documents:
		return true
	}
	return false
}
