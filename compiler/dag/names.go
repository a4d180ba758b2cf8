package dag

// StageName returns the wire name of op.  A Scan is reported as $cursor.
func StageName(op Op) string {
	switch op.(type) {
	case *Match:
		return "$match"
	case *Project:
		return "$project"
	case *AddFields:
		return "$addFields"
	case *Unset:
		return "$unset"
	case *ReplaceRoot:
		return "$replaceRoot"
	case *Sort:
		return "$sort"
	case *Limit:
		return "$limit"
	case *Skip:
		return "$skip"
	case *Unwind:
		return "$unwind"
	case *Group:
		return "$group"
	case *Count:
		return "$count"
	case *Densify:
		return "$densify"
	case *Lookup:
		return "$lookup"
	case *GraphLookup:
		return "$graphLookup"
	case *UnionWith:
		return "$unionWith"
	case *Documents:
		return "$documents"
	case *Merge:
		return "$merge"
	case *Out:
		return "$out"
	case *Scan:
		return "$cursor"
	}
	return "unknown"
}
