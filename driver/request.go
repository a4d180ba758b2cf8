package driver

import (
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
)

// AggregateRequest is a parsed aggregate command.
type AggregateRequest struct {
	// Collection is empty for a collection-less aggregate, which must
	// begin with $documents.
	Collection string
	Pipeline   docpipe.Value
	Let        *docpipe.Document
	// Collation is a locale such as "fr" or "en_US", or empty for binary
	// string comparison.
	Collation string
	BatchSize int
	MaxTime   time.Duration
	Explain   bool
	// Location overrides the engine's merge location when not empty.
	Location string
}

// ParseAggregate reads an aggregate command document of the form
//
//	{aggregate: "coll" | 1, pipeline: [...], cursor: {batchSize: n},
//	 maxTimeMS: n, let: {...}, collation: {locale: "..."},
//	 explain: bool, mergeLocation: "..."}
func ParseAggregate(cmd *docpipe.Document) (*AggregateRequest, error) {
	req := &AggregateRequest{BatchSize: -1}
	seen := false
	for _, f := range cmd.Fields() {
		v := f.Value
		switch f.Name {
		case "aggregate":
			seen = true
			switch {
			case v.Kind() == docpipe.KindString:
				req.Collection = v.Str()
			case v.IsNumber():
				if n, ok := v.AsInt64(); !ok || n != 1 {
					return nil, dperr.E(dperr.InvalidArgument, dperr.Code(73), "Invalid command format: the 'aggregate' field must specify a collection name or 1")
				}
			default:
				return nil, dperr.E(dperr.TypeMismatch, dperr.Code(73), "collection name has invalid type %s", v.TypeName())
			}
		case "pipeline":
			if !v.IsArray() {
				return nil, dperr.E(dperr.TypeMismatch, "'pipeline' option must be specified as an array")
			}
			req.Pipeline = v
		case "cursor":
			if !v.IsDocument() {
				return nil, dperr.E(dperr.TypeMismatch, "cursor field must be missing or an object")
			}
			n, err := batchSize(v.Document().Get("batchSize"))
			if err != nil {
				return nil, err
			}
			req.BatchSize = n
		case "maxTimeMS":
			ms, ok := v.AsInt64()
			if !ok || ms < 0 {
				return nil, dperr.E(dperr.InvalidArgument, "maxTimeMS must be a non-negative integer")
			}
			req.MaxTime = time.Duration(ms) * time.Millisecond
		case "let":
			if !v.IsDocument() {
				return nil, dperr.E(dperr.TypeMismatch, "BSON field 'aggregate.let' is the wrong type '%s', expected type 'object'", v.TypeName())
			}
			req.Let = v.Document()
		case "collation":
			if !v.IsDocument() {
				return nil, dperr.E(dperr.TypeMismatch, "collation must be an object")
			}
			locale := v.Document().Get("locale")
			if locale.Kind() != docpipe.KindString {
				return nil, dperr.E(dperr.InvalidArgument, "Missing expected field \"locale\"")
			}
			if s := locale.Str(); s != "simple" {
				req.Collation = s
			}
		case "explain":
			if v.Kind() != docpipe.KindBool {
				return nil, dperr.E(dperr.TypeMismatch, "BSON field 'aggregate.explain' is the wrong type '%s', expected type 'bool'", v.TypeName())
			}
			req.Explain = v.Bool()
		case "mergeLocation":
			if v.Kind() != docpipe.KindString {
				return nil, dperr.E(dperr.TypeMismatch, "mergeLocation must be a string")
			}
			req.Location = v.Str()
		case "$db", "lsid":
		default:
			return nil, dperr.E(dperr.UnknownArgument, dperr.Code(40415), "BSON field 'aggregate.%s' is an unknown field.", f.Name)
		}
	}
	if !seen {
		return nil, dperr.E(dperr.InvalidArgument, dperr.Code(40414), "BSON field 'aggregate.aggregate' is missing but a required field")
	}
	if req.Pipeline.IsMissing() {
		return nil, dperr.E(dperr.InvalidArgument, dperr.Code(40414), "BSON field 'aggregate.pipeline' is missing but a required field")
	}
	return req, nil
}

// GetMoreRequest is a parsed getMore command.
type GetMoreRequest struct {
	ID        int64
	BatchSize int
}

func ParseGetMore(cmd *docpipe.Document) (*GetMoreRequest, error) {
	req := &GetMoreRequest{BatchSize: -1}
	id, ok := cmd.Get("getMore").AsInt64()
	if !ok {
		return nil, dperr.E(dperr.TypeMismatch, "BSON field 'getMore.getMore' is missing or the wrong type, expected type 'long'")
	}
	req.ID = id
	if v := cmd.Get("batchSize"); !v.IsMissing() {
		n, err := batchSize(v)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			n = -1
		}
		req.BatchSize = n
	}
	return req, nil
}

// ParseKillCursors returns the ids of a {killCursors: coll, cursors: [...]}
// command.
func ParseKillCursors(cmd *docpipe.Document) ([]int64, error) {
	v := cmd.Get("cursors")
	if !v.IsArray() {
		return nil, dperr.E(dperr.TypeMismatch, "BSON field 'killCursors.cursors' is missing or the wrong type, expected type 'array'")
	}
	ids := make([]int64, 0, len(v.Array()))
	for _, elem := range v.Array() {
		id, ok := elem.AsInt64()
		if !ok {
			return nil, dperr.E(dperr.TypeMismatch, "cursor ids must be integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func batchSize(v docpipe.Value) (int, error) {
	if v.IsMissing() {
		return -1, nil
	}
	n, ok := v.AsInt64()
	if !ok || n < 0 {
		return 0, dperr.E(dperr.InvalidArgument, dperr.Code(51024), "BSON field 'batchSize' value must be >= 0, actual value '%s'", v)
	}
	return int(n), nil
}
