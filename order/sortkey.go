package order

import (
	"fmt"
	"slices"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/field"
)

// SortKey orders documents by the value at Key or, when Meta is set, by
// the named metadata (only "textScore" and "randVal" are sortable).
type SortKey struct {
	Order Which      `json:"order" yaml:"order"`
	Key   field.Path `json:"key" yaml:"key"`
	Meta  string     `json:"meta,omitempty" yaml:"meta,omitempty"`
}

func NewSortKey(order Which, key field.Path) SortKey {
	return SortKey{Order: order, Key: key}
}

func (s SortKey) Equal(to SortKey) bool {
	return s.Order == to.Order && s.Key.Equal(to.Key) && s.Meta == to.Meta
}

func (s SortKey) String() string {
	if s.Meta != "" {
		return fmt.Sprintf("%s:{$meta:%q}", s.Key, s.Meta)
	}
	return fmt.Sprintf("%s:%s", s.Key, s.Order)
}

type SortKeys []SortKey

func (s SortKeys) Primary() SortKey { return s[0] }
func (s SortKeys) IsNil() bool      { return len(s) == 0 }

func (s SortKeys) Equal(to SortKeys) bool {
	return slices.EqualFunc(s, to, func(a, b SortKey) bool {
		return a.Equal(b)
	})
}

// HasPrefix is true when documents ordered by s are also ordered by prefix.
func (s SortKeys) HasPrefix(prefix SortKeys) bool {
	return len(prefix) <= len(s) && s[:len(prefix)].Equal(prefix)
}

// Paths returns the field paths of the non-metadata keys.
func (s SortKeys) Paths() field.List {
	var paths field.List
	for _, k := range s {
		if k.Meta == "" {
			paths = append(paths, k.Key)
		}
	}
	return paths
}

func (s SortKeys) String() string {
	var b strings.Builder
	for k, key := range s {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(key.String())
	}
	return b.String()
}

// Document renders s as a $sort specification.
func (s SortKeys) Document() *docpipe.Document {
	var b docpipe.Builder
	for _, k := range s {
		if k.Meta != "" {
			b.Append(k.Key.String(), docpipe.NewDocumentValue(docpipe.D("$meta", docpipe.NewString(k.Meta))))
			continue
		}
		b.Append(k.Key.String(), docpipe.NewInt32(int32(k.Order.Direction())))
	}
	return b.Document()
}

// ParseSortSpec parses a $sort specification such as {a: 1, "b.c": -1,
// score: {$meta: "textScore"}}.
func ParseSortSpec(spec docpipe.Value) (SortKeys, error) {
	if !spec.IsDocument() {
		return nil, dperr.E(dperr.ParseError, dperr.Code(15973), "the $sort key specification must be an object")
	}
	fields := spec.Document().Fields()
	if len(fields) == 0 {
		return nil, dperr.E(dperr.ParseError, dperr.Code(15976), "$sort stage must have at least one sort key")
	}
	var keys SortKeys
	for _, f := range fields {
		path, err := field.Parse(f.Name)
		if err != nil {
			return nil, dperr.E(dperr.ParseError, dperr.Code(40352), "invalid sort key %q: %s", f.Name, err)
		}
		if f.Value.IsDocument() {
			meta := f.Value.Document()
			m := meta.Get("$meta")
			if meta.Len() != 1 || m.Kind() != docpipe.KindString {
				return nil, dperr.E(dperr.ParseError, dperr.Code(17312), "$meta is the only expression supported by $sort right now")
			}
			switch m.Str() {
			case "textScore", "searchScore":
				keys = append(keys, SortKey{Order: Desc, Key: path, Meta: m.Str()})
			case "randVal":
				keys = append(keys, SortKey{Order: Asc, Key: path, Meta: m.Str()})
			default:
				return nil, dperr.E(dperr.ParseError, dperr.Code(31138), "illegal $meta sort: %s", m.Str())
			}
			continue
		}
		n, ok := f.Value.AsInt64()
		if !ok || !f.Value.IsNumber() || (n != 1 && n != -1) {
			return nil, dperr.E(dperr.ParseError, dperr.Code(15975), "$sort key ordering must be 1 (for ascending) or -1 (for descending)")
		}
		order := Asc
		if n == -1 {
			order = Desc
		}
		keys = append(keys, NewSortKey(order, path))
	}
	return keys, nil
}
