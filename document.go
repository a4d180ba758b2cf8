package docpipe

import (
	"sort"

	"github.com/brimdata/docpipe/field"
)

type Field struct {
	Name  string
	Value Value
}

// Document is an ordered, immutable set of uniquely named fields plus
// optional metadata (e.g., textScore) that is not part of the fields.
type Document struct {
	fields []Field
	meta   map[string]Value
}

var EmptyDocument = &Document{}

// NewDocument builds a document from fields.  When a name repeats, the
// last value wins and keeps the position of the first occurrence.
func NewDocument(fields ...Field) *Document {
	var b Builder
	for _, f := range fields {
		b.Set(f.Name, f.Value)
	}
	return b.Document()
}

// D is shorthand for building a document from alternating names and values.
func D(kv ...any) *Document {
	if len(kv)%2 != 0 {
		panic("docpipe.D: odd argument count")
	}
	var b Builder
	for k := 0; k < len(kv); k += 2 {
		b.Set(kv[k].(string), kv[k+1].(Value))
	}
	return b.Document()
}

// String renders d as relaxed extended JSON.
func (d *Document) String() string {
	return NewDocumentValue(d).String()
}

func (d *Document) Len() int {
	return len(d.fields)
}

// Fields returns the fields of d, which must not be modified.
func (d *Document) Fields() []Field {
	return d.fields
}

func (d *Document) Index(name string) int {
	for k := range d.fields {
		if d.fields[k].Name == name {
			return k
		}
	}
	return -1
}

// Get returns the named field or Missing.
func (d *Document) Get(name string) Value {
	if k := d.Index(name); k >= 0 {
		return d.fields[k].Value
	}
	return Missing
}

func (d *Document) Has(name string) bool {
	return d.Index(name) >= 0
}

func (d *Document) Meta(key string) (Value, bool) {
	v, ok := d.meta[key]
	return v, ok
}

func (d *Document) HasMeta() bool {
	return len(d.meta) > 0
}

// MetaDocument returns d's metadata as a document with keys in sorted
// order, or nil if d has none.
func (d *Document) MetaDocument() *Document {
	if len(d.meta) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.meta))
	for k := range d.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b Builder
	for _, k := range keys {
		b.Set(k, d.meta[k])
	}
	return b.Document()
}

// WithMeta returns a copy of d with metadata key set to v.
func (d *Document) WithMeta(key string, v Value) *Document {
	meta := make(map[string]Value, len(d.meta)+1)
	for k, v := range d.meta {
		meta[k] = v
	}
	meta[key] = v
	return &Document{fields: d.fields, meta: meta}
}

// WithMetaFrom returns d carrying the metadata of src.
func (d *Document) WithMetaFrom(src *Document) *Document {
	if len(src.meta) == 0 && len(d.meta) == 0 {
		return d
	}
	return &Document{fields: d.fields, meta: src.meta}
}

// StripMeta returns d without metadata.
func (d *Document) StripMeta() *Document {
	if len(d.meta) == 0 {
		return d
	}
	return &Document{fields: d.fields}
}

// Lookup resolves p with aggregation-expression semantics: arrays met along
// the path are traversed element-wise, yielding an array of the values
// found (missing results are dropped).
func (d *Document) Lookup(p field.Path) Value {
	if len(p) == 0 {
		return NewDocumentValue(d)
	}
	return lookupValue(d.Get(p[0]), p[1:])
}

// Lookup is Document.Lookup applied to a value.
func (v Value) Lookup(p field.Path) Value {
	return lookupValue(v, p)
}

func lookupValue(v Value, rest field.Path) Value {
	if len(rest) == 0 {
		return v
	}
	switch v.kind {
	case KindDocument:
		return lookupValue(v.Document().Get(rest[0]), rest[1:])
	case KindArray:
		var out []Value
		for _, elem := range v.Array() {
			if elem.kind != KindDocument && elem.kind != KindArray {
				continue
			}
			if r := lookupValue(elem, rest); !r.IsMissing() {
				out = append(out, r)
			}
		}
		return NewArray(out)
	}
	return Missing
}

// SetPath returns a copy of d with p set to v.  Intermediate documents are
// created as needed; arrays along the path have v set within each element
// and non-document values along the path are replaced by documents.
func (d *Document) SetPath(p field.Path, v Value) *Document {
	if len(p) == 0 {
		return d
	}
	b := NewBuilder(d)
	if len(p) == 1 {
		b.Set(p[0], v)
		return b.Document().WithMetaFrom(d)
	}
	b.Set(p[0], setIn(d.Get(p[0]), p[1:], v))
	return b.Document().WithMetaFrom(d)
}

func setIn(cur Value, rest field.Path, v Value) Value {
	switch cur.kind {
	case KindDocument:
		return NewDocumentValue(cur.Document().SetPath(rest, v))
	case KindArray:
		elems := cur.Array()
		out := make([]Value, len(elems))
		for k, elem := range elems {
			out[k] = setIn(elem, rest, v)
		}
		return NewArray(out)
	}
	return NewDocumentValue(EmptyDocument.SetPath(rest, v))
}

// RemovePath returns a copy of d without p.  Arrays along the path have
// the remainder removed from each document element.
func (d *Document) RemovePath(p field.Path) *Document {
	k := d.Index(p[0])
	if k < 0 {
		return d
	}
	b := NewBuilder(d)
	if len(p) == 1 {
		b.Delete(p[0])
		return b.Document().WithMetaFrom(d)
	}
	b.Set(p[0], removeIn(d.fields[k].Value, p[1:]))
	return b.Document().WithMetaFrom(d)
}

func removeIn(cur Value, rest field.Path) Value {
	switch cur.kind {
	case KindDocument:
		return NewDocumentValue(cur.Document().RemovePath(rest))
	case KindArray:
		elems := cur.Array()
		out := make([]Value, len(elems))
		for k, elem := range elems {
			out[k] = removeIn(elem, rest)
		}
		return NewArray(out)
	}
	return cur
}

// Builder accumulates fields for a new Document.
type Builder struct {
	fields []Field
	index  map[string]int
}

// NewBuilder returns a Builder initialized with the fields of d.
func NewBuilder(d *Document) *Builder {
	b := &Builder{fields: make([]Field, len(d.fields), len(d.fields)+1)}
	copy(b.fields, d.fields)
	return b
}

func (b *Builder) find(name string) int {
	if b.index == nil {
		if len(b.fields) < 16 {
			for k := range b.fields {
				if b.fields[k].Name == name {
					return k
				}
			}
			return -1
		}
		b.index = make(map[string]int, len(b.fields))
		for k, f := range b.fields {
			b.index[f.Name] = k
		}
	}
	if k, ok := b.index[name]; ok {
		return k
	}
	return -1
}

// Set replaces the named field in place or appends it.  Setting a field
// to Missing is a no-op.
func (b *Builder) Set(name string, v Value) {
	if v.IsMissing() {
		return
	}
	if k := b.find(name); k >= 0 {
		b.fields[k].Value = v
		return
	}
	b.fields = append(b.fields, Field{name, v})
	if b.index != nil {
		b.index[name] = len(b.fields) - 1
	}
}

// Append adds a field without checking for duplicates.
func (b *Builder) Append(name string, v Value) {
	if v.IsMissing() {
		return
	}
	b.fields = append(b.fields, Field{name, v})
	b.index = nil
}

func (b *Builder) Delete(name string) {
	k := b.find(name)
	if k < 0 {
		return
	}
	b.fields = append(b.fields[:k], b.fields[k+1:]...)
	b.index = nil
}

func (b *Builder) Len() int {
	return len(b.fields)
}

func (b *Builder) Document() *Document {
	if len(b.fields) == 0 {
		return EmptyDocument
	}
	return &Document{fields: b.fields}
}
