package docpipe

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FromBSON converts a value produced by the mongo driver (bson.D, bson.A,
// primitive types, or Go scalars) into a Value.
func FromBSON(x any) (Value, error) {
	switch x := x.(type) {
	case nil, primitive.Null:
		return Null, nil
	case Value:
		return x, nil
	case *Document:
		return NewDocumentValue(x), nil
	case primitive.Undefined:
		return Undefined, nil
	case primitive.MinKey:
		return MinKey, nil
	case primitive.MaxKey:
		return MaxKey, nil
	case int32:
		return NewInt32(x), nil
	case int64:
		return NewInt64(x), nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return NewInt32(int32(x)), nil
		}
		return NewInt64(int64(x)), nil
	case float64:
		return NewDouble(x), nil
	case float32:
		return NewDouble(float64(x)), nil
	case string:
		return NewString(x), nil
	case primitive.Symbol:
		return NewString(string(x)), nil
	case bool:
		return NewBool(x), nil
	case primitive.Decimal128:
		return NewDecimal(x), nil
	case primitive.DateTime:
		return NewDate(int64(x)), nil
	case time.Time:
		return NewTime(x), nil
	case primitive.Timestamp:
		return NewTimestamp(x.T, x.I), nil
	case primitive.Regex:
		return NewRegex(x.Pattern, x.Options), nil
	case primitive.ObjectID:
		return NewObjectID(x), nil
	case primitive.Binary:
		return NewBinary(x.Subtype, x.Data), nil
	case primitive.JavaScript:
		return NewJavaScript(string(x)), nil
	case primitive.D:
		var b Builder
		for _, e := range x {
			v, err := FromBSON(e.Value)
			if err != nil {
				return Missing, err
			}
			b.Set(e.Key, v)
		}
		return NewDocumentValue(b.Document()), nil
	case primitive.M:
		return fromMap(x)
	case map[string]any:
		return fromMap(x)
	case primitive.A:
		return fromSlice(x)
	case []any:
		return fromSlice(x)
	case bson.Raw:
		return fromRawDocument(x)
	case bson.RawValue:
		return fromRawValue(x)
	}
	return Missing, fmt.Errorf("cannot convert %T to a document value", x)
}

func fromMap(m map[string]any) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b Builder
	for _, k := range keys {
		v, err := FromBSON(m[k])
		if err != nil {
			return Missing, err
		}
		b.Set(k, v)
	}
	return NewDocumentValue(b.Document()), nil
}

func fromSlice(a []any) (Value, error) {
	out := make([]Value, 0, len(a))
	for _, x := range a {
		v, err := FromBSON(x)
		if err != nil {
			return Missing, err
		}
		out = append(out, v)
	}
	return NewArray(out), nil
}

func fromRawDocument(raw bson.Raw) (Value, error) {
	elems, err := raw.Elements()
	if err != nil {
		return Missing, err
	}
	var b Builder
	for _, e := range elems {
		v, err := fromRawValue(e.Value())
		if err != nil {
			return Missing, err
		}
		b.Set(e.Key(), v)
	}
	return NewDocumentValue(b.Document()), nil
}

func fromRawValue(rv bson.RawValue) (Value, error) {
	switch rv.Type {
	case bsontype.Double:
		return NewDouble(rv.Double()), nil
	case bsontype.String:
		return NewString(rv.StringValue()), nil
	case bsontype.Symbol:
		return NewString(rv.Symbol()), nil
	case bsontype.EmbeddedDocument:
		return fromRawDocument(rv.Document())
	case bsontype.Array:
		vals, err := rv.Array().Values()
		if err != nil {
			return Missing, err
		}
		out := make([]Value, 0, len(vals))
		for _, rv := range vals {
			v, err := fromRawValue(rv)
			if err != nil {
				return Missing, err
			}
			out = append(out, v)
		}
		return NewArray(out), nil
	case bsontype.Binary:
		subtype, data := rv.Binary()
		return NewBinary(subtype, data), nil
	case bsontype.Undefined:
		return Undefined, nil
	case bsontype.ObjectID:
		return NewObjectID(rv.ObjectID()), nil
	case bsontype.Boolean:
		return NewBool(rv.Boolean()), nil
	case bsontype.DateTime:
		return NewDate(rv.DateTime()), nil
	case bsontype.Null:
		return Null, nil
	case bsontype.Regex:
		pattern, opts := rv.Regex()
		return NewRegex(pattern, opts), nil
	case bsontype.JavaScript:
		return NewJavaScript(rv.JavaScript()), nil
	case bsontype.Int32:
		return NewInt32(rv.Int32()), nil
	case bsontype.Timestamp:
		t, i := rv.Timestamp()
		return NewTimestamp(t, i), nil
	case bsontype.Int64:
		return NewInt64(rv.Int64()), nil
	case bsontype.Decimal128:
		return NewDecimal(rv.Decimal128()), nil
	case bsontype.MinKey:
		return MinKey, nil
	case bsontype.MaxKey:
		return MaxKey, nil
	}
	return Missing, fmt.Errorf("unsupported BSON type %s", rv.Type)
}

// ToBSON converts v to the driver's representation.  Missing converts to
// primitive.Undefined since BSON has no missing value.
func ToBSON(v Value) any {
	switch v.kind {
	case KindMissing, KindUndefined:
		return primitive.Undefined{}
	case KindMinKey:
		return primitive.MinKey{}
	case KindMaxKey:
		return primitive.MaxKey{}
	case KindNull:
		return primitive.Null{}
	case KindInt32:
		return int32(v.n)
	case KindInt64:
		return v.n
	case KindDouble:
		return v.f
	case KindDecimal128:
		return v.Decimal()
	case KindString:
		return v.s
	case KindDocument:
		return DocumentToBSON(v.Document())
	case KindArray:
		elems := v.Array()
		a := make(primitive.A, 0, len(elems))
		for _, elem := range elems {
			a = append(a, ToBSON(elem))
		}
		return a
	case KindBinData:
		return v.Binary()
	case KindObjectID:
		return v.ObjectID()
	case KindBool:
		return v.n != 0
	case KindDate:
		return primitive.DateTime(v.n)
	case KindTimestamp:
		t, i := v.Timestamp()
		return primitive.Timestamp{T: t, I: i}
	case KindRegex:
		pattern, opts := v.Regex()
		return primitive.Regex{Pattern: pattern, Options: opts}
	case KindJavaScript:
		return primitive.JavaScript(v.s)
	}
	panic("docpipe: unknown kind in ToBSON")
}

func DocumentToBSON(d *Document) bson.D {
	out := make(bson.D, 0, d.Len())
	for _, f := range d.Fields() {
		out = append(out, bson.E{Key: f.Name, Value: ToBSON(f.Value)})
	}
	return out
}

var (
	wrapPrefix = []byte(`{"v":`)
	wrapSuffix = []byte(`}`)
)

// ParseExtJSON parses a single value in relaxed or canonical extended JSON.
// The value need not be a document.
func ParseExtJSON(data []byte) (Value, error) {
	wrapped := make([]byte, 0, len(data)+len(wrapPrefix)+len(wrapSuffix))
	wrapped = append(append(append(wrapped, wrapPrefix...), data...), wrapSuffix...)
	var raw bson.Raw
	if err := bson.UnmarshalExtJSON(wrapped, false, &raw); err != nil {
		return Missing, err
	}
	rv, err := raw.LookupErr("v")
	if err != nil {
		return Missing, err
	}
	return fromRawValue(rv)
}

// ParseDocument parses an extended JSON document.
func ParseDocument(data []byte) (*Document, error) {
	v, err := ParseExtJSON(data)
	if err != nil {
		return nil, err
	}
	if !v.IsDocument() {
		return nil, errors.New("extended JSON value is not a document")
	}
	return v.Document(), nil
}

// MustParse is ParseExtJSON for literals in tests and examples.
func MustParse(s string) Value {
	v, err := ParseExtJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

func MustParseDocument(s string) *Document {
	d, err := ParseDocument([]byte(s))
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalExtJSON renders d as relaxed extended JSON.
func MarshalExtJSON(d *Document) ([]byte, error) {
	return bson.MarshalExtJSON(DocumentToBSON(d), false, false)
}

// MarshalValueExtJSON renders any value as relaxed extended JSON.
func MarshalValueExtJSON(v Value) ([]byte, error) {
	b, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: ToBSON(v)}}, false, false)
	if err != nil {
		return nil, err
	}
	return b[len(wrapPrefix) : len(b)-len(wrapSuffix)], nil
}

// DocumentReader reads a stream of extended JSON documents that are
// separated by whitespace (e.g., newline-delimited) or enclosed in a
// top-level array.
type DocumentReader struct {
	r       *bufio.Reader
	dec     *json.Decoder
	docs    []*Document
	started bool
}

func NewDocumentReader(r io.Reader) *DocumentReader {
	return &DocumentReader{r: bufio.NewReader(r)}
}

// Read returns the next document or nil at end of stream.
func (r *DocumentReader) Read() (*Document, error) {
	if !r.started {
		r.started = true
		if err := r.start(); err != nil {
			return nil, err
		}
	}
	if r.dec == nil {
		if len(r.docs) == 0 {
			return nil, nil
		}
		d := r.docs[0]
		r.docs = r.docs[1:]
		return d, nil
	}
	var msg json.RawMessage
	if err := r.dec.Decode(&msg); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return ParseDocument(msg)
}

func (r *DocumentReader) start() error {
	for {
		b, err := r.r.Peek(1)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			r.r.ReadByte()
			continue
		case '[':
			data, err := io.ReadAll(r.r)
			if err != nil {
				return err
			}
			v, err := ParseExtJSON(data)
			if err != nil {
				return err
			}
			for _, elem := range v.Array() {
				if !elem.IsDocument() {
					return errors.New("array element is not a document")
				}
				r.docs = append(r.docs, elem.Document())
			}
			return nil
		}
		r.dec = json.NewDecoder(r.r)
		return nil
	}
}
