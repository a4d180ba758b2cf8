package docpipe

import (
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotNumeric   = errors.New("operand is not numeric")
	ErrDivideByZero = errors.New("division by zero")
)

// Value is a tagged union over the BSON value space.  Values are immutable:
// operators build new documents and arrays rather than modifying the
// ones they were given.  The zero Value is Missing.
type Value struct {
	kind Kind
	n    int64
	f    float64
	s    string
	x    any
}

var (
	Missing   = Value{}
	Null      = Value{kind: KindNull}
	Undefined = Value{kind: KindUndefined}
	MinKey    = Value{kind: KindMinKey}
	MaxKey    = Value{kind: KindMaxKey}
	True      = Value{kind: KindBool, n: 1}
	False     = Value{kind: KindBool}
)

func NewInt32(v int32) Value {
	return Value{kind: KindInt32, n: int64(v)}
}

func NewInt64(v int64) Value {
	return Value{kind: KindInt64, n: v}
}

func NewDouble(v float64) Value {
	return Value{kind: KindDouble, f: v}
}

func NewDecimal(d primitive.Decimal128) Value {
	return Value{kind: KindDecimal128, x: d}
}

// NewDecimalString parses s as a Decimal128, e.g., "2.55".
func NewDecimalString(s string) (Value, error) {
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return Missing, err
	}
	return NewDecimal(d), nil
}

func NewString(s string) Value {
	return Value{kind: KindString, s: s}
}

func NewBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewDate returns a date holding milliseconds since the Unix epoch.
func NewDate(ms int64) Value {
	return Value{kind: KindDate, n: ms}
}

func NewTime(t time.Time) Value {
	return NewDate(t.UnixMilli())
}

func NewTimestamp(t, i uint32) Value {
	return Value{kind: KindTimestamp, n: int64(t)<<32 | int64(i)}
}

func NewRegex(pattern, options string) Value {
	return Value{kind: KindRegex, s: pattern, x: options}
}

func NewObjectID(oid primitive.ObjectID) Value {
	return Value{kind: KindObjectID, x: oid}
}

func NewBinary(subtype byte, data []byte) Value {
	return Value{kind: KindBinData, x: primitive.Binary{Subtype: subtype, Data: data}}
}

func NewJavaScript(code string) Value {
	return Value{kind: KindJavaScript, s: code}
}

func NewArray(vals []Value) Value {
	if vals == nil {
		vals = []Value{}
	}
	return Value{kind: KindArray, x: vals}
}

func NewDocumentValue(doc *Document) Value {
	if doc == nil {
		doc = EmptyDocument
	}
	return Value{kind: KindDocument, x: doc}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsMissing() bool {
	return v.kind == KindMissing
}

// IsNullish is true for missing, null, and undefined.
func (v Value) IsNullish() bool {
	return v.kind.IsNullish()
}

func (v Value) IsNumber() bool {
	return v.kind.IsNumber()
}

func (v Value) IsArray() bool {
	return v.kind == KindArray
}

func (v Value) IsDocument() bool {
	return v.kind == KindDocument
}

// Int returns the integer payload of an Int32, Int64, or Date.
func (v Value) Int() int64 {
	return v.n
}

// Float returns the payload of a Double.
func (v Value) Float() float64 {
	return v.f
}

func (v Value) Str() string {
	return v.s
}

func (v Value) Bool() bool {
	return v.n != 0
}

func (v Value) Decimal() primitive.Decimal128 {
	d, _ := v.x.(primitive.Decimal128)
	return d
}

// Array returns the elements of an array value.  The slice must not be
// modified.
func (v Value) Array() []Value {
	a, _ := v.x.([]Value)
	return a
}

func (v Value) Document() *Document {
	d, _ := v.x.(*Document)
	return d
}

func (v Value) Time() time.Time {
	return time.UnixMilli(v.n).UTC()
}

func (v Value) Timestamp() (uint32, uint32) {
	return uint32(uint64(v.n) >> 32), uint32(v.n)
}

func (v Value) Regex() (string, string) {
	opts, _ := v.x.(string)
	return v.s, opts
}

func (v Value) ObjectID() primitive.ObjectID {
	oid, _ := v.x.(primitive.ObjectID)
	return oid
}

func (v Value) Binary() primitive.Binary {
	b, _ := v.x.(primitive.Binary)
	return b
}

// TypeName returns the $type alias of v.
func (v Value) TypeName() string {
	return v.kind.String()
}

// Truthy reports the boolean interpretation of v: only null, undefined,
// missing, and false are false.  Zero and the empty string are true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindMissing, KindNull, KindUndefined:
		return false
	case KindBool:
		return v.n != 0
	}
	return true
}

// AsFloat64 converts a numeric value to float64.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt32, KindInt64:
		return float64(v.n), true
	case KindDouble:
		return v.f, true
	case KindDecimal128:
		return decimalToFloat(v.Decimal()), true
	}
	return 0, false
}

// AsInt64 converts a numeric value to int64 when it is integral and in range.
func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInt32, KindInt64:
		return v.n, true
	case KindDouble, KindDecimal128:
		f, _ := v.AsFloat64()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// IsNaN is true for a double or decimal NaN.
func (v Value) IsNaN() bool {
	switch v.kind {
	case KindDouble:
		return math.IsNaN(v.f)
	case KindDecimal128:
		return v.Decimal().IsNaN()
	}
	return false
}

func (v Value) String() string {
	b, err := MarshalValueExtJSON(v)
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(b)
}
