package docpipe

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Key returns a string that is equal for two values exactly when Compare
// reports them equal (ignoring collation), so it can key hash tables for
// grouping and set operations.  Numbers of different kinds with the same
// mathematical value share a key.
func Key(v Value) string {
	var b strings.Builder
	appendKey(&b, v)
	return b.String()
}

func appendKey(b *strings.Builder, v Value) {
	switch v.kind {
	case KindMissing:
		b.WriteByte('m')
	case KindMinKey:
		b.WriteByte('<')
	case KindMaxKey:
		b.WriteByte('>')
	case KindNull, KindUndefined:
		b.WriteByte('n')
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		b.WriteByte('#')
		appendNumberKey(b, v)
	case KindString:
		appendString(b, 's', v.s)
	case KindDocument:
		b.WriteByte('{')
		for _, f := range v.Document().Fields() {
			appendString(b, ':', f.Name)
			appendKey(b, f.Value)
		}
		b.WriteByte('}')
	case KindArray:
		b.WriteByte('[')
		for _, elem := range v.Array() {
			appendKey(b, elem)
		}
		b.WriteByte(']')
	case KindBinData:
		bin := v.Binary()
		b.WriteByte('b')
		b.WriteString(strconv.Itoa(int(bin.Subtype)))
		appendString(b, ':', hex.EncodeToString(bin.Data))
	case KindObjectID:
		b.WriteByte('o')
		b.WriteString(v.ObjectID().Hex())
	case KindBool:
		if v.n != 0 {
			b.WriteByte('t')
		} else {
			b.WriteByte('f')
		}
	case KindDate:
		b.WriteByte('d')
		b.WriteString(strconv.FormatInt(v.n, 10))
	case KindTimestamp:
		b.WriteByte('T')
		b.WriteString(strconv.FormatUint(uint64(v.n), 10))
	case KindRegex:
		pattern, opts := v.Regex()
		appendString(b, 'r', pattern)
		b.WriteString(opts)
		b.WriteByte(';')
	case KindJavaScript:
		appendString(b, 'j', v.s)
	}
}

func appendString(b *strings.Builder, tag byte, s string) {
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func appendNumberKey(b *strings.Builder, v Value) {
	if v.kind == KindInt32 || v.kind == KindInt64 {
		b.WriteString(strconv.FormatInt(v.n, 10))
		return
	}
	if v.IsNaN() {
		b.WriteString("NaN")
		return
	}
	switch infSign(v) {
	case 1:
		b.WriteString("+Inf")
		return
	case -1:
		b.WriteString("-Inf")
		return
	}
	r := toRat(v)
	if r.IsInt() {
		b.WriteString(r.Num().String())
		return
	}
	b.WriteString(r.RatString())
}
