package expr

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/brimdata/docpipe"
)

func evalConcat(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	var b strings.Builder
	for _, arg := range args {
		if arg.IsNullish() {
			return docpipe.Null, nil
		}
		if arg.Kind() != docpipe.KindString {
			return docpipe.Missing, typeErrorf(16702, "$concat only supports strings, not %s", arg.TypeName())
		}
		b.WriteString(arg.Str())
	}
	return docpipe.NewString(b.String()), nil
}

// evalSplit splits the input on every occurrence of the separator.  The
// separator is valid UTF-8 so byte-wise matching never splits a multi-byte
// sequence.
func evalSplit(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	input, sep := args[0], args[1]
	if input.IsNullish() || sep.IsNullish() {
		return docpipe.Null, nil
	}
	if input.Kind() != docpipe.KindString {
		return docpipe.Missing, typeErrorf(40085, "$split requires an expression that evaluates to a string as a first argument, found: %s", input.TypeName())
	}
	if sep.Kind() != docpipe.KindString {
		return docpipe.Missing, typeErrorf(40086, "$split requires an expression that evaluates to a string as a second argument, found: %s", sep.TypeName())
	}
	if sep.Str() == "" {
		return docpipe.Missing, errorf(40087, "$split requires a non-empty separator")
	}
	parts := strings.Split(input.Str(), sep.Str())
	out := make([]docpipe.Value, len(parts))
	for k, part := range parts {
		out[k] = docpipe.NewString(part)
	}
	return docpipe.NewArray(out), nil
}

// coerceToString converts scalars the way the string operators do: null
// and missing become the empty string.
func coerceToString(op string, v docpipe.Value) (string, error) {
	switch v.Kind() {
	case docpipe.KindMissing, docpipe.KindNull, docpipe.KindUndefined:
		return "", nil
	case docpipe.KindString, docpipe.KindJavaScript:
		return v.Str(), nil
	case docpipe.KindInt32, docpipe.KindInt64:
		return strconv.FormatInt(v.Int(), 10), nil
	case docpipe.KindDouble:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case docpipe.KindDecimal128:
		return v.Decimal().String(), nil
	case docpipe.KindDate:
		return v.Time().Format("2006-01-02T15:04:05.000Z"), nil
	case docpipe.KindTimestamp:
		t, i := v.Timestamp()
		return "Timestamp(" + strconv.FormatUint(uint64(t), 10) + ", " + strconv.FormatUint(uint64(i), 10) + ")", nil
	}
	return "", typeErrorf(16007, "%s: can't convert from BSON type %s to String", op, v.TypeName())
}

func mapASCII(s string, from, to byte) string {
	b := []byte(s)
	for k, c := range b {
		if c >= from && c <= from+'z'-'a' {
			b[k] = c - from + to
		}
	}
	return string(b)
}

func evalToLower(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	s, err := coerceToString("$toLower", args[0])
	if err != nil {
		return docpipe.Missing, err
	}
	return docpipe.NewString(mapASCII(s, 'A', 'a')), nil
}

func evalToUpper(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	s, err := coerceToString("$toUpper", args[0])
	if err != nil {
		return docpipe.Missing, err
	}
	return docpipe.NewString(mapASCII(s, 'a', 'A')), nil
}

func evalStrLenCP(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	if args[0].Kind() != docpipe.KindString {
		return docpipe.Missing, typeErrorf(34471, "$strLenCP requires a string argument, found: %s", args[0].TypeName())
	}
	return docpipe.NewInt32(int32(utf8.RuneCountInString(args[0].Str()))), nil
}

func int32Arg(v docpipe.Value) (int, bool) {
	n, ok := v.AsInt64()
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func evalSubstrCP(_ *Context, _ *node, args []docpipe.Value) (docpipe.Value, error) {
	s, err := coerceToString("$substrCP", args[0])
	if err != nil {
		return docpipe.Missing, err
	}
	if !args[1].IsNumber() {
		return docpipe.Missing, typeErrorf(34450, "$substrCP: starting index must be a numeric type (is BSON type %s)", args[1].TypeName())
	}
	start, ok := int32Arg(args[1])
	if !ok {
		return docpipe.Missing, errorf(34451, "$substrCP: starting index cannot be represented as a 32-bit integral value")
	}
	if !args[2].IsNumber() {
		return docpipe.Missing, typeErrorf(34452, "$substrCP: length must be a numeric type (is BSON type %s)", args[2].TypeName())
	}
	length, ok := int32Arg(args[2])
	if !ok {
		return docpipe.Missing, errorf(34453, "$substrCP: length cannot be represented as a 32-bit integral value")
	}
	if length < 0 {
		return docpipe.Missing, errorf(34454, "$substrCP: length must be a nonnegative integer.")
	}
	if start < 0 {
		return docpipe.Missing, errorf(34455, "$substrCP: the starting index must be nonnegative integer.")
	}
	runes := []rune(s)
	if start >= len(runes) {
		return docpipe.NewString(""), nil
	}
	end := start + length
	if end > len(runes) {
		end = len(runes)
	}
	return docpipe.NewString(string(runes[start:end])), nil
}
