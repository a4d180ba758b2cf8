package docpipe

// Kind is the tag of a Value.  The zero Kind is Missing so that the zero
// Value represents an absent field.
type Kind uint8

const (
	KindMissing Kind = iota
	KindMinKey
	KindUndefined
	KindNull
	KindInt32
	KindInt64
	KindDouble
	KindDecimal128
	KindString
	KindDocument
	KindArray
	KindBinData
	KindObjectID
	KindBool
	KindDate
	KindTimestamp
	KindRegex
	KindJavaScript
	KindMaxKey
)

// Rank returns the canonical sort position of k.  All numeric kinds share
// a rank as do Null and Undefined.
func (k Kind) Rank() int {
	switch k {
	case KindMinKey:
		return 0
	case KindMissing:
		return 1
	case KindUndefined, KindNull:
		return 2
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return 3
	case KindString:
		return 4
	case KindDocument:
		return 5
	case KindArray:
		return 6
	case KindBinData:
		return 7
	case KindObjectID:
		return 8
	case KindBool:
		return 9
	case KindDate:
		return 10
	case KindTimestamp:
		return 11
	case KindRegex:
		return 12
	case KindJavaScript:
		return 13
	case KindMaxKey:
		return 14
	}
	panic("docpipe: unknown kind")
}

func (k Kind) IsNumber() bool {
	return k >= KindInt32 && k <= KindDecimal128
}

// IsNullish is true for Missing, Null and Undefined.
func (k Kind) IsNullish() bool {
	return k == KindMissing || k == KindNull || k == KindUndefined
}

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindMinKey:
		return "minKey"
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindInt32:
		return "int"
	case KindInt64:
		return "long"
	case KindDouble:
		return "double"
	case KindDecimal128:
		return "decimal"
	case KindString:
		return "string"
	case KindDocument:
		return "object"
	case KindArray:
		return "array"
	case KindBinData:
		return "binData"
	case KindObjectID:
		return "objectId"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindRegex:
		return "regex"
	case KindJavaScript:
		return "javascript"
	case KindMaxKey:
		return "maxKey"
	}
	return "unknown"
}

// LookupKind maps a $type alias to its Kind.  The "number" alias is
// reported with ok true and kind KindMissing; callers handle it specially.
func LookupKind(alias string) (Kind, bool) {
	if alias == "number" {
		return KindMissing, true
	}
	for k := KindMinKey; k <= KindMaxKey; k++ {
		if k.String() == alias {
			return k, true
		}
	}
	return 0, false
}

// LookupKindCode maps a numeric BSON type code to its Kind.
func LookupKindCode(code int) (Kind, bool) {
	switch code {
	case 1:
		return KindDouble, true
	case 2:
		return KindString, true
	case 3:
		return KindDocument, true
	case 4:
		return KindArray, true
	case 5:
		return KindBinData, true
	case 6:
		return KindUndefined, true
	case 7:
		return KindObjectID, true
	case 8:
		return KindBool, true
	case 9:
		return KindDate, true
	case 10:
		return KindNull, true
	case 11:
		return KindRegex, true
	case 13:
		return KindJavaScript, true
	case 16:
		return KindInt32, true
	case 17:
		return KindTimestamp, true
	case 18:
		return KindInt64, true
	case 19:
		return KindDecimal128, true
	case -1:
		return KindMinKey, true
	case 127:
		return KindMaxKey, true
	}
	return 0, false
}
