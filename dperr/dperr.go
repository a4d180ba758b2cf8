// Package dperr provides a mechanism to create or wrap errors with a kind
// and a stable numeric code that will aid in reporting them to users and
// returning them to api callers.
package dperr

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
)

// A Kind represents a class of error.  API layers will typically convert
// these into a domain specific error representation; for example, an http
// handler converts these to http status codes.
type Kind int

const (
	Other Kind = iota
	ParseError
	TypeMismatch
	InvalidArgument
	WrongArgumentCount
	UnknownArgument
	NamespaceError
	RoutingStale
	MaxTimeExpired
	WriteConflict
	PartialMergeFailure
	Cancelled
	CursorNotFound
	InternalAssertion
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case ParseError:
		return "parse error"
	case TypeMismatch:
		return "type mismatch"
	case InvalidArgument:
		return "invalid argument"
	case WrongArgumentCount:
		return "wrong argument count"
	case UnknownArgument:
		return "unknown argument"
	case NamespaceError:
		return "namespace error"
	case RoutingStale:
		return "stale routing information"
	case MaxTimeExpired:
		return "operation exceeded time limit"
	case WriteConflict:
		return "write conflict"
	case PartialMergeFailure:
		return "partial merge failure"
	case Cancelled:
		return "operation was interrupted"
	case CursorNotFound:
		return "cursor not found"
	case InternalAssertion:
		return "internal assertion"
	case Fatal:
		return "fatal error"
	}
	return "unknown error kind"
}

// DefaultCode returns the code used for an error of kind k when no more
// specific code was given.
func (k Kind) DefaultCode() Code {
	switch k {
	case ParseError:
		return FailedToParse
	case TypeMismatch:
		return TypeMismatchCode
	case InvalidArgument, UnknownArgument:
		return BadValue
	case WrongArgumentCount:
		return WrongArgumentCountCode
	case NamespaceError:
		return NamespaceNotFound
	case RoutingStale:
		return StaleConfig
	case MaxTimeExpired:
		return MaxTimeExpiredCode
	case WriteConflict:
		return DuplicateKey
	case PartialMergeFailure:
		return HostUnreachable
	case Cancelled:
		return Interrupted
	case CursorNotFound:
		return CursorNotFoundCode
	case InternalAssertion, Fatal:
		return UnknownError
	}
	return UnknownError
}

// Code is a stable numeric error code reported to clients.
type Code int

const (
	BadValue               Code = 2
	HostUnreachable        Code = 6
	UnknownError           Code = 8
	FailedToParse          Code = 9
	TypeMismatchCode       Code = 14
	NamespaceNotFound      Code = 26
	CursorNotFoundCode     Code = 43
	MaxTimeExpiredCode     Code = 50
	DollarPrefixedField    Code = 52
	InvalidExpression      Code = 168
	DuplicateKey           Code = 11000
	Interrupted            Code = 11601
	MergeNotMatched        Code = 13113
	StaleConfig            Code = 13388
	WrongArgumentCountCode Code = 16020
)

func (c Code) Name() string {
	switch c {
	case BadValue:
		return "BadValue"
	case HostUnreachable:
		return "HostUnreachable"
	case UnknownError:
		return "UnknownError"
	case FailedToParse:
		return "FailedToParse"
	case TypeMismatchCode:
		return "TypeMismatch"
	case NamespaceNotFound:
		return "NamespaceNotFound"
	case CursorNotFoundCode:
		return "CursorNotFound"
	case MaxTimeExpiredCode:
		return "MaxTimeMSExpired"
	case DollarPrefixedField:
		return "DollarPrefixedFieldName"
	case InvalidExpression:
		return "InvalidPipelineOperator"
	case DuplicateKey:
		return "DuplicateKey"
	case Interrupted:
		return "Interrupted"
	case StaleConfig:
		return "StaleConfig"
	}
	return fmt.Sprintf("Location%d", int(c))
}

type Error struct {
	Kind Kind
	Code Code
	Err  error
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

func (e *Error) Error() string {
	b := &bytes.Buffer{}
	if e.Kind != Other {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns just the Err.Error() string, if present, or the Kind
// string description.  The intent is to allow dperr users a way to avoid
// embedding the Kind description as happens with Error().
func (e *Error) Message() string {
	if e.Err != nil {
		if inner, ok := e.Err.(*Error); ok {
			return inner.Message()
		}
		return e.Err.Error()
	}
	if e.Kind != Other {
		return e.Kind.String()
	}
	return "no error"
}

// Function E generates an error from any mix of:
// - a Kind
// - a Code
// - an existing error
// - a string and optional formatting verbs, like fmt.Errorf (including support
//	for the `%w` verb).
//
// The string & format verbs must be last in the arguments, if present.
// When no Code is given, the code of a wrapped *Error or the Kind's
// default code is used.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args to dperr.E")
	}
	e := &Error{}
	for i, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case Code:
			e.Code = arg
		case error:
			e.Err = arg
		case string:
			e.Err = fmt.Errorf(arg, args[i+1:]...)
			return e.fill()
		default:
			_, file, line, _ := runtime.Caller(1)
			return fmt.Errorf("unknown type %T value %v in dperr.E call at %v:%v", arg, arg, file, line)
		}
	}
	return e.fill()
}

func (e *Error) fill() *Error {
	var inner *Error
	if errors.As(e.Err, &inner) {
		if e.Kind == Other {
			e.Kind = inner.Kind
		}
		if e.Code == 0 && e.Kind == inner.Kind {
			e.Code = inner.Code
		}
	}
	if e.Code == 0 {
		e.Code = e.Kind.DefaultCode()
	}
	return e
}

// KindOf returns the Kind of the outermost *Error in err's chain or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// CodeOf returns the code of the outermost *Error in err's chain or
// UnknownError for plain errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return UnknownError
}

func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// HasCode is true if any *Error in err's chain carries code c.
func HasCode(err error, c Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == c {
			return true
		}
		err = e.Err
	}
	return false
}

// RecoverError converts a recovered panic value into an InternalAssertion
// error carrying the panic message and stack.
func RecoverError(r interface{}) error {
	return &Error{
		Kind: InternalAssertion,
		Code: UnknownError,
		Err:  fmt.Errorf("panic: %+v\n%s", r, debug.Stack()),
	}
}

// Errorf returns an error of the given kind and code with a message
// formatted as by fmt.Errorf.  A zero code takes the kind's default.
func Errorf(kind Kind, code Code, format string, args ...interface{}) error {
	return (&Error{Kind: kind, Code: code, Err: fmt.Errorf(format, args...)}).fill()
}

// ErrFatal reports corrupted stored data.
func ErrFatal(format string, args ...interface{}) error {
	return E(Fatal, fmt.Errorf(format, args...))
}

func ErrCursorNotFound(id int64) error {
	return E(CursorNotFound, "cursor id %d not found", id)
}

func ErrInterrupted() error {
	return E(Cancelled, "operation was interrupted")
}

func ErrMaxTimeExpired() error {
	return E(MaxTimeExpired, "operation exceeded time limit")
}
