package dperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE(t *testing.T) {
	err := E(TypeMismatch, "$multiply only supports numeric types, not %s", "string")
	assert.EqualError(t, err, "type mismatch: $multiply only supports numeric types, not string")
	assert.Equal(t, TypeMismatchCode, CodeOf(err))
	assert.Equal(t, TypeMismatch, KindOf(err))

	err = E(ParseError, Code(40323), "A pipeline stage specification object must contain exactly one field.")
	assert.Equal(t, Code(40323), CodeOf(err))
	assert.Equal(t, "Location40323", CodeOf(err).Name())
}

func TestErrorf(t *testing.T) {
	forward := func(code int, format string, args ...interface{}) error {
		return Errorf(InvalidArgument, Code(code), format, args...)
	}
	err := forward(40087, "$split requires a non-empty separator, got %q", "")
	assert.EqualError(t, err, `invalid argument: $split requires a non-empty separator, got ""`)
	assert.Equal(t, Code(40087), CodeOf(err))
	assert.Equal(t, InvalidArgument, KindOf(err))

	err = Errorf(TypeMismatch, 0, "bad %s", "operand")
	assert.Equal(t, TypeMismatchCode, CodeOf(err))
}

func TestWrapKeepsCode(t *testing.T) {
	inner := E(RoutingStale, "version mismatch")
	outer := fmt.Errorf("shard 1: %w", inner)
	err := E(outer)
	assert.Equal(t, RoutingStale, KindOf(err))
	assert.Equal(t, StaleConfig, CodeOf(err))
	assert.True(t, HasCode(err, StaleConfig))

	pmf := E(PartialMergeFailure, inner)
	assert.Equal(t, HostUnreachable, CodeOf(pmf))
	assert.True(t, HasCode(pmf, StaleConfig))
	var e *Error
	require.True(t, errors.As(pmf, &e))
	assert.Equal(t, "version mismatch", e.Message())
}

func TestRecoverError(t *testing.T) {
	var err error
	func() {
		defer func() {
			err = RecoverError(recover())
		}()
		panic("boom")
	}()
	assert.Equal(t, InternalAssertion, KindOf(err))
	assert.Contains(t, err.Error(), "panic: boom")
}

func TestNoArgsPanics(t *testing.T) {
	assert.Panics(t, func() { E() })
}
