package colerrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeConfig, "bad selection").WithDetail("selection", "a,,b")
	assert.Equal(t, "config: bad selection", err.Error())
	assert.Equal(t, "a,,b", err.Details["selection"])
	require.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack[0].Function, "TestNew")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeData, "ignored"))

	err := Wrap(io.ErrUnexpectedEOF, ErrorTypeData, "failed to read row")
	assert.Equal(t, "data: failed to read row: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NotEmpty(t, err.Stack)
}

func TestWrapKeepsStack(t *testing.T) {
	inner := New(ErrorTypeInternal, "merge failed")
	outer := Wrap(inner, ErrorTypeData, "chunk failed")
	assert.Equal(t, inner.Stack, outer.Stack)

	var got *Error
	require.True(t, errors.As(outer, &got))
	assert.Same(t, outer, got)
}

func TestIsType(t *testing.T) {
	inner := Wrap(ErrConfigMismatch, ErrorTypeInternal, "cannot merge")
	outer := Wrap(inner, ErrorTypeData, "chunk 3")
	wrapped := fmt.Errorf("run: %w", outer)

	assert.True(t, IsType(wrapped, ErrorTypeData))
	assert.True(t, IsType(wrapped, ErrorTypeInternal))
	assert.False(t, IsType(wrapped, ErrorTypeFile))
	assert.False(t, IsType(io.EOF, ErrorTypeData))
	assert.False(t, IsType(nil, ErrorTypeData))
	assert.ErrorIs(t, wrapped, ErrConfigMismatch)
}
