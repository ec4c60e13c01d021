package errors

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeData, "bad row")
	outer := Wrap(inner, ErrorTypeOperationFailed, "page failed")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
	assert.True(t, IsOperationFailed(outer))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConfig, "unused"))
	assert.Nil(t, Propagate(nil, ErrorTypeConfig, "unused"))
}

func TestPropagate(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"plain error is wrapped", io.ErrUnexpectedEOF, ErrorTypeOperationFailed},
		{"not found passes through", New(ErrorTypeNotFound, "gone"), ErrorTypeNotFound},
		{"config passes through", New(ErrorTypeConfig, "bad"), ErrorTypeConfig},
		{"data is relabelled", New(ErrorTypeData, "bad row"), ErrorTypeOperationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Propagate(tt.err, ErrorTypeOperationFailed, "op")
			assert.True(t, IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConfig, "missing").WithDetail("key", "table")
	assert.Equal(t, "table", err.Details["key"])
	assert.Equal(t, "config: missing", err.Error())
}
