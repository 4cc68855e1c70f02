package ocerrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	err := New(KindIndexNotAvailable, "no index generation exists")
	assert.Equal(t, "[index_not_available] no index generation exists", err.Error())

	wrapped := Wrap(KindIO, "failed to write manifest", io.ErrClosedPipe)
	assert.Contains(t, wrapped.Error(), "io_error")
	assert.Contains(t, wrapped.Error(), io.ErrClosedPipe.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindEmbeddingFailure, "embed batch failed", cause)

	require.ErrorIs(t, err, cause)
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := New(KindConcurrentBuildRejected, "a build is already running")

	assert.True(t, errors.Is(err, New(KindConcurrentBuildRejected, "")))
	assert.False(t, errors.Is(err, New(KindIndexNotAvailable, "")))
}

func TestError_IsThroughWrapping(t *testing.T) {
	inner := New(KindIndexNotAvailable, "not built")
	outer := fmt.Errorf("search failed: %w", inner)

	assert.True(t, IsKind(outer, KindIndexNotAvailable))
	assert.Equal(t, KindIndexNotAvailable, KindOf(outer))
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(KindIO, "nothing", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindEmbeddingFailure, "timeout")))
	assert.False(t, IsRetryable(New(KindInvalidInput, "bad limit")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(KindEmbeddingFailure, "batch failed").WithDetail("failed_index", "42")
	assert.Equal(t, "42", err.Detail["failed_index"])
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
