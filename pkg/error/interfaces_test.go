package error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseError_ErrorString(t *testing.T) {
	err := NewError("CACHE_MISS", "cache miss")
	assert.Equal(t, "CACHE_MISS: cache miss", err.Error())

	wrapped := WrapError("LOAD_FAILED", "load failed", errors.New("connection refused"))
	assert.Equal(t, "LOAD_FAILED: load failed: connection refused", wrapped.Error())
}

func TestBaseError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError("LOAD_FAILED", "load failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestBaseError_Is(t *testing.T) {
	err1 := NewError("CACHE_MISS", "miss for key a")
	err2 := NewError("CACHE_MISS", "miss for key b")
	err3 := NewError("LOAD_FAILED", "load failed")

	assert.True(t, errors.Is(err1, err2), "相同错误码视为同类错误")
	assert.False(t, errors.Is(err1, err3))
}

func TestBaseError_WithContext(t *testing.T) {
	err := NewError("LOAD_FAILED", "load failed").
		WithContext("key", "lead_scores:42").
		WithContext("attempt", 3)

	assert.Equal(t, "lead_scores:42", err.Context["key"])
	assert.Equal(t, 3, err.Context["attempt"])
	assert.False(t, err.Timestamp.IsZero())
}

func TestIsCodeAndCodeOf(t *testing.T) {
	err := NewError("CACHE_MISS", "cache miss")

	assert.True(t, IsCode(err, "CACHE_MISS"))
	assert.False(t, IsCode(err, "LOAD_FAILED"))
	assert.Equal(t, ErrorCode("CACHE_MISS"), CodeOf(err))

	// 包装后仍能识别错误码
	wrapped := fmt.Errorf("outer: %w", err)
	require.True(t, IsCode(wrapped, "CACHE_MISS"))
	assert.Equal(t, ErrorCode("CACHE_MISS"), CodeOf(wrapped))

	assert.False(t, IsCode(errors.New("plain"), "CACHE_MISS"))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
