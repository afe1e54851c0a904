package machtest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError(t *testing.T) {
	cause := errors.New("registry unreadable")
	err := NewRuntimeError(cause)

	assert.Equal(t, "runtime error: registry unreadable", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(cause))
	assert.False(t, IsRuntimeError(nil))
}

func TestTestFailureError(t *testing.T) {
	cause := errors.New("test chacha20_test failed with exit code 1")
	err := NewTestFailureError(cause)

	assert.Equal(t, "test failure: test chacha20_test failed with exit code 1", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTestFailureError(err))
	assert.True(t, IsTestFailureError(errors.Join(err, errors.New("shutdown failed"))))
	assert.False(t, IsRuntimeError(err))
	assert.False(t, IsTestFailureError(nil))
}
