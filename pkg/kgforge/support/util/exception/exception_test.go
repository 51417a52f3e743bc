package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
)

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	be := exception.NewBatchError("manifest", "failed to connect", originalErr, false, true)

	assert.Equal(t, "manifest", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Contains(t, be.Error(), "[manifest] failed to connect: db connection refused")
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be := exception.NewBatchErrorf("submit", "batch %s not found", "batch_3")
	assert.False(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Nil(t, be.Unwrap())
	assert.Contains(t, be.Error(), "[submit] batch batch_3 not found")

	originalErr := errors.New("io error")
	be2 := exception.NewBatchErrorf("materialize", "read failed for %s", "result_7.json", originalErr)
	assert.Equal(t, originalErr, be2.Unwrap())
	assert.Contains(t, be2.Error(), "read failed for result_7.json")
}

func TestIsBatchError(t *testing.T) {
	assert.True(t, exception.IsBatchError(exception.NewBatchError("graph", "boom", nil, false, false)))
	assert.False(t, exception.IsBatchError(errors.New("plain")))
	assert.False(t, exception.IsBatchError(nil))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewBatchError("jobapi", "rate limited", nil, false, true)))
	assert.False(t, exception.IsTemporary(exception.NewBatchError("jobapi", "bad request", nil, false, false)))

	assert.True(t, exception.IsTemporary(errors.New("dial tcp: i/o timeout")))
	assert.True(t, exception.IsTemporary(errors.New("connection refused")))
	assert.True(t, exception.IsTemporary(fmt.Errorf("unexpected EOF")))
	assert.False(t, exception.IsTemporary(errors.New("invalid payload")))
	assert.False(t, exception.IsTemporary(nil))
}

func TestExtractErrorMessage(t *testing.T) {
	be := exception.NewBatchError("track", "status query failed", errors.New("500"), false, true)
	assert.Equal(t, "status query failed", exception.ExtractErrorMessage(be))
	assert.Equal(t, "plain failure", exception.ExtractErrorMessage(errors.New("plain failure")))
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
}
