package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesMetadataFromCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"parse transient", ErrCodeParseTransient, CategoryExternal, SeverityWarning, true},
		{"parse exhausted", ErrCodeParseExhausted, CategoryExternal, SeverityError, false},
		{"document load", ErrCodeDocumentLoad, CategoryIO, SeverityFatal, false},
		{"corrupt index", ErrCodeCorruptIndex, CategoryIO, SeverityWarning, false},
		{"store unavailable", ErrCodeStoreUnavailable, CategoryExternal, SeverityError, true},
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"query empty", ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestAskError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(ErrCodeParseTransient, cause)
	assert.ErrorIs(t, err, cause)
}

func TestAskError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeCorruptIndex, "a", nil)
	b := New(ErrCodeCorruptIndex, "b", nil)
	assert.ErrorIs(t, a, b)
}

func TestRetryWithResult_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_ExhaustsAfterFourAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		return "", errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus 3 retries")
	assert.Contains(t, err.Error(), "always fails")
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error { return errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}
