package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[STF1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[STF1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "error with details",
			err: New(ErrCodeLoadJobFailed, "Load job into imdb.title_basics failed").
				WithDetails("Error while reading data", "Too many errors"),
			expected: "[STF7001] ERROR: Load job into imdb.title_basics failed\n  - Error while reading data\n  - Too many errors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to Redshift")

	assert.Equal(t, baseErr, appErr.Cause)
	assert.Equal(t, ErrCodeConnectionFailed, appErr.Code)
	assert.True(t, stderrors.Is(appErr, baseErr))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeSQLExecution, "inner").WithContext("table", "songplays")
	outer := Wrap(inner, ErrCodeTaskFailed, "outer")

	assert.Equal(t, "songplays", outer.Context["table"])
	assert.Equal(t, ErrCodeTaskFailed, GetErrorCode(outer))
}

func TestSQLErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  ErrorCode
	}{
		{"permission", fmt.Errorf("permission denied for relation users"), ErrCodeSQLPermission},
		{"missing table", fmt.Errorf(`relation "stg_events" does not exist`), ErrCodeSQLObjectNotFound},
		{"syntax", fmt.Errorf("syntax error at or near \"FORM\""), ErrCodeSQLSyntax},
		{"timeout", fmt.Errorf("statement timeout"), ErrCodeSQLTimeout},
		{"other", fmt.Errorf("disk full"), ErrCodeSQLExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SQLError("Failed to execute statement 1", "SELECT 1", tt.cause)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, "SELECT 1", err.Context["query"])
		})
	}
}

func TestLoadJobError(t *testing.T) {
	cause := fmt.Errorf("job failed")
	err := LoadJobError("ml.ratings", cause, []string{"row 3: bad int"})

	assert.Equal(t, ErrCodeLoadJobFailed, err.Code)
	assert.Equal(t, []string{"row 3: bad int"}, err.Details)
	assert.Contains(t, err.Error(), "row 3: bad int")
	assert.True(t, stderrors.Is(err, cause))
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	config := &RetryConfig{
		MaxRetries:   maxAttempts - 1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
		RetryableError: func(err error) bool {
			return true
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, maxAttempts, attempts)
}

func TestRetryExhausted(t *testing.T) {
	var retried []int
	config := FixedRetryConfig(2, time.Millisecond)
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("still broken")
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeResourceExhausted, GetErrorCode(err))
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return New(ErrCodeAuthenticationFailed, "bad password")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrCodeAuthenticationFailed, GetErrorCode(err))
}

func TestRetryNegativeRetriesRunsOnce(t *testing.T) {
	calls := 0
	failure := fmt.Errorf("fail")
	err := Retry(context.Background(), FixedRetryConfig(-1, time.Millisecond), func(ctx context.Context) error {
		calls++
		return failure
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, failure)

	calls = 0
	err = Retry(context.Background(), FixedRetryConfig(-3, time.Millisecond), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, FixedRetryConfig(3, time.Second), func(ctx context.Context) error {
		return fmt.Errorf("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 100*time.Millisecond)
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("failure 1") }))
	assert.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("failure 2") }))

	err := cb.Execute(ctx, func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, ErrCodeServiceUnavailable, GetErrorCode(err))
	assert.Equal(t, "open", cb.GetState())

	time.Sleep(150 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState())
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, ErrCodeConnectionFailed, GetErrorCode(New(ErrCodeConnectionFailed, "Test")))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("regular error")))
	assert.False(t, IsRecoverable(fmt.Errorf("plain")))
	assert.True(t, IsRecoverable(New(ErrCodeTimeout, "slow").AsRecoverable()))
}

func BenchmarkErrorCreation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = New(ErrCodeConnectionFailed, "Connection failed").
			WithContext("host", "example.com").
			WithSuggestions("Check connection")
	}
}
