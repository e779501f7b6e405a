package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/ambrosia/pkg/schema"
)

func TestBackoffFor(t *testing.T) {
	tests := []struct {
		policy  RedeliveryPolicy
		attempt int
		want    time.Duration
	}{
		{RedeliveryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffExponential}, 0, 100 * time.Millisecond},
		{RedeliveryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffExponential}, 3, 800 * time.Millisecond},
		{RedeliveryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffExponential, MaxDelay: 300 * time.Millisecond}, 3, 300 * time.Millisecond},
		{RedeliveryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffLinear}, 2, 300 * time.Millisecond},
		{RedeliveryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffConstant}, 5, 100 * time.Millisecond},
		{RedeliveryPolicy{Delay: 100 * time.Millisecond, Backoff: BackoffNone}, 5, 100 * time.Millisecond},
		{RedeliveryPolicy{}, 2, 0},
		{RedeliveryPolicy{Delay: time.Second, Backoff: BackoffExponential, MaxDelay: 5 * time.Second}, 200, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.policy.Backoff, tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.BackoffFor(tt.attempt))
		})
	}
}

func TestRedeliveryPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultRedeliveryPolicy().Validate())
	assert.Error(t, RedeliveryPolicy{MaxAttempts: 0}.Validate())
	assert.Error(t, RedeliveryPolicy{MaxAttempts: 1, Delay: -time.Second}.Validate())
	assert.Error(t, RedeliveryPolicy{MaxAttempts: 1, Backoff: "fibonacci"}.Validate())
}

func TestIsRedeliverable(t *testing.T) {
	assert.False(t, IsRedeliverable(nil))
	assert.False(t, IsRedeliverable(context.Canceled))
	assert.True(t, IsRedeliverable(context.DeadlineExceeded))
	assert.True(t, IsRedeliverable(errors.New("connection refused")))
	assert.True(t, IsRedeliverable(schema.NewError(schema.ErrCodeStore, "database locked")))
	assert.True(t, IsRedeliverable(schema.NewError(schema.ErrCodeTransport, "broker down")))

	for _, code := range []string{
		schema.ErrCodeInvalidArgument,
		schema.ErrCodeNotFound,
		schema.ErrCodeInvalidTransition,
		schema.ErrCodeReducer,
	} {
		err := fmt.Errorf("wrapped: %w", schema.NewError(code, "test"))
		assert.False(t, IsRedeliverable(err), "expected %s to be final", code)
	}
}
