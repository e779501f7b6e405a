package transport

import (
	"context"
	"errors"
	"time"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Backoff strategies.
const (
	BackoffNone        = "none"
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// RedeliveryPolicy controls how a failed delivery is retried before the
// message is dead-lettered.
type RedeliveryPolicy struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `json:"delay" mapstructure:"delay"`
	Backoff     string        `json:"backoff" mapstructure:"backoff"`
	MaxDelay    time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// DefaultRedeliveryPolicy returns three attempts with exponential backoff from 200ms capped at 5s.
func DefaultRedeliveryPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{
		MaxAttempts: 3,
		Delay:       200 * time.Millisecond,
		Backoff:     BackoffExponential,
		MaxDelay:    5 * time.Second,
	}
}

// Validate rejects unusable policies.
func (p RedeliveryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return schema.InvalidArgument("redelivery max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 || p.MaxDelay < 0 {
		return schema.InvalidArgument("redelivery delays must not be negative")
	}
	switch p.Backoff {
	case "", BackoffNone, BackoffConstant, BackoffLinear, BackoffExponential:
		return nil
	default:
		return schema.InvalidArgument("unknown redelivery backoff %q", p.Backoff)
	}
}

// BackoffFor returns the wait before redelivery number attempt (0-based).
func (p RedeliveryPolicy) BackoffFor(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.Backoff {
	case BackoffExponential:
		delay = p.Delay
		for i := 0; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				break
			}
		}
	case BackoffLinear:
		delay = p.Delay * time.Duration(attempt+1)
	default:
		delay = p.Delay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// IsRedeliverable reports whether a handler error is worth another attempt.
// Cancellation and typed errors that can never succeed on replay are not.
func IsRedeliverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var aErr *schema.AmbrosiaError
	if errors.As(err, &aErr) {
		return aErr.IsRedeliverable()
	}
	return true
}
