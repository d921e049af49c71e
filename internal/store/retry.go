package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/markb/workhub/internal/log"
)

// RetryPolicy bounds how Append is retried on transient failures.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy tries three times, starting at 20ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

// AppendWithRetry appends msg, retrying with exponential backoff until the policy is
// exhausted or ctx is done. Retrying is safe because Append is idempotent on msg.ID.
func AppendWithRetry(ctx context.Context, s Store, msg *Message, policy RetryPolicy) (string, error) {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	return backoff.Retry(ctx, func() (string, error) {
		id, err := s.Append(ctx, msg)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return id, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("store: append failed, retrying", "message_id", msg.ID, "error", err.Error(), "retry_in", next.String())
		}),
	)
}
