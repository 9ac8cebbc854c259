// Package retry runs operations against rate-limited backends with a bounded
// number of attempts and a fixed delay between them.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retried operation.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts uint

	// Delay is the fixed wait between two attempts.
	Delay time.Duration
}

// Default is the policy used for sheet appends and extraction calls: three
// attempts, two seconds apart.
var Default = Policy{Attempts: 3, Delay: 2 * time.Second}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or the policy's attempts are used up. notify is called before every wait
// with the 1-based number of the attempt that just failed.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify func(attempt uint, err error)) error {
	if p.Attempts == 0 {
		p.Attempts = 1
	}

	var attempt uint
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, op(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(p.Attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if notify != nil {
				notify(attempt, err)
			}
		}),
	)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
