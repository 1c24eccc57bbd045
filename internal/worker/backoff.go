package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultMaxInterval = 5 * time.Minute

// Backoff doubles the delay from Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// start returns a fresh delay sequence that ends when ctx does.
func (b Backoff) start(ctx context.Context) backoff.BackOff {
	initial := b.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maxInterval := b.Max
	if maxInterval <= 0 {
		maxInterval = defaultMaxInterval
	}
	if maxInterval < initial {
		maxInterval = initial
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = maxInterval
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(eb, ctx)
}

var errBackoffStopped = errors.New("backoff stopped")

// pause waits out the next delay of bo. The job's pool slot is given up
// for the duration of the wait.
func pause(ctx context.Context, bo backoff.BackOff, sleep SleepFunc) error {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errBackoffStopped
	}
	return Idle(ctx, func() error {
		return sleep(ctx, d)
	})
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
