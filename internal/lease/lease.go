// Package lease keeps two reconciliation tasks from working on the same
// donation at once, in one process or across instances.
package lease

import (
	"context"
	"errors"
	"time"
)

var ErrNotAcquired = errors.New("lease is held by someone else")

type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire fails with ErrNotAcquired when key is already leased.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
