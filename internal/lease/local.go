package lease

import (
	"context"
	"sync"
	"time"
)

// LocalLocker leases keys within one process. Leases never expire; the
// holder must release them.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLease
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]*localLease{}}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrNotAcquired
	}
	lease := &localLease{owner: l, key: key}
	l.held[key] = lease
	return lease, nil
}

type localLease struct {
	owner *LocalLocker
	key   string
}

func (l *localLease) Refresh(context.Context, time.Duration) error {
	return nil
}

func (l *localLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if l.owner.held[l.key] == l {
		delete(l.owner.held, l.key)
	}
	return nil
}
