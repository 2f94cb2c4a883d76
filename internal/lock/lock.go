// Package lock provides the run gate for work that must happen on one
// instance at a time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the key.
var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock.
type Lease interface {
	// Extend pushes the expiry ttl into the future. It returns
	// ErrNotAcquired once the lease has been lost.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release gives the lock back. Releasing a lost lease is not an error.
	Release(ctx context.Context) error
}

// Locker acquires a lease on key without blocking.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Local serializes holders inside one process. TTL is ignored.
type Local struct {
	mu   sync.Mutex
	held map[string]uint64
	seq  uint64
}

func NewLocal() *Local {
	return &Local{held: make(map[string]uint64)}
}

func (l *Local) TryLock(_ context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrNotAcquired
	}
	l.seq++
	l.held[key] = l.seq
	return &localLease{owner: l, key: key, id: l.seq}, nil
}

type localLease struct {
	owner *Local
	key   string
	id    uint64
}

func (ll *localLease) Extend(context.Context, time.Duration) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] != ll.id {
		return ErrNotAcquired
	}
	return nil
}

func (ll *localLease) Release(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] == ll.id {
		delete(ll.owner.held, ll.key)
	}
	return nil
}
