// Package lease provides short-lived per-execution ownership so one worker
// runs a workflow at a time.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 15 * time.Minute

var (
	ErrHeld     = errors.New("lease is held by another owner")
	ErrNotOwner = errors.New("lease is not owned by this token")
)

// Locker hands out leases identified by an opaque token.
type Locker interface {
	// Acquire returns the owner token, or ErrHeld if another owner holds the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// Key builds the lease key for an execution.
func Key(executionID string) string {
	return "devflow:lease:" + executionID
}

type entry struct {
	token   string
	expires time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, ok := l.entries[key]; ok && now.Before(current.expires) {
		return "", ErrHeld
	}

	token := uuid.NewString()
	l.entries[key] = entry{token: token, expires: now.Add(ttl)}

	return token, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.entries[key]
	if !ok || current.token != token {
		return ErrNotOwner
	}

	delete(l.entries, key)

	return nil
}
