package lock

import (
	"context"
	"sync"
)

// LocalLocker serializes work per owner within one process.
type LocalLocker struct {
	mu     sync.Mutex
	owners map[string]*ownerLock
}

type ownerLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{owners: make(map[string]*ownerLock)}
}

// WithLock runs fn while holding ownerID's lock. Waiting stops when ctx is done.
func (l *LocalLocker) WithLock(ctx context.Context, ownerID string, fn func(ctx context.Context) error) error {
	entry := l.acquire(ownerID)
	defer l.release(ownerID, entry)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquire(ownerID string) *ownerLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.owners[ownerID]
	if !ok {
		entry = &ownerLock{ch: make(chan struct{}, 1)}
		l.owners[ownerID] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) release(ownerID string, entry *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.owners, ownerID)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.owners)
}
