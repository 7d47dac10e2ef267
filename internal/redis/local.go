package redisclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalLocker serializes per physician inside a single process. It waits for
// the lock instead of failing, and gives up only when ctx is done.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	ch      chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*keyLock)}
}

func (l *LocalLocker) WithPhysicianLock(ctx context.Context, physicianID uuid.UUID, fn func(ctx context.Context) error) error {
	kl := l.acquireRef(physicianID)
	defer l.releaseRef(physicianID, kl)

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquireRef(id uuid.UUID) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[id] = kl
	}
	kl.waiters++
	return kl
}

func (l *LocalLocker) releaseRef(id uuid.UUID, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.waiters--
	if kl.waiters == 0 {
		delete(l.locks, id)
	}
}
