package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesOnePhysician(t *testing.T) {
	l := NewLocalLocker()
	id := uuid.New()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithPhysicianLock(context.Background(), id, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, l.locks, "lock entries are dropped once unused")
}

func TestLocalLocker_PhysiciansAreIndependent(t *testing.T) {
	l := NewLocalLocker()
	a, b := uuid.New(), uuid.New()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithPhysicianLock(context.Background(), a, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ran := false
	err := l.WithPhysicianLock(ctx, b, func(context.Context) error {
		ran = true
		return nil
	})
	close(release)

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestLocalLocker_GivesUpWhenContextEnds(t *testing.T) {
	l := NewLocalLocker()
	id := uuid.New()

	release := make(chan struct{})
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.WithPhysicianLock(context.Background(), id, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithPhysicianLock(ctx, id, func(context.Context) error {
		t.Error("fn must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestLocalLocker_ReturnsFnError(t *testing.T) {
	l := NewLocalLocker()
	boom := errors.New("boom")

	err := l.WithPhysicianLock(context.Background(), uuid.New(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// the lock was released
	err = l.WithPhysicianLock(context.Background(), uuid.New(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("5b0b6f3e-4f7a-4a52-9a59-0d7c1c6f0a11")
	assert.Equal(t, "lock:physician:5b0b6f3e-4f7a-4a52-9a59-0d7c1c6f0a11", lockKey(id))
}
