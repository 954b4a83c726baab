package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesSameOwner(t *testing.T) {
	locker := NewLocalLocker()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "42", func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, locker.size(), "idle owners are forgotten")
}

func TestLocalLocker_OwnersIndependent(t *testing.T) {
	locker := NewLocalLocker()
	inside := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), "A", func(ctx context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "B", func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("owner B blocked behind owner A")
	}
	close(release)
}

func TestLocalLocker_WaitHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	inside := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = locker.WithLock(context.Background(), "A", func(ctx context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := locker.WithLock(ctx, "A", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestBuildUniversalOptions(t *testing.T) {
	opts, err := buildUniversalOptions("redis://:secret@cache:6379/2")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache:6379"}, opts.Addrs)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cluster, err := buildUniversalOptions("redis://a:6379/3, b:6379")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cluster.Addrs)
	assert.Zero(t, cluster.DB)

	_, err = buildUniversalOptions(" , ")
	assert.Error(t, err)
}

func TestLockName(t *testing.T) {
	assert.Equal(t, "photo-bot:owner-lock:42", LockName("42"))
}
