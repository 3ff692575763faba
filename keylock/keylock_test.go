package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSameKeyIsExclusive(t *testing.T) {
	table := New[Key]()
	key := Key{Kind: "notifications", ID: 42}

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := table.Acquire(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 1, table.Len())
}

func TestAcquireDifferentKeysDoNotBlock(t *testing.T) {
	table := New[Key]()

	release, err := table.Acquire(context.Background(), Key{Kind: "a", ID: 1})
	require.NoError(t, err)
	defer release()

	done := make(chan struct{})
	go func() {
		r, err := table.Acquire(context.Background(), Key{Kind: "a", ID: 2})
		if err == nil {
			r()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	assert.Equal(t, 2, table.Len())
}

func TestAcquireHonoursContext(t *testing.T) {
	table := New[string]()

	release, err := table.Acquire(context.Background(), "guild")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = table.Acquire(ctx, "guild")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op

	r, err := table.Acquire(context.Background(), "guild")
	require.NoError(t, err)
	r()
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "notifications/7", Key{Kind: "notifications", ID: 7}.String())
}
