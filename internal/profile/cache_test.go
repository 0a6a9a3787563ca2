package profile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/switchboard/pkg/types"
)

func buildOnce(counter *atomic.Int32) BuildFunc {
	return func(ctx context.Context) (*types.CustomerProfile, error) {
		counter.Add(1)
		return &types.CustomerProfile{CustomerID: "cust:test", FragmentCount: 3}, nil
	}
}

func TestCacheHit(t *testing.T) {
	c := NewCache(16, time.Minute)
	ctx := context.Background()

	var builds atomic.Int32
	first, err := c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)

	second, err := c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)

	assert.Equal(t, int32(1), builds.Load())
	assert.Same(t, first, second, "a hit inside the TTL returns the identical cached profile")
}

func TestCacheForceRefresh(t *testing.T) {
	c := NewCache(16, time.Minute)
	ctx := context.Background()

	var builds atomic.Int32
	_, err := c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)
	_, err = c.Get(ctx, "cust:test", true, buildOnce(&builds))
	require.NoError(t, err)

	assert.Equal(t, int32(2), builds.Load())
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(16, 20*time.Millisecond)
	ctx := context.Background()

	var builds atomic.Int32
	_, err := c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load(), "an expired entry triggers a rebuild")
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(16, time.Minute)
	ctx := context.Background()

	var builds atomic.Int32
	_, err := c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)

	c.Invalidate("cust:test")

	_, err = c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load())
}

func TestCacheFailedBuildIsNotCached(t *testing.T) {
	c := NewCache(16, time.Minute)
	ctx := context.Background()

	boom := errors.New("store down")
	_, err := c.Get(ctx, "cust:test", false, func(ctx context.Context) (*types.CustomerProfile, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	var builds atomic.Int32
	_, err = c.Get(ctx, "cust:test", false, buildOnce(&builds))
	require.NoError(t, err)
	assert.Equal(t, int32(1), builds.Load())
}

func TestCacheCoalescesConcurrentBuilds(t *testing.T) {
	c := NewCache(16, time.Minute)
	ctx := context.Background()

	var builds atomic.Int32
	release := make(chan struct{})
	build := func(ctx context.Context) (*types.CustomerProfile, error) {
		builds.Add(1)
		<-release
		return &types.CustomerProfile{CustomerID: "cust:test"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Get(ctx, "cust:test", false, build)
			assert.NoError(t, err)
			assert.NotNil(t, p)
		}()
	}

	// Let every goroutine reach the in-flight build before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load(), "concurrent misses share one build")
}

func TestCacheGetHonorsContextCancellation(t *testing.T) {
	c := NewCache(16, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "cust:test", false, func(ctx context.Context) (*types.CustomerProfile, error) {
			<-release
			return &types.CustomerProfile{CustomerID: "cust:test"}, nil
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after context cancellation")
	}
}
