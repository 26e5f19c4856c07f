package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() (*Cache, *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache()
	c.Set("key1", "value1", time.Second)
	val, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestExpiration(t *testing.T) {
	c, now := newTestCache()
	c.Set("key1", "value1", 100*time.Millisecond)
	*now = now.Add(150 * time.Millisecond)
	_, ok := c.Get("key1")
	assert.False(t, ok, "expired key should be gone")
	assert.Equal(t, 0, c.Len())
}

func TestSetIfAbsent(t *testing.T) {
	c, now := newTestCache()
	assert.True(t, c.SetIfAbsent("jti", true, time.Minute))
	assert.False(t, c.SetIfAbsent("jti", true, time.Minute))

	*now = now.Add(2 * time.Minute)
	assert.True(t, c.SetIfAbsent("jti", true, time.Minute), "expired key can be claimed again")
}

func TestSetIfAbsentConcurrent(t *testing.T) {
	c := New()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.SetIfAbsent("once", 1, time.Minute) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestDeleteAndInvalidate(t *testing.T) {
	c, _ := newTestCache()
	c.Set("token:spent:1", 1, time.Second)
	c.Set("token:spent:2", 2, time.Second)
	c.Set("session:1", 3, time.Second)

	c.Delete("session:1")
	_, ok := c.Get("session:1")
	assert.False(t, ok)

	c.Invalidate("token:")
	assert.Equal(t, 0, c.Len())
}
