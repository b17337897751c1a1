package menu

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/models"
)

func TestStaticCatalog(t *testing.T) {
	ctx := context.Background()
	c := NewStaticCatalog(models.MenuItem{ID: "soda", Name: "Soda", Price: 400, Available: true})

	it, err := c.Lookup(ctx, "soda")
	require.NoError(t, err)
	assert.Equal(t, int64(400), it.Price)

	c.SetAvailable("soda", false)
	c.SetPrice("soda", 450)
	it, err = c.Lookup(ctx, "soda")
	require.NoError(t, err)
	assert.False(t, it.Available)
	assert.Equal(t, int64(450), it.Price)

	_, err = c.Lookup(ctx, "pizza")
	assert.ErrorIs(t, err, ErrUnknownItem)

	// unknown ids are ignored
	c.SetAvailable("pizza", true)
	_, err = c.Lookup(ctx, "pizza")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

type countingCatalog struct {
	*StaticCatalog
	lookups int
}

func (c *countingCatalog) Lookup(ctx context.Context, itemID string) (models.MenuItem, error) {
	c.lookups++
	return c.StaticCatalog.Lookup(ctx, itemID)
}

// Needs a scratch Redis; the test flushes its database.
func TestCachedCatalogInvalidation(t *testing.T) {
	addr := os.Getenv("POS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(ctx).Err())

	src := &countingCatalog{StaticCatalog: NewStaticCatalog(models.MenuItem{ID: "soda", Name: "Soda", Price: 400, Available: true})}
	c := NewCachedCatalog(src, rdb, time.Hour, logger.NewWithWriter("test", io.Discard))

	it, err := c.Lookup(ctx, "soda")
	require.NoError(t, err)
	assert.True(t, it.Available)

	src.SetAvailable("soda", false)
	it, err = c.Lookup(ctx, "soda")
	require.NoError(t, err)
	assert.True(t, it.Available, "served from cache")
	assert.Equal(t, 1, src.lookups)

	require.NoError(t, c.Invalidate(ctx, "soda"))
	it, err = c.Lookup(ctx, "soda")
	require.NoError(t, err)
	assert.False(t, it.Available)

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Watch(wctx) }()

	src.SetAvailable("soda", true)
	assert.Eventually(t, func() bool {
		if err := rdb.Publish(ctx, InvalidateChannel, "soda").Err(); err != nil {
			return false
		}
		it, err := c.Lookup(ctx, "soda")
		return err == nil && it.Available
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
