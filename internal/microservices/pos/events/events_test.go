package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-pos/internal/common/logger"
)

type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (p *blockingPublisher) Publish(ctx context.Context, e Event) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e)
	return nil
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, logger.NewWithWriter("test", io.Discard), 16)

	for _, typ := range []string{OrderCreated, OrderStatus, TableStatus} {
		d.Dispatch(Event{Type: typ, EntityID: "x"})
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	got := rec.Events()
	require.Len(t, got, 3)
	assert.Equal(t, OrderCreated, got[0].Type)
	assert.Equal(t, TableStatus, got[2].Type)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Len(t, rec.Of(OrderStatus), 1)

	// dispatching after close is a no-op
	d.Dispatch(Event{Type: OrderCreated})
	assert.Len(t, rec.Events(), 3)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	d := NewDispatcher(pub, logger.NewWithWriter("test", io.Discard), 1)

	for i := 0; i < 10; i++ {
		d.Dispatch(Event{Type: OrderCreated})
	}
	close(pub.release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.GreaterOrEqual(t, len(pub.got), 1)
	assert.Less(t, len(pub.got), 10)
}

func TestDispatcherCloseHonorsContext(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	d := NewDispatcher(pub, logger.NewWithWriter("test", io.Discard), 4)
	d.Dispatch(Event{Type: OrderCreated})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(d.Close(ctx), context.Canceled))
	close(pub.release)
}
