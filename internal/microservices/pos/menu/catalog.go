// Package menu adapts the external menu catalog. The POS only needs
// price and availability snapshots at the moment an item is added.
package menu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/models"
)

var ErrUnknownItem = errors.New("menu item not found")

type Catalog interface {
	Lookup(ctx context.Context, itemID string) (models.MenuItem, error)
}

// StaticCatalog serves a fixed menu, typically the `menu:` config section.
type StaticCatalog struct {
	mu    sync.RWMutex
	items map[string]models.MenuItem
}

func NewStaticCatalog(items ...models.MenuItem) *StaticCatalog {
	c := &StaticCatalog{items: make(map[string]models.MenuItem, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

func (c *StaticCatalog) Lookup(_ context.Context, itemID string) (models.MenuItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[itemID]
	if !ok {
		return models.MenuItem{}, ErrUnknownItem
	}
	return it, nil
}

// SetAvailable flips the 86 flag.
func (c *StaticCatalog) SetAvailable(itemID string, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[itemID]; ok {
		it.Available = available
		c.items[itemID] = it
	}
}

func (c *StaticCatalog) SetPrice(itemID string, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[itemID]; ok {
		it.Price = price
		c.items[itemID] = it
	}
}

// PGCatalog reads the menu_items table maintained by the menu editor.
type PGCatalog struct {
	db *pgxpool.Pool
}

func NewPGCatalog(db *pgxpool.Pool) *PGCatalog { return &PGCatalog{db: db} }

func (c *PGCatalog) Lookup(ctx context.Context, itemID string) (models.MenuItem, error) {
	var (
		it  models.MenuItem
		raw []byte
	)
	err := c.db.QueryRow(ctx, `
		SELECT id, name, price, is_available, modifiers
		FROM menu_items WHERE id = $1
	`, itemID).Scan(&it.ID, &it.Name, &it.Price, &it.Available, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MenuItem{}, ErrUnknownItem
	}
	if err != nil {
		return models.MenuItem{}, fmt.Errorf("lookup menu item %s: %w", itemID, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &it.Modifiers); err != nil {
			return models.MenuItem{}, fmt.Errorf("decode modifiers of %s: %w", itemID, err)
		}
	}
	return it, nil
}

// CachedCatalog is a read-through Redis cache in front of another catalog.
// Redis failures fall back to the wrapped catalog.
type CachedCatalog struct {
	next  Catalog
	redis *redis.Client
	ttl   time.Duration
	lg    *logger.Logger
}

func NewCachedCatalog(next Catalog, rdb *redis.Client, ttl time.Duration, lg *logger.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedCatalog{next: next, redis: rdb, ttl: ttl, lg: lg}
}

const notFoundMarker = "notfound"

func (c *CachedCatalog) Lookup(ctx context.Context, itemID string) (models.MenuItem, error) {
	key := cacheKey(itemID)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return models.MenuItem{}, ErrUnknownItem
		}
		var it models.MenuItem
		if err := json.Unmarshal(data, &it); err == nil {
			return it, nil
		}
		c.lg.Error("menu_cache_decode_failed", err, map[string]any{"item_id": itemID})
	case errors.Is(err, redis.Nil):
	default:
		c.lg.Error("menu_cache_read_failed", err, map[string]any{"item_id": itemID})
	}

	it, err := c.next.Lookup(ctx, itemID)
	if errors.Is(err, ErrUnknownItem) {
		if setErr := c.redis.Set(ctx, key, notFoundMarker, c.ttl).Err(); setErr != nil {
			c.lg.Error("menu_cache_write_failed", setErr, map[string]any{"item_id": itemID})
		}
		return models.MenuItem{}, err
	}
	if err != nil {
		return models.MenuItem{}, err
	}
	if b, err := json.Marshal(it); err == nil {
		if setErr := c.redis.Set(ctx, key, b, c.ttl).Err(); setErr != nil {
			c.lg.Error("menu_cache_write_failed", setErr, map[string]any{"item_id": itemID})
		}
	}
	return it, nil
}

// InvalidateChannel carries item ids whose menu_items row changed. The menu
// editor publishes to it after every write; Watch drops the cached entries.
const InvalidateChannel = "menu:invalidate"

func cacheKey(itemID string) string { return "menu:item:" + itemID }

// Invalidate drops cached entries so the next Lookup reads through.
func (c *CachedCatalog) Invalidate(ctx context.Context, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = cacheKey(id)
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate menu cache: %w", err)
	}
	return nil
}

// Watch invalidates items announced on InvalidateChannel until ctx ends.
// Entries missed while disconnected still expire after the cache TTL.
func (c *CachedCatalog) Watch(ctx context.Context) error {
	sub := c.redis.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", InvalidateChannel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := c.Invalidate(ctx, msg.Payload); err != nil {
				c.lg.Error("menu_cache_invalidate_failed", err, map[string]any{"item_id": msg.Payload})
				continue
			}
			c.lg.Debug("menu_cache_invalidated", map[string]any{"item_id": msg.Payload})
		}
	}
}
