package pos

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"restaurant-pos/internal/common/httpx"
	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/config"
	"restaurant-pos/internal/connections/cache"
	"restaurant-pos/internal/connections/database"
	"restaurant-pos/internal/connections/rabbitmq"
	"restaurant-pos/internal/microservices/pos/auth"
	"restaurant-pos/internal/microservices/pos/billing"
	"restaurant-pos/internal/microservices/pos/events"
	"restaurant-pos/internal/microservices/pos/handlers"
	"restaurant-pos/internal/microservices/pos/idempotency"
	"restaurant-pos/internal/microservices/pos/menu"
	"restaurant-pos/internal/microservices/pos/models"
	"restaurant-pos/internal/microservices/pos/repository"
	"restaurant-pos/internal/microservices/pos/service"
)

// Run starts the POS HTTP service and blocks until ctx ends.
func Run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	rates, err := billing.ParseRates(cfg.POS.TaxRate, cfg.POS.ServiceChargeRate)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var (
		store repository.Store
		pool  *pgxpool.Pool
	)
	switch cfg.POS.Storage {
	case "postgres":
		pool, err = database.ConnectDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := database.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "migrations_applied": applied})
		store = repository.NewPGStore(pool)
	default:
		store = repository.NewMemoryStore()
		lg.Warn("memory_storage", map[string]any{"note": "state is lost on restart"})
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		lg.Info("redis_connected", map[string]any{"addr": cfg.Redis.Addr})
	}

	catalog := buildCatalog(cfg, pool, rdb, lg)
	if cc, ok := catalog.(*menu.CachedCatalog); ok {
		go func() {
			if err := cc.Watch(ctx); err != nil {
				lg.Error("menu_cache_watch_failed", err, nil)
			}
		}()
	}

	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL)
	if rdb != nil {
		idem = idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
	}

	var pub events.Publisher = events.NewLogPublisher(lg)
	if cfg.POS.EventsEnabled {
		client, err := rabbitmq.Dial(ctx, cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer client.Close()
		if pub, err = events.NewAMQPPublisher(client, cfg.RabbitMQ.Exchange); err != nil {
			return err
		}
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "exchange": cfg.RabbitMQ.Exchange})
	}
	dispatcher := events.NewDispatcher(pub, lg, 1024)
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dispatcher.Close(dctx); err != nil {
			lg.Error("event_drain_failed", err, nil)
		}
	}()

	svc := service.New(service.Deps{
		Store:   store,
		Catalog: catalog,
		Rates:   rates,
		Events:  dispatcher,
		Logger:  lg,
	})
	if err := svc.TableService.Provision(ctx, floorPlan(cfg.Floor)); err != nil {
		return err
	}

	h := handlers.New(svc, tokens, idem, lg)
	srv := httpx.New(":"+strconv.Itoa(cfg.POS.Port), h.Router())
	lg.Info("service_started", map[string]any{"port": cfg.POS.Port, "storage": cfg.POS.Storage, "catalog": cfg.POS.Catalog})
	return srv.Run(ctx)
}

func buildCatalog(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, lg *logger.Logger) menu.Catalog {
	var c menu.Catalog
	if cfg.POS.Catalog == "postgres" && pool != nil {
		c = menu.NewPGCatalog(pool)
	} else {
		c = menu.NewStaticCatalog(menuItems(cfg.Menu)...)
	}
	if rdb != nil {
		c = menu.NewCachedCatalog(c, rdb, cfg.Redis.MenuTTL, lg)
	}
	return c
}

func floorPlan(floor []config.TableConfig) []models.Table {
	out := make([]models.Table, len(floor))
	for i, t := range floor {
		out[i] = models.Table{ID: t.ID, Capacity: t.Capacity, Floor: t.Floor, Status: models.TableAvailable}
	}
	return out
}

func menuItems(entries []config.MenuItemConfig) []models.MenuItem {
	out := make([]models.MenuItem, len(entries))
	for i, m := range entries {
		out[i] = models.MenuItem{ID: m.ID, Name: m.Name, Price: m.Price, Available: m.Available, Modifiers: m.Modifiers}
	}
	return out
}
