package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-pos/internal/connections/database"
	"restaurant-pos/internal/microservices/pos/models"
)

// testDSNEnv points the store tests at a scratch Postgres database. Every
// run truncates the POS tables.
const testDSNEnv = "POS_TEST_DATABASE_URL"

type openStore func(t *testing.T, tables ...string) Store

func TestStoreContract(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		runStoreContract(t, func(t *testing.T, tables ...string) Store { return newStore(t, tables...) })
	})

	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv(testDSNEnv)
		if dsn == "" {
			t.Skipf("%s not set", testDSNEnv)
		}
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		_, err = database.Migrate(ctx, pool)
		require.NoError(t, err)

		runStoreContract(t, func(t *testing.T, tables ...string) Store {
			_, err := pool.Exec(ctx, `TRUNCATE payments, cash_drops, shifts, order_status_log, order_items, orders, order_number_seq, tables CASCADE`)
			require.NoError(t, err)
			s := NewPGStore(pool)
			var ts []models.Table
			for _, id := range tables {
				ts = append(ts, models.Table{ID: id, Capacity: 4})
			}
			require.NoError(t, s.ProvisionTables(ctx, ts))
			return s
		})
	})
}

func createLog(o *models.Order) models.StatusLog {
	return models.StatusLog{OrderID: o.ID, Status: string(o.Status), ChangedBy: "srv-1", ChangedAt: day}
}

func runStoreContract(t *testing.T, open openStore) {
	ctx := context.Background()

	t.Run("one racer seats a table", func(t *testing.T) {
		s := open(t, "T-05")
		const racers = 8
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o := dineIn("T-05")
				err := s.CreateOrder(ctx, o, createLog(o))
				switch {
				case err == nil:
					won.Add(1)
				case !errors.Is(err, models.ErrTableUnavailable):
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), won.Load())

		tbl, err := s.GetTable(ctx, "T-05")
		require.NoError(t, err)
		assert.Equal(t, models.TableOccupied, tbl.Status)
		orders, err := s.ListOrders(ctx, OrderFilter{})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		require.NotNil(t, tbl.OrderID)
		assert.Equal(t, orders[0].ID, *tbl.OrderID)
	})

	t.Run("one shift open at a time", func(t *testing.T) {
		s := open(t)
		const racers = 8
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sh := models.NewShift(1000, "mgr-1", day)
				err := s.OpenShift(ctx, &sh)
				switch {
				case err == nil:
					won.Add(1)
				case !errors.Is(err, models.ErrShiftAlreadyOpen):
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), won.Load())

		active, err := s.ActiveShift(ctx)
		require.NoError(t, err)
		_, err = s.CloseShift(ctx, active.ID, 1000, "mgr-1", day.Add(8*time.Hour))
		require.NoError(t, err)
		next := models.NewShift(0, "mgr-1", day.Add(9*time.Hour))
		assert.NoError(t, s.OpenShift(ctx, &next))
	})

	t.Run("settlement is recorded once", func(t *testing.T) {
		s := open(t)
		o := dineIn("")
		o.Channel = models.ChannelTakeaway
		require.NoError(t, s.CreateOrder(ctx, o, createLog(o)))
		sh := models.NewShift(0, "mgr-1", day)
		require.NoError(t, s.OpenShift(ctx, &sh))

		const racers = 6
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pays := []models.Payment{
					{ID: uuid.New(), OrderID: o.ID, Instrument: models.InstrumentCash, Amount: 400, Tip: 10, CreatedBy: "csh-1", CreatedAt: day},
					{ID: uuid.New(), OrderID: o.ID, Instrument: models.InstrumentCard, Amount: 600, CreatedBy: "csh-1", CreatedAt: day},
				}
				log := models.StatusLog{OrderID: o.ID, Status: string(models.PaymentPaid), ChangedBy: "csh-1", ChangedAt: day}
				_, _, err := s.Settle(ctx, o.ID, o.Version, pays, log)
				switch {
				case err == nil:
					won.Add(1)
				case !errors.Is(err, models.ErrConcurrentModification):
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), won.Load())

		recorded, err := s.PaymentsForOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Len(t, recorded, 2)

		cur, err := s.ActiveShift(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(410), cur.Totals[models.InstrumentCash])
		assert.Equal(t, int64(600), cur.Totals[models.InstrumentCard])
		assert.Equal(t, int64(10), cur.Tips)

		paid, err := s.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
		assert.Equal(t, models.InstrumentSplit, paid.PaymentMethod)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		s := open(t, "T-01")
		o := dineIn("T-01")
		require.NoError(t, s.CreateOrder(ctx, o, createLog(o)))

		first := *o
		first.Status = models.StatusConfirmed
		require.NoError(t, s.SaveOrder(ctx, &first, o.Version))

		second := *o
		second.Status = models.StatusCancelled
		err := s.SaveOrder(ctx, &second, o.Version)
		assert.ErrorIs(t, err, models.ErrConcurrentModification)

		tbl, err := s.GetTable(ctx, "T-01")
		require.NoError(t, err)
		assert.Equal(t, models.TableOccupied, tbl.Status, "a rejected write leaves the table alone")
	})

	t.Run("manual release racing order close", func(t *testing.T) {
		s := open(t)
		var tables []models.Table
		for i := 0; i < 10; i++ {
			tables = append(tables, models.Table{ID: fmt.Sprintf("T-%02d", i), Capacity: 2})
		}
		require.NoError(t, s.ProvisionTables(ctx, tables))

		var wg sync.WaitGroup
		for _, tb := range tables {
			o := dineIn(tb.ID)
			require.NoError(t, s.CreateOrder(ctx, o, createLog(o)))

			wg.Add(2)
			go func(o models.Order) {
				defer wg.Done()
				closed := o
				closed.Status = models.StatusCancelled
				closed.ClosedAt = &day
				if err := s.SaveOrder(ctx, &closed, o.Version); err != nil {
					t.Errorf("close %s: %v", o.TableID, err)
				}
			}(*o)
			go func(id string) {
				defer wg.Done()
				_, err := s.ReleaseStaleTable(ctx, id)
				if err != nil && !errors.Is(err, models.ErrInvalidState) && !errors.Is(err, models.ErrConcurrentModification) {
					t.Errorf("release %s: %v", id, err)
				}
			}(tb.ID)
		}
		wg.Wait()

		for _, tb := range tables {
			got, err := s.GetTable(ctx, tb.ID)
			require.NoError(t, err)
			assert.Equal(t, models.TableCleaning, got.Status, tb.ID)
			assert.Nil(t, got.OrderID, tb.ID)
		}
	})
}

func TestTxConflictIsConcurrentModification(t *testing.T) {
	for _, code := range []string{deadlockDetected, serializationFailure} {
		err := txConflict(fmt.Errorf("failed to commit transaction: %w", &pgconn.PgError{Code: code, Message: "deadlock detected"}))
		assert.ErrorIs(t, err, models.ErrConcurrentModification, code)
	}

	other := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation})
	assert.Same(t, other, txConflict(other))
}
