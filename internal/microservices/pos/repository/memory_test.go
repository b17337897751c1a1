package repository

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

	"restaurant-pos/internal/microservices/pos/models"
)

var day = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, tables ...string) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	var ts []models.Table
	for _, id := range tables {
		ts = append(ts, models.Table{ID: id, Capacity: 4})
	}
	require.NoError(t, m.ProvisionTables(context.Background(), ts))
	return m
}

func dineIn(table string) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		Channel:       models.ChannelDineIn,
		Status:        models.StatusPending,
		TableID:       table,
		Items:         []models.OrderItem{{ID: uuid.New(), MenuItemID: "burger", Quantity: 1, UnitPrice: 1000}},
		Subtotal:      1000,
		Total:         1000,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     day,
	}
}

func TestCreateOrderNumbersPerDay(t *testing.T) {
	ctx := context.Background()
	m := newStore(t)

	for i, want := range []string{"ORD_20260314_001", "ORD_20260314_002"} {
		o := dineIn("")
		o.Channel = models.ChannelTakeaway
		require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{OrderID: o.ID}), i)
		assert.Equal(t, want, o.Number)
		assert.Equal(t, int64(1), o.Version)
	}

	o := dineIn("")
	o.Channel = models.ChannelTakeaway
	o.CreatedAt = day.Add(24 * time.Hour)
	require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{OrderID: o.ID}))
	assert.Equal(t, "ORD_20260315_001", o.Number)
}

func TestConcurrentSeatingHasOneWinner(t *testing.T) {
	ctx := context.Background()
	m := newStore(t, "T-05")

	const racers = 16
	var (
		wg          sync.WaitGroup
		won, failed atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := dineIn("T-05")
			err := m.CreateOrder(ctx, o, models.StatusLog{OrderID: o.ID})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, models.ErrTableUnavailable):
				failed.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(racers-1), failed.Load())

	tbl, err := m.GetTable(ctx, "T-05")
	require.NoError(t, err)
	assert.Equal(t, models.TableOccupied, tbl.Status)
	require.NotNil(t, tbl.OrderID)

	orders, err := m.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, orders[0].ID, *tbl.OrderID)
}

func TestSeatingUnknownTable(t *testing.T) {
	m := newStore(t)
	o := dineIn("T-99")
	err := m.CreateOrder(context.Background(), o, models.StatusLog{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSaveOrderVersionCheck(t *testing.T) {
	ctx := context.Background()
	m := newStore(t, "T-01")
	o := dineIn("T-01")
	require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{}))

	a, b := o.Clone(), o.Clone()
	a.Status = models.StatusConfirmed
	require.NoError(t, m.SaveOrder(ctx, &a, 1))
	assert.Equal(t, int64(2), a.Version)

	b.Status = models.StatusCancelled
	err := m.SaveOrder(ctx, &b, 1)
	require.ErrorIs(t, err, models.ErrConcurrentModification)
	var me *models.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, models.StatusConfirmed, me.State.(models.Order).Status)

	tbl, _ := m.GetTable(ctx, "T-01")
	assert.Equal(t, models.TableOccupied, tbl.Status)
}

func TestTerminalOrderReleasesTable(t *testing.T) {
	ctx := context.Background()
	m := newStore(t, "T-01")
	o := dineIn("T-01")
	require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{}))

	o.Status = models.StatusCancelled
	require.NoError(t, m.SaveOrder(ctx, o, o.Version))

	tbl, err := m.GetTable(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, models.TableCleaning, tbl.Status)
	assert.Nil(t, tbl.OrderID)
}

func TestMoveOrder(t *testing.T) {
	ctx := context.Background()
	m := newStore(t, "T-01", "T-02")
	o := dineIn("T-01")
	require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{}))

	moved, tbl, err := m.MoveOrder(ctx, o.ID, "T-02", o.Version, models.StatusLog{OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, "T-02", moved.TableID)
	assert.Equal(t, models.TableOccupied, tbl.Status)

	prev, _ := m.GetTable(ctx, "T-01")
	assert.Equal(t, models.TableCleaning, prev.Status)

	_, _, err = m.MoveOrder(ctx, o.ID, "T-01", moved.Version, models.StatusLog{})
	assert.ErrorIs(t, err, models.ErrTableUnavailable)
}

func TestSetTableStatusCAS(t *testing.T) {
	ctx := context.Background()
	m := newStore(t, "T-01")

	_, err := m.SetTableStatus(ctx, "T-01", models.TableAvailable, models.TableReserved)
	require.NoError(t, err)
	_, err = m.SetTableStatus(ctx, "T-01", models.TableAvailable, models.TableBlocked)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
	_, err = m.SetTableStatus(ctx, "nope", models.TableAvailable, models.TableBlocked)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReleaseStaleTable(t *testing.T) {
	ctx := context.Background()
	m := newStore(t, "T-01")
	o := dineIn("T-01")
	require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{}))

	_, err := m.ReleaseStaleTable(ctx, "T-01")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// simulate a binding left behind by a crashed writer
	m.mu.Lock()
	delete(m.orders, o.ID)
	m.mu.Unlock()

	tbl, err := m.ReleaseStaleTable(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, models.TableCleaning, tbl.Status)
}

func TestShiftSingleton(t *testing.T) {
	ctx := context.Background()
	m := newStore(t)

	const racers = 8
	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := models.NewShift(1000, "mgr", day)
			if err := m.OpenShift(ctx, &s); err == nil {
				won.Add(1)
			} else if !errors.Is(err, models.ErrShiftAlreadyOpen) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())

	open, err := m.ActiveShift(ctx)
	require.NoError(t, err)
	closed, err := m.CloseShift(ctx, open.ID, 1000, "mgr", day.Add(8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.ShiftClosed, closed.Status)

	_, err = m.ActiveShift(ctx)
	assert.ErrorIs(t, err, models.ErrNoActiveShift)

	next := models.NewShift(0, "mgr", day.Add(9*time.Hour))
	assert.NoError(t, m.OpenShift(ctx, &next))
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	m := newStore(t)
	o := dineIn("")
	o.Channel = models.ChannelTakeaway
	o.Discount = 100
	require.NoError(t, m.CreateOrder(ctx, o, models.StatusLog{}))

	pays := []models.Payment{{ID: uuid.New(), OrderID: o.ID, Instrument: models.InstrumentCash, Amount: 1000, Tip: 50}}
	_, _, err := m.Settle(ctx, o.ID, o.Version, pays, models.StatusLog{})
	require.ErrorIs(t, err, models.ErrNoActiveShift)

	sh := models.NewShift(0, "mgr", day)
	require.NoError(t, m.OpenShift(ctx, &sh))

	paid, shift, err := m.Settle(ctx, o.ID, o.Version, pays, models.StatusLog{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, models.InstrumentCash, paid.PaymentMethod)
	assert.Equal(t, int64(1050), shift.Totals[models.InstrumentCash])
	assert.Equal(t, int64(50), shift.Tips)
	assert.Equal(t, int64(100), shift.Discounts)

	recorded, err := m.PaymentsForOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, sh.ID, recorded[0].ShiftID)

	_, _, err = m.Settle(ctx, o.ID, paid.Version, pays, models.StatusLog{})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
}

func TestCashDropLimits(t *testing.T) {
	ctx := context.Background()
	m := newStore(t)
	sh := models.NewShift(500, "mgr", day)
	require.NoError(t, m.OpenShift(ctx, &sh))

	_, err := m.AddCashDrop(ctx, sh.ID, models.CashDrop{Amount: 501})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := m.AddCashDrop(ctx, sh.ID, models.CashDrop{Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.ExpectedCashInDrawer())

	_, err = m.CloseShift(ctx, sh.ID, 300, "mgr", day)
	require.NoError(t, err)
	_, err = m.AddCashDrop(ctx, sh.ID, models.CashDrop{Amount: 1})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
