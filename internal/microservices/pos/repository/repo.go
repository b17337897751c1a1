package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"restaurant-pos/internal/microservices/pos/models"
)

// Store is the persistence boundary of the POS core. Every method is one
// atomic unit of work; read-then-write checks happen inside it so two
// terminals racing on the same entity get one winner.
type Store interface {
	TableStore
	OrderStore
	LedgerStore
}

type TableStore interface {
	// ProvisionTables inserts missing tables and refreshes capacity/floor of
	// existing ones without touching their status.
	ProvisionTables(ctx context.Context, tables []models.Table) error
	ListTables(ctx context.Context) ([]models.Table, error)
	GetTable(ctx context.Context, id string) (models.Table, error)
	// SetTableStatus moves a table from -> to, failing with
	// ErrConcurrentModification if it is no longer in from.
	SetTableStatus(ctx context.Context, id string, from, to models.TableStatus) (models.Table, error)
	// ReleaseStaleTable clears an OCCUPIED table whose order is terminal or gone.
	ReleaseStaleTable(ctx context.Context, id string) (models.Table, error)
}

type OrderFilter struct {
	Status  models.OrderStatus
	Channel models.Channel
	Limit   int
}

type OrderStore interface {
	// CreateOrder assigns the daily order number, seats o.TableID when set
	// and inserts the order, all or nothing.
	CreateOrder(ctx context.Context, o *models.Order, log models.StatusLog) error
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	// SaveOrder overwrites the order if its stored version equals expected
	// and bumps o.Version. An order entering a terminal status releases its
	// table to CLEANING in the same unit of work.
	SaveOrder(ctx context.Context, o *models.Order, expected int64, logs ...models.StatusLog) error
	// MoveOrder seats the order on tableID and sends its previous table to CLEANING.
	MoveOrder(ctx context.Context, orderID uuid.UUID, tableID string, expected int64, log models.StatusLog) (models.Order, models.Table, error)
	Timeline(ctx context.Context, orderID uuid.UUID) ([]models.StatusLog, error)
}

type LedgerStore interface {
	OpenShift(ctx context.Context, s *models.Shift) error
	ActiveShift(ctx context.Context) (models.Shift, error)
	GetShift(ctx context.Context, id uuid.UUID) (models.Shift, error)
	AddCashDrop(ctx context.Context, shiftID uuid.UUID, d models.CashDrop) (models.Shift, error)
	CloseShift(ctx context.Context, shiftID uuid.UUID, counted int64, by string, at time.Time) (models.Shift, error)
	// Settle marks the order paid, stores the payments against the open
	// shift and rolls them into the shift totals in one transaction.
	Settle(ctx context.Context, orderID uuid.UUID, expected int64, payments []models.Payment, log models.StatusLog) (models.Order, models.Shift, error)
	PaymentsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// OrderNumber formats the human-readable number: ORD_YYYYMMDD_NNN.
func OrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("ORD_%s_%03d", day.UTC().Format("20060102"), seq)
}

func notFound(kind, id string) error {
	return models.NewError(models.ErrNotFound, "%s %s not found", kind, id)
}

func tableUnavailable(t models.Table) error {
	e := models.NewError(models.ErrTableUnavailable, "table %s is %s", t.ID, t.Status)
	e.State = t
	return e
}

func staleOrder(o models.Order) error {
	e := models.NewError(models.ErrConcurrentModification, "order %s was modified concurrently (now version %d)", o.Number, o.Version)
	e.State = o
	return e
}

func staleTable(t models.Table) error {
	e := models.NewError(models.ErrConcurrentModification, "table %s changed concurrently (now %s)", t.ID, t.Status)
	e.State = t
	return e
}

func shiftNotOpen(s models.Shift) error {
	e := models.StateErrorf("shift %s is %s", s.ID, s.Status)
	e.State = s
	return e
}

func dropTooLarge(s models.Shift, amount int64) error {
	e := models.Validationf("cash drop %d exceeds cash expected in drawer %d", amount, s.ExpectedCashInDrawer())
	e.State = s
	return e
}

func applySettlement(s *models.Shift, o models.Order, payments []models.Payment) {
	for _, p := range payments {
		s.Totals[p.Instrument] += p.Amount + p.Tip
		s.Tips += p.Tip
	}
	s.Discounts += o.Discount
}

func settledMethod(payments []models.Payment) models.Instrument {
	if len(payments) == 1 {
		return payments[0].Instrument
	}
	return models.InstrumentSplit
}
