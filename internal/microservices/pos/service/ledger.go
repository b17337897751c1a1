package service

import (
	"context"

	"github.com/google/uuid"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/billing"
	"restaurant-pos/internal/microservices/pos/events"
	"restaurant-pos/internal/microservices/pos/models"
)

type LedgerServiceInterface interface {
	OpenShift(ctx context.Context, openingCash int64, by string) (models.Shift, error)
	ActiveShift(ctx context.Context) (models.Shift, error)
	GetShift(ctx context.Context, shiftID uuid.UUID) (models.Shift, error)
	RecordCashDrop(ctx context.Context, shiftID uuid.UUID, amount int64, reason, by string) (models.Shift, error)
	CloseShift(ctx context.Context, shiftID uuid.UUID, countedCash int64, by string) (models.Shift, error)
	Settle(ctx context.Context, orderID uuid.UUID, allocations []Allocation, by string) (models.Order, []models.Payment, error)
	Payments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	Split(ctx context.Context, orderID uuid.UUID, parties int) (models.Order, []int64, error)
}

// Allocation is one slice of a settlement: how much of the bill goes on
// which instrument, plus any tip on top.
type Allocation struct {
	Instrument models.Instrument
	Amount     int64
	Tip        int64
}

type LedgerService struct {
	base
}

func (s *LedgerService) OpenShift(ctx context.Context, openingCash int64, by string) (models.Shift, error) {
	if openingCash < 0 {
		return models.Shift{}, models.Validationf("opening cash cannot be negative")
	}
	sh := models.NewShift(openingCash, by, s.now())
	if err := s.store.OpenShift(ctx, &sh); err != nil {
		return models.Shift{}, err
	}
	logger.FromContext(ctx, s.lg).Info("shift_opened", map[string]any{"shift_id": sh.ID, "opening_cash": openingCash, "by": by})
	s.emit(events.Event{Type: events.ShiftOpened, EntityID: sh.ID.String(), NewStatus: string(sh.Status), ChangedBy: by,
		Data: map[string]any{"opening_cash": openingCash}})
	return sh, nil
}

func (s *LedgerService) ActiveShift(ctx context.Context) (models.Shift, error) {
	return s.store.ActiveShift(ctx)
}

func (s *LedgerService) GetShift(ctx context.Context, shiftID uuid.UUID) (models.Shift, error) {
	return s.store.GetShift(ctx, shiftID)
}

func (s *LedgerService) RecordCashDrop(ctx context.Context, shiftID uuid.UUID, amount int64, reason, by string) (models.Shift, error) {
	if amount <= 0 {
		return models.Shift{}, models.Validationf("cash drop amount must be positive")
	}
	d := models.CashDrop{ID: uuid.New(), Amount: amount, Reason: reason, Actor: by, CreatedAt: s.now()}
	sh, err := s.store.AddCashDrop(ctx, shiftID, d)
	if err != nil {
		return sh, err
	}
	logger.FromContext(ctx, s.lg).Info("cash_drop_recorded", map[string]any{
		"shift_id": shiftID, "amount": amount, "reason": reason, "by": by, "expected_cash": sh.ExpectedCashInDrawer(),
	})
	s.emit(events.Event{Type: events.ShiftCashDrop, EntityID: shiftID.String(), ChangedBy: by,
		Data: map[string]any{"amount": amount, "reason": reason}})
	return sh, nil
}

func (s *LedgerService) CloseShift(ctx context.Context, shiftID uuid.UUID, countedCash int64, by string) (models.Shift, error) {
	if countedCash < 0 {
		return models.Shift{}, models.Validationf("counted cash cannot be negative")
	}
	sh, err := s.store.CloseShift(ctx, shiftID, countedCash, by, s.now())
	if err != nil {
		return sh, err
	}

	lg := logger.FromContext(ctx, s.lg)
	fields := map[string]any{
		"shift_id": sh.ID, "expected_cash": *sh.ExpectedCash, "closing_cash": countedCash,
		"cash_difference": *sh.CashDifference, "totals": sh.Totals, "tips": sh.Tips, "by": by,
	}
	lg.Info("shift_closed", fields)
	s.emit(events.Event{Type: events.ShiftClosed, EntityID: sh.ID.String(), OldStatus: string(models.ShiftOpen),
		NewStatus: string(sh.Status), ChangedBy: by, Data: fields})
	if *sh.CashDifference != 0 {
		lg.Warn("cash_discrepancy", fields)
		s.emit(events.Event{Type: events.ShiftDiscrepancy, EntityID: sh.ID.String(), ChangedBy: by, Data: fields})
	}
	return sh, nil
}

func validateAllocations(allocs []Allocation) error {
	if len(allocs) == 0 {
		return models.Validationf("at least one payment allocation is required")
	}
	for _, a := range allocs {
		if !a.Instrument.Payable() {
			return models.Validationf("%q is not a payment instrument", a.Instrument)
		}
		if a.Amount < 0 || a.Tip < 0 {
			return models.Validationf("amounts and tips cannot be negative")
		}
	}
	return nil
}

// Settle records the payments for the whole bill against the open shift.
// The allocation amounts must add up to the order total exactly; tips ride
// on top and are not part of that check.
func (s *LedgerService) Settle(ctx context.Context, orderID uuid.UUID, allocations []Allocation, by string) (models.Order, []models.Payment, error) {
	if err := validateAllocations(allocations); err != nil {
		return models.Order{}, nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, nil, err
	}
	if o.Status == models.StatusCancelled || o.Status == models.StatusCompleted {
		return models.Order{}, nil, models.WithState(models.StateErrorf("order %s is %s", o.Number, o.Status), o)
	}
	if o.PaymentStatus == models.PaymentPaid {
		return models.Order{}, nil, models.WithState(models.StateErrorf("order %s is already settled", o.Number), o)
	}

	amounts := make([]int64, len(allocations))
	for i, a := range allocations {
		amounts[i] = a.Amount
	}
	sum, err := models.SumAmounts(amounts...)
	if err != nil {
		return models.Order{}, nil, err
	}
	if sum != o.Total {
		e := models.NewError(models.ErrAmountMismatch, "allocations add up to %d but order %s totals %d", sum, o.Number, o.Total)
		e.State = o
		return models.Order{}, nil, e
	}

	now := s.now()
	payments := make([]models.Payment, len(allocations))
	for i, a := range allocations {
		payments[i] = models.Payment{
			ID: uuid.New(), OrderID: o.ID, Instrument: a.Instrument,
			Amount: a.Amount, Tip: a.Tip, CreatedBy: by, CreatedAt: now,
		}
	}
	log := models.StatusLog{OrderID: o.ID, Status: string(models.PaymentPaid), ChangedBy: by, ChangedAt: now}
	paid, sh, err := s.store.Settle(ctx, o.ID, o.Version, payments, log)
	if err != nil {
		return models.Order{}, nil, err
	}

	var tips int64
	for _, p := range payments {
		tips += p.Tip
	}
	logger.FromContext(ctx, s.lg).Info("order_settled", map[string]any{
		"order_number": paid.Number, "total": paid.Total, "tips": tips,
		"payment_method": paid.PaymentMethod, "shift_id": sh.ID, "by": by,
	})
	s.emit(events.Event{Type: events.OrderSettled, EntityID: paid.ID.String(), OrderNumber: paid.Number,
		OldStatus: string(models.PaymentUnpaid), NewStatus: string(models.PaymentPaid), ChangedBy: by,
		Data: map[string]any{"total": paid.Total, "tips": tips, "payment_method": paid.PaymentMethod}})
	return paid, payments, nil
}

func (s *LedgerService) Payments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.PaymentsForOrder(ctx, orderID)
}

// Split proposes equal shares of the order total.
func (s *LedgerService) Split(ctx context.Context, orderID uuid.UUID, parties int) (models.Order, []int64, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, nil, err
	}
	shares, err := billing.EqualSplit(o.Total, parties)
	if err != nil {
		return o, nil, err
	}
	return o, shares, nil
}
