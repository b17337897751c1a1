package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"restaurant-pos/internal/microservices/pos/models"
)

const shiftColumns = `id, status, opened_by, closed_by, opened_at, closed_at, opening_cash, closing_cash,
	totals, discounts, refunds, tips, expected_cash, cash_difference, version`

func scanShift(row pgx.Row) (models.Shift, error) {
	var (
		sh     models.Shift
		totals []byte
	)
	err := row.Scan(&sh.ID, &sh.Status, &sh.OpenedBy, &sh.ClosedBy, &sh.OpenedAt, &sh.ClosedAt, &sh.OpeningCash, &sh.ClosingCash,
		&totals, &sh.Discounts, &sh.Refunds, &sh.Tips, &sh.ExpectedCash, &sh.CashDifference, &sh.Version)
	if err != nil {
		return models.Shift{}, err
	}
	sh.Totals = map[models.Instrument]int64{}
	if len(totals) > 0 {
		if err := json.Unmarshal(totals, &sh.Totals); err != nil {
			return models.Shift{}, fmt.Errorf("decode totals of shift %s: %w", sh.ID, err)
		}
	}
	return sh, nil
}

// loadShift reads one shift by the given predicate together with its drops.
func loadShift(ctx context.Context, q querier, where string, lock bool, args ...any) (models.Shift, error) {
	sql := `SELECT ` + shiftColumns + ` FROM shifts WHERE ` + where
	if lock {
		sql += ` FOR UPDATE`
	}
	sh, err := scanShift(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return models.Shift{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, amount, reason, actor, created_at FROM cash_drops
		WHERE shift_id = $1 ORDER BY created_at, id
	`, sh.ID)
	if err != nil {
		return models.Shift{}, fmt.Errorf("failed to get cash drops of shift %s: %w", sh.ID, err)
	}
	defer rows.Close()

	sh.CashDrops = []models.CashDrop{}
	for rows.Next() {
		var d models.CashDrop
		if err := rows.Scan(&d.ID, &d.Amount, &d.Reason, &d.Actor, &d.CreatedAt); err != nil {
			return models.Shift{}, fmt.Errorf("failed to scan cash drop: %w", err)
		}
		sh.CashDrops = append(sh.CashDrops, d)
	}
	return sh, rows.Err()
}

func shiftByID(ctx context.Context, q querier, id uuid.UUID, lock bool) (models.Shift, error) {
	sh, err := loadShift(ctx, q, `id = $1`, lock, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Shift{}, notFound("shift", id.String())
	}
	if err != nil {
		return models.Shift{}, fmt.Errorf("failed to get shift %s: %w", id, err)
	}
	return sh, nil
}

func openShift(ctx context.Context, q querier, lock bool) (models.Shift, error) {
	sh, err := loadShift(ctx, q, `status = 'OPEN'`, lock)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Shift{}, models.NewError(models.ErrNoActiveShift, "no shift is open")
	}
	if err != nil {
		return models.Shift{}, fmt.Errorf("failed to get open shift: %w", err)
	}
	return sh, nil
}

func writeShift(ctx context.Context, tx pgx.Tx, sh models.Shift) error {
	totals, err := json.Marshal(sh.Totals)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE shifts SET status = $2, closed_by = $3, closed_at = $4, closing_cash = $5, totals = $6,
			discounts = $7, refunds = $8, tips = $9, expected_cash = $10, cash_difference = $11, version = $12
		WHERE id = $1
	`, sh.ID, sh.Status, sh.ClosedBy, sh.ClosedAt, sh.ClosingCash, totals,
		sh.Discounts, sh.Refunds, sh.Tips, sh.ExpectedCash, sh.CashDifference, sh.Version); err != nil {
		return fmt.Errorf("failed to update shift %s: %w", sh.ID, err)
	}
	return nil
}

func (s *PGStore) OpenShift(ctx context.Context, sh *models.Shift) error {
	totals, err := json.Marshal(sh.Totals)
	if err != nil {
		return err
	}
	sh.Version = 1
	_, err = s.db.Exec(ctx, `
		INSERT INTO shifts (id, status, opened_by, closed_by, opened_at, opening_cash, totals, discounts, refunds, tips, version)
		VALUES ($1, 'OPEN', $2, '', $3, $4, $5, 0, 0, 0, $6)
	`, sh.ID, sh.OpenedBy, sh.OpenedAt, sh.OpeningCash, totals, sh.Version)
	if isUniqueViolation(err) {
		e := models.NewError(models.ErrShiftAlreadyOpen, "a shift is already open")
		if cur, curErr := openShift(ctx, s.db, false); curErr == nil {
			e.Message = fmt.Sprintf("shift %s is already open", cur.ID)
			e.State = cur
		}
		return e
	}
	if err != nil {
		return fmt.Errorf("failed to open shift: %w", err)
	}
	return nil
}

func (s *PGStore) ActiveShift(ctx context.Context) (models.Shift, error) {
	return openShift(ctx, s.db, false)
}

func (s *PGStore) GetShift(ctx context.Context, id uuid.UUID) (models.Shift, error) {
	return shiftByID(ctx, s.db, id, false)
}

func (s *PGStore) AddCashDrop(ctx context.Context, shiftID uuid.UUID, d models.CashDrop) (models.Shift, error) {
	var out models.Shift
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sh, err := shiftByID(ctx, tx, shiftID, true)
		if err != nil {
			return err
		}
		if sh.Status != models.ShiftOpen {
			return shiftNotOpen(sh)
		}
		if d.Amount > sh.ExpectedCashInDrawer() {
			return dropTooLarge(sh, d.Amount)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO cash_drops (id, shift_id, amount, reason, actor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, d.ID, shiftID, d.Amount, d.Reason, d.Actor, d.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert cash drop: %w", err)
		}
		sh.CashDrops = append(sh.CashDrops, d)
		sh.Version++
		out = sh
		return writeShift(ctx, tx, sh)
	})
	return out, err
}

func (s *PGStore) CloseShift(ctx context.Context, shiftID uuid.UUID, counted int64, by string, at time.Time) (models.Shift, error) {
	var out models.Shift
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sh, err := shiftByID(ctx, tx, shiftID, true)
		if err != nil {
			return err
		}
		if sh.Status != models.ShiftOpen {
			return shiftNotOpen(sh)
		}
		closeShift(&sh, counted, by, at)
		out = sh
		return writeShift(ctx, tx, sh)
	})
	return out, err
}

func (s *PGStore) Settle(ctx context.Context, orderID uuid.UUID, expected int64, payments []models.Payment, log models.StatusLog) (models.Order, models.Shift, error) {
	var (
		o  models.Order
		sh models.Shift
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := getOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		sh, err = openShift(ctx, tx, true)
		if errors.Is(err, models.ErrNoActiveShift) {
			e := models.NewError(models.ErrNoActiveShift, "no shift is open; payments cannot be recorded")
			e.State = cur
			return e
		}
		if err != nil {
			return err
		}
		if cur.Version != expected || cur.PaymentStatus != models.PaymentUnpaid {
			return staleOrder(cur)
		}

		for i := range payments {
			payments[i].ShiftID = sh.ID
			p := payments[i]
			if _, err := tx.Exec(ctx, `
				INSERT INTO payments (id, order_id, shift_id, instrument, amount, tip, created_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, p.ID, p.OrderID, p.ShiftID, p.Instrument, p.Amount, p.Tip, p.CreatedBy, p.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert payment: %w", err)
			}
		}
		applySettlement(&sh, cur, payments)
		sh.Version++
		if err := writeShift(ctx, tx, sh); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE orders SET payment_status = 'PAID', payment_method = $2, updated_at = $3, version = version + 1
			WHERE id = $1
		`, orderID, settledMethod(payments), log.ChangedAt); err != nil {
			return fmt.Errorf("failed to mark order %s paid: %w", cur.Number, err)
		}
		if err := insertLogs(ctx, tx, log); err != nil {
			return err
		}
		o, err = getOrder(ctx, tx, orderID, false)
		return err
	})
	if err != nil {
		return models.Order{}, models.Shift{}, err
	}
	return o, sh, nil
}

func (s *PGStore) PaymentsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, shift_id, instrument, amount, tip, created_by, created_at
		FROM payments WHERE order_id = $1 ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments of %s: %w", orderID, err)
	}
	defer rows.Close()

	out := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ShiftID, &p.Instrument, &p.Amount, &p.Tip, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
