package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"restaurant-pos/internal/microservices/pos/models"
)

const orderColumns = `id, order_number, channel, status, COALESCE(table_id, ''),
	subtotal, tax, service_charge, discount, total, discount_spec,
	payment_status, payment_method, created_by, created_at, updated_at, closed_at, version`

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o    models.Order
		spec []byte
	)
	err := row.Scan(&o.ID, &o.Number, &o.Channel, &o.Status, &o.TableID,
		&o.Subtotal, &o.Tax, &o.ServiceCharge, &o.Discount, &o.Total, &spec,
		&o.PaymentStatus, &o.PaymentMethod, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.ClosedAt, &o.Version)
	if err != nil {
		return models.Order{}, err
	}
	if len(spec) > 0 {
		o.DiscountSpec = &models.Discount{}
		if err := json.Unmarshal(spec, o.DiscountSpec); err != nil {
			return models.Order{}, fmt.Errorf("decode discount of %s: %w", o.ID, err)
		}
	}
	return o, nil
}

func getOrder(ctx context.Context, q querier, id uuid.UUID, lock bool) (models.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, notFound("order", id.String())
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	if o.Items, err = orderItems(ctx, q, id); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

func orderItems(ctx context.Context, q querier, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, menu_item_id, name, quantity, unit_price, modifiers, status, notes
		FROM order_items WHERE order_id = $1 ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items of order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var (
			it  models.OrderItem
			raw []byte
		)
		if err := rows.Scan(&it.ID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice, &raw, &it.Status, &it.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &it.Modifiers); err != nil {
				return nil, fmt.Errorf("decode modifiers of item %s: %w", it.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func discountJSON(d *models.Discount) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func insertItems(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	for i, it := range o.Items {
		mods, err := json.Marshal(it.Modifiers)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, menu_item_id, name, quantity, unit_price, modifiers, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, it.ID, o.ID, i, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice, mods, it.Status, it.Notes); err != nil {
			return fmt.Errorf("failed to insert order item %s: %w", it.Name, err)
		}
	}
	return nil
}

func insertLogs(ctx context.Context, tx pgx.Tx, logs ...models.StatusLog) error {
	for _, l := range logs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_status_log (order_id, item_id, status, changed_by, changed_at, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.OrderID, l.ItemID, l.Status, l.ChangedBy, l.ChangedAt, l.Notes); err != nil {
			return fmt.Errorf("failed to insert order status log: %w", err)
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PGStore) CreateOrder(ctx context.Context, o *models.Order, log models.StatusLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if o.TableID != "" {
			if _, err := seatTx(ctx, tx, o.TableID, o.ID); err != nil {
				return err
			}
		}

		var seq int
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_number_seq (day, last) VALUES ($1, 1)
			ON CONFLICT (day) DO UPDATE SET last = order_number_seq.last + 1
			RETURNING last
		`, o.CreatedAt.UTC().Format("2006-01-02")).Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate order number: %w", err)
		}
		o.Number = OrderNumber(o.CreatedAt, seq)
		o.Version = 1

		spec, err := discountJSON(o.DiscountSpec)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders
				(id, order_number, channel, status, table_id, subtotal, tax, service_charge, discount, total,
				 discount_spec, payment_status, payment_method, created_by, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`, o.ID, o.Number, o.Channel, o.Status, nullable(o.TableID), o.Subtotal, o.Tax, o.ServiceCharge, o.Discount, o.Total,
			spec, o.PaymentStatus, o.PaymentMethod, o.CreatedBy, o.CreatedAt, o.UpdatedAt, o.Version); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		if err := insertItems(ctx, tx, o); err != nil {
			return err
		}
		return insertLogs(ctx, tx, log)
	})
}

func (s *PGStore) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

func (s *PGStore) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Channel != "" {
		args = append(args, f.Channel)
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = orderItems(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) SaveOrder(ctx context.Context, o *models.Order, expected int64, logs ...models.StatusLog) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := getOrder(ctx, tx, o.ID, true)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return staleOrder(cur)
		}
		if o.Status.Terminal() && !cur.Status.Terminal() && cur.TableID != "" {
			if err := releaseTx(ctx, tx, cur.TableID, o.ID); err != nil {
				return err
			}
		}

		spec, err := discountJSON(o.DiscountSpec)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, table_id = $3, subtotal = $4, tax = $5, service_charge = $6,
				discount = $7, total = $8, discount_spec = $9, payment_status = $10, payment_method = $11,
				updated_at = $12, closed_at = $13, version = version + 1
			WHERE id = $1
		`, o.ID, o.Status, nullable(o.TableID), o.Subtotal, o.Tax, o.ServiceCharge,
			o.Discount, o.Total, spec, o.PaymentStatus, o.PaymentMethod,
			o.UpdatedAt, o.ClosedAt); err != nil {
			return fmt.Errorf("failed to update order %s: %w", o.Number, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("failed to replace items of %s: %w", o.Number, err)
		}
		if err := insertItems(ctx, tx, o); err != nil {
			return err
		}
		if err := insertLogs(ctx, tx, logs...); err != nil {
			return err
		}
		o.Version = expected + 1
		return nil
	})
}

func (s *PGStore) MoveOrder(ctx context.Context, orderID uuid.UUID, tableID string, expected int64, log models.StatusLog) (models.Order, models.Table, error) {
	var (
		o models.Order
		t models.Table
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := getOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return staleOrder(cur)
		}
		if t, err = seatTx(ctx, tx, tableID, orderID); err != nil {
			return err
		}
		if cur.TableID != "" {
			if err := releaseTx(ctx, tx, cur.TableID, orderID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET table_id = $2, updated_at = $3, version = version + 1 WHERE id = $1
		`, orderID, tableID, log.ChangedAt); err != nil {
			return fmt.Errorf("failed to move order %s: %w", cur.Number, err)
		}
		if err := insertLogs(ctx, tx, log); err != nil {
			return err
		}
		o, err = getOrder(ctx, tx, orderID, false)
		return err
	})
	return o, t, err
}

func (s *PGStore) Timeline(ctx context.Context, orderID uuid.UUID) ([]models.StatusLog, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check order %s: %w", orderID, err)
	}
	if !exists {
		return nil, notFound("order", orderID.String())
	}

	rows, err := s.db.Query(ctx, `
		SELECT order_id, item_id, status, changed_by, changed_at, notes
		FROM order_status_log WHERE order_id = $1 ORDER BY changed_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline of %s: %w", orderID, err)
	}
	defer rows.Close()

	out := []models.StatusLog{}
	for rows.Next() {
		var l models.StatusLog
		if err := rows.Scan(&l.OrderID, &l.ItemID, &l.Status, &l.ChangedBy, &l.ChangedAt, &l.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
