package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"restaurant-pos/internal/microservices/pos/models"
)

const tableColumns = `id, capacity, floor, status, order_id, version, updated_at`

func scanTable(row pgx.Row) (models.Table, error) {
	var t models.Table
	err := row.Scan(&t.ID, &t.Capacity, &t.Floor, &t.Status, &t.OrderID, &t.Version, &t.UpdatedAt)
	return t, err
}

func (s *PGStore) ProvisionTables(ctx context.Context, tables []models.Table) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range tables {
			if _, err := tx.Exec(ctx, `
				INSERT INTO tables (id, capacity, floor, status, version, updated_at)
				VALUES ($1, $2, $3, 'AVAILABLE', 0, now())
				ON CONFLICT (id) DO UPDATE SET capacity = EXCLUDED.capacity, floor = EXCLUDED.floor
			`, t.ID, t.Capacity, t.Floor); err != nil {
				return fmt.Errorf("failed to provision table %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (s *PGStore) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tableColumns+` FROM tables ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []models.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) GetTable(ctx context.Context, id string) (models.Table, error) {
	return getTable(ctx, s.db, id, false)
}

func getTable(ctx context.Context, q querier, id string, lock bool) (models.Table, error) {
	sql := `SELECT ` + tableColumns + ` FROM tables WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	t, err := scanTable(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Table{}, notFound("table", id)
	}
	if err != nil {
		return models.Table{}, fmt.Errorf("failed to get table %s: %w", id, err)
	}
	return t, nil
}

func (s *PGStore) SetTableStatus(ctx context.Context, id string, from, to models.TableStatus) (models.Table, error) {
	t, err := scanTable(s.db.QueryRow(ctx, `
		UPDATE tables SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+tableColumns, id, from, to))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Table{}, fmt.Errorf("failed to update table %s: %w", id, err)
	}
	cur, err := s.GetTable(ctx, id)
	if err != nil {
		return models.Table{}, err
	}
	return cur, staleTable(cur)
}

func (s *PGStore) ReleaseStaleTable(ctx context.Context, id string) (models.Table, error) {
	var out models.Table
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// Orders are locked before their table everywhere else, so read the
		// binding unlocked, lock the order, then lock the table.
		seen, err := getTable(ctx, tx, id, false)
		if err != nil {
			return err
		}
		var (
			status models.OrderStatus
			number string
			bound  bool
		)
		if seen.OrderID != nil {
			err := tx.QueryRow(ctx, `SELECT status, order_number FROM orders WHERE id = $1 FOR SHARE`, *seen.OrderID).Scan(&status, &number)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
			case err != nil:
				return fmt.Errorf("failed to read order bound to table %s: %w", id, err)
			default:
				bound = true
			}
		}

		t, err := getTable(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !sameOrder(t.OrderID, seen.OrderID) {
			return staleTable(t)
		}
		if t.Status != models.TableOccupied {
			e := models.TransitionErrorf("table %s is %s, not OCCUPIED", t.ID, t.Status)
			e.State = t
			return e
		}
		if bound && !status.Terminal() {
			e := models.StateErrorf("table %s is held by active order %s", t.ID, number)
			e.State = t
			return e
		}
		out, err = scanTable(tx.QueryRow(ctx, `
			UPDATE tables SET status = 'CLEANING', order_id = NULL, version = version + 1, updated_at = now()
			WHERE id = $1
			RETURNING `+tableColumns, id))
		return err
	})
	return out, err
}

func sameOrder(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func seatTx(ctx context.Context, tx pgx.Tx, tableID string, orderID uuid.UUID) (models.Table, error) {
	t, err := getTable(ctx, tx, tableID, true)
	if errors.Is(err, models.ErrNotFound) {
		return models.Table{}, models.Validationf("table %s does not exist", tableID)
	}
	if err != nil {
		return models.Table{}, err
	}
	if !t.Status.Seatable() {
		return t, tableUnavailable(t)
	}
	t, err = scanTable(tx.QueryRow(ctx, `
		UPDATE tables SET status = 'OCCUPIED', order_id = $2, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+tableColumns, tableID, orderID))
	if err != nil {
		return models.Table{}, fmt.Errorf("failed to seat table %s: %w", tableID, err)
	}
	return t, nil
}

// releaseTx sends the table to CLEANING if it is still bound to orderID.
func releaseTx(ctx context.Context, tx pgx.Tx, tableID string, orderID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE tables SET status = 'CLEANING', order_id = NULL, version = version + 1, updated_at = now()
		WHERE id = $1 AND order_id = $2
	`, tableID, orderID)
	if err != nil {
		return fmt.Errorf("failed to release table %s: %w", tableID, err)
	}
	return nil
}
