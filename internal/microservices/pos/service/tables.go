package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/events"
	"restaurant-pos/internal/microservices/pos/models"
)

type TableServiceInterface interface {
	Provision(ctx context.Context, tables []models.Table) error
	List(ctx context.Context) ([]models.Table, error)
	Get(ctx context.Context, tableID string) (models.Table, error)
	Seat(ctx context.Context, tableID string, orderID uuid.UUID, by string) (models.Order, models.Table, error)
	Release(ctx context.Context, tableID, by string) (models.Table, error)
	SetStatus(ctx context.Context, tableID string, to models.TableStatus, by string) (models.Table, error)
}

type TableService struct {
	base
}

func (s *TableService) Provision(ctx context.Context, tables []models.Table) error {
	for _, t := range tables {
		if t.ID == "" || t.Capacity <= 0 {
			return models.Validationf("table %q needs an id and a positive capacity", t.ID)
		}
	}
	if err := s.store.ProvisionTables(ctx, tables); err != nil {
		return fmt.Errorf("provision tables: %w", err)
	}
	logger.FromContext(ctx, s.lg).Info("tables_provisioned", map[string]any{"count": len(tables)})
	return nil
}

func (s *TableService) List(ctx context.Context) ([]models.Table, error) {
	return s.store.ListTables(ctx)
}

func (s *TableService) Get(ctx context.Context, tableID string) (models.Table, error) {
	return s.store.GetTable(ctx, tableID)
}

// Seat moves an active dine-in order onto tableID. The previous table goes
// to CLEANING in the same unit of work.
func (s *TableService) Seat(ctx context.Context, tableID string, orderID uuid.UUID, by string) (models.Order, models.Table, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, models.Table{}, err
	}
	if o.Channel != models.ChannelDineIn {
		return models.Order{}, models.Table{}, models.WithState(models.Validationf("%s orders cannot take a table", o.Channel), o)
	}
	if o.Status.Terminal() {
		return models.Order{}, models.Table{}, models.WithState(models.StateErrorf("order %s is %s", o.Number, o.Status), o)
	}
	if o.TableID == tableID {
		t, err := s.store.GetTable(ctx, tableID)
		return o, t, err
	}

	log := models.StatusLog{
		OrderID: o.ID, Status: string(o.Status), ChangedBy: by, ChangedAt: s.now(),
		Notes: fmt.Sprintf("moved from table %s to %s", o.TableID, tableID),
	}
	moved, t, err := s.store.MoveOrder(ctx, orderID, tableID, o.Version, log)
	if err != nil {
		return models.Order{}, t, err
	}

	logger.FromContext(ctx, s.lg).Info("order_moved", map[string]any{
		"order_number": moved.Number, "from_table": o.TableID, "to_table": tableID, "by": by,
	})
	s.emit(events.Event{Type: events.TableStatus, EntityID: tableID, OrderNumber: moved.Number,
		NewStatus: string(models.TableOccupied), ChangedBy: by})
	if o.TableID != "" {
		s.emit(events.Event{Type: events.TableStatus, EntityID: o.TableID, OrderNumber: moved.Number,
			OldStatus: string(models.TableOccupied), NewStatus: string(models.TableCleaning), ChangedBy: by})
	}
	return moved, t, nil
}

// Release clears an OCCUPIED table left behind by an order that is already
// closed or gone. Active orders release their table themselves.
func (s *TableService) Release(ctx context.Context, tableID, by string) (models.Table, error) {
	t, err := s.store.ReleaseStaleTable(ctx, tableID)
	if err != nil {
		return t, err
	}
	logger.FromContext(ctx, s.lg).Warn("stale_table_released", map[string]any{"table_id": tableID, "by": by})
	s.emit(events.Event{Type: events.TableStatus, EntityID: tableID,
		OldStatus: string(models.TableOccupied), NewStatus: string(t.Status), ChangedBy: by})
	return t, nil
}

func (s *TableService) SetStatus(ctx context.Context, tableID string, to models.TableStatus, by string) (models.Table, error) {
	cur, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return models.Table{}, err
	}
	if err := models.TableTransition(cur.Status, to); err != nil {
		return cur, models.WithState(err, cur)
	}
	t, err := s.store.SetTableStatus(ctx, tableID, cur.Status, to)
	if err != nil {
		return t, err
	}
	logger.FromContext(ctx, s.lg).Info("table_status_changed", map[string]any{
		"table_id": tableID, "old_status": cur.Status, "new_status": to, "by": by,
	})
	s.emit(events.Event{Type: events.TableStatus, EntityID: tableID,
		OldStatus: string(cur.Status), NewStatus: string(to), ChangedBy: by})
	return t, nil
}
