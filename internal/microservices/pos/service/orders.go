package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/billing"
	"restaurant-pos/internal/microservices/pos/events"
	"restaurant-pos/internal/microservices/pos/menu"
	"restaurant-pos/internal/microservices/pos/models"
	"restaurant-pos/internal/microservices/pos/repository"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest, by string) (models.Order, error)
	AddItem(ctx context.Context, orderID uuid.UUID, req ItemRequest, by string) (models.Order, error)
	UpdateItemQuantity(ctx context.Context, orderID, itemID uuid.UUID, quantity int, by string) (models.Order, error)
	RemoveItem(ctx context.Context, orderID, itemID uuid.UUID, by string) (models.Order, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, target models.OrderStatus, expectedVersion *int64, by string) (models.Order, error)
	AdvanceItemStatus(ctx context.Context, orderID, itemID uuid.UUID, target models.ItemStatus, by string) (models.Order, error)
	ApplyDiscount(ctx context.Context, orderID uuid.UUID, d models.Discount, by string) (models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (models.Order, error)
	List(ctx context.Context, f repository.OrderFilter) ([]models.Order, error)
	Timeline(ctx context.Context, orderID uuid.UUID) ([]models.StatusLog, error)
}

type ItemRequest struct {
	MenuItemID string
	Quantity   int
	Modifiers  []string
	Notes      string
}

type CreateOrderRequest struct {
	Channel models.Channel
	TableID string
	Items   []ItemRequest
}

type OrderService struct {
	base
	catalog menu.Catalog
	rates   billing.Rates
}

func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest, by string) (models.Order, error) {
	if !req.Channel.Valid() {
		return models.Order{}, models.Validationf("unknown channel %q", req.Channel)
	}
	if len(req.Items) == 0 {
		return models.Order{}, models.Validationf("an order needs at least one item")
	}
	if req.Channel == models.ChannelDineIn && req.TableID == "" {
		return models.Order{}, models.Validationf("dine-in orders need a table")
	}
	if req.Channel != models.ChannelDineIn && req.TableID != "" {
		return models.Order{}, models.Validationf("%s orders cannot take a table", req.Channel)
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, ir := range req.Items {
		it, err := s.buildItem(ctx, ir)
		if err != nil {
			return models.Order{}, err
		}
		items = append(items, it)
	}

	now := s.now()
	o := models.Order{
		ID:            uuid.New(),
		Channel:       req.Channel,
		Status:        models.StatusPending,
		TableID:       req.TableID,
		Items:         items,
		PaymentStatus: models.PaymentUnpaid,
		CreatedBy:     by,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := billing.Apply(&o, s.rates); err != nil {
		return models.Order{}, err
	}

	log := models.StatusLog{OrderID: o.ID, Status: string(o.Status), ChangedBy: by, ChangedAt: now, Notes: "order created"}
	if err := s.store.CreateOrder(ctx, &o, log); err != nil {
		return models.Order{}, err
	}

	logger.FromContext(ctx, s.lg).Info("order_created", map[string]any{
		"order_number": o.Number, "channel": o.Channel, "table_id": o.TableID, "total": o.Total,
	})
	s.emit(events.Event{
		Type: events.OrderCreated, EntityID: o.ID.String(), OrderNumber: o.Number,
		NewStatus: string(o.Status), ChangedBy: by,
		Data: map[string]any{"channel": o.Channel, "table_id": o.TableID, "total": o.Total},
	})
	if o.TableID != "" {
		s.emit(events.Event{
			Type: events.TableStatus, EntityID: o.TableID, OrderNumber: o.Number,
			NewStatus: string(models.TableOccupied), ChangedBy: by,
		})
	}
	return o, nil
}

func (s *OrderService) buildItem(ctx context.Context, req ItemRequest) (models.OrderItem, error) {
	if req.Quantity <= 0 || req.Quantity > models.MaxQuantity {
		return models.OrderItem{}, models.Validationf("quantity of %s must be between 1 and %d", req.MenuItemID, models.MaxQuantity)
	}
	mi, err := s.catalog.Lookup(ctx, req.MenuItemID)
	if errors.Is(err, menu.ErrUnknownItem) {
		return models.OrderItem{}, models.Validationf("unknown menu item %q", req.MenuItemID)
	}
	if err != nil {
		return models.OrderItem{}, fmt.Errorf("menu lookup: %w", err)
	}
	if !mi.Available {
		return models.OrderItem{}, models.Validationf("%s is not available", mi.Name)
	}

	it := models.OrderItem{
		ID:         uuid.New(),
		MenuItemID: mi.ID,
		Name:       mi.Name,
		Quantity:   req.Quantity,
		UnitPrice:  mi.Price,
		Status:     models.ItemPending,
		Notes:      req.Notes,
	}
	for _, name := range req.Modifiers {
		delta, ok := mi.Modifiers[name]
		if !ok {
			return models.OrderItem{}, models.Validationf("%s has no modifier %q", mi.Name, name)
		}
		it.Modifiers = append(it.Modifiers, models.Modifier{Name: name, PriceDelta: delta})
	}
	return it, nil
}

// mutate loads the order, lets fn change a copy and saves it against the
// version it was loaded at.
func (s *OrderService) mutate(ctx context.Context, orderID uuid.UUID, expected *int64, fn func(o *models.Order) ([]models.StatusLog, error)) (models.Order, models.Order, error) {
	prev, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, models.Order{}, err
	}
	if expected != nil && *expected != prev.Version {
		e := models.NewError(models.ErrConcurrentModification, "order %s is at version %d, not %d", prev.Number, prev.Version, *expected)
		e.State = prev
		return models.Order{}, prev, e
	}
	o := prev.Clone()
	logs, err := fn(&o)
	if err != nil {
		return models.Order{}, prev, models.WithState(err, prev)
	}
	o.UpdatedAt = s.now()
	if err := s.store.SaveOrder(ctx, &o, prev.Version, logs...); err != nil {
		return models.Order{}, prev, err
	}
	return o, prev, nil
}

func editable(o *models.Order) error {
	if !o.Status.Editable() || o.PaymentStatus != models.PaymentUnpaid {
		return models.StateErrorf("order %s is %s/%s; items change only while PENDING or CONFIRMED and unpaid",
			o.Number, o.Status, o.PaymentStatus)
	}
	return nil
}

func (s *OrderService) AddItem(ctx context.Context, orderID uuid.UUID, req ItemRequest, by string) (models.Order, error) {
	o, _, err := s.mutate(ctx, orderID, nil, func(o *models.Order) ([]models.StatusLog, error) {
		if err := editable(o); err != nil {
			return nil, err
		}
		it, err := s.buildItem(ctx, req)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
		return nil, billing.Apply(o, s.rates)
	})
	if err != nil {
		return models.Order{}, err
	}
	logger.FromContext(ctx, s.lg).Info("order_item_added", map[string]any{"order_number": o.Number, "menu_item_id": req.MenuItemID, "by": by})
	return o, nil
}

func (s *OrderService) UpdateItemQuantity(ctx context.Context, orderID, itemID uuid.UUID, quantity int, by string) (models.Order, error) {
	o, _, err := s.mutate(ctx, orderID, nil, func(o *models.Order) ([]models.StatusLog, error) {
		if err := editable(o); err != nil {
			return nil, err
		}
		if quantity <= 0 || quantity > models.MaxQuantity {
			return nil, models.Validationf("quantity must be between 1 and %d", models.MaxQuantity)
		}
		i, ok := o.Item(itemID)
		if !ok {
			return nil, models.NewError(models.ErrNotFound, "item %s not found on order %s", itemID, o.Number)
		}
		o.Items[i].Quantity = quantity
		return nil, billing.Apply(o, s.rates)
	})
	if err != nil {
		return models.Order{}, err
	}
	logger.FromContext(ctx, s.lg).Info("order_item_updated", map[string]any{"order_number": o.Number, "item_id": itemID, "quantity": quantity, "by": by})
	return o, nil
}

func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID uuid.UUID, by string) (models.Order, error) {
	o, _, err := s.mutate(ctx, orderID, nil, func(o *models.Order) ([]models.StatusLog, error) {
		if err := editable(o); err != nil {
			return nil, err
		}
		i, ok := o.Item(itemID)
		if !ok {
			return nil, models.NewError(models.ErrNotFound, "item %s not found on order %s", itemID, o.Number)
		}
		if len(o.Items) == 1 {
			return nil, models.Validationf("cannot remove the last item; cancel the order instead")
		}
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
		return nil, billing.Apply(o, s.rates)
	})
	if err != nil {
		return models.Order{}, err
	}
	logger.FromContext(ctx, s.lg).Info("order_item_removed", map[string]any{"order_number": o.Number, "item_id": itemID, "by": by})
	return o, nil
}

func (s *OrderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, target models.OrderStatus, expectedVersion *int64, by string) (models.Order, error) {
	o, prev, err := s.mutate(ctx, orderID, expectedVersion, func(o *models.Order) ([]models.StatusLog, error) {
		if err := models.OrderTransition(o.Channel, o.Status, target, o.PaymentStatus == models.PaymentPaid); err != nil {
			return nil, err
		}
		now := s.now()
		o.Status = target
		if target.Terminal() {
			o.ClosedAt = &now
		}
		return []models.StatusLog{{OrderID: o.ID, Status: string(target), ChangedBy: by, ChangedAt: now}}, nil
	})
	if err != nil {
		return models.Order{}, err
	}

	logger.FromContext(ctx, s.lg).Info("order_status_changed", map[string]any{
		"order_number": o.Number, "old_status": prev.Status, "new_status": o.Status, "by": by,
	})
	s.emit(events.Event{
		Type: events.OrderStatus, EntityID: o.ID.String(), OrderNumber: o.Number,
		OldStatus: string(prev.Status), NewStatus: string(o.Status), ChangedBy: by,
		Data: map[string]any{"channel": o.Channel, "table_id": o.TableID},
	})
	if o.Status.Terminal() && o.TableID != "" {
		s.emit(events.Event{
			Type: events.TableStatus, EntityID: o.TableID, OrderNumber: o.Number,
			OldStatus: string(models.TableOccupied), NewStatus: string(models.TableCleaning), ChangedBy: by,
		})
	}
	return o, nil
}

func (s *OrderService) AdvanceItemStatus(ctx context.Context, orderID, itemID uuid.UUID, target models.ItemStatus, by string) (models.Order, error) {
	var from models.ItemStatus
	o, _, err := s.mutate(ctx, orderID, nil, func(o *models.Order) ([]models.StatusLog, error) {
		i, ok := o.Item(itemID)
		if !ok {
			return nil, models.NewError(models.ErrNotFound, "item %s not found on order %s", itemID, o.Number)
		}
		from = o.Items[i].Status
		if err := models.ItemTransition(o.Status, from, target); err != nil {
			return nil, err
		}
		o.Items[i].Status = target
		id := itemID
		return []models.StatusLog{{OrderID: o.ID, ItemID: &id, Status: string(target), ChangedBy: by, ChangedAt: s.now(), Notes: o.Items[i].Name}}, nil
	})
	if err != nil {
		return models.Order{}, err
	}
	s.emit(events.Event{
		Type: events.OrderItemStatus, EntityID: o.ID.String(), OrderNumber: o.Number,
		OldStatus: string(from), NewStatus: string(target), ChangedBy: by,
		Data: map[string]any{"item_id": itemID},
	})
	return o, nil
}

func (s *OrderService) ApplyDiscount(ctx context.Context, orderID uuid.UUID, d models.Discount, by string) (models.Order, error) {
	o, _, err := s.mutate(ctx, orderID, nil, func(o *models.Order) ([]models.StatusLog, error) {
		if o.Status.Terminal() || o.PaymentStatus != models.PaymentUnpaid {
			return nil, models.StateErrorf("order %s is %s/%s; discounts apply only to open unpaid orders", o.Number, o.Status, o.PaymentStatus)
		}
		if d.Value == 0 {
			o.DiscountSpec = nil
		} else {
			spec := d
			o.DiscountSpec = &spec
		}
		if err := billing.Apply(o, s.rates); err != nil {
			return nil, err
		}
		note := fmt.Sprintf("discount %d: %s", o.Discount, d.Reason)
		return []models.StatusLog{{OrderID: o.ID, Status: string(o.Status), ChangedBy: by, ChangedAt: s.now(), Notes: note}}, nil
	})
	if err != nil {
		return models.Order{}, err
	}
	logger.FromContext(ctx, s.lg).Info("discount_applied", map[string]any{
		"order_number": o.Number, "discount": o.Discount, "reason": d.Reason, "by": by,
	})
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *OrderService) List(ctx context.Context, f repository.OrderFilter) ([]models.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, models.Validationf("unknown order status %q", f.Status)
	}
	if f.Channel != "" && !f.Channel.Valid() {
		return nil, models.Validationf("unknown channel %q", f.Channel)
	}
	return s.store.ListOrders(ctx, f)
}

func (s *OrderService) Timeline(ctx context.Context, orderID uuid.UUID) ([]models.StatusLog, error) {
	return s.store.Timeline(ctx, orderID)
}
