package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/connections/rabbitmq"
	"restaurant-pos/internal/microservices/pos/events"
)

// NotificatorService is the reference display consumer: it prints one
// human-readable line per POS event.
type NotificatorService struct {
	client   *rabbitmq.Client
	exchange string
	out      io.Writer
	lg       *logger.Logger
}

func NewNotificatorService(client *rabbitmq.Client, exchange string, out io.Writer, lg *logger.Logger) *NotificatorService {
	if exchange == "" {
		exchange = events.DefaultExchange
	}
	return &NotificatorService{client: client, exchange: exchange, out: out, lg: lg}
}

func (ns *NotificatorService) Notify(ctx context.Context) error {
	if err := ns.client.DeclareQueue(events.NotificationQueue, ns.exchange, "order.#", "table.#", "shift.#"); err != nil {
		return fmt.Errorf("declare notification queue: %w", err)
	}
	msgs, err := ns.client.Consume(events.NotificationQueue, "notification-subscriber", 10)
	if err != nil {
		return fmt.Errorf("consume %s: %w", events.NotificationQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			ns.handle(msg)
		}
	}
}

func (ns *NotificatorService) handle(msg amqp.Delivery) {
	e, err := Decode(msg.Body)
	if err != nil {
		ns.lg.Error("notification_decode_failed", err, map[string]any{"routing_key": msg.RoutingKey})
		_ = msg.Nack(false, false)
		return
	}
	fmt.Fprintln(ns.out, Describe(e))
	ns.lg.Debug("notification_received", map[string]any{"type": e.Type, "entity_id": e.EntityID})
	_ = msg.Ack(false)
}

func Decode(body []byte) (events.Event, error) {
	var e events.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return events.Event{}, err
	}
	if e.Type == "" {
		return events.Event{}, fmt.Errorf("event without type")
	}
	return e, nil
}

// Describe renders an event for the notification display.
func Describe(e events.Event) string {
	by := ""
	if e.ChangedBy != "" {
		by = " by " + e.ChangedBy
	}
	switch e.Type {
	case events.OrderCreated:
		return fmt.Sprintf("Order %s created%s", e.OrderNumber, by)
	case events.OrderStatus:
		return fmt.Sprintf("Order %s changed from %s to %s%s", e.OrderNumber, e.OldStatus, e.NewStatus, by)
	case events.OrderItemStatus:
		return fmt.Sprintf("Order %s: item now %s%s", e.OrderNumber, e.NewStatus, by)
	case events.OrderSettled:
		return fmt.Sprintf("Order %s settled%s", e.OrderNumber, by)
	case events.TableStatus:
		return fmt.Sprintf("Table %s is %s", e.EntityID, e.NewStatus)
	case events.ShiftOpened:
		return fmt.Sprintf("Shift %s opened%s", e.EntityID, by)
	case events.ShiftCashDrop:
		return fmt.Sprintf("Cash drop on shift %s%s", e.EntityID, by)
	case events.ShiftClosed:
		return fmt.Sprintf("Shift %s closed%s", e.EntityID, by)
	case events.ShiftDiscrepancy:
		return fmt.Sprintf("Cash discrepancy on shift %s: %v", e.EntityID, e.Data["cash_difference"])
	}
	return fmt.Sprintf("%s %s", strings.ReplaceAll(e.Type, ".", " "), e.EntityID)
}
