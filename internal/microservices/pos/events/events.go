// Package events carries state changes out of the POS core to display,
// kitchen and notification consumers. Publishing always happens after the
// owning transaction committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/connections/rabbitmq"
)

// Routing keys on the topic exchange.
const (
	OrderCreated      = "order.created"
	OrderStatus       = "order.status_changed"
	OrderItemStatus   = "order.item_status_changed"
	OrderSettled      = "order.settled"
	TableStatus       = "table.status_changed"
	ShiftOpened       = "shift.opened"
	ShiftCashDrop     = "shift.cash_drop"
	ShiftClosed       = "shift.closed"
	ShiftDiscrepancy  = "shift.cash_discrepancy"
	DefaultExchange   = "pos_events"
	NotificationQueue = "pos.notifications"
)

type Event struct {
	Type        string         `json:"type"`
	EntityID    string         `json:"entity_id"`
	OrderNumber string         `json:"order_number,omitempty"`
	OldStatus   string         `json:"old_status,omitempty"`
	NewStatus   string         `json:"new_status,omitempty"`
	ChangedBy   string         `json:"changed_by"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// AMQPPublisher publishes events as persistent JSON with the event type as
// routing key.
type AMQPPublisher struct {
	client   *rabbitmq.Client
	exchange string
}

func NewAMQPPublisher(client *rabbitmq.Client, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := client.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{client: client, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	return p.client.Publish(ctx, p.exchange, e.Type, body, amqp.Table{"x-source": "pos-service"})
}

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	lg *logger.Logger
}

func NewLogPublisher(lg *logger.Logger) *LogPublisher { return &LogPublisher{lg: lg} }

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.lg.Debug("event", map[string]any{
		"type": e.Type, "entity_id": e.EntityID, "order_number": e.OrderNumber,
		"old_status": e.OldStatus, "new_status": e.NewStatus, "changed_by": e.ChangedBy,
	})
	return nil
}

// Recorder keeps published events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Dispatch records synchronously, so a Recorder can stand in for a
// Dispatcher.
func (r *Recorder) Dispatch(e Event) { _ = r.Publish(context.Background(), e) }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Of returns the recorded events of one type.
func (r *Recorder) Of(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
