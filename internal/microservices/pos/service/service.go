package service

import (
	"time"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/billing"
	"restaurant-pos/internal/microservices/pos/events"
	"restaurant-pos/internal/microservices/pos/menu"
	"restaurant-pos/internal/microservices/pos/repository"
)

// EventSink receives committed state changes. events.Dispatcher is the
// production implementation.
type EventSink interface {
	Dispatch(e events.Event)
}

type Deps struct {
	Store   repository.Store
	Catalog menu.Catalog
	Rates   billing.Rates
	Events  EventSink
	Logger  *logger.Logger
	Now     func() time.Time
}

type Service struct {
	OrderService  OrderServiceInterface
	TableService  TableServiceInterface
	LedgerService LedgerServiceInterface
}

func New(d Deps) *Service {
	b := newBase(d)
	return &Service{
		OrderService:  &OrderService{base: b, catalog: d.Catalog, rates: d.Rates},
		TableService:  &TableService{base: b},
		LedgerService: &LedgerService{base: b},
	}
}

type nopSink struct{}

func (nopSink) Dispatch(events.Event) {}

// base is what every service shares.
type base struct {
	store  repository.Store
	events EventSink
	lg     *logger.Logger
	now    func() time.Time
}

func newBase(d Deps) base {
	b := base{store: d.Store, events: d.Events, lg: d.Logger, now: d.Now}
	if b.events == nil {
		b.events = nopSink{}
	}
	if b.lg == nil {
		b.lg = logger.New("pos-service")
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b
}

func (b base) emit(e events.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.events.Dispatch(e)
}
