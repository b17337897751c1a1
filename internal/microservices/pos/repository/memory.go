package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"restaurant-pos/internal/microservices/pos/models"
)

// MemoryStore keeps everything in process behind one mutex. It backs the
// `storage: memory` mode and the tests; it gives the same atomicity as the
// Postgres store but nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	tables   map[string]models.Table
	orders   map[uuid.UUID]models.Order
	daySeq   map[string]int
	logs     map[uuid.UUID][]models.StatusLog
	shifts   map[uuid.UUID]models.Shift
	openID   *uuid.UUID
	payments map[uuid.UUID][]models.Payment
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   map[string]models.Table{},
		orders:   map[uuid.UUID]models.Order{},
		daySeq:   map[string]int{},
		logs:     map[uuid.UUID][]models.StatusLog{},
		shifts:   map[uuid.UUID]models.Shift{},
		payments: map[uuid.UUID][]models.Payment{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ProvisionTables(_ context.Context, tables []models.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tables {
		cur, ok := m.tables[t.ID]
		if !ok {
			if t.Status == "" {
				t.Status = models.TableAvailable
			}
			t.UpdatedAt = m.now()
			m.tables[t.ID] = t
			continue
		}
		cur.Capacity, cur.Floor = t.Capacity, t.Floor
		m.tables[t.ID] = cur
	}
	return nil
}

func (m *MemoryStore) ListTables(_ context.Context) ([]models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetTable(_ context.Context, id string) (models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return models.Table{}, notFound("table", id)
	}
	return t, nil
}

func (m *MemoryStore) SetTableStatus(_ context.Context, id string, from, to models.TableStatus) (models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return models.Table{}, notFound("table", id)
	}
	if t.Status != from {
		return t, staleTable(t)
	}
	t.Status = to
	t.Version++
	t.UpdatedAt = m.now()
	m.tables[id] = t
	return t, nil
}

func (m *MemoryStore) ReleaseStaleTable(_ context.Context, id string) (models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return models.Table{}, notFound("table", id)
	}
	if t.Status != models.TableOccupied {
		e := models.TransitionErrorf("table %s is %s, not OCCUPIED", t.ID, t.Status)
		e.State = t
		return t, e
	}
	if t.OrderID != nil {
		if o, ok := m.orders[*t.OrderID]; ok && !o.Status.Terminal() {
			e := models.StateErrorf("table %s is held by active order %s", t.ID, o.Number)
			e.State = t
			return t, e
		}
	}
	m.releaseLocked(&t)
	return t, nil
}

// seatLocked is the compare-and-swap AVAILABLE|RESERVED -> OCCUPIED.
func (m *MemoryStore) seatLocked(tableID string, orderID uuid.UUID) (models.Table, error) {
	t, ok := m.tables[tableID]
	if !ok {
		return models.Table{}, models.Validationf("table %s does not exist", tableID)
	}
	if !t.Status.Seatable() {
		return t, tableUnavailable(t)
	}
	id := orderID
	t.Status = models.TableOccupied
	t.OrderID = &id
	t.Version++
	t.UpdatedAt = m.now()
	m.tables[tableID] = t
	return t, nil
}

func (m *MemoryStore) releaseLocked(t *models.Table) {
	t.Status = models.TableCleaning
	t.OrderID = nil
	t.Version++
	t.UpdatedAt = m.now()
	m.tables[t.ID] = *t
}

func (m *MemoryStore) CreateOrder(_ context.Context, o *models.Order, log models.StatusLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.TableID != "" {
		if _, err := m.seatLocked(o.TableID, o.ID); err != nil {
			return err
		}
	}
	day := o.CreatedAt.UTC().Format("20060102")
	m.daySeq[day]++
	o.Number = OrderNumber(o.CreatedAt, m.daySeq[day])
	o.Version = 1
	m.orders[o.ID] = o.Clone()
	m.logs[o.ID] = append(m.logs[o.ID], log)
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id uuid.UUID) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return models.Order{}, notFound("order", id.String())
	}
	return o.Clone(), nil
}

func (m *MemoryStore) ListOrders(_ context.Context, f OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Channel != "" && o.Channel != f.Channel {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveOrder(_ context.Context, o *models.Order, expected int64, logs ...models.StatusLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return notFound("order", o.ID.String())
	}
	if cur.Version != expected {
		return staleOrder(cur.Clone())
	}
	if o.Status.Terminal() && !cur.Status.Terminal() && cur.TableID != "" {
		if t, ok := m.tables[cur.TableID]; ok && t.OrderID != nil && *t.OrderID == o.ID {
			m.releaseLocked(&t)
		}
	}
	o.Version = cur.Version + 1
	m.orders[o.ID] = o.Clone()
	m.logs[o.ID] = append(m.logs[o.ID], logs...)
	return nil
}

func (m *MemoryStore) MoveOrder(_ context.Context, orderID uuid.UUID, tableID string, expected int64, log models.StatusLog) (models.Order, models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return models.Order{}, models.Table{}, notFound("order", orderID.String())
	}
	if o.Version != expected {
		return models.Order{}, models.Table{}, staleOrder(o.Clone())
	}
	t, err := m.seatLocked(tableID, orderID)
	if err != nil {
		return models.Order{}, t, err
	}
	if prev, ok := m.tables[o.TableID]; ok && prev.OrderID != nil && *prev.OrderID == orderID {
		m.releaseLocked(&prev)
	}
	o.TableID = tableID
	o.Version++
	o.UpdatedAt = m.now()
	m.orders[orderID] = o
	m.logs[orderID] = append(m.logs[orderID], log)
	return o.Clone(), t, nil
}

func (m *MemoryStore) Timeline(_ context.Context, orderID uuid.UUID) ([]models.StatusLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, notFound("order", orderID.String())
	}
	return append([]models.StatusLog{}, m.logs[orderID]...), nil
}

func (m *MemoryStore) OpenShift(_ context.Context, s *models.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openID != nil {
		e := models.NewError(models.ErrShiftAlreadyOpen, "shift %s is already open", *m.openID)
		e.State = m.shifts[*m.openID].Clone()
		return e
	}
	s.Version = 1
	m.shifts[s.ID] = s.Clone()
	id := s.ID
	m.openID = &id
	return nil
}

func (m *MemoryStore) ActiveShift(_ context.Context) (models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openID == nil {
		return models.Shift{}, models.NewError(models.ErrNoActiveShift, "no shift is open")
	}
	return m.shifts[*m.openID].Clone(), nil
}

func (m *MemoryStore) GetShift(_ context.Context, id uuid.UUID) (models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return models.Shift{}, notFound("shift", id.String())
	}
	return s.Clone(), nil
}

func (m *MemoryStore) AddCashDrop(_ context.Context, shiftID uuid.UUID, d models.CashDrop) (models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[shiftID]
	if !ok {
		return models.Shift{}, notFound("shift", shiftID.String())
	}
	if s.Status != models.ShiftOpen {
		return s.Clone(), shiftNotOpen(s.Clone())
	}
	if d.Amount > s.ExpectedCashInDrawer() {
		return s.Clone(), dropTooLarge(s.Clone(), d.Amount)
	}
	s = s.Clone()
	s.CashDrops = append(s.CashDrops, d)
	s.Version++
	m.shifts[shiftID] = s
	return s.Clone(), nil
}

func (m *MemoryStore) CloseShift(_ context.Context, shiftID uuid.UUID, counted int64, by string, at time.Time) (models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[shiftID]
	if !ok {
		return models.Shift{}, notFound("shift", shiftID.String())
	}
	if s.Status != models.ShiftOpen {
		return s.Clone(), shiftNotOpen(s.Clone())
	}
	s = s.Clone()
	closeShift(&s, counted, by, at)
	m.shifts[shiftID] = s
	m.openID = nil
	return s.Clone(), nil
}

func closeShift(s *models.Shift, counted int64, by string, at time.Time) {
	expected := s.ExpectedCashInDrawer()
	diff := counted - expected
	s.Status = models.ShiftClosed
	s.ClosedBy = by
	s.ClosedAt = &at
	s.ClosingCash = &counted
	s.ExpectedCash = &expected
	s.CashDifference = &diff
	s.Version++
}

func (m *MemoryStore) Settle(_ context.Context, orderID uuid.UUID, expected int64, payments []models.Payment, log models.StatusLog) (models.Order, models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return models.Order{}, models.Shift{}, notFound("order", orderID.String())
	}
	if m.openID == nil {
		e := models.NewError(models.ErrNoActiveShift, "no shift is open; payments cannot be recorded")
		e.State = o.Clone()
		return models.Order{}, models.Shift{}, e
	}
	if o.Version != expected || o.PaymentStatus != models.PaymentUnpaid {
		return models.Order{}, models.Shift{}, staleOrder(o.Clone())
	}
	s := m.shifts[*m.openID].Clone()
	for i := range payments {
		payments[i].ShiftID = s.ID
	}
	recorded := append([]models.Payment(nil), payments...)
	applySettlement(&s, o, recorded)
	s.Version++

	o = o.Clone()
	o.PaymentStatus = models.PaymentPaid
	o.PaymentMethod = settledMethod(recorded)
	o.UpdatedAt = m.now()
	o.Version++

	m.shifts[s.ID] = s
	m.orders[orderID] = o
	m.payments[orderID] = append(m.payments[orderID], recorded...)
	m.logs[orderID] = append(m.logs[orderID], log)
	return o.Clone(), s.Clone(), nil
}

func (m *MemoryStore) PaymentsForOrder(_ context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Payment{}, m.payments[orderID]...), nil
}
