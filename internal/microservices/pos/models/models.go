package models

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelDineIn   Channel = "DINE_IN"
	ChannelTakeaway Channel = "TAKEAWAY"
	ChannelDelivery Channel = "DELIVERY"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelDineIn, ChannelTakeaway, ChannelDelivery:
		return true
	}
	return false
}

type Instrument string

const (
	InstrumentCash   Instrument = "CASH"
	InstrumentCard   Instrument = "CARD"
	InstrumentUPI    Instrument = "UPI"
	InstrumentWallet Instrument = "WALLET"
	// InstrumentSplit only appears as Order.PaymentMethod when several
	// allocations settled one order.
	InstrumentSplit Instrument = "SPLIT"
)

// Instruments is the fixed set a Payment can be recorded against.
var Instruments = []Instrument{InstrumentCash, InstrumentCard, InstrumentUPI, InstrumentWallet}

func (i Instrument) Payable() bool {
	for _, v := range Instruments {
		if i == v {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

type DiscountKind string

const (
	DiscountAmount  DiscountKind = "AMOUNT"
	DiscountPercent DiscountKind = "PERCENT"
)

// Discount is what the operator asked for. The resolved amount lives in
// Order.Discount and is recomputed whenever the items change.
type Discount struct {
	Kind   DiscountKind `json:"kind"`
	Value  int64        `json:"value"` // minor units for AMOUNT, basis points for PERCENT
	Reason string       `json:"reason"`
}

type Table struct {
	ID        string      `json:"id"`
	Capacity  int         `json:"capacity"`
	Floor     string      `json:"floor,omitempty"`
	Status    TableStatus `json:"status"`
	OrderID   *uuid.UUID  `json:"order_id,omitempty"`
	Version   int64       `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Modifier struct {
	Name       string `json:"name"`
	PriceDelta int64  `json:"price_delta"`
}

type OrderItem struct {
	ID         uuid.UUID  `json:"id"`
	MenuItemID string     `json:"menu_item_id"`
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	UnitPrice  int64      `json:"unit_price"`
	Modifiers  []Modifier `json:"modifiers,omitempty"`
	Status     ItemStatus `json:"status"`
	Notes      string     `json:"notes,omitempty"`
}

// MaxQuantity caps a single line. The item table stores quantity as INT.
const MaxQuantity = 999

// LineTotal is (unit price + modifier deltas) x quantity. Amounts that do not
// fit in an int64 are rejected rather than wrapped.
func (it OrderItem) LineTotal() (int64, error) {
	unit := it.UnitPrice
	for _, m := range it.Modifiers {
		var err error
		if unit, err = SumAmounts(unit, m.PriceDelta); err != nil {
			return 0, err
		}
	}
	q := int64(it.Quantity)
	line := unit * q
	if q != 0 && line/q != unit {
		return 0, Validationf("line total of %s overflows", it.Name)
	}
	return line, nil
}

// SumAmounts adds minor-unit amounts, failing on overflow.
func SumAmounts(vals ...int64) (int64, error) {
	var sum int64
	for _, v := range vals {
		next := sum + v
		if (v > 0 && next < sum) || (v < 0 && next > sum) {
			return 0, Validationf("amount overflows")
		}
		sum = next
	}
	return sum, nil
}

type Order struct {
	ID            uuid.UUID     `json:"id"`
	Number        string        `json:"order_number"`
	Channel       Channel       `json:"channel"`
	Status        OrderStatus   `json:"status"`
	TableID       string        `json:"table_id,omitempty"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	Tax           int64         `json:"tax"`
	ServiceCharge int64         `json:"service_charge"`
	Discount      int64         `json:"discount"`
	Total         int64         `json:"total"`
	DiscountSpec  *Discount     `json:"discount_spec,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod Instrument    `json:"payment_method,omitempty"`
	CreatedBy     string        `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	Version       int64         `json:"version"`
}

func (o *Order) Item(id uuid.UUID) (int, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Clone deep-copies the slices so a store can hand out snapshots.
func (o Order) Clone() Order {
	c := o
	c.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Modifiers = append([]Modifier(nil), it.Modifiers...)
		c.Items[i] = it
	}
	if o.DiscountSpec != nil {
		d := *o.DiscountSpec
		c.DiscountSpec = &d
	}
	if o.ClosedAt != nil {
		t := *o.ClosedAt
		c.ClosedAt = &t
	}
	return c
}

type CashDrop struct {
	ID        uuid.UUID `json:"id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type Shift struct {
	ID             uuid.UUID            `json:"id"`
	Status         ShiftStatus          `json:"status"`
	OpenedBy       string               `json:"opened_by"`
	ClosedBy       string               `json:"closed_by,omitempty"`
	OpenedAt       time.Time            `json:"opened_at"`
	ClosedAt       *time.Time           `json:"closed_at,omitempty"`
	OpeningCash    int64                `json:"opening_cash"`
	ClosingCash    *int64               `json:"closing_cash,omitempty"`
	Totals         map[Instrument]int64 `json:"totals"`
	Discounts      int64                `json:"discounts"`
	Refunds        int64                `json:"refunds"`
	Tips           int64                `json:"tips"`
	CashDrops      []CashDrop           `json:"cash_drops"`
	ExpectedCash   *int64               `json:"expected_cash,omitempty"`
	CashDifference *int64               `json:"cash_difference,omitempty"`
	Version        int64                `json:"version"`
}

func NewShift(openingCash int64, by string, at time.Time) Shift {
	return Shift{
		ID:          uuid.New(),
		Status:      ShiftOpen,
		OpenedBy:    by,
		OpenedAt:    at,
		OpeningCash: openingCash,
		Totals:      map[Instrument]int64{},
		CashDrops:   []CashDrop{},
	}
}

func (s Shift) CashSales() int64 { return s.Totals[InstrumentCash] }

func (s Shift) DropsTotal() int64 {
	var sum int64
	for _, d := range s.CashDrops {
		sum += d.Amount
	}
	return sum
}

// ExpectedCashInDrawer = openingCash + cashSales - sum(cash drops).
func (s Shift) ExpectedCashInDrawer() int64 {
	return s.OpeningCash + s.CashSales() - s.DropsTotal()
}

func (s Shift) Clone() Shift {
	c := s
	c.Totals = make(map[Instrument]int64, len(s.Totals))
	for k, v := range s.Totals {
		c.Totals[k] = v
	}
	c.CashDrops = append([]CashDrop{}, s.CashDrops...)
	return c
}

type Payment struct {
	ID         uuid.UUID  `json:"id"`
	OrderID    uuid.UUID  `json:"order_id"`
	ShiftID    uuid.UUID  `json:"shift_id"`
	Instrument Instrument `json:"instrument"`
	Amount     int64      `json:"amount"`
	Tip        int64      `json:"tip"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StatusLog is one row of an order's timeline.
type StatusLog struct {
	OrderID   uuid.UUID  `json:"order_id"`
	ItemID    *uuid.UUID `json:"item_id,omitempty"`
	Status    string     `json:"status"`
	ChangedBy string     `json:"changed_by"`
	ChangedAt time.Time  `json:"changed_at"`
	Notes     string     `json:"notes,omitempty"`
}

type MenuItem struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Price     int64            `json:"price"`
	Available bool             `json:"is_available"`
	Modifiers map[string]int64 `json:"modifiers,omitempty"`
}
