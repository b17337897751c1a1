package models

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusPreparing OrderStatus = "PREPARING"
	StatusReady     OrderStatus = "READY"
	StatusServed    OrderStatus = "SERVED"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusServed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Editable reports whether line items may still change.
func (s OrderStatus) Editable() bool {
	return s == StatusPending || s == StatusConfirmed
}

var (
	dineInPath  = []OrderStatus{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusServed, StatusCompleted}
	counterPath = []OrderStatus{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted}
)

func pathFor(ch Channel) []OrderStatus {
	if ch == ChannelDineIn {
		return dineInPath
	}
	return counterPath
}

func indexOf(path []OrderStatus, s OrderStatus) int {
	for i, v := range path {
		if v == s {
			return i
		}
	}
	return -1
}

// NextStatuses lists the legal targets from the given status, ignoring payment.
func NextStatuses(ch Channel, from OrderStatus) []OrderStatus {
	if from.Terminal() {
		return nil
	}
	path := pathFor(ch)
	var out []OrderStatus
	if i := indexOf(path, from); i >= 0 && i+1 < len(path) {
		out = append(out, path[i+1])
	}
	if cancellable(from) {
		out = append(out, StatusCancelled)
	}
	return out
}

func cancellable(s OrderStatus) bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusPreparing
}

// OrderTransition validates from -> to for an order on the given channel.
// paid is true once a settlement has been recorded.
func OrderTransition(ch Channel, from, to OrderStatus, paid bool) error {
	if !to.Valid() {
		return Validationf("unknown order status %q", to)
	}
	if from.Terminal() {
		return TransitionErrorf("order is %s and can no longer change", from)
	}
	if to == StatusCancelled {
		if !cancellable(from) {
			return TransitionErrorf("cannot cancel an order that is %s", from)
		}
		if paid {
			return StateErrorf("order has recorded payments; reverse them through a refund instead of cancelling")
		}
		return nil
	}
	path := pathFor(ch)
	i, j := indexOf(path, from), indexOf(path, to)
	if j < 0 {
		return TransitionErrorf("%s is not a step for %s orders", to, ch)
	}
	if i < 0 || j != i+1 {
		return TransitionErrorf("cannot move %s order from %s to %s", ch, from, to)
	}
	if to == StatusCompleted && !paid {
		return StateErrorf("order must be settled before it is completed")
	}
	return nil
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
	ItemServed    ItemStatus = "SERVED"
)

var itemPath = []ItemStatus{ItemPending, ItemPreparing, ItemReady, ItemServed}

func itemRank(s ItemStatus) int {
	for i, v := range itemPath {
		if v == s {
			return i
		}
	}
	return -1
}

// ItemCeiling is the furthest an item may be while its order is in s.
func ItemCeiling(s OrderStatus) (ItemStatus, bool) {
	switch s {
	case StatusPending, StatusConfirmed:
		return ItemPending, true
	case StatusPreparing:
		return ItemPreparing, true
	case StatusReady:
		return ItemReady, true
	case StatusServed, StatusCompleted:
		return ItemServed, true
	}
	return "", false
}

// ItemTransition validates one forward step of a line item, capped by the
// status of the order that owns it.
func ItemTransition(order OrderStatus, from, to ItemStatus) error {
	rt := itemRank(to)
	if rt < 0 {
		return Validationf("unknown item status %q", to)
	}
	ceiling, ok := ItemCeiling(order)
	if !ok {
		return StateErrorf("items of a %s order cannot change", order)
	}
	if rt != itemRank(from)+1 {
		return TransitionErrorf("cannot move item from %s to %s", from, to)
	}
	if rt > itemRank(ceiling) {
		return TransitionErrorf("item cannot be %s while the order is %s", to, order)
	}
	return nil
}

type TableStatus string

const (
	TableAvailable TableStatus = "AVAILABLE"
	TableOccupied  TableStatus = "OCCUPIED"
	TableReserved  TableStatus = "RESERVED"
	TableCleaning  TableStatus = "CLEANING"
	TableBlocked   TableStatus = "BLOCKED"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved, TableCleaning, TableBlocked:
		return true
	}
	return false
}

// Seatable is the precondition of the seat compare-and-swap.
func (s TableStatus) Seatable() bool {
	return s == TableAvailable || s == TableReserved
}

// TableTransition validates operator-driven table moves. OCCUPIED is
// entered and left only through seat and release.
func TableTransition(from, to TableStatus) error {
	if !to.Valid() {
		return Validationf("unknown table status %q", to)
	}
	if to == TableOccupied {
		return TransitionErrorf("tables become OCCUPIED only by seating an order")
	}
	if from == TableOccupied {
		return TransitionErrorf("table is occupied; complete, cancel or move its order first")
	}
	switch {
	case to == TableBlocked && from != TableBlocked:
		return nil
	case from == TableCleaning && to == TableAvailable,
		from == TableBlocked && to == TableAvailable,
		from == TableAvailable && to == TableReserved,
		from == TableReserved && to == TableAvailable:
		return nil
	}
	return TransitionErrorf("cannot move table from %s to %s", from, to)
}

type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "OPEN"
	ShiftClosed ShiftStatus = "CLOSED"
)
