package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransition(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		from    OrderStatus
		to      OrderStatus
		paid    bool
		wantErr error
	}{
		{"confirm pending", ChannelDineIn, StatusPending, StatusConfirmed, false, nil},
		{"start preparing", ChannelTakeaway, StatusConfirmed, StatusPreparing, false, nil},
		{"dine-in ready to served", ChannelDineIn, StatusReady, StatusServed, false, nil},
		{"dine-in served to completed when paid", ChannelDineIn, StatusServed, StatusCompleted, true, nil},
		{"takeaway ready to completed when paid", ChannelTakeaway, StatusReady, StatusCompleted, true, nil},
		{"delivery ready to completed when paid", ChannelDelivery, StatusReady, StatusCompleted, true, nil},
		{"dine-in cannot skip served", ChannelDineIn, StatusReady, StatusCompleted, true, ErrInvalidTransition},
		{"takeaway has no served step", ChannelTakeaway, StatusReady, StatusServed, false, ErrInvalidTransition},
		{"no skipping forward", ChannelDineIn, StatusPending, StatusPreparing, false, ErrInvalidTransition},
		{"no going back", ChannelDineIn, StatusPreparing, StatusConfirmed, false, ErrInvalidTransition},
		{"completed is terminal", ChannelTakeaway, StatusCompleted, StatusCancelled, true, ErrInvalidTransition},
		{"cancelled is terminal", ChannelTakeaway, StatusCancelled, StatusPending, false, ErrInvalidTransition},
		{"cancel preparing", ChannelDineIn, StatusPreparing, StatusCancelled, false, nil},
		{"cannot cancel ready", ChannelDineIn, StatusReady, StatusCancelled, false, ErrInvalidTransition},
		{"cannot cancel paid", ChannelTakeaway, StatusConfirmed, StatusCancelled, true, ErrInvalidState},
		{"completion needs payment", ChannelTakeaway, StatusReady, StatusCompleted, false, ErrInvalidState},
		{"unknown target", ChannelTakeaway, StatusPending, OrderStatus("EATEN"), false, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := OrderTransition(tt.channel, tt.from, tt.to, tt.paid)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransitionErrorIsInvalidState(t *testing.T) {
	err := OrderTransition(ChannelDineIn, StatusReady, StatusCompleted, true)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestNextStatuses(t *testing.T) {
	assert.Equal(t, []OrderStatus{StatusConfirmed, StatusCancelled}, NextStatuses(ChannelDineIn, StatusPending))
	assert.Equal(t, []OrderStatus{StatusServed}, NextStatuses(ChannelDineIn, StatusReady))
	assert.Equal(t, []OrderStatus{StatusCompleted}, NextStatuses(ChannelDelivery, StatusReady))
	assert.Nil(t, NextStatuses(ChannelDineIn, StatusCompleted))
}

func TestItemTransition(t *testing.T) {
	tests := []struct {
		name    string
		order   OrderStatus
		from    ItemStatus
		to      ItemStatus
		wantErr error
	}{
		{"start item while order preparing", StatusPreparing, ItemPending, ItemPreparing, nil},
		{"item cannot run ahead of order", StatusConfirmed, ItemPending, ItemPreparing, ErrInvalidTransition},
		{"ready item on ready order", StatusReady, ItemPreparing, ItemReady, nil},
		{"serve item on served order", StatusServed, ItemReady, ItemServed, nil},
		{"no skipping", StatusServed, ItemPending, ItemReady, ErrInvalidTransition},
		{"cancelled order freezes items", StatusCancelled, ItemPending, ItemPreparing, ErrInvalidState},
		{"unknown item status", StatusPreparing, ItemPending, ItemStatus("BURNT"), ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ItemTransition(tt.order, tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTableTransition(t *testing.T) {
	ok := [][2]TableStatus{
		{TableCleaning, TableAvailable},
		{TableAvailable, TableReserved},
		{TableReserved, TableAvailable},
		{TableBlocked, TableAvailable},
		{TableAvailable, TableBlocked},
		{TableCleaning, TableBlocked},
	}
	for _, p := range ok {
		assert.NoError(t, TableTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}

	bad := [][2]TableStatus{
		{TableAvailable, TableOccupied},
		{TableOccupied, TableCleaning},
		{TableOccupied, TableBlocked},
		{TableReserved, TableCleaning},
		{TableBlocked, TableBlocked},
	}
	for _, p := range bad {
		assert.ErrorIs(t, TableTransition(p[0], p[1]), ErrInvalidTransition, "%s -> %s", p[0], p[1])
	}
}

func TestShiftExpectedCash(t *testing.T) {
	s := Shift{OpeningCash: 5000, Totals: map[Instrument]int64{InstrumentCash: 1250, InstrumentCard: 9999}}
	s.CashDrops = []CashDrop{{Amount: 500}}
	assert.Equal(t, int64(5750), s.ExpectedCashInDrawer())
}

func TestLineTotal(t *testing.T) {
	it := OrderItem{Quantity: 3, UnitPrice: 25000, Modifiers: []Modifier{{Name: "cheese", PriceDelta: 3000}}}
	got, err := it.LineTotal()
	assert.NoError(t, err)
	assert.Equal(t, int64(84000), got)

	_, err = OrderItem{Quantity: 73786976294838207, UnitPrice: 250}.LineTotal()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSumAmounts(t *testing.T) {
	got, err := SumAmounts(5000, 1250, -500)
	assert.NoError(t, err)
	assert.Equal(t, int64(5750), got)

	_, err = SumAmounts(1<<62, 1<<62)
	assert.ErrorIs(t, err, ErrValidation)
}
