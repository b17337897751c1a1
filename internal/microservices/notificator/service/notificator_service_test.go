package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-pos/internal/microservices/pos/events"
)

func TestDecode(t *testing.T) {
	body, err := json.Marshal(events.Event{
		Type: events.ShiftDiscrepancy, EntityID: "shift-1", ChangedBy: "mgr-1",
		Data: map[string]any{"cash_difference": -50},
	})
	require.NoError(t, err)

	e, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "Cash discrepancy on shift shift-1: -50", Describe(e))

	_, err = Decode([]byte(`{"entity_id":"x"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		event events.Event
		want  string
	}{
		{
			events.Event{Type: events.OrderStatus, OrderNumber: "ORD_20260314_001", OldStatus: "PENDING", NewStatus: "CONFIRMED", ChangedBy: "srv-1"},
			"Order ORD_20260314_001 changed from PENDING to CONFIRMED by srv-1",
		},
		{
			events.Event{Type: events.OrderCreated, OrderNumber: "ORD_20260314_002"},
			"Order ORD_20260314_002 created",
		},
		{
			events.Event{Type: events.TableStatus, EntityID: "T-05", NewStatus: "CLEANING", ChangedBy: "srv-1"},
			"Table T-05 is CLEANING",
		},
		{
			events.Event{Type: events.ShiftClosed, EntityID: "s-9", ChangedBy: "mgr-1"},
			"Shift s-9 closed by mgr-1",
		},
		{
			events.Event{Type: "menu.item_86d", EntityID: "risotto"},
			"menu item_86d risotto",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.event))
	}
}
