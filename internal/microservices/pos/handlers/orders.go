package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/billing"
	"restaurant-pos/internal/microservices/pos/models"
	"restaurant-pos/internal/microservices/pos/repository"
	"restaurant-pos/internal/microservices/pos/service"
)

type OrderHandler struct {
	orders service.OrderServiceInterface
	ledger service.LedgerServiceInterface
	lg     *logger.Logger
}

type itemRequest struct {
	MenuItemID string   `json:"menu_item_id" validate:"required"`
	Quantity   int      `json:"quantity" validate:"gt=0,lte=999"`
	Modifiers  []string `json:"modifiers"`
	Notes      string   `json:"notes" validate:"max=200"`
}

func (ir itemRequest) toService() service.ItemRequest {
	return service.ItemRequest{MenuItemID: ir.MenuItemID, Quantity: ir.Quantity, Modifiers: ir.Modifiers, Notes: ir.Notes}
}

type createOrderRequest struct {
	Channel string        `json:"channel" validate:"required"`
	TableID string        `json:"table_id"`
	Items   []itemRequest `json:"items" validate:"dive"`
}

type statusRequest struct {
	Status  string `json:"status" validate:"required"`
	Version *int64 `json:"version"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type discountRequest struct {
	Amount  *int64 `json:"amount"`
	Percent string `json:"percent"`
	Reason  string `json:"reason" validate:"required,max=200"`
}

type allocationRequest struct {
	Instrument string `json:"instrument" validate:"required"`
	Amount     int64  `json:"amount"`
	Tip        int64  `json:"tip"`
}

type settleRequest struct {
	Allocations []allocationRequest `json:"allocations" validate:"dive"`
}

type settleResponse struct {
	Order    models.Order     `json:"order"`
	Payments []models.Payment `json:"payments"`
}

type splitResponse struct {
	OrderID uuid.UUID `json:"order_id"`
	Total   int64     `json:"total"`
	Parties int       `json:"parties"`
	Shares  []int64   `json:"shares"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	items := make([]service.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = it.toService()
	}
	o, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		Channel: models.Channel(req.Channel), TableID: req.TableID, Items: items,
	}, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.OrderFilter{
		Status:  models.OrderStatus(q.Get("status")),
		Channel: models.Channel(q.Get("channel")),
		Limit:   atoiDefault(q.Get("limit"), 100),
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	logs, err := h.orders.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "events": logs})
}

func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.AdvanceStatus(r.Context(), id, models.OrderStatus(req.Status), req.Version, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req itemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.AddItem(r.Context(), id, req.toService(), actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.UpdateItemQuantity(r.Context(), id, itemID, req.Quantity, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	o, err := h.orders.RemoveItem(r.Context(), id, itemID, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) AdvanceItemStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.AdvanceItemStatus(r.Context(), id, itemID, models.ItemStatus(req.Status), actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req discountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.Amount == nil) == (req.Percent == "") {
		writeProblem(w, http.StatusBadRequest, "validation_error", "give exactly one of amount or percent", nil)
		return
	}
	d := models.Discount{Kind: models.DiscountAmount, Reason: req.Reason}
	if req.Amount != nil {
		d.Value = *req.Amount
	} else {
		bps, err := billing.ParsePercent(req.Percent)
		if err != nil {
			writeError(w, r, h.lg, err)
			return
		}
		d.Kind, d.Value = models.DiscountPercent, bps
	}
	o, err := h.orders.ApplyDiscount(r.Context(), id, d, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Split(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	parties, err := strconv.Atoi(r.URL.Query().Get("parties"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "validation_error", "parties must be an integer", nil)
		return
	}
	o, shares, err := h.ledger.Split(r.Context(), id, parties)
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, splitResponse{OrderID: o.ID, Total: o.Total, Parties: parties, Shares: shares})
}

func (h *OrderHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req settleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	allocs := make([]service.Allocation, len(req.Allocations))
	for i, a := range req.Allocations {
		allocs[i] = service.Allocation{Instrument: models.Instrument(a.Instrument), Amount: a.Amount, Tip: a.Tip}
	}
	o, payments, err := h.ledger.Settle(r.Context(), id, allocs, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusCreated, settleResponse{Order: o, Payments: payments})
}

func (h *OrderHandler) Payments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.ledger.Payments(r.Context(), id)
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func atoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}
