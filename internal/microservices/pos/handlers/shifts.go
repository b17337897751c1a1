package handlers

import (
	"net/http"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/service"
)

type ShiftHandler struct {
	ledger service.LedgerServiceInterface
	lg     *logger.Logger
}

type openShiftRequest struct {
	OpeningCash int64 `json:"opening_cash" validate:"gte=0"`
}

type closeShiftRequest struct {
	CountedCash int64 `json:"counted_cash" validate:"gte=0"`
}

type cashDropRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

func (h *ShiftHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openShiftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := h.ledger.OpenShift(r.Context(), req.OpeningCash, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (h *ShiftHandler) Active(w http.ResponseWriter, r *http.Request) {
	sh, err := h.ledger.ActiveShift(r.Context())
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *ShiftHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sh, err := h.ledger.GetShift(r.Context(), id)
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *ShiftHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req closeShiftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := h.ledger.CloseShift(r.Context(), id, req.CountedCash, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *ShiftHandler) CashDrop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req cashDropRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := h.ledger.RecordCashDrop(r.Context(), id, req.Amount, req.Reason, actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}
