package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/models"
	"restaurant-pos/internal/microservices/pos/service"
)

type TableHandler struct {
	tables service.TableServiceInterface
	lg     *logger.Logger
}

type seatRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

type tableStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type seatResponse struct {
	Order models.Order `json:"order"`
	Table models.Table `json:"table"`
}

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.tables.List(r.Context())
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	if tables == nil {
		tables = []models.Table{}
	}
	writeJSON(w, http.StatusOK, tables)
}

func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tables.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TableHandler) Seat(w http.ResponseWriter, r *http.Request) {
	var req seatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, t, err := h.tables.Seat(r.Context(), chi.URLParam(r, "id"), uuid.MustParse(req.OrderID), actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, seatResponse{Order: o, Table: t})
}

func (h *TableHandler) Release(w http.ResponseWriter, r *http.Request) {
	t, err := h.tables.Release(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TableHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req tableStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.tables.SetStatus(r.Context(), chi.URLParam(r, "id"), models.TableStatus(req.Status), actor(r))
	if err != nil {
		writeError(w, r, h.lg, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
