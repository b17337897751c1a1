package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/auth"
	"restaurant-pos/internal/microservices/pos/idempotency"
	"restaurant-pos/internal/microservices/pos/service"
)

type Handler struct {
	OrderHandler *OrderHandler
	TableHandler *TableHandler
	ShiftHandler *ShiftHandler

	tokens *auth.Tokens
	idem   idempotency.Store
	lg     *logger.Logger
}

// New wires the handlers. idem may be nil to disable idempotent replay.
func New(s *service.Service, tokens *auth.Tokens, idem idempotency.Store, lg *logger.Logger) *Handler {
	return &Handler{
		OrderHandler: &OrderHandler{orders: s.OrderService, ledger: s.LedgerService, lg: lg},
		TableHandler: &TableHandler{tables: s.TableService, lg: lg},
		ShiftHandler: &ShiftHandler{ledger: s.LedgerService, lg: lg},
		tokens:       tokens,
		idem:         idem,
		lg:           lg,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.lg))
	r.Use(middleware.Recoverer)

	r.Get("/health", health)

	r.Group(func(pr chi.Router) {
		pr.Use(authenticate(h.tokens))
		if h.idem != nil {
			pr.Use(idempotency.Middleware(h.idem, idempotencyScope, h.lg))
		}

		oh := h.OrderHandler
		pr.Route("/orders", func(r chi.Router) {
			r.Post("/", oh.Create)
			r.Get("/", oh.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", oh.Get)
				r.Get("/timeline", oh.Timeline)
				r.Patch("/status", oh.AdvanceStatus)
				r.Post("/items", oh.AddItem)
				r.Patch("/items/{itemID}", oh.UpdateItem)
				r.Delete("/items/{itemID}", oh.RemoveItem)
				r.Patch("/items/{itemID}/status", oh.AdvanceItemStatus)
				r.With(requireRole(auth.RoleCashier, auth.RoleManager)).Post("/discount", oh.ApplyDiscount)
				r.Get("/split", oh.Split)
				r.With(requireRole(auth.RoleCashier, auth.RoleManager)).Post("/payments", oh.Settle)
				r.Get("/payments", oh.Payments)
			})
		})

		sh := h.ShiftHandler
		pr.Route("/shifts", func(r chi.Router) {
			r.With(requireRole(auth.RoleCashier, auth.RoleManager)).Post("/", sh.Open)
			r.Get("/active", sh.Active)
			r.Get("/{id}", sh.Get)
			r.With(requireRole(auth.RoleManager)).Post("/{id}/close", sh.Close)
			r.With(requireRole(auth.RoleCashier, auth.RoleManager)).Post("/{id}/cash-drops", sh.CashDrop)
		})

		th := h.TableHandler
		pr.Route("/tables", func(r chi.Router) {
			r.Get("/", th.List)
			r.Get("/{id}", th.Get)
			r.Post("/{id}/seat", th.Seat)
			r.Post("/{id}/release", th.Release)
			r.Post("/{id}/status", th.SetStatus)
		})
	})
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "validation_error", "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
