package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/driftcart/dropship-backend/internal/modules/auth"
	"github.com/driftcart/dropship-backend/internal/modules/order"
	"github.com/driftcart/dropship-backend/internal/modules/user"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// Handler exposes payment endpoints and provider webhooks.
type Handler struct {
	svc Service
	log *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(svc Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts payment routes on the router. Webhooks are
// unauthenticated; the signature check inside the gateway is the guard.
func (h *Handler) RegisterRoutes(router *chi.Mux, mw *auth.Middleware) {
	router.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(mw.Authenticate)

		r.Post("/intent", h.createIntent)
		r.Get("/{id}", h.get)
		r.Post("/{id}/verify", h.verify)
		r.Get("/order/{order_id}", h.listByOrder)

		r.Group(func(admin chi.Router) {
			admin.Use(mw.RequireRole(user.RoleAdmin))
			admin.Post("/{id}/refund", h.refund)
		})
	})

	router.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", h.webhook(ProviderStripe))
		r.Post("/sslcommerz", h.webhook(ProviderSSLCommerz))
	})
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	resp, err := h.svc.CreateIntent(r.Context(), id.UserID, id.Role, req)
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusCreated, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	p, err := h.svc.Get(r.Context(), id.UserID, id.Role, chi.URLParam(r, "id"))
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	p, err := h.svc.Verify(r.Context(), id.UserID, id.Role, chi.URLParam(r, "id"))
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) listByOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	payments, err := h.svc.ListByOrder(r.Context(), id.UserID, id.Role, chi.URLParam(r, "order_id"))
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, payments)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	p, err := h.svc.Refund(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) webhook(provider Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := h.svc.HandleWebhook(r.Context(), provider, r, body); err != nil {
			if errors.Is(err, ErrBadSignature) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			h.log.Error("webhook processing failed",
				zap.String("provider", string(provider)), zap.Error(err))
			// Non-signature failures return 500 so the provider retries.
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrOrderAlreadyPaid), errors.Is(err, ErrInvalidPaymentState), errors.Is(err, ErrOutcomeConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoGateway):
		return http.StatusInternalServerError
	default:
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
