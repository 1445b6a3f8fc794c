package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/driftcart/dropship-backend/internal/modules/auth"
	"github.com/driftcart/dropship-backend/internal/modules/inventory"
	"github.com/go-chi/chi/v5"
)

// Handler exposes cart HTTP endpoints. All routes require authentication.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(router *chi.Mux, mw *auth.Middleware) {
	router.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(mw.Authenticate)
		r.Get("/", h.getCart)
		r.Post("/items", h.addItem)
		r.Put("/items/{variant_id}", h.updateItem)
		r.Delete("/items/{variant_id}", h.removeItem)
		r.Delete("/", h.clear)
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	c, err := h.service.Get(r.Context(), id.UserID)
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	c, err := h.service.AddItem(r.Context(), id.UserID, req)
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	c, err := h.service.UpdateItem(r.Context(), id.UserID, chi.URLParam(r, "variant_id"), req.Qty)
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	c, err := h.service.RemoveItem(r.Context(), id.UserID, chi.URLParam(r, "variant_id"))
	if err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := h.service.Clear(r.Context(), id.UserID); err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "cart cleared"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, inventory.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
