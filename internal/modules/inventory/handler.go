package inventory

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/driftcart/dropship-backend/internal/modules/auth"
	"github.com/driftcart/dropship-backend/internal/modules/user"
	"github.com/go-chi/chi/v5"
)

// Handler exposes variant and stock HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(router *chi.Mux, mw *auth.Middleware) {
	router.Route("/api/v1/variants", func(r chi.Router) {
		// Public catalog reads
		r.Get("/{id}", h.getVariant)
		r.Get("/product/{product_id}", h.listByProduct)

		// Admin-only stock and pricing management
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate, mw.RequireRole(user.RoleAdmin))
			r.Post("/", h.createVariant)
			r.Patch("/{id}/prices", h.updatePrices)
			r.Post("/{id}/restock", h.restock)
		})
	})
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	var req CreateVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	v, err := h.service.CreateVariant(r.Context(), req)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusCreated, v)
}

func (h *Handler) getVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVariant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, v)
}

func (h *Handler) listByProduct(w http.ResponseWriter, r *http.Request) {
	vs, err := h.service.ListByProduct(r.Context(), chi.URLParam(r, "product_id"))
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, vs)
}

func (h *Handler) updatePrices(w http.ResponseWriter, r *http.Request) {
	var req UpdatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	v, err := h.service.UpdatePrices(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, ErrVariantNotFound) {
			code = http.StatusNotFound
		}
		respond(w, code, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, v)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.service.Restock(r.Context(), chi.URLParam(r, "id"), req.Qty); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, ErrVariantNotFound) {
			code = http.StatusNotFound
		}
		respond(w, code, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "restocked"})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
