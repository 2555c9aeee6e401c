package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/product"
)

type productResponse struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Price       money.Amount `json:"price"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Active      bool         `json:"active"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Thumbnail:   p.Thumbnail,
		Active:      p.Active,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list products", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("get product", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*p))
}

// updateProductRequest carries the admin's explicit change set. Absent fields
// stay untouched; only what the caller sends is written and synced.
type updateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	Thumbnail   *string `json:"thumbnail"`
	Active      *bool   `json:"active"`
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changed := product.ChangedFields{
		Name:        req.Name,
		Description: req.Description,
		Thumbnail:   req.Thumbnail,
		Active:      req.Active,
	}
	if req.Price != nil {
		price, err := money.FromString(*req.Price)
		if err != nil || price.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid price")
			return
		}
		changed.Price = &price
	}
	if changed.Empty() {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), changed)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("update product", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Push only the fields that actually changed to the payment provider so
	// its catalog stays a mirror, not a diff target. Local state is already
	// committed; a sync failure is logged, not rolled back.
	if err := h.syncer.SyncProduct(r.Context(), p.ExternalRef, changed); err != nil {
		zctx.From(r.Context()).Warn("product sync to payment provider failed",
			zap.String("product_id", p.ID),
			zap.Error(err),
		)
	}

	respondJSON(w, http.StatusOK, toProductResponse(*p))
}
