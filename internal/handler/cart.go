package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/product"
)

type cartLineResponse struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	Subtotal  money.Amount `json:"subtotal"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Total money.Amount       `json:"total"`
}

func toCartResponse(lines []cart.Line) cartResponse {
	out := cartResponse{Items: make([]cartLineResponse, len(lines)), Total: money.Zero}
	for i, l := range lines {
		sub := l.Subtotal()
		out.Items[i] = cartLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  sub,
		}
		out.Total = out.Total.Add(sub)
	}
	return out
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Items(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		zctx.From(r.Context()).Error("load cart", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(lines))
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, cart.ErrInvalidQuantity.Error())
		return
	}

	item, err := h.carts.AddItem(r.Context(), userIDFrom(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusBadRequest, "unknown product")
			return
		}
		zctx.From(r.Context()).Error("add cart item", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, cartItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.carts.UpdateQuantity(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrInvalidQuantity):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, cart.ErrItemNotFound):
			respondError(w, http.StatusNotFound, "cart item not found")
		default:
			zctx.From(r.Context()).Error("update cart item", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respondJSON(w, http.StatusOK, cartItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	err := h.carts.RemoveItem(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			respondError(w, http.StatusNotFound, "cart item not found")
			return
		}
		zctx.From(r.Context()).Error("remove cart item", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
