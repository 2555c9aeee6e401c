package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/domain/coupon"
	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/payment"
)

type checkoutRequest struct {
	CouponCode string `json:"coupon_code"`
}

type checkoutResponse struct {
	OrderID        string       `json:"order_id"`
	Status         string       `json:"status"`
	CheckoutURL    string       `json:"checkout_url"`
	TotalAmount    money.Amount `json:"total_amount"`
	DiscountAmount money.Amount `json:"discount_amount"`
	FinalAmount    money.Amount `json:"final_amount"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	placement, err := h.coordinator.PlaceOrder(r.Context(), userIDFrom(r.Context()), req.CouponCode)
	if err != nil {
		h.respondCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:        placement.OrderID,
		Status:         string(order.StatusPending),
		CheckoutURL:    placement.CheckoutURL,
		TotalAmount:    placement.TotalAmount,
		DiscountAmount: placement.DiscountAmount,
		FinalAmount:    placement.FinalAmount,
	})
}

// respondCheckoutError maps placement failures: user mistakes are 400 with a
// specific message, provider trouble is 502 so clients know to retry, and
// everything else stays an opaque 500.
func (h *Handler) respondCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, order.ErrLimitExceeded):
		respondError(w, http.StatusBadRequest, "order exceeds the maximum transaction amount")
	case errors.Is(err, coupon.ErrNotFound):
		respondError(w, http.StatusBadRequest, "coupon not found")
	case errors.Is(err, coupon.ErrAlreadyUsed):
		respondError(w, http.StatusBadRequest, "coupon has already been used")
	case errors.Is(err, coupon.ErrInactive):
		respondError(w, http.StatusBadRequest, "coupon is not active")
	case errors.Is(err, coupon.ErrExpired):
		respondError(w, http.StatusBadRequest, "coupon has expired")
	case errors.Is(err, coupon.ErrWrongOwner):
		respondError(w, http.StatusBadRequest, "coupon is reserved for another customer")
	default:
		var pe *payment.ProviderError
		if errors.As(err, &pe) || errors.Is(err, payment.ErrUnavailable) {
			zctx.From(r.Context()).Error("payment session not created", zap.Error(err))
			respondError(w, http.StatusBadGateway, "payment provider unavailable")
			return
		}
		zctx.From(r.Context()).Error("place order", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
