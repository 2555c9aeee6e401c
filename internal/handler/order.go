package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/order"
)

type orderItemResponse struct {
	ProductID       string       `json:"product_id"`
	Name            string       `json:"name"`
	Quantity        int          `json:"quantity"`
	PriceAtPurchase money.Amount `json:"price_at_purchase"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	TotalAmount    money.Amount        `json:"total_amount"`
	DiscountAmount money.Amount        `json:"discount_amount"`
	FinalAmount    money.Amount        `json:"final_amount"`
	CouponCode     *string             `json:"coupon_code,omitempty"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"created_at"`
}

func toOrderResponse(o order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID:       it.ProductID,
			Name:            it.Name,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
		}
	}
	return orderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.FinalAmount,
		CouponCode:     o.CouponCode,
		Items:          items,
		CreatedAt:      o.CreatedAt,
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		zctx.From(r.Context()).Error("list orders", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	respondJSON(w, http.StatusOK, out)
}
