// Package handler exposes the HTTP API: catalog, cart, checkout, orders,
// and the payment-outcome webhook.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/lucky-store/internal/checkout"
	"github.com/oakmart/lucky-store/internal/domain/auth"
	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/domain/product"
	"github.com/oakmart/lucky-store/internal/payment"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC pepper for API key hashing.
	APIKeyPepper []byte
	// WebhookSecret verifies payment-outcome signatures.
	WebhookSecret []byte
}

// Handler wires the HTTP surface to the domain. Business rules live in the
// coordinator and the domain packages; this layer only translates.
type Handler struct {
	cfg         Config
	products    product.Repository
	carts       cart.Store
	orders      order.Ledger
	coordinator *checkout.Coordinator
	syncer      payment.ProductSyncer
	apikeys     auth.Repository
}

// New constructs a Handler with the required dependencies.
func New(
	cfg Config,
	products product.Repository,
	carts cart.Store,
	orders order.Ledger,
	coordinator *checkout.Coordinator,
	syncer payment.ProductSyncer,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		cfg:         cfg,
		products:    products,
		carts:       carts,
		orders:      orders,
		coordinator: coordinator,
		syncer:      syncer,
		apikeys:     apikeys,
	}
}

// Routes returns the API router mounted under /api by the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	// Webhook authenticates with its signature, not an API key.
	r.Post("/payment/outcome", h.paymentOutcome)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Patch("/cart/items/{id}", h.updateCartItem)
		r.Delete("/cart/items/{id}", h.removeCartItem)

		r.Post("/checkout", h.placeOrder)
		r.Get("/orders", h.listOrders)

		r.Group(func(r chi.Router) {
			r.Use(h.requireScope(auth.ScopeAdmin))
			r.Put("/products/{id}", h.updateProduct)
		})
	})

	return r
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Code: status, Message: message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
