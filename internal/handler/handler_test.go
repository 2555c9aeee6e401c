package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/lucky-store/internal/checkout"
	"github.com/oakmart/lucky-store/internal/domain/auth"
	"github.com/oakmart/lucky-store/internal/domain/cart"
	"github.com/oakmart/lucky-store/internal/domain/coupon"
	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/domain/product"
	"github.com/oakmart/lucky-store/internal/domain/promo"
	"github.com/oakmart/lucky-store/internal/payment"
)

// The fakes below are plain maps behind the domain interfaces. The stub unit
// of work runs the callback directly against them, which is enough for
// endpoint-level tests; transactional behavior is covered by the checkout and
// integration tests.

type fakeProducts struct {
	byID map[string]product.Product
}

func (f *fakeProducts) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.byID))
	for _, p := range f.byID {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Update(_ context.Context, id string, changed product.ChangedFields) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	if changed.Name != nil {
		p.Name = *changed.Name
	}
	if changed.Description != nil {
		p.Description = *changed.Description
	}
	if changed.Price != nil {
		p.Price = *changed.Price
	}
	if changed.Thumbnail != nil {
		p.Thumbnail = *changed.Thumbnail
	}
	if changed.Active != nil {
		p.Active = *changed.Active
	}
	f.byID[id] = p
	return &p, nil
}

type fakeCarts struct {
	products *fakeProducts
	items    map[string][]cart.Item // userID -> lines
	nextID   int
}

func (f *fakeCarts) AddItem(_ context.Context, userID, productID string, quantity int) (*cart.Item, error) {
	if _, ok := f.products.byID[productID]; !ok {
		return nil, product.ErrNotFound
	}
	for i, it := range f.items[userID] {
		if it.ProductID == productID {
			f.items[userID][i].Quantity += quantity
			return &f.items[userID][i], nil
		}
	}
	f.nextID++
	item := cart.Item{
		ID:        strconv.Itoa(f.nextID),
		CartID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}
	f.items[userID] = append(f.items[userID], item)
	return &item, nil
}

func (f *fakeCarts) UpdateQuantity(_ context.Context, userID, itemID string, quantity int) (*cart.Item, error) {
	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}
	for i, it := range f.items[userID] {
		if it.ID == itemID {
			f.items[userID][i].Quantity = quantity
			return &f.items[userID][i], nil
		}
	}
	return nil, cart.ErrItemNotFound
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID, itemID string) error {
	for i, it := range f.items[userID] {
		if it.ID == itemID {
			f.items[userID] = append(f.items[userID][:i], f.items[userID][i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeCarts) Items(_ context.Context, userID string) ([]cart.Line, error) {
	var out []cart.Line
	for _, it := range f.items[userID] {
		p := f.products.byID[it.ProductID]
		out = append(out, cart.Line{
			ProductID:   it.ProductID,
			Name:        p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			ExternalRef: p.ExternalRef,
		})
	}
	return out, nil
}

func (f *fakeCarts) Snapshot(ctx context.Context, userID string) ([]cart.Line, error) {
	return f.Items(ctx, userID)
}

func (f *fakeCarts) Clear(_ context.Context, userID string) error {
	delete(f.items, userID)
	return nil
}

type fakeOrders struct {
	byID map[string]*order.Order
}

func (f *fakeOrders) CreatePending(_ context.Context, o *order.Order) error {
	cp := *o
	cp.CreatedAt = time.Now()
	f.byID[o.ID] = &cp
	return nil
}

func (f *fakeOrders) GetForUpdate(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) SetStatus(_ context.Context, id string, status order.Status) error {
	f.byID[id].Status = status
	return nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeCoupons struct {
	byCode map[string]*coupon.Coupon
}

func (f *fakeCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := f.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCoupons) Claim(ctx context.Context, code string) (*coupon.Coupon, error) {
	return f.FindByCode(ctx, code)
}

func (f *fakeCoupons) MarkUsed(_ context.Context, code, orderID string) error {
	c := f.byCode[code]
	c.IsUsed = true
	c.GeneratedByOrderID = &orderID
	return nil
}

func (f *fakeCoupons) IssueReward(_ context.Context, slot int64, orderID, userID string, now time.Time) (*coupon.Coupon, error) {
	expires := now.Add(coupon.RewardTTL)
	c := &coupon.Coupon{
		Code:               coupon.NewRewardCode(slot),
		DiscountPercent:    coupon.RewardDiscountPercent,
		SlotNumber:         &slot,
		ExpiresAt:          &expires,
		IsActive:           true,
		ReservedByUser:     &userID,
		GeneratedByOrderID: &orderID,
	}
	f.byCode[c.Code] = c
	return c, nil
}

type fakeSlots struct{ count int64 }

func (f *fakeSlots) PeekNextSlot(context.Context) (int64, error) { return f.count + 1, nil }
func (f *fakeSlots) Commit(context.Context) error                { f.count++; return nil }

type fakeSettings struct {
	n      int64
	active bool
}

func (f *fakeSettings) NthOrder(context.Context) (int64, bool, error) { return f.n, f.active, nil }

type stubTx struct {
	carts    *fakeCarts
	coupons  *fakeCoupons
	orders   *fakeOrders
	slots    *fakeSlots
	settings *fakeSettings
}

func (t *stubTx) Carts() cart.Store        { return t.carts }
func (t *stubTx) Coupons() coupon.Ledger   { return t.coupons }
func (t *stubTx) Orders() order.Ledger     { return t.orders }
func (t *stubTx) Slots() promo.Allocator   { return t.slots }
func (t *stubTx) Settings() promo.Settings { return t.settings }

type stubUOW struct{ tx *stubTx }

func (u *stubUOW) Do(ctx context.Context, fn func(context.Context, checkout.Tx) error) error {
	return fn(ctx, u.tx)
}

type stubGateway struct {
	session payment.Session
	err     error
}

func (g *stubGateway) CreateSession(context.Context, payment.SessionRequest) (*payment.Session, error) {
	if g.err != nil {
		return nil, g.err
	}
	s := g.session
	return &s, nil
}

type recordingSyncer struct {
	ref     string
	changed product.ChangedFields
	calls   int
}

func (s *recordingSyncer) SyncProduct(_ context.Context, ref string, changed product.ChangedFields) error {
	s.ref = ref
	s.changed = changed
	s.calls++
	return nil
}

type fakeKeys struct {
	byHash map[string]*auth.Key
}

func (f *fakeKeys) FindByHash(_ context.Context, hash string) (*auth.Key, error) {
	k, ok := f.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return k, nil
}

const (
	testPepper        = "test-pepper"
	testWebhookSecret = "whsec_test"
	customerKey       = "sk_customer"
	adminKey          = "sk_admin"
)

type fixture struct {
	handler  *Handler
	server   *httptest.Server
	products *fakeProducts
	carts    *fakeCarts
	orders   *fakeOrders
	coupons  *fakeCoupons
	syncer   *recordingSyncer
	gateway  *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &fakeProducts{byID: map[string]product.Product{
		"p-1": {ID: "p-1", Name: "Waffle", Price: money.MustFromString("19.99"), Active: true, ExternalRef: "ext-waffle"},
		"p-2": {ID: "p-2", Name: "Coffee", Price: money.MustFromString("5.00"), Active: true},
	}}
	carts := &fakeCarts{products: products, items: map[string][]cart.Item{}}
	orders := &fakeOrders{byID: map[string]*order.Order{}}
	coupons := &fakeCoupons{byCode: map[string]*coupon.Coupon{}}
	uow := &stubUOW{tx: &stubTx{
		carts:    carts,
		coupons:  coupons,
		orders:   orders,
		slots:    &fakeSlots{},
		settings: &fakeSettings{n: 5, active: true},
	}}
	gateway := &stubGateway{session: payment.Session{ID: "cs_1", RedirectURL: "https://pay.example/cs_1"}}
	syncer := &recordingSyncer{}

	coordinator := checkout.New(uow, gateway, checkout.Config{
		MaxOrderAmount: money.MustFromString("10000.00"),
		SuccessURL:     "https://shop.example/success",
		CancelURL:      "https://shop.example/cancel",
	})

	keys := &fakeKeys{byHash: map[string]*auth.Key{
		HashAPIKey(customerKey, []byte(testPepper)): {ID: "k-1", UserID: "user-1", Scopes: nil},
		HashAPIKey(adminKey, []byte(testPepper)):    {ID: "k-2", UserID: "admin-1", Scopes: []string{auth.ScopeAdmin}},
	}}
	for hash, k := range keys.byHash {
		k.KeyHash = hash
	}

	h := New(Config{
		APIKeyPepper:  []byte(testPepper),
		WebhookSecret: []byte(testWebhookSecret),
	}, products, carts, orders, coordinator, syncer, keys)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &fixture{
		handler:  h,
		server:   srv,
		products: products,
		carts:    carts,
		orders:   orders,
		coupons:  coupons,
		syncer:   syncer,
		gateway:  gateway,
	}
}

func (f *fixture) do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[[]productResponse](t, resp)
	require.Len(t, out, 2)
	assert.Equal(t, "Waffle", out[0].Name)
	assert.Equal(t, "19.99", out[0].Price.String())
}

func TestGetProductNotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/cart", "sk_bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCartFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-1", Quantity: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decodeBody[cartItemResponse](t, resp)
	assert.Equal(t, 2, item.Quantity)

	// Re-adding the same product merges quantities into the existing line.
	resp = f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-1", Quantity: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	merged := decodeBody[cartItemResponse](t, resp)
	assert.Equal(t, item.ID, merged.ID)
	assert.Equal(t, 3, merged.Quantity)

	resp = f.do(t, http.MethodGet, "/cart", customerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[cartResponse](t, resp)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "59.97", body.Total.String())

	resp = f.do(t, http.MethodPatch, "/cart/items/"+item.ID, customerKey, updateCartItemRequest{Quantity: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/cart/items/"+item.ID, customerKey, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/cart/items/"+item.ID, customerKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddCartItemValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-1", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "ghost", Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-1", Quantity: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/checkout", customerKey, checkoutRequest{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decodeBody[checkoutResponse](t, resp)
	assert.NotEmpty(t, out.OrderID)
	assert.Equal(t, "PENDING", out.Status)
	assert.Equal(t, "https://pay.example/cs_1", out.CheckoutURL)
	assert.Equal(t, "39.98", out.TotalAmount.String())
	assert.Equal(t, "39.98", out.FinalAmount.String())
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/checkout", customerKey, checkoutRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutInvalidCoupon(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-2", Quantity: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/checkout", customerKey, checkoutRequest{CouponCode: "NOPE"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorBody](t, resp)
	assert.Contains(t, body.Message, "coupon")
}

func TestCheckoutProviderDown(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = &payment.ProviderError{Status: http.StatusServiceUnavailable, Body: "maintenance"}

	resp := f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-2", Quantity: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/checkout", customerKey, checkoutRequest{})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/cart/items", customerKey, addCartItemRequest{ProductID: "p-1", Quantity: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/checkout", customerKey, checkoutRequest{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/orders", customerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[[]orderResponse](t, resp)
	require.Len(t, out, 1)
	assert.Equal(t, "PENDING", out[0].Status)
	require.Len(t, out[0].Items, 1)
	assert.Equal(t, "19.99", out[0].Items[0].PriceAtPurchase.String())
}

func TestUpdateProductRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	name := "Renamed"
	resp := f.do(t, http.MethodPut, "/products/p-1", customerKey, updateProductRequest{Name: &name})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture(t)

	name := "Belgian Waffle"
	price := "21.50"
	resp := f.do(t, http.MethodPut, "/products/p-1", adminKey, updateProductRequest{Name: &name, Price: &price})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[productResponse](t, resp)
	assert.Equal(t, "Belgian Waffle", out.Name)
	assert.Equal(t, "21.50", out.Price.String())

	// The provider receives only the explicit change set.
	require.Equal(t, 1, f.syncer.calls)
	assert.Equal(t, "ext-waffle", f.syncer.ref)
	require.NotNil(t, f.syncer.changed.Name)
	assert.Equal(t, "Belgian Waffle", *f.syncer.changed.Name)
	assert.Nil(t, f.syncer.changed.Description)
}

func TestUpdateProductEmptyChangeSet(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/products/p-1", adminKey, updateProductRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, f.syncer.calls)
}
