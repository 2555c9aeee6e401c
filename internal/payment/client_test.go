package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/lucky-store/internal/domain/product"
)

func TestCreateSession(t *testing.T) {
	var gotReq SessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(Session{ID: "cs_1", RedirectURL: "https://pay.example/cs_1"})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk_test"})

	session, err := client.CreateSession(context.Background(), SessionRequest{
		LineItems:      []LineItem{{UnitAmountCents: 1999, Quantity: 2, ProductRef: "prod-a"}},
		CorrelationRef: "order-1",
		SuccessURL:     "https://store.example/ok",
		CancelURL:      "https://store.example/cancel",
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "https://pay.example/cs_1", session.RedirectURL)
	assert.Equal(t, "order-1", gotReq.CorrelationRef)
	require.Len(t, gotReq.LineItems, 1)
	assert.Equal(t, int64(1999), gotReq.LineItems[0].UnitAmountCents)
}

func TestCreateSession_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "insufficient permissions", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk_test"})

	_, err := client.CreateSession(context.Background(), SessionRequest{CorrelationRef: "order-1"})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusForbidden, provErr.Status)
}

func TestCreateSession_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk_test"})

	_, err := client.CreateSession(context.Background(), SessionRequest{CorrelationRef: "order-1"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateSession_EmptyRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Session{ID: "cs_1"})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})

	_, err := client.CreateSession(context.Background(), SessionRequest{CorrelationRef: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty redirect url")
}

func TestSyncProduct(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})

	name := "New Name"
	err := client.SyncProduct(context.Background(), "ext_1", product.ChangedFields{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "/v1/products/ext_1", gotPath)
	assert.Equal(t, map[string]any{"name": "New Name"}, gotBody)
}

func TestSyncProduct_NoopCases(t *testing.T) {
	// No server: a request would fail, proving none is made.
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0"})

	name := "x"
	require.NoError(t, client.SyncProduct(context.Background(), "", product.ChangedFields{Name: &name}))
	require.NoError(t, client.SyncProduct(context.Background(), "ext_1", product.ChangedFields{}))
}
