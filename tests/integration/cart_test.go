//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestCartRequiresAuth(t *testing.T) {
	resp := doGet(t, "/api/cart")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, "/api/cart", "not-a-real-key", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bogus key, got %d", resp.StatusCode)
	}
}

func TestCartLifecycle(t *testing.T) {
	// Add two items, the second twice to exercise quantity merging.
	resp := doRequest(t, http.MethodPost, "/api/cart/items", customerKey,
		map[string]any{"product_id": "pistachio-baklava", "quantity": 2})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add item: expected 201, got %d", resp.StatusCode)
	}
	first := decodeJSON[cartItemResponse](t, resp)
	resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/cart/items", customerKey,
		map[string]any{"product_id": "lemon-meringue", "quantity": 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add item: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/cart/items", customerKey,
		map[string]any{"product_id": "lemon-meringue", "quantity": 2})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("merge item: expected 201, got %d", resp.StatusCode)
	}
	merged := decodeJSON[cartItemResponse](t, resp)
	resp.Body.Close()

	if merged.Quantity != 3 {
		t.Errorf("expected merged quantity 3, got %d", merged.Quantity)
	}

	// 2 * 4.00 + 3 * 5.00 = 23.00
	resp = doRequest(t, http.MethodGet, "/api/cart", customerKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get cart: expected 200, got %d", resp.StatusCode)
	}
	body := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if len(body.Items) != 2 {
		t.Fatalf("expected 2 cart lines, got %d", len(body.Items))
	}
	if body.Total != "23.00" {
		t.Errorf("expected total 23.00, got %q", body.Total)
	}

	// Zero quantity is an error, never an implicit delete.
	resp = doRequest(t, http.MethodPatch, "/api/cart/items/"+merged.ID, customerKey,
		map[string]any{"quantity": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero quantity: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodDelete, "/api/cart/items/"+merged.ID, customerKey, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodDelete, "/api/cart/items/"+first.ID, customerKey, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, "/api/cart", customerKey, nil)
	body = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if len(body.Items) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(body.Items))
	}
}

func TestCartItemOwnership(t *testing.T) {
	resp := doRequest(t, http.MethodPost, "/api/cart/items", customerKey,
		map[string]any{"product_id": "macaron-mix", "quantity": 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add item: expected 201, got %d", resp.StatusCode)
	}
	item := decodeJSON[cartItemResponse](t, resp)
	resp.Body.Close()

	// Another user cannot touch this line.
	resp = doRequest(t, http.MethodDelete, "/api/cart/items/"+item.ID, adminKey, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user delete: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodDelete, "/api/cart/items/"+item.ID, customerKey, nil)
	resp.Body.Close()
}
