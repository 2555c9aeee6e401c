// Package payment adapts the external payment provider: creating checkout
// sessions, verifying webhook deliveries, and syncing catalog changes.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/oakmart/lucky-store/internal/domain/product"
)

// DefaultTimeout bounds every outbound call to the provider. Retry and
// backoff are the provider client's concern upstream, not ours.
const DefaultTimeout = 10 * time.Second

// ErrUnavailable is returned when the provider cannot be reached at all:
// connection refused, DNS failure, or timeout.
var ErrUnavailable = errors.New("payment provider unreachable")

// ProviderError reports a non-2xx response from the payment provider.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider returned %d: %s", e.Status, e.Body)
}

// LineItem is one purchasable line in a checkout session.
type LineItem struct {
	UnitAmountCents int64  `json:"unit_amount"`
	Quantity        int    `json:"quantity"`
	ProductRef      string `json:"product_ref"`
}

// SessionRequest describes a checkout session to create. CorrelationRef is
// the opaque identifier (our order id) the provider echoes back in the
// asynchronous outcome.
type SessionRequest struct {
	LineItems      []LineItem `json:"line_items"`
	CorrelationRef string     `json:"client_reference_id"`
	SuccessURL     string     `json:"success_url"`
	CancelURL      string     `json:"cancel_url"`
}

// Session is the provider's handle for a created checkout session.
type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"url"`
}

// Gateway is the capability surface the checkout coordinator depends on.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// ProductSyncer pushes explicit catalog change sets to the provider.
type ProductSyncer interface {
	SyncProduct(ctx context.Context, externalRef string, changed product.ChangedFields) error
}

// ClientConfig configures the HTTP client for the payment provider.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the payment provider over HTTPS.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

var (
	_ Gateway       = (*Client)(nil)
	_ ProductSyncer = (*Client)(nil)
)

// NewClient creates a provider client. A zero Timeout falls back to
// DefaultTimeout.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateSession asks the provider for a new checkout session and returns the
// redirect handle.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	var session Session
	if err := c.post(ctx, "/v1/checkout/sessions", req, &session); err != nil {
		return nil, err
	}
	if session.RedirectURL == "" {
		return nil, errors.New("provider returned empty redirect url")
	}
	return &session, nil
}

// productSyncPayload mirrors the provider's product update body. Only fields
// present in the change set are serialized.
type productSyncPayload struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// SyncProduct pushes the explicit change set for one product. Price changes
// are not synced; the provider prices per session line item.
func (c *Client) SyncProduct(ctx context.Context, externalRef string, changed product.ChangedFields) error {
	if externalRef == "" || changed.Empty() {
		return nil
	}
	payload := productSyncPayload{
		Name:        changed.Name,
		Description: changed.Description,
		Image:       changed.Thumbnail,
		Active:      changed.Active,
	}
	return c.post(ctx, "/v1/products/"+externalRef, payload, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "call payment provider: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read provider response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, "decode provider response")
		}
	}
	return nil
}
