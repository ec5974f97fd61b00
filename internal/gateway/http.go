package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/jonathan/freelance-market/internal/types"
)

// HTTPGateway talks to a REST payment processor. Amounts travel in minor
// units and confirmations are signed with HMAC-SHA256 over "orderID|paymentID".
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret []byte
	client    *http.Client
}

// NewHTTPGateway returns a gateway for baseURL. A nil client gets a 15s timeout.
func NewHTTPGateway(baseURL, keyID, keySecret string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: []byte(keySecret),
		client:    client,
	}
}

var hundred = decimal.NewFromInt(100)

// CreateOrder opens an order for amount and returns the processor's handle.
func (g *HTTPGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, reference string) (*types.Order, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   amount.Mul(hundred).Round(0).IntPart(),
		"currency": currency,
		"receipt":  reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	raw, status, err := g.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if status >= 300 {
		return nil, fmt.Errorf("gateway rejected order (%d): %s", status, errorDescription(raw, status))
	}

	order, err := parseOrder(raw)
	if err != nil {
		return nil, err
	}
	if order.Currency == "" {
		order.Currency = currency
	}
	if order.Reference == "" {
		order.Reference = reference
	}
	return order, nil
}

// FetchOrder reads an order back from the processor. Amount, currency and
// receipt come from the processor, never from the caller.
func (g *HTTPGateway) FetchOrder(ctx context.Context, orderID string) (*types.Order, error) {
	if orderID == "" {
		return nil, ErrOrderNotFound
	}
	raw, status, err := g.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if status >= 300 {
		return nil, fmt.Errorf("gateway rejected order lookup (%d): %s", status, errorDescription(raw, status))
	}
	order, err := parseOrder(raw)
	if err != nil {
		return nil, err
	}
	if order.ID != orderID {
		return nil, fmt.Errorf("gateway returned order %q for %q", order.ID, orderID)
	}
	return order, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(g.keyID, string(g.keySecret))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func errorDescription(raw []byte, status int) string {
	if msg := gjson.GetBytes(raw, "error.description").String(); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

// parseOrder reads an order document. Amounts are in minor units.
func parseOrder(raw []byte) (*types.Order, error) {
	id := gjson.GetBytes(raw, "id").String()
	if id == "" {
		return nil, fmt.Errorf("gateway order response has no id")
	}
	minor := gjson.GetBytes(raw, "amount")
	if !minor.Exists() {
		return nil, fmt.Errorf("gateway order %s has no amount", id)
	}
	return &types.Order{
		ID:        id,
		Amount:    decimal.NewFromInt(minor.Int()).Div(hundred),
		Currency:  gjson.GetBytes(raw, "currency").String(),
		Reference: gjson.GetBytes(raw, "receipt").String(),
	}, nil
}

// VerifySignature checks a hex HMAC-SHA256 confirmation in constant time.
func (g *HTTPGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(g.keySecret, orderID, paymentID))
}

// Sign computes the confirmation signature for an order and payment pair.
func Sign(secret []byte, orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}

// SignHex is Sign rendered as lowercase hex.
func SignHex(secret, orderID, paymentID string) string {
	return hex.EncodeToString(Sign([]byte(secret), orderID, paymentID))
}
