// Package gateway abstracts the payment processor that collects escrow funds.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jonathan/freelance-market/internal/types"
)

// Gateway creates payment orders and verifies the signed confirmations the
// client receives once an order is paid. FetchOrder returns the processor's
// record of an order, or ErrOrderNotFound.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, reference string) (*types.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*types.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// Modes
const (
	ModeHTTP = "http"
	ModeMock = "mock"
)

// ErrOrderNotFound is returned by FetchOrder for an order the processor does not know.
var ErrOrderNotFound = errors.New("payment order not found")

// ErrMockInProduction is returned when mock mode is requested in production.
var ErrMockInProduction = errors.New("mock payment gateway is not allowed in production")

// Config selects and configures a gateway.
type Config struct {
	Mode      string
	AppEnv    string
	BaseURL   string
	KeyID     string
	KeySecret string
}

// New builds the gateway named by cfg.Mode. Mock mode must be requested
// explicitly and is refused in production.
func New(cfg Config) (Gateway, error) {
	switch strings.ToLower(cfg.Mode) {
	case ModeMock:
		if strings.EqualFold(cfg.AppEnv, "production") {
			return nil, ErrMockInProduction
		}
		return NewMockGateway(), nil
	case "", ModeHTTP:
		if cfg.BaseURL == "" || cfg.KeyID == "" || cfg.KeySecret == "" {
			return nil, fmt.Errorf("payment gateway url, key id and key secret are required")
		}
		return NewHTTPGateway(cfg.BaseURL, cfg.KeyID, cfg.KeySecret, nil), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway mode %q", cfg.Mode)
	}
}
