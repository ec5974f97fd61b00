package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/freelance-market/internal/types"
)

// MockGateway accepts every confirmation but remembers the orders it opened,
// so funding is still bound to a real order. Development and tests only.
type MockGateway struct {
	mu     sync.Mutex
	orders map[string]types.Order
}

// NewMockGateway returns a MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{orders: make(map[string]types.Order)}
}

// CreateOrder records and returns a synthetic order.
func (g *MockGateway) CreateOrder(_ context.Context, amount decimal.Decimal, currency, reference string) (*types.Order, error) {
	order := types.Order{
		ID:        "order_mock_" + uuid.NewString(),
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orders == nil {
		g.orders = make(map[string]types.Order)
	}
	g.orders[order.ID] = order
	return &order, nil
}

// FetchOrder returns an order opened by CreateOrder.
func (g *MockGateway) FetchOrder(_ context.Context, orderID string) (*types.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

// VerifySignature always succeeds.
func (*MockGateway) VerifySignature(string, string, string) bool {
	return true
}
