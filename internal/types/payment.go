package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of an escrowed Payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentEscrow   PaymentStatus = "escrow"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentDisputed PaymentStatus = "disputed"
)

// Payment methods
const (
	PaymentMethodGateway = "gateway"
	PaymentMethodWallet  = "wallet"
	PaymentMethodManual  = "manual"
)

// Payment is an escrowed milestone payment tied to one Job.
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	JobID            uuid.UUID       `json:"job_id"`
	ClientID         uuid.UUID       `json:"client_id"`
	FreelancerID     uuid.UUID       `json:"freelancer_id"`
	Amount           decimal.Decimal `json:"amount"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	FreelancerAmount decimal.Decimal `json:"freelancer_amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	PaymentMethod    string          `json:"payment_method"`
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Milestone        string          `json:"milestone"`
	EscrowedAt       *time.Time      `json:"escrowed_at,omitempty"`
	ReleasedAt       *time.Time      `json:"released_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	DisputedAt       *time.Time      `json:"disputed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// GatewayConfirmation is the client-side proof that a gateway order was paid.
type GatewayConfirmation struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// FundInput is the client request to escrow a milestone payment.
type FundInput struct {
	JobID         uuid.UUID            `json:"-"`
	Amount        decimal.Decimal      `json:"amount" validate:"gt=0"`
	Milestone     string               `json:"milestone" validate:"required,max=200"`
	PaymentMethod string               `json:"payment_method" validate:"omitempty,oneof=gateway wallet manual"`
	Gateway       *GatewayConfirmation `json:"gateway,omitempty" validate:"omitempty"`
}

// CreateOrderInput is the client request to open a gateway order before funding.
type CreateOrderInput struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// Order is a payment gateway order handle. Reference is the job id the
// order was opened for.
type Order struct {
	ID        string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"`
}
