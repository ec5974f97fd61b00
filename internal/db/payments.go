package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// -----------------------------------------------------------------------------
// Payment Methods
// -----------------------------------------------------------------------------

const paymentColumns = `id, job_id, client_id, freelancer_id, amount, platform_fee,
	freelancer_amount, currency, status, payment_method, gateway_order_id,
	gateway_payment_id, milestone, escrowed_at, released_at, refunded_at, disputed_at,
	created_at, updated_at`

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var p types.Payment
	err := row.Scan(&p.ID, &p.JobID, &p.ClientID, &p.FreelancerID, &p.Amount, &p.PlatformFee,
		&p.FreelancerAmount, &p.Currency, &p.Status, &p.PaymentMethod, &p.GatewayOrderID,
		&p.GatewayPaymentID, &p.Milestone, &p.EscrowedAt, &p.ReleasedAt, &p.RefundedAt,
		&p.DisputedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayment inserts a payment. Reusing a gateway payment ID yields store.ErrDuplicate.
func (db *DB) CreatePayment(ctx context.Context, p *types.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.q.QueryRow(ctx,
		`INSERT INTO payments (id, job_id, client_id, freelancer_id, amount, platform_fee,
		                       freelancer_amount, currency, status, payment_method,
		                       gateway_order_id, gateway_payment_id, milestone, escrowed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at, updated_at`,
		p.ID, p.JobID, p.ClientID, p.FreelancerID, p.Amount, p.PlatformFee,
		p.FreelancerAmount, p.Currency, p.Status, p.PaymentMethod,
		p.GatewayOrderID, p.GatewayPaymentID, p.Milestone, p.EscrowedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID
func (db *DB) GetPayment(ctx context.Context, id uuid.UUID) (*types.Payment, error) {
	p, err := scanPayment(db.q.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPaymentsByJob lists a job's payments oldest first
func (db *DB) ListPaymentsByJob(ctx context.Context, jobID uuid.UUID) ([]types.Payment, error) {
	rows, err := db.q.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]types.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// CASPaymentStatus moves a payment to status to if its current status is one of from
func (db *DB) CASPaymentStatus(ctx context.Context, id uuid.UUID, from []types.PaymentStatus, to types.PaymentStatus, at time.Time) (bool, error) {
	ok, err := db.casStatus(ctx, "payments", id, statusArgs(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	return ok, nil
}
