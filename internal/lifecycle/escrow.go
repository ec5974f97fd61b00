package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/metrics"
	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

const entityPayment = "payment"

// PlatformFeeRate is the share of every escrowed amount kept by the platform.
var PlatformFeeRate = decimal.RequireFromString("0.10")

// ComputeFee splits amount into the platform fee, rounded half away from
// zero to two places, and the remainder owed to the freelancer.
func ComputeFee(amount decimal.Decimal) (fee, freelancerAmount decimal.Decimal) {
	fee = amount.Mul(PlatformFeeRate).Round(2)
	return fee, amount.Sub(fee)
}

// EscrowLedger funds, releases, refunds and disputes milestone payments.
// The fee split is computed once at funding and never recomputed.
type EscrowLedger struct {
	*base
	gateway  gateway.Gateway
	currency string
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError("amount: must be greater than zero")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return validationError("amount: at most two decimal places")
	}
	return nil
}

// CreateOrder opens a gateway order the client pays before calling Fund.
// Nothing is persisted.
func (l *EscrowLedger) CreateOrder(ctx context.Context, actor types.Actor, jobID uuid.UUID, amount decimal.Decimal) (*types.Order, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, unavailable("failed to get job", err)
	}
	if job == nil {
		return nil, notFound("job")
	}
	if !job.IsOwnedBy(actor.ID) {
		return nil, forbidden("only the job owner can fund it")
	}
	if job.AssignedFreelancer == nil {
		return nil, invalidState("job has no assigned freelancer")
	}
	order, err := l.gateway.CreateOrder(ctx, amount, l.currency, jobID.String())
	if err != nil {
		return nil, unavailable("payment gateway unavailable", err)
	}
	return order, nil
}

// Fund escrows a milestone payment for a job with an assigned freelancer.
// Gateway payments must carry a confirmation whose signature verifies and
// whose order was opened for this job with the same amount and currency.
// Wallet and manual funding is recorded by admins only.
func (l *EscrowLedger) Fund(ctx context.Context, actor types.Actor, in types.FundInput) (payment *types.Payment, err error) {
	defer func() { l.observe(entityPayment, "fund", actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if err := l.checkInput(&in); err != nil {
		return nil, err
	}
	if err := checkAmount(in.Amount); err != nil {
		return nil, err
	}

	method := in.PaymentMethod
	if method == "" {
		method = types.PaymentMethodGateway
	}
	if method != types.PaymentMethodGateway && !actor.IsAdmin() {
		return nil, forbidden("only admins can record %s payments", method)
	}
	if method == types.PaymentMethodGateway || in.Gateway != nil {
		if in.Gateway == nil || !l.gateway.VerifySignature(in.Gateway.OrderID, in.Gateway.PaymentID, in.Gateway.Signature) {
			return nil, verificationFailed("payment signature could not be verified")
		}
		if err := l.verifyOrder(ctx, in); err != nil {
			return nil, err
		}
	}

	var job *types.Job
	err = l.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, in.JobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !cur.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
			return forbidden("only the job owner can fund it")
		}
		if cur.AssignedFreelancer == nil {
			return invalidState("job has no assigned freelancer")
		}
		job = cur

		now := l.clock.Now()
		fee, net := ComputeFee(in.Amount)
		payment = &types.Payment{
			JobID:            cur.ID,
			ClientID:         cur.ClientID,
			FreelancerID:     *cur.AssignedFreelancer,
			Amount:           in.Amount,
			PlatformFee:      fee,
			FreelancerAmount: net,
			Currency:         l.currency,
			Status:           types.PaymentEscrow,
			PaymentMethod:    method,
			Milestone:        in.Milestone,
			EscrowedAt:       &now,
		}
		if in.Gateway != nil {
			payment.GatewayOrderID = in.Gateway.OrderID
			payment.GatewayPaymentID = in.Gateway.PaymentID
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return conflict("payment already recorded")
			}
			return err
		}
		return tx.SetJobPaymentStatus(ctx, cur.ID, types.JobPaymentEscrow)
	})
	if err != nil {
		return nil, err
	}

	l.notify.Emit(ctx, NotificationInput{
		UserID: payment.FreelancerID,
		Type:   types.NotifyPaymentReceived,
		Refs:   types.NotificationRefs{JobID: &job.ID, PaymentID: &payment.ID, ActorID: &actor.ID},
		Vars:   paymentVars(job, payment),
	})
	return payment, nil
}

// verifyOrder checks that the confirmed order was opened for this job and
// carries exactly the amount and currency being escrowed.
func (l *EscrowLedger) verifyOrder(ctx context.Context, in types.FundInput) error {
	order, err := l.gateway.FetchOrder(ctx, in.Gateway.OrderID)
	if errors.Is(err, gateway.ErrOrderNotFound) {
		return verificationFailed("payment order %s does not exist", in.Gateway.OrderID)
	}
	if err != nil {
		return unavailable("payment gateway unavailable", err)
	}
	switch {
	case order.Reference != in.JobID.String():
		return verificationFailed("payment order %s was not opened for this job", order.ID)
	case !strings.EqualFold(order.Currency, l.currency):
		return verificationFailed("payment order currency %s does not match %s", order.Currency, l.currency)
	case !order.Amount.Equal(in.Amount):
		return verificationFailed("payment order amount %s does not match %s", order.Amount.StringFixed(2), in.Amount.StringFixed(2))
	}
	return nil
}

// Release pays out an escrowed payment exactly once and credits the running
// totals of both parties.
func (l *EscrowLedger) Release(ctx context.Context, actor types.Actor, paymentID uuid.UUID) (payment *types.Payment, err error) {
	defer func() { l.observe(entityPayment, string(types.PaymentOpRelease), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}

	var job *types.Job
	err = l.inTx(ctx, func(tx store.Store) error {
		p, err := l.transition(ctx, tx, paymentID, types.PaymentOpRelease, func(p *types.Payment) bool {
			return p.ClientID == actor.ID || actor.IsAdmin()
		})
		if err != nil {
			return err
		}
		if err := tx.IncrementUserTotals(ctx, p.FreelancerID, p.FreelancerAmount, decimal.Zero); err != nil {
			return err
		}
		if err := tx.IncrementUserTotals(ctx, p.ClientID, decimal.Zero, p.Amount); err != nil {
			return err
		}
		if err := tx.SetJobPaymentStatus(ctx, p.JobID, types.JobPaymentPaid); err != nil {
			return err
		}
		payment = p
		job, err = tx.GetJob(ctx, p.JobID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRelease(payment.Amount.InexactFloat64())
	l.notify.Emit(ctx, NotificationInput{
		UserID: payment.FreelancerID,
		Type:   types.NotifyPaymentReleased,
		Refs:   types.NotificationRefs{JobID: &payment.JobID, PaymentID: &payment.ID, ActorID: &actor.ID},
		Vars:   paymentVars(job, payment),
	})
	return payment, nil
}

// Refund returns escrowed or disputed funds to the client. Admin only; the
// running totals are untouched.
func (l *EscrowLedger) Refund(ctx context.Context, actor types.Actor, paymentID uuid.UUID) (payment *types.Payment, err error) {
	defer func() { l.observe(entityPayment, string(types.PaymentOpRefund), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, forbidden("only admins can refund payments")
	}

	var job *types.Job
	err = l.inTx(ctx, func(tx store.Store) error {
		p, err := l.transition(ctx, tx, paymentID, types.PaymentOpRefund, func(*types.Payment) bool { return true })
		if err != nil {
			return err
		}
		if err := tx.SetJobPaymentStatus(ctx, p.JobID, types.JobPaymentRefunded); err != nil {
			return err
		}
		payment = p
		job, err = tx.GetJob(ctx, p.JobID)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.notify.Emit(ctx, NotificationInput{
		UserID: payment.ClientID,
		Type:   types.NotifyPaymentRefunded,
		Refs:   types.NotificationRefs{JobID: &payment.JobID, PaymentID: &payment.ID, ActorID: &actor.ID},
		Vars:   paymentVars(job, payment),
	})
	return payment, nil
}

// Dispute freezes an escrowed payment until an admin refunds it. Either party
// or an admin may open a dispute; the other side is notified.
func (l *EscrowLedger) Dispute(ctx context.Context, actor types.Actor, paymentID uuid.UUID) (payment *types.Payment, err error) {
	defer func() { l.observe(entityPayment, string(types.PaymentOpDispute), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}

	var job *types.Job
	err = l.inTx(ctx, func(tx store.Store) error {
		p, err := l.transition(ctx, tx, paymentID, types.PaymentOpDispute, func(p *types.Payment) bool {
			return p.ClientID == actor.ID || p.FreelancerID == actor.ID || actor.IsAdmin()
		})
		if err != nil {
			return err
		}
		payment = p
		job, err = tx.GetJob(ctx, p.JobID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var recipients []uuid.UUID
	switch actor.ID {
	case payment.ClientID:
		recipients = []uuid.UUID{payment.FreelancerID}
	case payment.FreelancerID:
		recipients = []uuid.UUID{payment.ClientID}
	default:
		recipients = []uuid.UUID{payment.ClientID, payment.FreelancerID}
	}
	for _, userID := range recipients {
		l.notify.Emit(ctx, NotificationInput{
			UserID: userID,
			Type:   types.NotifyPaymentDisputed,
			Refs:   types.NotificationRefs{JobID: &payment.JobID, PaymentID: &payment.ID, ActorID: &actor.ID},
			Vars:   paymentVars(job, payment),
		})
	}
	return payment, nil
}

// transition loads the payment, checks allowed and the transition table, and
// applies op with a compare-and-swap. It returns the payment as written.
func (l *EscrowLedger) transition(ctx context.Context, tx store.Store, paymentID uuid.UUID, op types.PaymentOp, allowed func(*types.Payment) bool) (*types.Payment, error) {
	p, err := tx.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("payment")
	}
	if !allowed(p) {
		return nil, forbidden("not allowed to %s this payment", op)
	}
	to, ok := types.NextPaymentStatus(p.Status, op)
	if !ok {
		return nil, invalidState("payment is %s", p.Status)
	}

	ok, err = tx.CASPaymentStatus(ctx, paymentID, types.PaymentSources(op), to, l.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		fresh, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if fresh != nil {
			if _, legal := types.NextPaymentStatus(fresh.Status, op); !legal {
				return nil, invalidState("payment is %s", fresh.Status)
			}
		}
		return nil, conflict("payment was modified concurrently")
	}
	return tx.GetPayment(ctx, paymentID)
}

// Get returns a payment to its client, its freelancer or an admin.
func (l *EscrowLedger) Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*types.Payment, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	p, err := l.store.GetPayment(ctx, id)
	if err != nil {
		return nil, unavailable("failed to get payment", err)
	}
	if p == nil {
		return nil, notFound("payment")
	}
	if p.ClientID != actor.ID && p.FreelancerID != actor.ID && !actor.IsAdmin() {
		return nil, forbidden("not allowed to view this payment")
	}
	return p, nil
}

// ListByJob returns a job's payments to its client, its freelancer or an admin.
func (l *EscrowLedger) ListByJob(ctx context.Context, actor types.Actor, jobID uuid.UUID) ([]types.Payment, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, unavailable("failed to get job", err)
	}
	if job == nil {
		return nil, notFound("job")
	}
	assigned := job.AssignedFreelancer != nil && *job.AssignedFreelancer == actor.ID
	if !job.IsOwnedBy(actor.ID) && !assigned && !actor.IsAdmin() {
		return nil, forbidden("not allowed to view this job's payments")
	}
	out, err := l.store.ListPaymentsByJob(ctx, jobID)
	return out, unavailable("failed to list payments", err)
}

func paymentVars(job *types.Job, p *types.Payment) map[string]string {
	vars := map[string]string{
		"amount":            p.Amount.StringFixed(2),
		"freelancer_amount": p.FreelancerAmount.StringFixed(2),
		"currency":          p.Currency,
	}
	if job != nil {
		vars["job_title"] = job.Title
	}
	return vars
}
