// Package store defines the persistence contract of the lifecycle engine.
// Backends: PostgreSQL (internal/db) and in-memory (internal/memstore).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/freelance-market/internal/types"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint,
// such as a second proposal by the same freelancer on the same job.
var ErrDuplicate = errors.New("store: duplicate record")

// Getters return (nil, nil) when the record does not exist.
//
// Status changes are compare-and-swap: the write applies only when the
// current status is one of from, and the boolean result reports whether it
// did. Callers re-read to tell a lost race from an illegal source state.

// UserStore persists the identity stub and its running totals.
type UserStore interface {
	CreateUser(ctx context.Context, u *types.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	// IncrementUserTotals adds to total_earnings and total_spent atomically.
	IncrementUserTotals(ctx context.Context, id uuid.UUID, earnings, spent decimal.Decimal) error
}

// JobStore persists jobs.
type JobStore interface {
	CreateJob(ctx context.Context, j *types.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	ListJobs(ctx context.Context, f types.JobFilter) ([]types.Job, error)
	// UpdateJobFields writes the editable fields of j while its status is one of from.
	UpdateJobFields(ctx context.Context, j *types.Job, from []types.JobStatus) (bool, error)
	CASJobStatus(ctx context.Context, id uuid.UUID, from []types.JobStatus, to types.JobStatus, change types.JobStatusChange) (bool, error)
	SetJobPaymentStatus(ctx context.Context, id uuid.UUID, status types.JobPaymentStatus) error
	// IncrementApplicants bumps the applicant counter only while the job is
	// open. On PostgreSQL the row lock it takes orders it against a
	// concurrent assignment.
	IncrementApplicants(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteJob removes the job and its proposals.
	DeleteJob(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProposalStore persists proposals.
type ProposalStore interface {
	// CreateProposal returns ErrDuplicate when the (job, freelancer) pair exists.
	CreateProposal(ctx context.Context, p *types.Proposal) error
	GetProposal(ctx context.Context, id uuid.UUID) (*types.Proposal, error)
	GetProposalByJobAndFreelancer(ctx context.Context, jobID, freelancerID uuid.UUID) (*types.Proposal, error)
	ListProposalsByJob(ctx context.Context, jobID uuid.UUID) ([]types.Proposal, error)
	ListProposalsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]types.Proposal, error)
	// CASProposalStatus also stamps the timestamp column that belongs to to.
	CASProposalStatus(ctx context.Context, id uuid.UUID, from []types.ProposalStatus, to types.ProposalStatus, at time.Time) (bool, error)
	// RejectOtherProposals rejects every pending or shortlisted proposal on
	// jobID except keep (uuid.Nil keeps none) and returns the rejected rows.
	RejectOtherProposals(ctx context.Context, jobID, keep uuid.UUID, at time.Time) ([]types.Proposal, error)
}

// PaymentStore persists escrow payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *types.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*types.Payment, error)
	ListPaymentsByJob(ctx context.Context, jobID uuid.UUID) ([]types.Payment, error)
	// CASPaymentStatus also stamps the timestamp column that belongs to to.
	CASPaymentStatus(ctx context.Context, id uuid.UUID, from []types.PaymentStatus, to types.PaymentStatus, at time.Time) (bool, error)
}

// NotificationStore persists notification records. Every read and write is
// scoped to the owning user.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *types.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, f types.NotificationFilter) ([]types.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, userID, id uuid.UUID) (bool, error)
	DeleteAllNotifications(ctx context.Context, userID uuid.UUID) (int, error)
}

// Store is the aggregate persistence interface.
type Store interface {
	UserStore
	JobStore
	ProposalStore
	PaymentStore
	NotificationStore

	// InTx runs fn against a transactional view of the store. The writes made
	// through that view commit together when fn returns nil and are discarded
	// otherwise. Calling InTx on a transactional view reuses the transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
