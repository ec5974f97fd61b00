package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposalStatus is the lifecycle state of a Proposal.
type ProposalStatus string

const (
	ProposalPending     ProposalStatus = "pending"
	ProposalShortlisted ProposalStatus = "shortlisted"
	ProposalAccepted    ProposalStatus = "accepted"
	ProposalRejected    ProposalStatus = "rejected"
	ProposalWithdrawn   ProposalStatus = "withdrawn"
)

// Proposal is a freelancer's bid on a Job.
type Proposal struct {
	ID                 uuid.UUID       `json:"id"`
	JobID              uuid.UUID       `json:"job_id"`
	FreelancerID       uuid.UUID       `json:"freelancer_id"`
	CoverLetter        string          `json:"cover_letter"`
	ProposedBudget     decimal.Decimal `json:"proposed_budget"`
	ProposedDuration   string          `json:"proposed_duration"`
	RelevantExperience string          `json:"relevant_experience,omitempty"`
	Status             ProposalStatus  `json:"status"`
	ShortlistedAt      *time.Time      `json:"shortlisted_at,omitempty"`
	AcceptedAt         *time.Time      `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	WithdrawnAt        *time.Time      `json:"withdrawn_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CreateProposalInput is the freelancer-supplied payload for a new proposal.
type CreateProposalInput struct {
	CoverLetter        string          `json:"cover_letter" validate:"required,min=20"`
	ProposedBudget     decimal.Decimal `json:"proposed_budget" validate:"gt=0"`
	ProposedDuration   string          `json:"proposed_duration" validate:"required"`
	RelevantExperience string          `json:"relevant_experience,omitempty"`
}

// SetProposalStatusInput is the client request to shortlist or reject a proposal.
type SetProposalStatusInput struct {
	Status ProposalStatus `json:"status" validate:"required,oneof=shortlisted rejected"`
}
