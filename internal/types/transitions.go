package types

import "slices"

// This file holds the marketplace state machines. Managers never compare
// statuses directly; they ask these tables whether an operation is legal from
// the current state and which states a compare-and-swap may start from.

// JobOp is an operation that moves a Job between statuses.
type JobOp string

const (
	JobOpAssign   JobOp = "assign"
	JobOpComplete JobOp = "complete"
	JobOpCancel   JobOp = "cancel"
	JobOpClose    JobOp = "close"
)

// ProposalOp is an operation that moves a Proposal between statuses.
type ProposalOp string

const (
	ProposalOpShortlist ProposalOp = "shortlist"
	ProposalOpReject    ProposalOp = "reject"
	ProposalOpAccept    ProposalOp = "accept"
	ProposalOpWithdraw  ProposalOp = "withdraw"
)

// PaymentOp is an operation that moves a Payment between statuses.
type PaymentOp string

const (
	PaymentOpRelease PaymentOp = "release"
	PaymentOpRefund  PaymentOp = "refund"
	PaymentOpDispute PaymentOp = "dispute"
)

var jobTransitions = map[JobStatus]map[JobOp]JobStatus{
	JobStatusOpen: {
		JobOpAssign: JobStatusInProgress,
		JobOpCancel: JobStatusCancelled,
		JobOpClose:  JobStatusClosed,
	},
	JobStatusInProgress: {
		JobOpComplete: JobStatusCompleted,
	},
	JobStatusClosed: {
		JobOpCancel: JobStatusCancelled,
	},
}

var proposalTransitions = map[ProposalStatus]map[ProposalOp]ProposalStatus{
	ProposalPending: {
		ProposalOpShortlist: ProposalShortlisted,
		ProposalOpReject:    ProposalRejected,
		ProposalOpAccept:    ProposalAccepted,
		ProposalOpWithdraw:  ProposalWithdrawn,
	},
	ProposalShortlisted: {
		ProposalOpReject:   ProposalRejected,
		ProposalOpAccept:   ProposalAccepted,
		ProposalOpWithdraw: ProposalWithdrawn,
	},
}

var paymentTransitions = map[PaymentStatus]map[PaymentOp]PaymentStatus{
	PaymentEscrow: {
		PaymentOpRelease: PaymentReleased,
		PaymentOpRefund:  PaymentRefunded,
		PaymentOpDispute: PaymentDisputed,
	},
	PaymentDisputed: {
		PaymentOpRefund: PaymentRefunded,
	},
}

// NextJobStatus returns the status op leads to from, or false if op is illegal there.
func NextJobStatus(from JobStatus, op JobOp) (JobStatus, bool) {
	to, ok := jobTransitions[from][op]
	return to, ok
}

// JobSources lists every status op may start from.
func JobSources(op JobOp) []JobStatus {
	var out []JobStatus
	for _, from := range jobStatusOrder {
		if _, ok := jobTransitions[from][op]; ok {
			out = append(out, from)
		}
	}
	return out
}

// NextProposalStatus returns the status op leads to from, or false if op is illegal there.
func NextProposalStatus(from ProposalStatus, op ProposalOp) (ProposalStatus, bool) {
	to, ok := proposalTransitions[from][op]
	return to, ok
}

// ProposalSources lists every status op may start from.
func ProposalSources(op ProposalOp) []ProposalStatus {
	var out []ProposalStatus
	for _, from := range proposalStatusOrder {
		if _, ok := proposalTransitions[from][op]; ok {
			out = append(out, from)
		}
	}
	return out
}

// NextPaymentStatus returns the status op leads to from, or false if op is illegal there.
func NextPaymentStatus(from PaymentStatus, op PaymentOp) (PaymentStatus, bool) {
	to, ok := paymentTransitions[from][op]
	return to, ok
}

// PaymentSources lists every status op may start from.
func PaymentSources(op PaymentOp) []PaymentStatus {
	var out []PaymentStatus
	for _, from := range paymentStatusOrder {
		if _, ok := paymentTransitions[from][op]; ok {
			out = append(out, from)
		}
	}
	return out
}

// IsTerminal reports whether no proposal operation is legal from s.
func (s ProposalStatus) IsTerminal() bool {
	return len(proposalTransitions[s]) == 0
}

// IsTerminal reports whether s is released or refunded.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentReleased || s == PaymentRefunded
}

// Known reports whether s is one of the job statuses.
func (s JobStatus) Known() bool {
	return slices.Contains(jobStatusOrder, s)
}

// IsFrozen reports whether a job in status s rejects field edits.
func (s JobStatus) IsFrozen() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// Fixed orderings keep the *Sources results deterministic.
var (
	jobStatusOrder = []JobStatus{
		JobStatusOpen, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled, JobStatusClosed,
	}
	proposalStatusOrder = []ProposalStatus{
		ProposalPending, ProposalShortlisted, ProposalAccepted, ProposalRejected, ProposalWithdrawn,
	}
	paymentStatusOrder = []PaymentStatus{
		PaymentPending, PaymentEscrow, PaymentReleased, PaymentRefunded, PaymentDisputed,
	}
)
