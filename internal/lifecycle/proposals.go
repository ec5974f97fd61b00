package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

const entityProposal = "proposal"

// ProposalManager handles freelancer bids and the client's review of them.
// Acceptance happens only through JobManager.AssignFreelancer.
type ProposalManager struct {
	*base
}

// Create submits a pending proposal on an open job and bumps the job's
// applicant count in the same transaction.
func (m *ProposalManager) Create(ctx context.Context, actor types.Actor, jobID uuid.UUID, in types.CreateProposalInput) (proposal *types.Proposal, err error) {
	defer func() { m.observe(entityProposal, "create", actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if actor.Role != types.RoleFreelancer {
		return nil, forbidden("only freelancers can submit proposals")
	}
	if err := m.checkInput(&in); err != nil {
		return nil, err
	}

	var job *types.Job
	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		existing, err := tx.GetProposalByJobAndFreelancer(ctx, jobID, actor.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("you have already submitted a proposal for this job")
		}
		if cur.Status != types.JobStatusOpen {
			return invalidState("job is %s", cur.Status)
		}
		if cur.IsOwnedBy(actor.ID) {
			return forbidden("cannot bid on your own job")
		}
		job = cur

		proposal = &types.Proposal{
			JobID:              jobID,
			FreelancerID:       actor.ID,
			CoverLetter:        in.CoverLetter,
			ProposedBudget:     in.ProposedBudget,
			ProposedDuration:   in.ProposedDuration,
			RelevantExperience: in.RelevantExperience,
			Status:             types.ProposalPending,
		}
		// The guarded bump locks the job row, so an assignment that commits
		// first turns this into invalid_state instead of a stray pending bid.
		bumped, err := tx.IncrementApplicants(ctx, jobID)
		if err != nil {
			return err
		}
		if !bumped {
			return invalidState("job is no longer open")
		}
		if err := tx.CreateProposal(ctx, proposal); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return conflict("you have already submitted a proposal for this job")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notify.Emit(ctx, NotificationInput{
		UserID: job.ClientID,
		Type:   types.NotifyProposalReceived,
		Refs:   types.NotificationRefs{JobID: &job.ID, ProposalID: &proposal.ID, ActorID: &actor.ID},
		Vars:   map[string]string{"job_title": job.Title},
	})
	return proposal, nil
}

// SetStatus lets the job owner (or an admin) shortlist or reject a proposal.
func (m *ProposalManager) SetStatus(ctx context.Context, actor types.Actor, proposalID uuid.UUID, status types.ProposalStatus) (proposal *types.Proposal, err error) {
	var op types.ProposalOp
	notification := types.NotifyProposalShortlisted
	switch status {
	case types.ProposalShortlisted:
		op = types.ProposalOpShortlist
	case types.ProposalRejected:
		op = types.ProposalOpReject
		notification = types.NotifyProposalRejected
	default:
		return nil, validationError("status must be shortlisted or rejected")
	}
	defer func() { m.observe(entityProposal, string(op), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}

	var job *types.Job
	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("proposal")
		}
		job, err = tx.GetJob(ctx, cur.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return notFound("job")
		}
		if !job.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
			return forbidden("only the job owner can review proposals")
		}
		if _, ok := types.NextProposalStatus(cur.Status, op); !ok {
			return invalidState("proposal is %s", cur.Status)
		}

		ok, err := tx.CASProposalStatus(ctx, proposalID, types.ProposalSources(op), status, m.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return conflict("proposal was modified concurrently")
		}
		proposal, err = tx.GetProposal(ctx, proposalID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.notify.Emit(ctx, NotificationInput{
		UserID: proposal.FreelancerID,
		Type:   notification,
		Refs:   types.NotificationRefs{JobID: &job.ID, ProposalID: &proposal.ID, ActorID: &actor.ID},
		Vars:   map[string]string{"job_title": job.Title},
	})
	return proposal, nil
}

// Withdraw lets the freelancer retract a pending or shortlisted proposal.
func (m *ProposalManager) Withdraw(ctx context.Context, actor types.Actor, proposalID uuid.UUID) (proposal *types.Proposal, err error) {
	defer func() { m.observe(entityProposal, string(types.ProposalOpWithdraw), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("proposal")
		}
		if cur.FreelancerID != actor.ID {
			return forbidden("only the proposal's author can withdraw it")
		}
		if _, ok := types.NextProposalStatus(cur.Status, types.ProposalOpWithdraw); !ok {
			return invalidState("proposal is %s", cur.Status)
		}
		ok, err := tx.CASProposalStatus(ctx, proposalID, types.ProposalSources(types.ProposalOpWithdraw), types.ProposalWithdrawn, m.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return conflict("proposal was modified concurrently")
		}
		proposal, err = tx.GetProposal(ctx, proposalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// CheckExists reports whether the actor already bid on the job.
func (m *ProposalManager) CheckExists(ctx context.Context, actor types.Actor, jobID uuid.UUID) (bool, error) {
	if err := requireActive(actor); err != nil {
		return false, err
	}
	p, err := m.store.GetProposalByJobAndFreelancer(ctx, jobID, actor.ID)
	if err != nil {
		return false, unavailable("failed to check proposal", err)
	}
	return p != nil, nil
}

// Get returns a proposal visible to its author, the job owner or an admin.
func (m *ProposalManager) Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*types.Proposal, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	p, err := m.store.GetProposal(ctx, id)
	if err != nil {
		return nil, unavailable("failed to get proposal", err)
	}
	if p == nil {
		return nil, notFound("proposal")
	}
	if p.FreelancerID == actor.ID || actor.IsAdmin() {
		return p, nil
	}
	job, err := m.store.GetJob(ctx, p.JobID)
	if err != nil {
		return nil, unavailable("failed to get job", err)
	}
	if job == nil || !job.IsOwnedBy(actor.ID) {
		return nil, forbidden("not allowed to view this proposal")
	}
	return p, nil
}

// ListByJob returns every proposal on a job to its owner or an admin.
func (m *ProposalManager) ListByJob(ctx context.Context, actor types.Actor, jobID uuid.UUID) ([]types.Proposal, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, unavailable("failed to get job", err)
	}
	if job == nil {
		return nil, notFound("job")
	}
	if !job.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
		return nil, forbidden("only the job owner can list its proposals")
	}
	out, err := m.store.ListProposalsByJob(ctx, jobID)
	return out, unavailable("failed to list proposals", err)
}

// ListMine returns the actor's own proposals.
func (m *ProposalManager) ListMine(ctx context.Context, actor types.Actor) ([]types.Proposal, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	out, err := m.store.ListProposalsByFreelancer(ctx, actor.ID)
	return out, unavailable("failed to list proposals", err)
}
