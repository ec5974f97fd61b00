package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

const entityJob = "job"

// JobManager drives jobs through open, in-progress, completed, cancelled and closed.
type JobManager struct {
	*base
}

// Create posts a new open job owned by the actor.
func (m *JobManager) Create(ctx context.Context, actor types.Actor, in types.CreateJobInput) (job *types.Job, err error) {
	defer func() { m.observe(entityJob, "create", actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if actor.Role != types.RoleClient && !actor.IsAdmin() {
		return nil, forbidden("only clients can post jobs")
	}
	if err := m.checkInput(&in); err != nil {
		return nil, err
	}

	job = &types.Job{
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Budget:        in.Budget,
		BudgetType:    in.BudgetType,
		Duration:      in.Duration,
		Experience:    in.Experience,
		Skills:        in.Skills,
		Location:      in.Location,
		Status:        types.JobStatusOpen,
		PaymentStatus: types.JobPaymentUnpaid,
		ClientID:      actor.ID,
		Source:        types.SourcePlatform,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, unavailable("failed to create job", err)
	}
	return job, nil
}

// Get returns a job by id.
func (m *JobManager) Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*types.Job, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, unavailable("failed to get job", err)
	}
	if job == nil {
		return nil, notFound("job")
	}
	return job, nil
}

// List returns jobs matching f, newest first.
func (m *JobManager) List(ctx context.Context, actor types.Actor, f types.JobFilter) ([]types.Job, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	jobs, err := m.store.ListJobs(ctx, f)
	return jobs, unavailable("failed to list jobs", err)
}

// editableStatuses are the job statuses in which fields may change.
var editableStatuses = []types.JobStatus{types.JobStatusOpen, types.JobStatusInProgress, types.JobStatusClosed}

// Update applies an allow-listed patch. Owners may not edit jobs that came
// from the ingestion feed.
func (m *JobManager) Update(ctx context.Context, actor types.Actor, id uuid.UUID, patch types.JobPatch) (job *types.Job, err error) {
	defer func() { m.observe(entityJob, "update", actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, validationError("no updatable fields supplied")
	}
	if err := m.checkInput(&patch); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !actor.IsAdmin() {
			if !cur.IsOwnedBy(actor.ID) {
				return forbidden("only the job owner can edit it")
			}
			if !cur.IsPlatform() {
				return forbidden("jobs imported from %s cannot be edited", cur.Source)
			}
		}
		if cur.Status.IsFrozen() {
			return invalidState("job is %s", cur.Status)
		}

		patch.Apply(cur)
		ok, err := tx.UpdateJobFields(ctx, cur, editableStatuses)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("job changed concurrently")
		}
		job = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// AssignFreelancer hires freelancerID for the job: the job moves to
// in-progress, their proposal is accepted and every other open proposal is
// rejected, all in one transaction. Repeating the call for the same
// freelancer returns OutcomeUnchanged and settles any proposal an earlier
// partial run left open.
func (m *JobManager) AssignFreelancer(ctx context.Context, actor types.Actor, jobID, freelancerID uuid.UUID) (job *types.Job, outcome Outcome, err error) {
	defer func() { m.observe(entityJob, string(types.JobOpAssign), actor, outcome, err) }()

	if err := requireActive(actor); err != nil {
		return nil, "", err
	}

	var accepted *types.Proposal
	err = m.inTx(ctx, func(tx store.Store) error {
		now := m.clock.Now()

		cur, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !cur.IsOwnedBy(actor.ID) {
			return forbidden("only the job owner can assign a freelancer")
		}

		if cur.Status == types.JobStatusInProgress && cur.AssignedFreelancer != nil && *cur.AssignedFreelancer == freelancerID {
			if _, err := settleProposals(ctx, tx, jobID, freelancerID, now); err != nil {
				return err
			}
			job, outcome = cur, OutcomeUnchanged
			return nil
		}
		if _, ok := types.NextJobStatus(cur.Status, types.JobOpAssign); !ok {
			return invalidState("job is %s", cur.Status)
		}

		proposal, err := tx.GetProposalByJobAndFreelancer(ctx, jobID, freelancerID)
		if err != nil {
			return err
		}
		if proposal == nil {
			return notFound("proposal")
		}
		if _, ok := types.NextProposalStatus(proposal.Status, types.ProposalOpAccept); !ok {
			return invalidState("proposal is %s", proposal.Status)
		}

		ok, err := tx.CASJobStatus(ctx, jobID, types.JobSources(types.JobOpAssign), types.JobStatusInProgress,
			types.JobStatusChange{AssignedFreelancer: &freelancerID})
		if err != nil {
			return err
		}
		if !ok {
			return conflict("job was modified concurrently")
		}

		accepted, err = settleProposals(ctx, tx, jobID, freelancerID, now)
		if err != nil {
			return err
		}
		if accepted == nil {
			return conflict("proposal was modified concurrently")
		}

		job, err = tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	if outcome == OutcomeApplied {
		m.notify.Emit(ctx, NotificationInput{
			UserID: freelancerID,
			Type:   types.NotifyJobAssigned,
			Refs:   types.NotificationRefs{JobID: &job.ID, ProposalID: &accepted.ID, ActorID: &actor.ID},
			Vars:   map[string]string{"job_title": job.Title},
		})
	}
	return job, outcome, nil
}

// settleProposals accepts the freelancer's proposal if it is still open and
// rejects every other open proposal on the job. It returns the proposal it
// accepted, or nil when there was nothing to accept.
func settleProposals(ctx context.Context, tx store.Store, jobID, freelancerID uuid.UUID, now time.Time) (*types.Proposal, error) {
	proposal, err := tx.GetProposalByJobAndFreelancer(ctx, jobID, freelancerID)
	if err != nil {
		return nil, err
	}

	var accepted *types.Proposal
	keep := uuid.Nil
	if proposal != nil {
		keep = proposal.ID
		ok, err := tx.CASProposalStatus(ctx, proposal.ID, types.ProposalSources(types.ProposalOpAccept), types.ProposalAccepted, now)
		if err != nil {
			return nil, err
		}
		if ok {
			accepted = proposal
		}
	}
	if _, err := tx.RejectOtherProposals(ctx, jobID, keep, now); err != nil {
		return nil, err
	}
	return accepted, nil
}

// Complete marks an in-progress job completed. Completing a completed job
// returns OutcomeUnchanged.
func (m *JobManager) Complete(ctx context.Context, actor types.Actor, jobID uuid.UUID) (job *types.Job, outcome Outcome, err error) {
	defer func() { m.observe(entityJob, string(types.JobOpComplete), actor, outcome, err) }()

	if err := requireActive(actor); err != nil {
		return nil, "", err
	}

	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !cur.IsOwnedBy(actor.ID) {
			return forbidden("only the job owner can complete it")
		}
		if cur.Status == types.JobStatusCompleted {
			job, outcome = cur, OutcomeUnchanged
			return nil
		}
		if _, ok := types.NextJobStatus(cur.Status, types.JobOpComplete); !ok {
			return invalidState("job is %s", cur.Status)
		}

		now := m.clock.Now()
		ok, err := tx.CASJobStatus(ctx, jobID, types.JobSources(types.JobOpComplete), types.JobStatusCompleted,
			types.JobStatusChange{CompletedAt: &now})
		if err != nil {
			return err
		}
		if !ok {
			return conflict("job was modified concurrently")
		}
		job, err = tx.GetJob(ctx, jobID)
		outcome = OutcomeApplied
		return err
	})
	if err != nil {
		return nil, "", err
	}

	if outcome == OutcomeApplied && job.AssignedFreelancer != nil {
		m.notify.Emit(ctx, NotificationInput{
			UserID: *job.AssignedFreelancer,
			Type:   types.NotifyJobCompleted,
			Refs:   types.NotificationRefs{JobID: &job.ID, ActorID: &actor.ID},
			Vars:   map[string]string{"job_title": job.Title},
		})
	}
	return job, outcome, nil
}

// Cancel withdraws an open or closed job and rejects its open proposals.
// Each affected freelancer is notified.
func (m *JobManager) Cancel(ctx context.Context, actor types.Actor, jobID uuid.UUID) (job *types.Job, err error) {
	defer func() { m.observe(entityJob, string(types.JobOpCancel), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}

	var rejected []types.Proposal
	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !cur.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
			return forbidden("only the job owner can cancel it")
		}
		if _, ok := types.NextJobStatus(cur.Status, types.JobOpCancel); !ok {
			return invalidState("job is %s", cur.Status)
		}

		ok, err := tx.CASJobStatus(ctx, jobID, types.JobSources(types.JobOpCancel), types.JobStatusCancelled, types.JobStatusChange{})
		if err != nil {
			return err
		}
		if !ok {
			return conflict("job was modified concurrently")
		}
		rejected, err = tx.RejectOtherProposals(ctx, jobID, uuid.Nil, m.clock.Now())
		if err != nil {
			return err
		}
		job, err = tx.GetJob(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, p := range rejected {
		m.notify.Emit(ctx, NotificationInput{
			UserID: p.FreelancerID,
			Type:   types.NotifyJobCancelled,
			Refs:   types.NotificationRefs{JobID: &job.ID, ProposalID: ptr(p.ID), ActorID: &actor.ID},
			Vars:   map[string]string{"job_title": job.Title},
		})
	}
	return job, nil
}

// Close stops an open job from accepting proposals.
func (m *JobManager) Close(ctx context.Context, actor types.Actor, jobID uuid.UUID) (job *types.Job, err error) {
	defer func() { m.observe(entityJob, string(types.JobOpClose), actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !cur.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
			return forbidden("only the job owner can close it")
		}
		if _, ok := types.NextJobStatus(cur.Status, types.JobOpClose); !ok {
			return invalidState("job is %s", cur.Status)
		}
		ok, err := tx.CASJobStatus(ctx, jobID, types.JobSources(types.JobOpClose), types.JobStatusClosed, types.JobStatusChange{})
		if err != nil {
			return err
		}
		if !ok {
			return conflict("job was modified concurrently")
		}
		job, err = tx.GetJob(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Delete removes a job and its proposals. Jobs in progress, and jobs with
// payment records, cannot be deleted; completed and cancelled jobs only by an admin.
func (m *JobManager) Delete(ctx context.Context, actor types.Actor, jobID uuid.UUID) (err error) {
	defer func() { m.observe(entityJob, "delete", actor, OutcomeApplied, err) }()

	if err := requireActive(actor); err != nil {
		return err
	}

	return m.inTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("job")
		}
		if !cur.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
			return forbidden("only the job owner can delete it")
		}
		if cur.Status == types.JobStatusInProgress {
			return invalidState("job is in progress")
		}
		if cur.Status.IsFrozen() && !actor.IsAdmin() {
			return invalidState("job is %s", cur.Status)
		}
		payments, err := tx.ListPaymentsByJob(ctx, jobID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return invalidState("job has payment records")
		}

		ok, err := tx.DeleteJob(ctx, jobID)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("job")
		}
		return nil
	})
}
