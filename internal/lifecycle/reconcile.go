package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/freelance-market/internal/metrics"
	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Scanned      int         `json:"scanned"`
	Repaired     []uuid.UUID `json:"repaired"`
	Unrepairable []uuid.UUID `json:"unrepairable"`
}

// Reconciler repairs in-progress jobs whose proposals were not settled with
// the assignment: the assigned freelancer's proposal is accepted and every
// other open proposal rejected. A job whose accepted proposal belongs to
// someone other than the assigned freelancer is reported, never repaired.
type Reconciler struct {
	*base
}

const reconcileBatch = 100

// Run scans every in-progress job once.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	status := types.JobStatusInProgress

	for offset := 0; ; offset += reconcileBatch {
		jobs, err := r.store.ListJobs(ctx, types.JobFilter{Status: &status, Limit: reconcileBatch, Offset: offset})
		if err != nil {
			return report, unavailable("failed to list in-progress jobs", err)
		}
		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Scanned++
			res, err := r.reconcileJob(ctx, &jobs[i])
			if err != nil {
				return report, err
			}
			metrics.RecordReconcile(res)
			switch res {
			case "repaired":
				report.Repaired = append(report.Repaired, jobs[i].ID)
			case "unrepairable":
				report.Unrepairable = append(report.Unrepairable, jobs[i].ID)
			}
		}
		if len(jobs) < reconcileBatch {
			break
		}
	}

	r.log.WithFields(logrus.Fields{
		"scanned":      report.Scanned,
		"repaired":     len(report.Repaired),
		"unrepairable": len(report.Unrepairable),
	}).Info("reconciliation finished")
	return report, nil
}

func (r *Reconciler) reconcileJob(ctx context.Context, job *types.Job) (string, error) {
	log := r.log.WithField("job_id", job.ID)
	if job.AssignedFreelancer == nil {
		log.Warn("in-progress job has no assigned freelancer")
		return "unrepairable", nil
	}
	freelancerID := *job.AssignedFreelancer

	result := "healthy"
	err := r.inTx(ctx, func(tx store.Store) error {
		proposals, err := tx.ListProposalsByJob(ctx, job.ID)
		if err != nil {
			return err
		}

		var mine *types.Proposal
		dangling, rival := false, false
		for i := range proposals {
			p := &proposals[i]
			if p.FreelancerID == freelancerID {
				mine = p
				continue
			}
			if p.Status == types.ProposalAccepted {
				rival = true
			}
			if !p.Status.IsTerminal() {
				dangling = true
			}
		}

		switch {
		case mine == nil, rival:
			result = "unrepairable"
			return nil
		case mine.Status == types.ProposalAccepted && !dangling:
			return nil
		case mine.Status != types.ProposalAccepted && mine.Status.IsTerminal():
			result = "unrepairable"
			return nil
		}

		if _, err := settleProposals(ctx, tx, job.ID, freelancerID, r.clock.Now()); err != nil {
			return err
		}
		result = "repaired"
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		// another proposal was accepted between the scan and the repair
		result, err = "unrepairable", nil
	}
	if err != nil {
		return "", err
	}

	switch result {
	case "repaired":
		log.Info("settled proposals of in-progress job")
	case "unrepairable":
		log.Warn("assigned freelancer has no acceptable proposal or another bid was accepted")
	}
	return result, nil
}
