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
// Proposal Methods
// -----------------------------------------------------------------------------

const proposalColumns = `id, job_id, freelancer_id, cover_letter, proposed_budget,
	proposed_duration, relevant_experience, status, shortlisted_at, accepted_at,
	rejected_at, withdrawn_at, created_at, updated_at`

func scanProposal(row pgx.Row) (*types.Proposal, error) {
	var p types.Proposal
	err := row.Scan(&p.ID, &p.JobID, &p.FreelancerID, &p.CoverLetter, &p.ProposedBudget,
		&p.ProposedDuration, &p.RelevantExperience, &p.Status, &p.ShortlistedAt, &p.AcceptedAt,
		&p.RejectedAt, &p.WithdrawnAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProposals(rows pgx.Rows) ([]types.Proposal, error) {
	defer rows.Close()

	proposals := make([]types.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate proposals: %w", err)
	}
	return proposals, nil
}

// CreateProposal inserts a proposal. A second proposal by the same
// freelancer on the same job yields store.ErrDuplicate.
func (db *DB) CreateProposal(ctx context.Context, p *types.Proposal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.q.QueryRow(ctx,
		`INSERT INTO proposals (id, job_id, freelancer_id, cover_letter, proposed_budget,
		                        proposed_duration, relevant_experience, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		p.ID, p.JobID, p.FreelancerID, p.CoverLetter, p.ProposedBudget,
		p.ProposedDuration, p.RelevantExperience, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return nil
}

// GetProposal retrieves a proposal by ID
func (db *DB) GetProposal(ctx context.Context, id uuid.UUID) (*types.Proposal, error) {
	p, err := scanProposal(db.q.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return p, nil
}

// GetProposalByJobAndFreelancer retrieves the proposal a freelancer made on a job
func (db *DB) GetProposalByJobAndFreelancer(ctx context.Context, jobID, freelancerID uuid.UUID) (*types.Proposal, error) {
	p, err := scanProposal(db.q.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE job_id = $1 AND freelancer_id = $2`,
		jobID, freelancerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return p, nil
}

// ListProposalsByJob lists a job's proposals oldest first
func (db *DB) ListProposalsByJob(ctx context.Context, jobID uuid.UUID) ([]types.Proposal, error) {
	rows, err := db.q.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return collectProposals(rows)
}

// ListProposalsByFreelancer lists a freelancer's proposals oldest first
func (db *DB) ListProposalsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]types.Proposal, error) {
	rows, err := db.q.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE freelancer_id = $1 ORDER BY created_at`,
		freelancerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return collectProposals(rows)
}

// CASProposalStatus moves a proposal to status to if its current status is one of from
// CASProposalStatus yields store.ErrDuplicate when accepting would give the
// job a second accepted proposal.
func (db *DB) CASProposalStatus(ctx context.Context, id uuid.UUID, from []types.ProposalStatus, to types.ProposalStatus, at time.Time) (bool, error) {
	ok, err := db.casStatus(ctx, "proposals", id, statusArgs(from), string(to), at)
	if err != nil {
		if isDuplicateKey(err) {
			return false, store.ErrDuplicate
		}
		return false, fmt.Errorf("failed to update proposal status: %w", err)
	}
	return ok, nil
}

// RejectOtherProposals rejects every open proposal on jobID except keep
func (db *DB) RejectOtherProposals(ctx context.Context, jobID, keep uuid.UUID, at time.Time) ([]types.Proposal, error) {
	rows, err := db.q.Query(ctx,
		`UPDATE proposals
		 SET status = 'rejected', rejected_at = $3, updated_at = $3
		 WHERE job_id = $1 AND id <> $2 AND status = ANY($4)
		 RETURNING `+proposalColumns,
		jobID, keep, at, statusArgs(types.ProposalSources(types.ProposalOpReject)))
	if err != nil {
		return nil, fmt.Errorf("failed to reject proposals: %w", err)
	}
	return collectProposals(rows)
}
