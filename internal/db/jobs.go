package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// -----------------------------------------------------------------------------
// Job Methods
// -----------------------------------------------------------------------------

const jobColumns = `id, title, description, category, budget, budget_type, duration,
	experience, skills, location, status, payment_status, client_id, assigned_freelancer,
	applicants_count, source, external_id, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	err := row.Scan(&j.ID, &j.Title, &j.Description, &j.Category, &j.Budget, &j.BudgetType,
		&j.Duration, &j.Experience, &j.Skills, &j.Location, &j.Status, &j.PaymentStatus,
		&j.ClientID, &j.AssignedFreelancer, &j.ApplicantsCount, &j.Source, &j.ExternalID, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func skillsArg(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}

// CreateJob inserts a job and fills in its ID and timestamps. Reusing an
// external id within the same source yields store.ErrDuplicate.
func (db *DB) CreateJob(ctx context.Context, j *types.Job) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Source == "" {
		j.Source = types.SourcePlatform
	}
	err := db.q.QueryRow(ctx,
		`INSERT INTO jobs (id, title, description, category, budget, budget_type, duration,
		                   experience, skills, location, status, payment_status, client_id,
		                   assigned_freelancer, applicants_count, source, external_id, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING created_at, updated_at`,
		j.ID, j.Title, j.Description, j.Category, j.Budget, j.BudgetType, j.Duration,
		j.Experience, skillsArg(j.Skills), j.Location, j.Status, j.PaymentStatus, j.ClientID,
		j.AssignedFreelancer, j.ApplicantsCount, j.Source, j.ExternalID, j.CompletedAt,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	j, err := scanJob(db.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ListJobs lists jobs newest first with optional filters and pagination
func (db *DB) ListJobs(ctx context.Context, f types.JobFilter) ([]types.Job, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if f.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*f.Status))
		argIndex++
	}
	if f.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argIndex))
		args = append(args, *f.ClientID)
		argIndex++
	}
	if f.Freelancer != nil {
		conditions = append(conditions, fmt.Sprintf("assigned_freelancer = $%d", argIndex))
		args = append(args, *f.Freelancer)
		argIndex++
	}
	if f.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, f.Category)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limitArg(f.Limit), offset)
	query := fmt.Sprintf(
		`SELECT %s FROM jobs %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`,
		jobColumns, whereClause, argIndex, argIndex+1,
	)

	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]types.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobFields writes the editable fields of j while its status is one of from
func (db *DB) UpdateJobFields(ctx context.Context, j *types.Job, from []types.JobStatus) (bool, error) {
	err := db.q.QueryRow(ctx,
		`UPDATE jobs
		 SET title = $3, description = $4, category = $5, budget = $6, budget_type = $7,
		     duration = $8, experience = $9, skills = $10, location = $11, updated_at = NOW()
		 WHERE id = $1 AND status = ANY($2)
		 RETURNING updated_at`,
		j.ID, statusArgs(from), j.Title, j.Description, j.Category, j.Budget, j.BudgetType,
		j.Duration, j.Experience, skillsArg(j.Skills), j.Location,
	).Scan(&j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update job: %w", err)
	}
	return true, nil
}

// CASJobStatus moves a job to status to if its current status is one of from
func (db *DB) CASJobStatus(ctx context.Context, id uuid.UUID, from []types.JobStatus, to types.JobStatus, change types.JobStatusChange) (bool, error) {
	tag, err := db.q.Exec(ctx,
		`UPDATE jobs
		 SET status = $3,
		     assigned_freelancer = COALESCE($4, assigned_freelancer),
		     completed_at = COALESCE($5, completed_at),
		     updated_at = NOW()
		 WHERE id = $1 AND status = ANY($2)`,
		id, statusArgs(from), string(to), change.AssignedFreelancer, change.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetJobPaymentStatus records the escrow state of a job's funds
func (db *DB) SetJobPaymentStatus(ctx context.Context, id uuid.UUID, status types.JobPaymentStatus) error {
	_, err := db.q.Exec(ctx,
		`UPDATE jobs SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update job payment status: %w", err)
	}
	return nil
}

// IncrementApplicants bumps a job's applicant counter
func (db *DB) IncrementApplicants(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.q.Exec(ctx,
		`UPDATE jobs SET applicants_count = applicants_count + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to increment applicants: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteJob removes a job; its proposals go with it through ON DELETE CASCADE
func (db *DB) DeleteJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.q.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
