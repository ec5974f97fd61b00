// Package types provides the domain entities shared by the lifecycle engine, the stores and the HTTP API.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusClosed     JobStatus = "closed"
)

// JobPaymentStatus tracks the escrow state of a Job's funds.
type JobPaymentStatus string

const (
	JobPaymentUnpaid   JobPaymentStatus = "unpaid"
	JobPaymentEscrow   JobPaymentStatus = "escrow"
	JobPaymentPaid     JobPaymentStatus = "paid"
	JobPaymentRefunded JobPaymentStatus = "refunded"
)

// BudgetType values
const (
	BudgetFixed  = "fixed"
	BudgetHourly = "hourly"
)

// Experience levels
const (
	ExperienceEntry        = "Entry"
	ExperienceIntermediate = "Intermediate"
	ExperienceExpert       = "Expert"
)

// SourcePlatform marks jobs created by clients through the API. Jobs from the
// ingestion feed carry the feed name instead.
const SourcePlatform = "platform"

// Categories is the closed set of job categories.
var Categories = []string{
	"web-development",
	"mobile-development",
	"design",
	"writing",
	"marketing",
	"data-science",
	"devops",
	"other",
}

// Job is a unit of work posted by a client.
type Job struct {
	ID                 uuid.UUID        `json:"id"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Category           string           `json:"category"`
	Budget             decimal.Decimal  `json:"budget"`
	BudgetType         string           `json:"budget_type"`
	Duration           string           `json:"duration"`
	Experience         string           `json:"experience"`
	Skills             []string         `json:"skills"`
	Location           string           `json:"location,omitempty"`
	Status             JobStatus        `json:"status"`
	PaymentStatus      JobPaymentStatus `json:"payment_status"`
	ClientID           uuid.UUID        `json:"client_id"`
	AssignedFreelancer *uuid.UUID       `json:"assigned_freelancer,omitempty"`
	ApplicantsCount    int              `json:"applicants_count"`
	Source             string           `json:"source"`
	ExternalID         string           `json:"external_id,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsOwnedBy reports whether userID is the job's client.
func (j *Job) IsOwnedBy(userID uuid.UUID) bool {
	return j.ClientID == userID
}

// IsPlatform reports whether the job was created through the API rather than ingested.
func (j *Job) IsPlatform() bool {
	return j.Source == "" || j.Source == SourcePlatform
}

// CreateJobInput is the client-supplied payload for a new job.
type CreateJobInput struct {
	Title       string          `json:"title" validate:"required,min=3,max=200"`
	Description string          `json:"description" validate:"required,min=10"`
	Category    string          `json:"category" validate:"required,job_category"`
	Budget      decimal.Decimal `json:"budget" validate:"gt=0"`
	BudgetType  string          `json:"budget_type" validate:"required,oneof=fixed hourly"`
	Duration    string          `json:"duration" validate:"required"`
	Experience  string          `json:"experience" validate:"required,oneof=Entry Intermediate Expert"`
	Skills      []string        `json:"skills" validate:"required,min=1,dive,required"`
	Location    string          `json:"location,omitempty"`
}

// JobPatch is the allow-listed set of fields a job owner may edit. Nil fields are left unchanged.
type JobPatch struct {
	Title       *string          `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,min=10"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,job_category"`
	Budget      *decimal.Decimal `json:"budget,omitempty" validate:"omitempty,gt=0"`
	BudgetType  *string          `json:"budget_type,omitempty" validate:"omitempty,oneof=fixed hourly"`
	Duration    *string          `json:"duration,omitempty" validate:"omitempty,min=1"`
	Experience  *string          `json:"experience,omitempty" validate:"omitempty,oneof=Entry Intermediate Expert"`
	Skills      []string         `json:"skills,omitempty" validate:"omitempty,min=1,dive,required"`
	Location    *string          `json:"location,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *JobPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Budget == nil &&
		p.BudgetType == nil && p.Duration == nil && p.Experience == nil && p.Skills == nil && p.Location == nil
}

// Apply copies the non-nil patch fields onto job.
func (p *JobPatch) Apply(job *Job) {
	if p.Title != nil {
		job.Title = *p.Title
	}
	if p.Description != nil {
		job.Description = *p.Description
	}
	if p.Category != nil {
		job.Category = *p.Category
	}
	if p.Budget != nil {
		job.Budget = *p.Budget
	}
	if p.BudgetType != nil {
		job.BudgetType = *p.BudgetType
	}
	if p.Duration != nil {
		job.Duration = *p.Duration
	}
	if p.Experience != nil {
		job.Experience = *p.Experience
	}
	if p.Skills != nil {
		job.Skills = append([]string(nil), p.Skills...)
	}
	if p.Location != nil {
		job.Location = *p.Location
	}
}

// JobFilter holds optional filters for listing jobs
type JobFilter struct {
	Status     *JobStatus
	ClientID   *uuid.UUID
	Freelancer *uuid.UUID
	Category   string
	Limit      int
	Offset     int
}

// JobStatusChange carries the fields written together with a job status CAS.
type JobStatusChange struct {
	AssignedFreelancer *uuid.UUID
	CompletedAt        *time.Time
}
