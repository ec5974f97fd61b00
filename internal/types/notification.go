package types

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType ties a notification to the transition that produced it.
type NotificationType string

const (
	NotifyJobAssigned         NotificationType = "job_assigned"
	NotifyJobCompleted        NotificationType = "job_completed"
	NotifyJobCancelled        NotificationType = "job_cancelled"
	NotifyProposalReceived    NotificationType = "proposal_received"
	NotifyProposalShortlisted NotificationType = "proposal_shortlisted"
	NotifyProposalRejected    NotificationType = "proposal_rejected"
	NotifyPaymentReceived     NotificationType = "payment_received"
	NotifyPaymentReleased     NotificationType = "payment_released"
	NotifyPaymentRefunded     NotificationType = "payment_refunded"
	NotifyPaymentDisputed     NotificationType = "payment_disputed"
)

// Notification is an in-store record of a lifecycle event addressed to one user.
type Notification struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	JobID      *uuid.UUID       `json:"job_id,omitempty"`
	ProposalID *uuid.UUID       `json:"proposal_id,omitempty"`
	PaymentID  *uuid.UUID       `json:"payment_id,omitempty"`
	ActorID    *uuid.UUID       `json:"actor_id,omitempty"`
	IsRead     bool             `json:"is_read"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
	ActionURL  string           `json:"action_url,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NotificationRefs points a notification at the entities of its triggering transition.
type NotificationRefs struct {
	JobID      *uuid.UUID
	ProposalID *uuid.UUID
	PaymentID  *uuid.UUID
	ActorID    *uuid.UUID
}

// NotificationFilter holds optional filters for listing a user's notifications
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationTemplate renders the title, message and action link of one
// notification type. Placeholders such as {job_title} are filled from the
// variables of the triggering transition.
type NotificationTemplate struct {
	Title     string `yaml:"title" json:"title"`
	Message   string `yaml:"message" json:"message"`
	ActionURL string `yaml:"action_url" json:"action_url"`
}
