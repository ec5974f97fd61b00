package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is a user's marketplace role.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// UserStatus values
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

// User is the identity record the engine references. Only the running
// counters are written by the lifecycle engine.
type User struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Role          Role            `json:"role"`
	Status        UserStatus      `json:"status"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	PasswordHash  string          `json:"-"` // Never serialize to JSON
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Actor is the authenticated principal behind a lifecycle request.
type Actor struct {
	ID     uuid.UUID
	Role   Role
	Status UserStatus
}

// ActorFor builds an Actor from a user record.
func ActorFor(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role, Status: u.Status}
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsSuspended reports whether the actor's account is suspended.
func (a Actor) IsSuspended() bool {
	return a.Status == UserSuspended
}
