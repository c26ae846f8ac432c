// Package memberships contiene los DTOs de /memberships.
package memberships

import (
	"time"

	"github.com/google/uuid"
)

// AssignRequest es el body de POST /memberships.
type AssignRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Role  string `json:"role" validate:"required,oneof=Owner Admin User"`
}

// ChangeRoleRequest es el body de PATCH /memberships/{userId}.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=Owner Admin User"`
}

// MembershipResponse representa una membresía activa.
type MembershipResponse struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"userId"`
	CustomerID uuid.UUID `json:"customerId"`
	Role       string    `json:"role"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
