package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles de membresía conocidos.
const (
	RoleOwner      = "Owner"
	RoleAdmin      = "Admin"
	RoleUser       = "User"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// Membership une un usuario con un Customer bajo un rol.
// Invariante: a lo sumo una membresía no borrada por (user, customer).
type Membership struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CustomerID uuid.UUID
	Role       string
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MembershipRepository operaciones sobre membresías.
type MembershipRepository interface {
	// ListActiveByUser retorna las membresías no borradas del usuario.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]Membership, error)

	// Get retorna la membresía no borrada del par, o ErrNotFound.
	Get(ctx context.Context, userID, customerID uuid.UUID) (*Membership, error)

	// Upsert crea la membresía o reactiva/actualiza la existente.
	Upsert(ctx context.Context, userID, customerID uuid.UUID, role string) (*Membership, error)

	// UpdateRole cambia el rol; ErrNotFound si no hay membresía activa.
	UpdateRole(ctx context.Context, userID, customerID uuid.UUID, role string) error

	// SoftDelete marca la membresía como borrada; ErrNotFound si no existe.
	SoftDelete(ctx context.Context, userID, customerID uuid.UUID) error
}

// PermissionSource es la fuente de verdad de permisos efectivos
// (membresía → rol → permisos) para un usuario en un tenant.
type PermissionSource interface {
	LoadUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error)
}
