// Package memberships administra las membresías usuario↔organización.
// Toda escritura que cambia permisos efectivos invalida el cache de permisos
// en forma síncrona, después de confirmada en la base.
package memberships

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/audit"
	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrInvalidRole        = errors.New("invalid role")
	// ErrInvalidationFailed: la escritura quedó confirmada pero el cache no se pudo limpiar.
	ErrInvalidationFailed = errors.New("permission cache invalidation failed")
)

// PermissionInvalidator es el subconjunto de *permcache.Manager que se usa aquí.
type PermissionInvalidator interface {
	InvalidateUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) error
	InvalidateAllUserPermissions(ctx context.Context, userID uuid.UUID) error
}

// Service define las operaciones sobre membresías de una organización.
type Service interface {
	Assign(ctx context.Context, customerID uuid.UUID, email, role string) (*repository.Membership, error)
	ChangeRole(ctx context.Context, customerID, userID uuid.UUID, role string) error
	Remove(ctx context.Context, customerID, userID uuid.UUID) error
}

// Deps contiene las dependencias del service.
type Deps struct {
	Users       repository.UserRepository
	Memberships repository.MembershipRepository
	Instances   repository.TenantInstanceRepository
	Permissions PermissionInvalidator
}

type service struct {
	deps Deps
}

// NewService crea el service de membresías.
func NewService(d Deps) Service {
	return &service{deps: d}
}

func normalizeRole(role string) (string, error) {
	for _, r := range []string{repository.RoleOwner, repository.RoleAdmin, repository.RoleUser} {
		if strings.EqualFold(strings.TrimSpace(role), r) {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}

func (s *service) Assign(ctx context.Context, customerID uuid.UUID, email, role string) (*repository.Membership, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return nil, err
	}
	user, err := s.deps.Users.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	}

	m, err := s.deps.Memberships.Upsert(ctx, user.ID, customerID, role)
	if err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}
	audit.Log(ctx, audit.MembershipAssigned,
		logger.CustomerID(customerID.String()),
		logger.UserID(user.ID.String()),
		logger.Role(role),
	)

	if err := s.invalidate(ctx, user.ID, customerID); err != nil {
		return m, err
	}
	return m, nil
}

func (s *service) ChangeRole(ctx context.Context, customerID, userID uuid.UUID, role string) error {
	role, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if err := s.deps.Memberships.UpdateRole(ctx, userID, customerID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}
	audit.Log(ctx, audit.MembershipRoleChanged,
		logger.CustomerID(customerID.String()),
		logger.UserID(userID.String()),
		logger.Role(role),
	)

	return s.invalidate(ctx, userID, customerID)
}

func (s *service) Remove(ctx context.Context, customerID, userID uuid.UUID) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("memberships"),
		logger.Op("Remove"),
		logger.CustomerID(customerID.String()),
		logger.UserID(userID.String()),
	)

	if err := s.deps.Memberships.SoftDelete(ctx, userID, customerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("remove membership: %w", err)
	}
	audit.Log(ctx, audit.MembershipRemoved,
		logger.CustomerID(customerID.String()),
		logger.UserID(userID.String()),
	)

	if err := s.deps.Permissions.InvalidateAllUserPermissions(ctx, userID); err != nil {
		log.Error("permission cache invalidation failed", logger.Err(err))
		return fmt.Errorf("%w: %v", ErrInvalidationFailed, err)
	}
	return nil
}

// invalidate limpia (usuario, organización) y (usuario, instancia) para cada
// instancia de la organización: ambas formas de tenant id se cachean.
func (s *service) invalidate(ctx context.Context, userID, customerID uuid.UUID) error {
	log := logger.From(ctx)

	tenantIDs := []uuid.UUID{customerID}
	byCustomer, err := s.deps.Instances.ListByCustomers(ctx, []uuid.UUID{customerID})
	if err != nil {
		// Sin la lista de instancias sólo queda barrer todo lo del usuario.
		log.Warn("list instances failed, invalidating all user entries", logger.Err(err))
		if err := s.deps.Permissions.InvalidateAllUserPermissions(ctx, userID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidationFailed, err)
		}
		return nil
	}
	for _, ti := range byCustomer[customerID] {
		tenantIDs = append(tenantIDs, ti.ID)
	}

	for _, tid := range tenantIDs {
		if err := s.deps.Permissions.InvalidateUserPermissions(ctx, userID, tid); err != nil {
			log.Error("permission cache invalidation failed", logger.TenantID(tid.String()), logger.Err(err))
			return fmt.Errorf("%w: %v", ErrInvalidationFailed, err)
		}
	}
	return nil
}
