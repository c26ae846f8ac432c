// Package me contiene los controllers de /me.
package me

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	dto "github.com/farutech/tenantcore/internal/http/dto/me"
	httperrors "github.com/farutech/tenantcore/internal/http/errors"
	"github.com/farutech/tenantcore/internal/http/helpers"
	mw "github.com/farutech/tenantcore/internal/http/middlewares"
)

// PermissionReader es el subconjunto de *permcache.Manager que usa /me/permissions.
type PermissionReader interface {
	GetOrLoadUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error)
}

// MeController expone el contexto del access token actual.
type MeController struct {
	perms PermissionReader
}

func NewMeController(perms PermissionReader) *MeController {
	return &MeController{perms: perms}
}

// Context maneja GET /me/context.
func (c *MeController) Context(w http.ResponseWriter, r *http.Request) {
	ac := mw.GetAccess(r.Context())
	if ac == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	resp := dto.ContextResponse{
		UserID:      ac.UserID,
		CompanyName: ac.CompanyName,
		Role:        ac.Role,
		ExpiresAt:   ac.ExpiresAt,
	}
	if ac.HasTenant() {
		tid := ac.TenantID
		resp.TenantID = &tid
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Permissions maneja GET /me/permissions.
func (c *MeController) Permissions(w http.ResponseWriter, r *http.Request) {
	ac := mw.GetAccess(r.Context())
	if ac == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	if !ac.HasTenant() {
		httperrors.WriteError(w, httperrors.ErrTenantRequired)
		return
	}
	perms, err := c.perms.GetOrLoadUserPermissions(r.Context(), ac.UserID, ac.TenantID)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.PermissionsResponse{TenantID: ac.TenantID, Permissions: perms})
}
