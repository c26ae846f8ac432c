// Package memberships contiene el controller de /memberships.
package memberships

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
	dto "github.com/farutech/tenantcore/internal/http/dto/memberships"
	httperrors "github.com/farutech/tenantcore/internal/http/errors"
	"github.com/farutech/tenantcore/internal/http/helpers"
	mw "github.com/farutech/tenantcore/internal/http/middlewares"
	svc "github.com/farutech/tenantcore/internal/http/services/memberships"
)

// MembershipsController opera sobre la organización del access token.
type MembershipsController struct {
	service svc.Service
}

func NewMembershipsController(s svc.Service) *MembershipsController {
	return &MembershipsController{service: s}
}

func writeMembershipError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrUserNotFound):
		httperrors.WriteError(w, httperrors.ErrUserNotFound)
	case errors.Is(err, svc.ErrMembershipNotFound):
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("membership not found"))
	case errors.Is(err, svc.ErrInvalidRole):
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("role"))
	case errors.Is(err, repository.ErrConflict):
		httperrors.WriteError(w, httperrors.ErrConflict.WithCause(err))
	case errors.Is(err, svc.ErrInvalidationFailed):
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.
			WithDetail("membership saved but permission cache could not be invalidated").
			WithCause(err))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil || id == uuid.Nil {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("userId"))
		return uuid.Nil, false
	}
	return id, true
}

// Assign maneja POST /memberships.
func (c *MembershipsController) Assign(w http.ResponseWriter, r *http.Request) {
	ac := mw.GetAccess(r.Context())
	var req dto.AssignRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	m, err := c.service.Assign(r.Context(), ac.TenantID, req.Email, req.Role)
	if err != nil {
		writeMembershipError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.MembershipResponse{
		ID:         m.ID,
		UserID:     m.UserID,
		CustomerID: m.CustomerID,
		Role:       m.Role,
		UpdatedAt:  m.UpdatedAt,
	})
}

// ChangeRole maneja PATCH /memberships/{userId}.
func (c *MembershipsController) ChangeRole(w http.ResponseWriter, r *http.Request) {
	ac := mw.GetAccess(r.Context())
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var req dto.ChangeRoleRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.ChangeRole(r.Context(), ac.TenantID, userID, req.Role); err != nil {
		writeMembershipError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remove maneja DELETE /memberships/{userId}.
func (c *MembershipsController) Remove(w http.ResponseWriter, r *http.Request) {
	ac := mw.GetAccess(r.Context())
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := c.service.Remove(r.Context(), ac.TenantID, userID); err != nil {
		writeMembershipError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
