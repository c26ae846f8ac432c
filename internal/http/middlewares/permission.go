package middlewares

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/http/errors"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// PermissionChecker resuelve permisos efectivos; *permcache.Manager lo implementa.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, tenantID uuid.UUID, code string) (bool, error)
}

// RequirePermission exige que el usuario tenga code en el tenant del token.
// Va después de RequireAccessToken y ActiveTenant.
func RequirePermission(pc PermissionChecker, code string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := GetAccess(r.Context())
			if ac == nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			if !ac.HasTenant() {
				errors.WriteError(w, errors.ErrTenantRequired)
				return
			}

			ok, err := pc.HasPermission(r.Context(), ac.UserID, ac.TenantID, code)
			if err != nil {
				errors.WriteError(w, errors.ErrServiceUnavailable.WithCause(err))
				return
			}
			if !ok {
				logger.From(r.Context()).Info("permission denied", logger.String("permission", code))
				errors.WriteError(w, errors.ErrForbidden.WithDetail("missing permission: "+code))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
