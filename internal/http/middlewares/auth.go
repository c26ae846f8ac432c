package middlewares

import (
	"net/http"
	"strings"

	"github.com/farutech/tenantcore/internal/http/errors"
	"github.com/farutech/tenantcore/internal/jwt"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"go.uber.org/zap"
)

// AccessValidator valida access tokens; *jwt.Service lo implementa.
type AccessValidator interface {
	ValidateAccessToken(token string) (*jwt.AccessContext, error)
}

func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < len("Bearer ") || !strings.EqualFold(ah[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[len("Bearer "):])
}

// RequireAccessToken exige un access token válido (purpose=access) y deja
// el *jwt.AccessContext tipado en el contexto. Los tokens intermedios se rechazan.
func RequireAccessToken(v AccessValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}

			ac, err := v.ValidateAccessToken(raw)
			if err != nil {
				logger.From(r.Context()).Debug("access token rejected", logger.Err(err))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				errors.WriteError(w, errors.ErrTokenInvalid.WithCause(err))
				return
			}

			fields := []zap.Field{logger.UserID(ac.UserID.String())}
			if ac.HasTenant() {
				fields = append(fields, logger.TenantID(ac.TenantID.String()))
			}
			ctx := logger.ToContext(r.Context(), logger.From(r.Context()).With(fields...))
			ctx = WithAccess(ctx, ac)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant exige que el access token ya esté ligado a un tenant.
func RequireTenant() Middleware {
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
			next.ServeHTTP(w, r)
		})
	}
}
