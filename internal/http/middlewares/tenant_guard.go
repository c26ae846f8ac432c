package middlewares

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/http/errors"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// CustomerLookup es el subconjunto de repository.CustomerRepository que usa el guard.
type CustomerLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Customer, error)
}

// DefaultGuardExempt son los prefijos que nunca pasan por el guard.
var DefaultGuardExempt = []string{"/auth/", "/healthz", "/readyz", "/metrics"}

// TenantGuardConfig configura ActiveTenant.
type TenantGuardConfig struct {
	Customers CustomerLookup
	// Exempt prefijos de path; nil = DefaultGuardExempt.
	Exempt []string
}

func exempt(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == strings.TrimSuffix(p, "/") || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ActiveTenant revalida en cada request que la organización del claim
// tenant_id siga existiendo y activa. Los claims son una foto del momento
// de emisión; una organización desactivada después debe cortarse aquí.
// Va después de RequireAccessToken. Sin tenant en el token, deja pasar.
func ActiveTenant(cfg TenantGuardConfig) Middleware {
	prefixes := cfg.Exempt
	if prefixes == nil {
		prefixes = DefaultGuardExempt
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			ac := GetAccess(r.Context())
			if ac == nil || !ac.HasTenant() {
				next.ServeHTTP(w, r)
				return
			}

			log := logger.From(r.Context()).With(logger.Component("tenant_guard"))

			customer, err := cfg.Customers.GetByID(r.Context(), ac.TenantID)
			switch {
			case stderrors.Is(err, repository.ErrNotFound):
				log.Info("organization not found", logger.TenantID(ac.TenantID.String()))
				errors.WriteError(w, errors.ErrOrganizationNotFound)
				return
			case err != nil:
				errors.WriteError(w, errors.ErrServiceUnavailable.WithCause(err))
				return
			case customer.IsDeleted:
				errors.WriteError(w, errors.ErrOrganizationNotFound)
				return
			case !customer.IsActive:
				log.Info("organization inactive", logger.TenantID(ac.TenantID.String()))
				errors.WriteError(w, errors.ErrOrganizationInactive.WithDetail(customer.Name))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
