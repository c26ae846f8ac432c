// Package router arma el árbol de rutas chi de la API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/farutech/tenantcore/internal/http/controllers/auth"
	catalogctrl "github.com/farutech/tenantcore/internal/http/controllers/catalog"
	healthctrl "github.com/farutech/tenantcore/internal/http/controllers/health"
	mectrl "github.com/farutech/tenantcore/internal/http/controllers/me"
	membershipsctrl "github.com/farutech/tenantcore/internal/http/controllers/memberships"
	httperrors "github.com/farutech/tenantcore/internal/http/errors"
	mw "github.com/farutech/tenantcore/internal/http/middlewares"
	"github.com/farutech/tenantcore/internal/rate"
)

// PermissionManageMemberships es el permiso requerido para escribir membresías.
const PermissionManageMemberships = "memberships.manage"

// Deps contiene todo lo que el router necesita.
type Deps struct {
	Auth        *authctrl.Controllers
	Me          *mectrl.MeController
	Memberships *membershipsctrl.MembershipsController
	Catalog     *catalogctrl.CatalogController
	Health      *healthctrl.HealthController

	Tokens      mw.AccessValidator
	Customers   mw.CustomerLookup
	Permissions mw.PermissionChecker
	// AuthLimiter limita login y forgot-password; nil = sin límite.
	AuthLimiter rate.Limiter

	Metrics http.Handler
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
		mw.WithLogging(),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// Health y métricas: sin auth ni guard.
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		limited := r.With(mw.WithRateLimit(d.AuthLimiter, mw.IPPathRateKey))
		limited.Post("/login", d.Auth.Login.Login)
		limited.Post("/forgot-password", d.Auth.Password.ForgotPassword)

		r.Post("/select-context", d.Auth.Context.SelectContext)
		r.Post("/reset-password", d.Auth.Password.ResetPassword)
	})

	// Rutas autenticadas: token → guard de organización activa → negocio.
	r.Group(func(r chi.Router) {
		r.Use(
			mw.WithNoStore(),
			mw.RequireAccessToken(d.Tokens),
			mw.ActiveTenant(mw.TenantGuardConfig{Customers: d.Customers}),
		)

		r.Get("/me/context", d.Me.Context)
		r.Get("/me/permissions", d.Me.Permissions)
		r.Get("/catalog/products", d.Catalog.Products)

		r.Route("/memberships", func(r chi.Router) {
			r.Use(mw.RequirePermission(d.Permissions, PermissionManageMemberships))
			r.Post("/", d.Memberships.Assign)
			r.Patch("/{userId}", d.Memberships.ChangeRole)
			r.Delete("/{userId}", d.Memberships.Remove)
		})
	})

	return r
}
