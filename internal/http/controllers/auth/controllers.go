// Package auth contiene los controllers de /auth.
package auth

import (
	"errors"
	"net/http"

	httperrors "github.com/farutech/tenantcore/internal/http/errors"
	svc "github.com/farutech/tenantcore/internal/http/services/auth"
)

// Controllers agrupa los controllers del dominio auth.
type Controllers struct {
	Login    *LoginController
	Context  *ContextController
	Password *PasswordController
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(s svc.Services) *Controllers {
	return &Controllers{
		Login:    &LoginController{service: s.Login},
		Context:  &ContextController{service: s.Context},
		Password: &PasswordController{service: s.Password},
	}
}

// writeAuthError traduce errores del service a la respuesta HTTP.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrInvalidCredentials):
		httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
	case errors.Is(err, svc.ErrTokenInvalid):
		httperrors.WriteError(w, httperrors.ErrTokenInvalid)
	case errors.Is(err, svc.ErrTenantNotAuthorized):
		httperrors.WriteError(w, httperrors.ErrTenantNotAuthorized)
	case errors.Is(err, svc.ErrWeakPassword):
		httperrors.WriteError(w, httperrors.ErrPasswordTooWeak.WithDetail(err.Error()))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}
