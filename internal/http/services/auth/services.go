// Package auth contiene los services del login en dos fases y del reseteo de contraseña.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/jwt"
)

var (
	// ErrInvalidCredentials cubre usuario inexistente, inactivo y password incorrecto.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrTenantNotAuthorized = errors.New("tenant not authorized")
	ErrWeakPassword        = errors.New("password does not meet policy")
)

// LoginService autentica credenciales y decide entre acceso directo o selección de contexto.
type LoginService interface {
	Login(ctx context.Context, in dto.LoginRequest) (*dto.SecureLoginResponse, error)
}

// ContextService canjea un token intermedio por un access token de un tenant.
type ContextService interface {
	SelectContext(ctx context.Context, in dto.SelectContextRequest) (*dto.SelectContextResponse, error)
}

// PasswordService maneja forgot/reset password.
type PasswordService interface {
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// ResetNotifier entrega el link de reseteo al usuario.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, to, fullName, link string, expiresAt time.Time) error
}

// MembershipReader es lo que el login necesita de las membresías.
type MembershipReader interface {
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]repository.Membership, error)
	Get(ctx context.Context, userID, customerID uuid.UUID) (*repository.Membership, error)
}

// Deps contiene las dependencias de los services auth.
type Deps struct {
	Users       repository.UserRepository
	Memberships MembershipReader
	Customers   repository.CustomerRepository
	Instances   repository.TenantInstanceRepository
	Resets      repository.PasswordResetRepository
	Tokens      *jwt.Service
	Notifier    ResetNotifier
	// ResetTTL vigencia del link de reseteo (default 2h).
	ResetTTL time.Duration
	// ResetURL base del link; se le agrega ?token=...
	ResetURL string
}

// Services agrupa los services del dominio auth.
type Services struct {
	Login    LoginService
	Context  ContextService
	Password PasswordService
}

// NewServices crea el agregador de services auth.
func NewServices(d Deps) Services {
	if d.ResetTTL <= 0 {
		d.ResetTTL = 2 * time.Hour
	}
	return Services{
		Login:    &loginService{deps: d},
		Context:  &contextService{deps: d},
		Password: &passwordService{deps: d, now: time.Now},
	}
}
