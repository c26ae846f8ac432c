package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/audit"
	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/security/password"
	tokens "github.com/farutech/tenantcore/internal/security/token"
)

// ForgotPasswordMessage es la respuesta única, exista o no el email.
const ForgotPasswordMessage = "Si el email está registrado, recibirás un enlace para restablecer tu contraseña."

type passwordService struct {
	deps Deps
	now  func() time.Time
}

// ForgotPassword nunca revela si el email existe: los errores internos se
// loguean y el caller responde siempre el mismo mensaje.
func (s *passwordService) ForgotPassword(ctx context.Context, email string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.password"),
		logger.Op("ForgotPassword"),
	)

	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error("load user failed", logger.Err(err))
		} else {
			log.Debug("reset requested for unknown email", logger.Email(email))
		}
		return nil
	}
	if !user.IsActive {
		return nil
	}

	plain, digest, err := tokens.NewOpaque()
	if err != nil {
		log.Error("generate reset token failed", logger.Err(err))
		return nil
	}
	now := s.now().UTC()
	rec := repository.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: now.Add(s.deps.ResetTTL),
		CreatedAt: now,
	}
	if err := s.deps.Resets.Create(ctx, rec); err != nil {
		log.Error("persist reset token failed", logger.UserID(user.ID.String()), logger.Err(err))
		return nil
	}

	if s.deps.Notifier != nil {
		link := resetLink(s.deps.ResetURL, plain)
		if err := s.deps.Notifier.SendPasswordReset(ctx, user.Email, user.FullName, link, rec.ExpiresAt); err != nil {
			log.Error("send reset email failed", logger.UserID(user.ID.String()), logger.Err(err))
			return nil
		}
	}
	log.Info("password reset requested", logger.UserID(user.ID.String()))
	return nil
}

// ResetPassword consume el token (uso único) y fija el nuevo hash en la misma transacción.
func (s *passwordService) ResetPassword(ctx context.Context, token, newPassword string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.password"),
		logger.Op("ResetPassword"),
	)

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}
	if err := password.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	hash, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.deps.Resets.ConsumeAndSetPassword(ctx, tokens.SHA256Base64URL(token), hash, s.now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrTokenExpired):
		log.Info("reset token rejected", logger.Err(err))
		return ErrTokenInvalid
	case err != nil:
		return fmt.Errorf("consume reset token: %w", err)
	}
	audit.Log(ctx, audit.PasswordResetDone, logger.UserID(userID.String()))
	return nil
}

func resetLink(base, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
