package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/farutech/tenantcore/internal/domain/repository"
	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/jwt"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

type contextService struct {
	deps Deps
}

// SelectContext sólo acepta tenants del allow-list firmado en el token
// intermedio. No revisa si la organización está activa: eso lo hace el
// guard en cada request.
func (s *contextService) SelectContext(ctx context.Context, in dto.SelectContextRequest) (*dto.SelectContextResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.context"),
		logger.Op("SelectContext"),
		logger.TenantID(in.TenantID.String()),
	)

	ic, err := s.deps.Tokens.AuthorizeTenant(in.IntermediateToken, in.TenantID)
	switch {
	case errors.Is(err, jwt.ErrTenantNotAuthorized):
		log.Warn("tenant not in allow-list")
		return nil, ErrTenantNotAuthorized
	case err != nil:
		log.Debug("intermediate token rejected", logger.Err(err))
		return nil, ErrTokenInvalid
	}
	log = log.With(logger.UserID(ic.UserID.String()))

	// La membresía pudo eliminarse después del login.
	m, err := s.deps.Memberships.Get(ctx, ic.UserID, in.TenantID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("membership removed after login")
		return nil, ErrTenantNotAuthorized
	case err != nil:
		return nil, fmt.Errorf("load membership: %w", err)
	}

	var companyName string
	c, err := s.deps.Customers.GetByID(ctx, in.TenantID)
	switch {
	case err == nil:
		companyName = c.Name
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load customer: %w", err)
	}

	token, _, err := s.deps.Tokens.IssueAccessToken(ctx, jwt.AccessParams{
		UserID:      ic.UserID,
		TenantID:    in.TenantID,
		CompanyName: companyName,
		Role:        m.Role,
		RememberMe:  in.RememberMe,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	log.Info("context selected", logger.Role(m.Role))

	return &dto.SelectContextResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(s.deps.Tokens.AccessTTL(in.RememberMe).Seconds()),
		TenantID:    in.TenantID,
		CompanyName: companyName,
		Role:        m.Role,
	}, nil
}
