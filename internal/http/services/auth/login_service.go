package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/jwt"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/security/password"
)

const tokenTypeBearer = "Bearer"

type loginService struct {
	deps Deps
}

func (s *loginService) Login(ctx context.Context, in dto.LoginRequest) (*dto.SecureLoginResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)

	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.deps.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Mismo costo que un usuario real para no filtrar existencia por timing.
		password.DummyVerify(in.Password)
		log.Debug("login rejected", logger.String("reason", "unknown_user"))
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !password.Verify(in.Password, user.PasswordHash) {
		log.Debug("login rejected", logger.UserID(user.ID.String()), logger.String("reason", "bad_password"))
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		log.Info("login rejected", logger.UserID(user.ID.String()), logger.String("reason", "user_inactive"))
		return nil, ErrInvalidCredentials
	}

	log = log.With(logger.UserID(user.ID.String()))

	options, err := s.tenantOptions(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// Acceso directo sólo con exactamente una membresía y su organización activa.
	if len(options) == 1 && options[0].IsActive {
		opt := options[0]
		token, _, err := s.deps.Tokens.IssueAccessToken(ctx, jwt.AccessParams{
			UserID:      user.ID,
			TenantID:    opt.TenantID,
			CompanyName: opt.CompanyName,
			Role:        opt.Role,
			RememberMe:  in.RememberMe,
		})
		if err != nil {
			return nil, fmt.Errorf("issue access token: %w", err)
		}
		log.Info("login completed", logger.TenantID(opt.TenantID.String()), logger.String("mode", "single_tenant"))
		tenantID := opt.TenantID
		return &dto.SecureLoginResponse{
			RequiresContextSelection: false,
			AccessToken:              token,
			TokenType:                tokenTypeBearer,
			ExpiresIn:                int64(s.deps.Tokens.AccessTTL(in.RememberMe).Seconds()),
			TenantID:                 &tenantID,
			CompanyName:              opt.CompanyName,
			Role:                     opt.Role,
		}, nil
	}

	allowed := make([]uuid.UUID, 0, len(options))
	for _, o := range options {
		allowed = append(allowed, o.TenantID)
	}
	token, _, err := s.deps.Tokens.IssueIntermediateToken(user.ID, allowed)
	if err != nil {
		return nil, fmt.Errorf("issue intermediate token: %w", err)
	}
	log.Info("login pending context selection", logger.Count(len(options)))

	return &dto.SecureLoginResponse{
		RequiresContextSelection: true,
		IntermediateToken:        token,
		TokenType:                tokenTypeBearer,
		ExpiresIn:                int64(s.deps.Tokens.IntermediateTTL().Seconds()),
		AvailableTenants:         options,
	}, nil
}

// tenantOptions arma una opción por membresía no eliminada, con sus instancias.
// Membresías cuyo customer fue eliminado no aparecen.
func (s *loginService) tenantOptions(ctx context.Context, userID uuid.UUID) ([]dto.TenantOption, error) {
	memberships, err := s.deps.Memberships.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if len(memberships) == 0 {
		return []dto.TenantOption{}, nil
	}

	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.CustomerID)
	}
	customers, err := s.deps.Customers.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	instances, err := s.deps.Instances.ListByCustomers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load instances: %w", err)
	}

	out := make([]dto.TenantOption, 0, len(memberships))
	for _, m := range memberships {
		c, ok := customers[m.CustomerID]
		if !ok {
			continue
		}
		opt := dto.TenantOption{
			TenantID:    c.ID,
			CompanyName: c.Name,
			CompanyCode: c.Code,
			Role:        m.Role,
			IsActive:    c.IsActive,
			Instances:   []dto.InstanceOption{},
		}
		for _, ti := range instances[c.ID] {
			opt.Instances = append(opt.Instances, dto.InstanceOption{
				InstanceID:     ti.ID,
				Code:           ti.Code,
				Name:           ti.Name,
				Status:         string(ti.Status),
				DeploymentMode: string(ti.DeploymentMode),
			})
		}
		out = append(out, opt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompanyName < out[j].CompanyName })
	return out, nil
}
