// Package jwt emite y valida los dos tipos de token del login en dos fases:
// el token intermedio (purpose=context_selection) con el allow-list de
// tenants, y el access token (purpose=access) ligado opcionalmente a un
// tenant. HS256 con secreto compartido.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/observability/logger"
)

// Config del servicio de tokens.
type Config struct {
	Secret          []byte
	Issuer          string
	Audience        string
	IntermediateTTL time.Duration // default 60m
	AccessTTL       time.Duration // default 30m
	RememberMeTTL   time.Duration // default 48h
	ClockSkew       time.Duration // default 0
}

// Service es stateless y seguro para uso concurrente.
type Service struct {
	cfg Config
	now func() time.Time
}

// NewService falla con ErrSecretMissing si no hay secreto.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	if cfg.IntermediateTTL <= 0 {
		cfg.IntermediateTTL = 60 * time.Minute
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = 48 * time.Hour
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// AccessTTL retorna la vigencia del access token según rememberMe.
func (s *Service) AccessTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RememberMeTTL
	}
	return s.cfg.AccessTTL
}

// IntermediateTTL retorna la vigencia del token de selección de contexto.
func (s *Service) IntermediateTTL() time.Duration { return s.cfg.IntermediateTTL }

func (s *Service) registered(sub uuid.UUID, ttl time.Duration) jwtv5.RegisteredClaims {
	now := s.now().UTC()
	return jwtv5.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   sub.String(),
		Audience:  jwtv5.ClaimStrings{s.cfg.Audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}
}

func (s *Service) sign(claims jwtv5.Claims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	return tk.SignedString(s.cfg.Secret)
}

// IssueIntermediateToken firma el allow-list de la sesión de login.
func (s *Service) IssueIntermediateToken(userID uuid.UUID, allowedTenants []uuid.UUID) (string, time.Time, error) {
	rc := s.registered(userID, s.cfg.IntermediateTTL)
	claims := intermediateClaims{
		RegisteredClaims: rc,
		Purpose:          PurposeContextSelection,
		AllowedTenant:    tenantList(append([]uuid.UUID{}, allowedTenants...)),
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign intermediate token: %w", err)
	}
	return signed, rc.ExpiresAt.Time, nil
}

// ValidateIntermediateToken valida firma, iss, aud, vigencia y purpose.
func (s *Service) ValidateIntermediateToken(token string) (*IntermediateContext, error) {
	var claims intermediateClaims
	if err := s.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeContextSelection {
		return nil, fmt.Errorf("%w: purpose %q", ErrTokenInvalid, claims.Purpose)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: sub", ErrTokenInvalid)
	}
	return &IntermediateContext{
		UserID:         sub,
		TokenID:        claims.ID,
		AllowedTenants: []uuid.UUID(claims.AllowedTenant),
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// AuthorizeTenant valida el token intermedio y exige que tenantID esté en
// su allow-list. Nunca sustituye el tenant pedido.
func (s *Service) AuthorizeTenant(intermediateToken string, tenantID uuid.UUID) (*IntermediateContext, error) {
	ic, err := s.ValidateIntermediateToken(intermediateToken)
	if err != nil {
		return nil, err
	}
	if !ic.Allows(tenantID) {
		return nil, ErrTenantNotAuthorized
	}
	return ic, nil
}

// IssueAccessToken emite el access token. rememberMe extiende la vigencia y
// queda registrado en el log.
func (s *Service) IssueAccessToken(ctx context.Context, p AccessParams) (string, time.Time, error) {
	ttl := s.AccessTTL(p.RememberMe)
	rc := s.registered(p.UserID, ttl)
	claims := accessClaims{
		RegisteredClaims: rc,
		Purpose:          PurposeAccess,
		CompanyName:      p.CompanyName,
		Role:             p.Role,
	}
	if p.TenantID != uuid.Nil {
		claims.TenantID = p.TenantID.String()
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	if p.RememberMe {
		logger.From(ctx).Info("issued remember-me access token",
			logger.Component("jwt"),
			logger.UserID(p.UserID.String()),
			logger.TenantID(claims.TenantID),
			logger.String("jti", rc.ID),
			logger.Dur("ttl", ttl),
		)
	}
	return signed, rc.ExpiresAt.Time, nil
}

// ValidateAccessToken valida el token y arma el AccessContext tipado.
func (s *Service) ValidateAccessToken(token string) (*AccessContext, error) {
	var claims accessClaims
	if err := s.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeAccess {
		return nil, fmt.Errorf("%w: purpose %q", ErrTokenInvalid, claims.Purpose)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: sub", ErrTokenInvalid)
	}
	ac := &AccessContext{
		UserID:      sub,
		TokenID:     claims.ID,
		CompanyName: claims.CompanyName,
		Role:        claims.Role,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		ac.IssuedAt = claims.IssuedAt.Time
	}
	if claims.TenantID != "" {
		tid, err := uuid.Parse(claims.TenantID)
		if err != nil {
			return nil, fmt.Errorf("%w: tenant_id", ErrTokenInvalid)
		}
		ac.TenantID = tid
	}
	return ac, nil
}

func (s *Service) parse(token string, claims jwtv5.Claims) error {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(s.cfg.Issuer),
		jwtv5.WithAudience(s.cfg.Audience),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
		jwtv5.WithTimeFunc(s.now),
	}
	if s.cfg.ClockSkew > 0 {
		opts = append(opts, jwtv5.WithLeeway(s.cfg.ClockSkew))
	}
	tk, err := jwtv5.ParseWithClaims(token, claims, func(*jwtv5.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return fmt.Errorf("%w: expired", ErrTokenInvalid)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tk.Valid {
		return ErrTokenInvalid
	}
	return nil
}
