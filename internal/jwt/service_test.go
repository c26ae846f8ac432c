package jwt

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(Config{Secret: testSecret, Issuer: "https://auth.test", Audience: "farutech"})
	require.NoError(t, err)
	return s
}

func TestNewService_SecretMissing(t *testing.T) {
	_, err := NewService(Config{Issuer: "x", Audience: "y"})
	assert.ErrorIs(t, err, ErrSecretMissing)
}

func TestIntermediateToken_RoundTrip(t *testing.T) {
	s := newTestService(t)
	user := uuid.New()
	t1, t2 := uuid.New(), uuid.New()

	tok, exp, err := s.IssueIntermediateToken(user, []uuid.UUID{t1, t2})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(60*time.Minute), exp, 2*time.Second)

	ic, err := s.ValidateIntermediateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, user, ic.UserID)
	assert.Equal(t, []uuid.UUID{t1, t2}, ic.AllowedTenants)
	assert.NotEmpty(t, ic.TokenID)
	assert.True(t, ic.Allows(t1))
	assert.False(t, ic.Allows(uuid.New()))
}

func TestIntermediateToken_EmptyAllowList(t *testing.T) {
	s := newTestService(t)
	tok, _, err := s.IssueIntermediateToken(uuid.New(), nil)
	require.NoError(t, err)

	ic, err := s.ValidateIntermediateToken(tok)
	require.NoError(t, err)
	assert.Empty(t, ic.AllowedTenants)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	s := newTestService(t)
	user, tenant := uuid.New(), uuid.New()

	tok, exp, err := s.IssueAccessToken(context.Background(), AccessParams{
		UserID: user, TenantID: tenant, CompanyName: "Acme", Role: "Owner",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 2*time.Second)

	ac, err := s.ValidateAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, user, ac.UserID)
	assert.Equal(t, tenant, ac.TenantID)
	assert.True(t, ac.HasTenant())
	assert.Equal(t, "Acme", ac.CompanyName)
	assert.Equal(t, "Owner", ac.Role)
}

func TestAccessToken_WithoutTenant(t *testing.T) {
	s := newTestService(t)
	tok, _, err := s.IssueAccessToken(context.Background(), AccessParams{UserID: uuid.New()})
	require.NoError(t, err)

	ac, err := s.ValidateAccessToken(tok)
	require.NoError(t, err)
	assert.False(t, ac.HasTenant())

	// el claim no debe viajar vacío
	var raw jwtv5.MapClaims
	_, _, err = jwtv5.NewParser().ParseUnverified(tok, &raw)
	require.NoError(t, err)
	_, present := raw["tenant_id"]
	assert.False(t, present)
}

func TestAccessToken_RememberMeExtendsLifetime(t *testing.T) {
	s := newTestService(t)
	_, exp, err := s.IssueAccessToken(context.Background(), AccessParams{UserID: uuid.New(), RememberMe: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), exp, 2*time.Second)
}

func TestValidate_PurposeMismatch(t *testing.T) {
	s := newTestService(t)

	access, _, err := s.IssueAccessToken(context.Background(), AccessParams{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = s.ValidateIntermediateToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	inter, _, err := s.IssueIntermediateToken(uuid.New(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	_, err = s.ValidateAccessToken(inter)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidate_WrongIssuerAudienceSecret(t *testing.T) {
	s := newTestService(t)
	tok, _, err := s.IssueAccessToken(context.Background(), AccessParams{UserID: uuid.New()})
	require.NoError(t, err)

	cases := map[string]Config{
		"issuer":   {Secret: testSecret, Issuer: "https://evil", Audience: "farutech"},
		"audience": {Secret: testSecret, Issuer: "https://auth.test", Audience: "other"},
		"secret":   {Secret: []byte("ffffffffffffffffffffffffffffffff"), Issuer: "https://auth.test", Audience: "farutech"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			other, err := NewService(cfg)
			require.NoError(t, err)
			_, err = other.ValidateAccessToken(tok)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestValidate_Expired(t *testing.T) {
	s := newTestService(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	tok, _, err := s.IssueIntermediateToken(uuid.New(), nil)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, err = s.ValidateIntermediateToken(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidate_ClockSkew(t *testing.T) {
	s, err := NewService(Config{Secret: testSecret, Issuer: "i", Audience: "a", ClockSkew: 2 * time.Minute})
	require.NoError(t, err)
	base := time.Now()
	s.now = func() time.Time { return base }

	tok, _, err := s.IssueAccessToken(context.Background(), AccessParams{UserID: uuid.New()})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(31 * time.Minute) }
	_, err = s.ValidateAccessToken(tok)
	assert.NoError(t, err, "dentro de la tolerancia")

	s.now = func() time.Time { return base.Add(33 * time.Minute) }
	_, err = s.ValidateAccessToken(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	s := newTestService(t)
	now := time.Now()
	claims := jwtv5.MapClaims{
		"iss": "https://auth.test", "aud": "farutech", "sub": uuid.NewString(),
		"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(), "purpose": PurposeAccess,
	}
	tok, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)
	_, err = s.ValidateAccessToken(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	none, err := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, claims).SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.ValidateAccessToken(none)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateIntermediate_DropsInvalidTenantIDs(t *testing.T) {
	s := newTestService(t)
	good := uuid.New()
	now := time.Now()
	sign := func(allowed any) string {
		tok, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
			"iss": "https://auth.test", "aud": "farutech", "sub": uuid.NewString(),
			"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
			"purpose": PurposeContextSelection, "allowed_tenant": allowed,
		}).SignedString(testSecret)
		require.NoError(t, err)
		return tok
	}

	ic, err := s.ValidateIntermediateToken(sign([]any{"not-a-uuid", good.String(), 42, uuid.Nil.String()}))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{good}, ic.AllowedTenants)

	// un único valor suelto
	ic, err = s.ValidateIntermediateToken(sign(good.String()))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{good}, ic.AllowedTenants)
}

func TestAuthorizeTenant(t *testing.T) {
	s := newTestService(t)
	t1, t2 := uuid.New(), uuid.New()
	tok, _, err := s.IssueIntermediateToken(uuid.New(), []uuid.UUID{t1})
	require.NoError(t, err)

	ic, err := s.AuthorizeTenant(tok, t1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{t1}, ic.AllowedTenants)

	_, err = s.AuthorizeTenant(tok, t2)
	assert.True(t, errors.Is(err, ErrTenantNotAuthorized))

	_, err = s.AuthorizeTenant("garbage", t1)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
