package jwt

import "errors"

var (
	// ErrTokenInvalid cubre firma, issuer, audience, expiración y purpose incorrectos.
	ErrTokenInvalid = errors.New("token_invalid")
	// ErrTenantNotAuthorized: el tenant pedido no está en allowed_tenant.
	ErrTenantNotAuthorized = errors.New("tenant_not_authorized")
	// ErrSecretMissing es fatal al arrancar.
	ErrSecretMissing = errors.New("jwt secret missing")
)
