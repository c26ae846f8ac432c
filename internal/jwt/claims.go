package jwt

import (
	"encoding/json"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeContextSelection = "context_selection"
	PurposeAccess           = "access"
)

// intermediateClaims es el formato en el cable del token intermedio.
type intermediateClaims struct {
	jwtv5.RegisteredClaims
	Purpose       string     `json:"purpose"`
	AllowedTenant tenantList `json:"allowed_tenant"`
}

// accessClaims es el formato en el cable del access token.
type accessClaims struct {
	jwtv5.RegisteredClaims
	Purpose     string `json:"purpose"`
	TenantID    string `json:"tenant_id,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// tenantList acepta un string suelto o un array. Valores que no son uuid
// se descartan sin error.
type tenantList []uuid.UUID

func (l tenantList) MarshalJSON() ([]byte, error) {
	out := make([]string, 0, len(l))
	for _, id := range l {
		out = append(out, id.String())
	}
	return json.Marshal(out)
}

func (l *tenantList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		// single value
		raw = []json.RawMessage{b}
	}
	ids := make(tenantList, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			continue
		}
		ids = append(ids, id)
	}
	*l = ids
	return nil
}

// IntermediateContext es el resultado tipado de validar un token intermedio.
type IntermediateContext struct {
	UserID         uuid.UUID
	TokenID        string
	AllowedTenants []uuid.UUID
	ExpiresAt      time.Time
}

// Allows indica si tenantID forma parte del allow-list firmado.
func (c *IntermediateContext) Allows(tenantID uuid.UUID) bool {
	for _, id := range c.AllowedTenants {
		if id == tenantID {
			return true
		}
	}
	return false
}

// AccessContext es el resultado tipado de validar un access token. Se arma
// una sola vez por request y viaja en el context.
type AccessContext struct {
	UserID      uuid.UUID
	TokenID     string
	TenantID    uuid.UUID // uuid.Nil antes de elegir tenant
	CompanyName string
	Role        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HasTenant indica si el token ya está ligado a un tenant.
func (c *AccessContext) HasTenant() bool { return c.TenantID != uuid.Nil }

// AccessParams son los datos para emitir un access token.
type AccessParams struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID // uuid.Nil = sin tenant
	CompanyName string
	Role        string
	RememberMe  bool
}
