package auth

import "github.com/google/uuid"

// SelectContextRequest es el body de POST /auth/select-context.
type SelectContextRequest struct {
	IntermediateToken string    `json:"intermediateToken" validate:"required"`
	TenantID          uuid.UUID `json:"tenantId" validate:"required"`
	RememberMe        bool      `json:"rememberMe"`
}

// SelectContextResponse es el access token ligado al tenant elegido.
type SelectContextResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	TenantID    uuid.UUID `json:"tenantId"`
	CompanyName string    `json:"companyName"`
	Role        string    `json:"role"`
}
