// Package auth contiene los DTOs de /auth.
package auth

import "github.com/google/uuid"

// LoginRequest es el body de POST /auth/login.
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email,max=320"`
	Password   string `json:"password" validate:"required,max=128"`
	RememberMe bool   `json:"rememberMe"`
}

// InstanceOption es una instancia del tenant mostrada en la selección.
type InstanceOption struct {
	InstanceID     uuid.UUID `json:"instanceId"`
	Code           string    `json:"code"`
	Name           string    `json:"name,omitempty"`
	Status         string    `json:"status"`
	DeploymentMode string    `json:"deploymentMode"`
}

// TenantOption es una organización elegible en select-context.
type TenantOption struct {
	TenantID    uuid.UUID        `json:"tenantId"`
	CompanyName string           `json:"companyName"`
	CompanyCode string           `json:"companyCode"`
	Role        string           `json:"role"`
	IsActive    bool             `json:"isActive"`
	Instances   []InstanceOption `json:"instances"`
}

// SecureLoginResponse es la respuesta del login en dos fases.
// Con RequiresContextSelection=true viaja IntermediateToken + AvailableTenants;
// si no, AccessToken listo para usar.
type SecureLoginResponse struct {
	RequiresContextSelection bool           `json:"requiresContextSelection"`
	IntermediateToken        string         `json:"intermediateToken,omitempty"`
	AccessToken              string         `json:"accessToken,omitempty"`
	TokenType                string         `json:"tokenType,omitempty"`
	ExpiresIn                int64          `json:"expiresIn,omitempty"`
	TenantID                 *uuid.UUID     `json:"tenantId,omitempty"`
	CompanyName              string         `json:"companyName,omitempty"`
	Role                     string         `json:"role,omitempty"`
	AvailableTenants         []TenantOption `json:"availableTenants,omitempty"`
}
