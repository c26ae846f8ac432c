// Package me contiene los DTOs de /me.
package me

import (
	"time"

	"github.com/google/uuid"
)

// ContextResponse refleja los claims del access token actual.
type ContextResponse struct {
	UserID      uuid.UUID  `json:"sub"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	Role        string     `json:"role,omitempty"`
	ExpiresAt   time.Time  `json:"exp"`
}

// PermissionsResponse lista los permisos efectivos del usuario en el tenant.
type PermissionsResponse struct {
	TenantID    uuid.UUID `json:"tenantId"`
	Permissions []string  `json:"permissions"`
}
