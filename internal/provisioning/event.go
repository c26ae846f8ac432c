// Package provisioning convierte un evento tenant.instance.provisioned en un
// schema de tenant utilizable: schema, tablas, owner, permisos y rol
// SUPER_ADMIN. Todos los pasos son idempotentes; la redelivery del bus es el
// mecanismo de reintento.
package provisioning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// InstanceProvisionedEvent es el payload publicado por el flujo de alta.
// JSON en camelCase.
type InstanceProvisionedEvent struct {
	TenantID         uuid.UUID   `json:"tenantId"`
	CustomerID       uuid.UUID   `json:"customerId"`
	OwnerID          uuid.UUID   `json:"ownerId"`
	OwnerEmail       string      `json:"ownerEmail"`
	OwnerFullName    string      `json:"ownerFullName"`
	IsDedicated      bool        `json:"isDedicated"`
	OrgIdentifier    string      `json:"orgIdentifier,omitempty"`
	ActiveFeatureIDs []uuid.UUID `json:"activeFeatureIds"`
}

// DecodeEvent parsea y valida el payload. Cualquier error es ErrMalformedEvent.
func DecodeEvent(data []byte) (InstanceProvisionedEvent, error) {
	var ev InstanceProvisionedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// Validate exige los identificadores y el email del owner.
func (e InstanceProvisionedEvent) Validate() error {
	switch {
	case e.TenantID == uuid.Nil:
		return fmt.Errorf("%w: tenantId missing", ErrMalformedEvent)
	case e.CustomerID == uuid.Nil:
		return fmt.Errorf("%w: customerId missing", ErrMalformedEvent)
	case e.OwnerID == uuid.Nil:
		return fmt.Errorf("%w: ownerId missing", ErrMalformedEvent)
	case strings.TrimSpace(e.OwnerEmail) == "":
		return fmt.Errorf("%w: ownerEmail missing", ErrMalformedEvent)
	case e.IsDedicated && strings.TrimSpace(e.OrgIdentifier) == "":
		return fmt.Errorf("%w: orgIdentifier required for dedicated", ErrMalformedEvent)
	}
	return nil
}
