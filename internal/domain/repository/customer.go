package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Customer es la organización facturable dueña de una o más instancias.
type Customer struct {
	ID        uuid.UUID
	Code      string
	Name      string
	TaxID     string
	IsActive  bool
	IsDeleted bool
	CreatedAt time.Time
}

// InstanceStatus estado de una TenantInstance.
type InstanceStatus string

const (
	InstanceActive        InstanceStatus = "active"
	InstanceSuspended     InstanceStatus = "suspended"
	InstanceInactive      InstanceStatus = "inactive"
	InstanceDeprovisioned InstanceStatus = "deprovisioned"
)

// DeploymentMode indica dónde vive físicamente el schema de la instancia.
type DeploymentMode string

const (
	DeploymentShared    DeploymentMode = "Shared"
	DeploymentDedicated DeploymentMode = "Dedicated"
)

// TenantInstance es una instancia desplegable de un Customer.
// Code es único dentro del Customer.
type TenantInstance struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	Code           string
	Name           string
	Status         InstanceStatus
	DeploymentMode DeploymentMode
	// OrgIdentifier sólo aplica a Dedicated.
	OrgIdentifier string
	CreatedAt     time.Time
}

// CustomerRepository lecturas de clientes que usa el request path.
type CustomerRepository interface {
	// GetByID retorna ErrNotFound si no existe o está borrado.
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// GetByIDs resuelve varios clientes en una sola consulta. Los IDs
	// inexistentes se omiten del mapa.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Customer, error)
}

// TenantInstanceRepository lecturas de instancias.
type TenantInstanceRepository interface {
	// ListByCustomers retorna las instancias agrupadas por customer,
	// excluyendo siempre las deprovisioned.
	ListByCustomers(ctx context.Context, customerIDs []uuid.UUID) (map[uuid.UUID][]TenantInstance, error)
}
