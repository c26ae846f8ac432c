package repository

import (
	"context"

	"github.com/google/uuid"
)

// CatalogRows filas planas del catálogo tal como salen de la base.
// internal/catalog las convierte en el arena.
type CatalogRows struct {
	Products    []ProductRow
	Modules     []ModuleRow
	Features    []FeatureRow
	Permissions []PermissionRow
	// FeaturePermissions pares (feature, permission).
	FeaturePermissions [][2]uuid.UUID
	Plans              []PlanRow
	// PlanFeatures pares (plan, feature).
	PlanFeatures [][2]uuid.UUID
}

type ProductRow struct {
	ID        uuid.UUID
	Code      string
	Name      string
	IsActive  bool
	IsDeleted bool
}

type ModuleRow struct {
	ID             uuid.UUID
	ProductID      uuid.UUID
	Code           string
	Name           string
	DeploymentMode DeploymentMode
	IsActive       bool
	IsDeleted      bool
}

type FeatureRow struct {
	ID             uuid.UUID
	ModuleID       uuid.UUID
	Code           string
	Name           string
	DeploymentMode DeploymentMode
	IsActive       bool
	IsDeleted      bool
}

type PermissionRow struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Category    string
	IsActive    bool
	IsDeleted   bool
}

type PlanRow struct {
	ID              uuid.UUID
	ProductID       uuid.UUID
	Code            string
	Name            string
	MaxUsers        int
	MaxTransactions int
	StorageMB       int
	IsActive        bool
}

// CatalogRepository carga el catálogo completo (lectura intensiva, tamaño acotado).
type CatalogRepository interface {
	LoadCatalog(ctx context.Context) (*CatalogRows, error)
}
