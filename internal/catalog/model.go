// Package catalog modela el catálogo global Product → Module → Feature →
// Permission y los planes de suscripción como un arena de nodos con aristas
// por índice. No hay punteros entre nodos: el grafo es serializable y no
// puede tener ciclos.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

// Índices dentro de los slices del arena.
type (
	ProductIdx    int32
	ModuleIdx     int32
	FeatureIdx    int32
	PermissionIdx int32
	PlanIdx       int32
)

var (
	ErrDanglingEdge  = errors.New("catalog: edge references unknown node")
	ErrDuplicateCode = errors.New("catalog: duplicate code")
)

type Product struct {
	ID        uuid.UUID
	Code      string
	Name      string
	IsActive  bool
	IsDeleted bool
	Modules   []ModuleIdx
	Plans     []PlanIdx
}

type Module struct {
	ID             uuid.UUID
	Product        ProductIdx
	Code           string
	Name           string
	DeploymentMode repository.DeploymentMode
	IsActive       bool
	IsDeleted      bool
	Features       []FeatureIdx
}

type Feature struct {
	ID             uuid.UUID
	Module         ModuleIdx
	Code           string
	Name           string
	DeploymentMode repository.DeploymentMode
	IsActive       bool
	IsDeleted      bool
	Permissions    []PermissionIdx
}

type Permission struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Category    string
	IsActive    bool
	IsDeleted   bool
	// Features que requieren este permiso (arista inversa).
	Features []FeatureIdx
}

// Limits límites numéricos de un plan.
type Limits struct {
	MaxUsers        int
	MaxTransactions int
	StorageMB       int
}

type Plan struct {
	ID       uuid.UUID
	Product  ProductIdx
	Code     string
	Name     string
	Limits   Limits
	IsActive bool
	Features []FeatureIdx
}

// Catalog es un snapshot inmutable; seguro para lectura concurrente.
type Catalog struct {
	Products    []Product
	Modules     []Module
	Features    []Feature
	Permissions []Permission
	Plans       []Plan

	productByID    map[uuid.UUID]ProductIdx
	moduleByID     map[uuid.UUID]ModuleIdx
	featureByID    map[uuid.UUID]FeatureIdx
	permissionByID map[uuid.UUID]PermissionIdx
	planByID       map[uuid.UUID]PlanIdx
	permByCode     map[string]PermissionIdx
}

// Build arma el arena desde filas planas. Cualquier arista hacia un nodo
// inexistente es error.
func Build(rows *repository.CatalogRows) (*Catalog, error) {
	if rows == nil {
		rows = &repository.CatalogRows{}
	}
	c := &Catalog{
		Products:       make([]Product, 0, len(rows.Products)),
		Modules:        make([]Module, 0, len(rows.Modules)),
		Features:       make([]Feature, 0, len(rows.Features)),
		Permissions:    make([]Permission, 0, len(rows.Permissions)),
		Plans:          make([]Plan, 0, len(rows.Plans)),
		productByID:    make(map[uuid.UUID]ProductIdx, len(rows.Products)),
		moduleByID:     make(map[uuid.UUID]ModuleIdx, len(rows.Modules)),
		featureByID:    make(map[uuid.UUID]FeatureIdx, len(rows.Features)),
		permissionByID: make(map[uuid.UUID]PermissionIdx, len(rows.Permissions)),
		planByID:       make(map[uuid.UUID]PlanIdx, len(rows.Plans)),
		permByCode:     make(map[string]PermissionIdx, len(rows.Permissions)),
	}

	for _, r := range rows.Products {
		c.productByID[r.ID] = ProductIdx(len(c.Products))
		c.Products = append(c.Products, Product{
			ID: r.ID, Code: r.Code, Name: r.Name, IsActive: r.IsActive, IsDeleted: r.IsDeleted,
		})
	}

	for _, r := range rows.Modules {
		p, ok := c.productByID[r.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: module %s -> product %s", ErrDanglingEdge, r.Code, r.ProductID)
		}
		idx := ModuleIdx(len(c.Modules))
		c.moduleByID[r.ID] = idx
		c.Modules = append(c.Modules, Module{
			ID: r.ID, Product: p, Code: r.Code, Name: r.Name,
			DeploymentMode: normalizeMode(r.DeploymentMode), IsActive: r.IsActive, IsDeleted: r.IsDeleted,
		})
		c.Products[p].Modules = append(c.Products[p].Modules, idx)
	}

	for _, r := range rows.Features {
		m, ok := c.moduleByID[r.ModuleID]
		if !ok {
			return nil, fmt.Errorf("%w: feature %s -> module %s", ErrDanglingEdge, r.Code, r.ModuleID)
		}
		idx := FeatureIdx(len(c.Features))
		c.featureByID[r.ID] = idx
		c.Features = append(c.Features, Feature{
			ID: r.ID, Module: m, Code: r.Code, Name: r.Name,
			DeploymentMode: normalizeMode(r.DeploymentMode), IsActive: r.IsActive, IsDeleted: r.IsDeleted,
		})
		c.Modules[m].Features = append(c.Modules[m].Features, idx)
	}

	for _, r := range rows.Permissions {
		if _, dup := c.permByCode[r.Code]; dup {
			return nil, fmt.Errorf("%w: permission %s", ErrDuplicateCode, r.Code)
		}
		idx := PermissionIdx(len(c.Permissions))
		c.permissionByID[r.ID] = idx
		c.permByCode[r.Code] = idx
		c.Permissions = append(c.Permissions, Permission{
			ID: r.ID, Code: r.Code, Name: r.Name, Description: r.Description,
			Category: r.Category, IsActive: r.IsActive, IsDeleted: r.IsDeleted,
		})
	}

	for _, e := range rows.FeaturePermissions {
		f, ok := c.featureByID[e[0]]
		if !ok {
			return nil, fmt.Errorf("%w: feature %s", ErrDanglingEdge, e[0])
		}
		p, ok := c.permissionByID[e[1]]
		if !ok {
			return nil, fmt.Errorf("%w: permission %s", ErrDanglingEdge, e[1])
		}
		c.Features[f].Permissions = append(c.Features[f].Permissions, p)
		c.Permissions[p].Features = append(c.Permissions[p].Features, f)
	}

	for _, r := range rows.Plans {
		p, ok := c.productByID[r.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: plan %s -> product %s", ErrDanglingEdge, r.Code, r.ProductID)
		}
		idx := PlanIdx(len(c.Plans))
		c.planByID[r.ID] = idx
		c.Plans = append(c.Plans, Plan{
			ID: r.ID, Product: p, Code: r.Code, Name: r.Name, IsActive: r.IsActive,
			Limits: Limits{MaxUsers: r.MaxUsers, MaxTransactions: r.MaxTransactions, StorageMB: r.StorageMB},
		})
		c.Products[p].Plans = append(c.Products[p].Plans, idx)
	}

	for _, e := range rows.PlanFeatures {
		pl, ok := c.planByID[e[0]]
		if !ok {
			return nil, fmt.Errorf("%w: plan %s", ErrDanglingEdge, e[0])
		}
		f, ok := c.featureByID[e[1]]
		if !ok {
			return nil, fmt.Errorf("%w: feature %s", ErrDanglingEdge, e[1])
		}
		// Un plan sólo puede seleccionar features de su propio producto.
		if c.Modules[c.Features[f].Module].Product != c.Plans[pl].Product {
			return nil, fmt.Errorf("%w: plan %s selects feature %s of another product", ErrDanglingEdge, c.Plans[pl].Code, c.Features[f].Code)
		}
		c.Plans[pl].Features = append(c.Plans[pl].Features, f)
	}

	return c, nil
}

func normalizeMode(m repository.DeploymentMode) repository.DeploymentMode {
	if m == repository.DeploymentDedicated {
		return m
	}
	return repository.DeploymentShared
}

// FeatureByID resuelve un feature por uuid.
func (c *Catalog) FeatureByID(id uuid.UUID) (FeatureIdx, bool) {
	i, ok := c.featureByID[id]
	return i, ok
}

// PlanByID resuelve un plan por uuid.
func (c *Catalog) PlanByID(id uuid.UUID) (PlanIdx, bool) {
	i, ok := c.planByID[id]
	return i, ok
}

// PermissionByCode resuelve un permiso por código.
func (c *Catalog) PermissionByCode(code string) (*Permission, bool) {
	i, ok := c.permByCode[code]
	if !ok {
		return nil, false
	}
	return &c.Permissions[i], true
}

func (p *Permission) usable() bool { return p.IsActive && !p.IsDeleted }

// featureUsable: el feature y toda su cadena de ancestros deben estar activos.
// Un feature Dedicated sólo aplica a despliegues dedicados.
func (c *Catalog) featureUsable(f FeatureIdx, dedicated bool) bool {
	ft := &c.Features[f]
	if !ft.IsActive || ft.IsDeleted {
		return false
	}
	m := &c.Modules[ft.Module]
	if !m.IsActive || m.IsDeleted {
		return false
	}
	p := &c.Products[m.Product]
	if !p.IsActive || p.IsDeleted {
		return false
	}
	if !dedicated && (ft.DeploymentMode == repository.DeploymentDedicated || m.DeploymentMode == repository.DeploymentDedicated) {
		return false
	}
	return true
}

// ActivePermissions retorna todos los permisos activos y no borrados, ordenados por código.
func (c *Catalog) ActivePermissions() []Permission {
	out := make([]Permission, 0, len(c.Permissions))
	for i := range c.Permissions {
		if c.Permissions[i].usable() {
			out = append(out, c.Permissions[i])
		}
	}
	sortByCode(out)
	return out
}

// PermissionsForFeatures retorna los permisos activos requeridos por los
// features indicados que sean utilizables para el modo de despliegue.
// Lista vacía = todos los permisos activos. IDs desconocidos se ignoran;
// quien necesite distinguirlos usa UnknownFeatures.
func (c *Catalog) PermissionsForFeatures(featureIDs []uuid.UUID, dedicated bool) []Permission {
	if len(featureIDs) == 0 {
		return c.ActivePermissions()
	}
	seen := make(map[PermissionIdx]struct{})
	out := make([]Permission, 0)
	for _, id := range featureIDs {
		f, ok := c.featureByID[id]
		if !ok || !c.featureUsable(f, dedicated) {
			continue
		}
		for _, p := range c.Features[f].Permissions {
			if _, dup := seen[p]; dup || !c.Permissions[p].usable() {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, c.Permissions[p])
		}
	}
	sortByCode(out)
	return out
}

// UnknownFeatures retorna los IDs que no existen en este snapshot.
// Un feature inactivo o borrado sí existe; sólo falta si nunca se cargó.
func (c *Catalog) UnknownFeatures(featureIDs []uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range featureIDs {
		if _, ok := c.featureByID[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// PlanFeatureIDs retorna los features habilitados por un plan activo.
func (c *Catalog) PlanFeatureIDs(planID uuid.UUID, dedicated bool) ([]uuid.UUID, error) {
	pl, ok := c.planByID[planID]
	if !ok || !c.Plans[pl].IsActive {
		return nil, repository.ErrNotFound
	}
	out := make([]uuid.UUID, 0, len(c.Plans[pl].Features))
	for _, f := range c.Plans[pl].Features {
		if c.featureUsable(f, dedicated) {
			out = append(out, c.Features[f].ID)
		}
	}
	return out, nil
}

// PlanAllows indica si el plan incluye el feature.
func (c *Catalog) PlanAllows(planID, featureID uuid.UUID) bool {
	pl, ok := c.planByID[planID]
	if !ok {
		return false
	}
	f, ok := c.featureByID[featureID]
	if !ok {
		return false
	}
	for _, x := range c.Plans[pl].Features {
		if x == f {
			return true
		}
	}
	return false
}

func sortByCode(ps []Permission) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Code < ps[j].Code })
}
