package catalog

import (
	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

// ProductView es la proyección JSON del árbol, sólo con nodos activos.
type ProductView struct {
	ID      uuid.UUID    `json:"id"`
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Modules []ModuleView `json:"modules"`
	Plans   []PlanView   `json:"plans"`
}

type ModuleView struct {
	ID             uuid.UUID                 `json:"id"`
	Code           string                    `json:"code"`
	Name           string                    `json:"name"`
	DeploymentMode repository.DeploymentMode `json:"deploymentMode"`
	Features       []FeatureView             `json:"features"`
}

type FeatureView struct {
	ID             uuid.UUID                 `json:"id"`
	Code           string                    `json:"code"`
	Name           string                    `json:"name"`
	DeploymentMode repository.DeploymentMode `json:"deploymentMode"`
	Permissions    []string                  `json:"permissions"`
}

type PlanView struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	MaxUsers        int       `json:"maxUsers"`
	MaxTransactions int       `json:"maxTransactions"`
	StorageMB       int       `json:"storageMb"`
	Features        []string  `json:"features"`
}

// Tree proyecta el arena a vistas anidadas.
func (c *Catalog) Tree() []ProductView {
	out := make([]ProductView, 0, len(c.Products))
	for _, p := range c.Products {
		if !p.IsActive || p.IsDeleted {
			continue
		}
		pv := ProductView{ID: p.ID, Code: p.Code, Name: p.Name, Modules: []ModuleView{}, Plans: []PlanView{}}

		for _, mi := range p.Modules {
			m := &c.Modules[mi]
			if !m.IsActive || m.IsDeleted {
				continue
			}
			mv := ModuleView{ID: m.ID, Code: m.Code, Name: m.Name, DeploymentMode: m.DeploymentMode, Features: []FeatureView{}}
			for _, fi := range m.Features {
				f := &c.Features[fi]
				if !f.IsActive || f.IsDeleted {
					continue
				}
				fv := FeatureView{ID: f.ID, Code: f.Code, Name: f.Name, DeploymentMode: f.DeploymentMode, Permissions: []string{}}
				for _, pi := range f.Permissions {
					if c.Permissions[pi].usable() {
						fv.Permissions = append(fv.Permissions, c.Permissions[pi].Code)
					}
				}
				mv.Features = append(mv.Features, fv)
			}
			pv.Modules = append(pv.Modules, mv)
		}

		for _, pli := range p.Plans {
			pl := &c.Plans[pli]
			if !pl.IsActive {
				continue
			}
			plv := PlanView{
				ID: pl.ID, Code: pl.Code, Name: pl.Name,
				MaxUsers: pl.Limits.MaxUsers, MaxTransactions: pl.Limits.MaxTransactions, StorageMB: pl.Limits.StorageMB,
				Features: make([]string, 0, len(pl.Features)),
			}
			for _, fi := range pl.Features {
				plv.Features = append(plv.Features, c.Features[fi].Code)
			}
			pv.Plans = append(pv.Plans, plv)
		}
		out = append(out, pv)
	}
	return out
}
