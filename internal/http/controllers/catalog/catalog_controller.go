// Package catalog contiene el controller de /catalog.
package catalog

import (
	"context"
	"net/http"

	"github.com/farutech/tenantcore/internal/catalog"
	httperrors "github.com/farutech/tenantcore/internal/http/errors"
	"github.com/farutech/tenantcore/internal/http/helpers"
)

// SnapshotSource es lo que usa el controller; *catalog.Service lo implementa.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
}

type CatalogController struct {
	source SnapshotSource
}

func NewCatalogController(s SnapshotSource) *CatalogController {
	return &CatalogController{source: s}
}

// Products maneja GET /catalog/products.
func (c *CatalogController) Products(w http.ResponseWriter, r *http.Request) {
	snap, err := c.source.Snapshot(r.Context())
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, snap.Tree())
}
