package catalog

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

const snapshotKey = "catalog:snapshot"

// Service sirve snapshots del catálogo cacheados en proceso.
// El catálogo cambia sólo por administración, así que un TTL corto alcanza.
type Service struct {
	repo  repository.CatalogRepository
	cache *gocache.Cache
	sf    singleflight.Group
}

// NewService crea el servicio. ttl <= 0 usa 5 minutos.
func NewService(repo repository.CatalogRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Snapshot retorna el catálogo vigente; cargas concurrentes se coalescen.
func (s *Service) Snapshot(ctx context.Context) (*Catalog, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*Catalog), nil
	}

	v, err, _ := s.sf.Do(snapshotKey, func() (any, error) {
		if v, ok := s.cache.Get(snapshotKey); ok {
			return v, nil
		}
		rows, err := s.repo.LoadCatalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: load: %w", err)
		}
		c, err := Build(rows)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(snapshotKey, c)
		logger.From(ctx).Debug("catalog snapshot loaded",
			logger.Component("catalog"),
			logger.Int("products", len(c.Products)),
			logger.Int("permissions", len(c.Permissions)),
		)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

// Invalidate descarta el snapshot cacheado.
func (s *Service) Invalidate() {
	s.cache.Delete(snapshotKey)
}
