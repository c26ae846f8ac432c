// Package health contiene el service de readiness.
package health

import (
	"context"
	"fmt"
	"time"

	dto "github.com/farutech/tenantcore/internal/http/dto/health"
	"github.com/farutech/tenantcore/internal/infra/tenantsql"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// TenantPoolStats abstrae las estadísticas de pools de tenant.
type TenantPoolStats interface {
	Stats() map[string]tenantsql.PoolStat
}

// Deps contiene las dependencias inyectables.
type Deps struct {
	DBCheck     func(ctx context.Context) error // crítico
	CacheCheck  func(ctx context.Context) error // degradado: permcache lee de la fuente
	TenantPools TenantPoolStats
	Version     string
	// Timeout por componente (default 2s).
	Timeout time.Duration
}

type healthService struct {
	deps Deps
}

// NewHealthService crea el service.
func NewHealthService(deps Deps) HealthService {
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Second
	}
	return &healthService{deps: deps}
}

func (s *healthService) probe(ctx context.Context, check func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()
	return check(cctx)
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("health"),
		logger.Op("Check"),
	)

	resp := dto.HealthResponse{
		Version:    s.deps.Version,
		Components: make(map[string]dto.HealthStatus),
		Timestamp:  time.Now().UTC(),
	}
	critical, degraded := false, false

	if s.deps.DBCheck != nil {
		if err := s.probe(ctx, s.deps.DBCheck); err != nil {
			resp.Components["db_global"] = dto.HealthStatus{Status: "error", Message: fmt.Sprintf("unavailable: %v", err)}
			critical = true
			log.Error("db_global unavailable", logger.Err(err))
		} else {
			resp.Components["db_global"] = dto.HealthStatus{Status: "ok"}
		}
	} else {
		resp.Components["db_global"] = dto.HealthStatus{Status: "error", Message: "not configured"}
		critical = true
	}

	if s.deps.CacheCheck != nil {
		if err := s.probe(ctx, s.deps.CacheCheck); err != nil {
			resp.Components["cache"] = dto.HealthStatus{Status: "error", Message: fmt.Sprintf("unavailable: %v", err)}
			degraded = true
			log.Warn("cache unavailable", logger.Err(err))
		} else {
			resp.Components["cache"] = dto.HealthStatus{Status: "ok"}
		}
	} else {
		resp.Components["cache"] = dto.HealthStatus{Status: "disabled"}
	}

	if s.deps.TenantPools != nil {
		stats := s.deps.TenantPools.Stats()
		var acquired, total int
		for _, st := range stats {
			acquired += int(st.Acquired)
			total += int(st.Total)
		}
		resp.Components["tenant_pools"] = dto.HealthStatus{
			Status:  "ok",
			Message: fmt.Sprintf("pools=%d acquired=%d total=%d", len(stats), acquired, total),
		}
	}

	switch {
	case critical:
		resp.Status = "unavailable"
	case degraded:
		resp.Status = "degraded"
	default:
		resp.Status = "ready"
	}
	return resp
}
