package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/catalog"
	"github.com/farutech/tenantcore/internal/metrics"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/tenantdb"
)

// CatalogSource entrega el snapshot del catálogo global.
type CatalogSource interface {
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
	Invalidate()
}

// CacheInvalidator barre el cache de permisos de un tenant.
type CacheInvalidator interface {
	InvalidateTenantPermissions(ctx context.Context, tenantID uuid.UUID) error
}

// Result resume un provisioning exitoso.
type Result struct {
	Connection   tenantdb.Connection
	OwnerLocalID uuid.UUID
	RoleID       uuid.UUID
	Permissions  int
	NewGrants    int
	Duration     time.Duration
}

// Orchestrator ejecuta los pasos de provisioning para un evento.
type Orchestrator struct {
	resolver    *tenantdb.Resolver
	store       TenantStore
	catalog     CatalogSource
	cache       CacheInvalidator
	stepTimeout time.Duration
}

// Config del Orchestrator.
type Config struct {
	Resolver    *tenantdb.Resolver
	Store       TenantStore
	Catalog     CatalogSource
	Cache       CacheInvalidator // opcional
	StepTimeout time.Duration    // default 30s
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	return &Orchestrator{
		resolver:    cfg.Resolver,
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		cache:       cfg.Cache,
		stepTimeout: cfg.StepTimeout,
	}
}

// Provision converge el tenant del evento. Es seguro re-ejecutarlo con el
// mismo evento: el estado final es el mismo que con una sola ejecución.
func (o *Orchestrator) Provision(ctx context.Context, ev InstanceProvisionedEvent) (*Result, error) {
	start := time.Now()
	log := logger.From(ctx).With(
		logger.Component("provisioning"),
		logger.TenantID(ev.TenantID.String()),
		logger.CustomerID(ev.CustomerID.String()),
	)

	res, err := o.provision(logger.ToContext(ctx, log), ev)
	metrics.ProvisioningDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)

	// El cache se invalida después del commit; una falla acá sólo deja
	// entradas acotadas por TTL.
	if o.cache != nil {
		if err := o.cache.InvalidateTenantPermissions(ctx, ev.TenantID); err != nil {
			log.Warn("permission cache invalidation failed", logger.Err(err))
		}
	}

	log.Info("tenant provisioned",
		logger.Schema(res.Connection.Schema),
		logger.Database(res.Connection.Database),
		logger.Count(res.Permissions),
		logger.DurationMs(res.Duration),
	)
	return res, nil
}

func (o *Orchestrator) provision(ctx context.Context, ev InstanceProvisionedEvent) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	conn, err := o.resolver.BuildConnectionString(ev.CustomerID, ev.TenantID, ev.IsDedicated, ev.OrgIdentifier)
	if err != nil {
		return nil, &StepError{Step: StepResolve, TenantID: ev.TenantID, Err: err}
	}
	if !tenantdb.IsValidSchemaName(conn.Schema) {
		return nil, &StepError{Step: StepResolve, TenantID: ev.TenantID, Err: tenantdb.ErrInvalidSchemaName}
	}

	var seeds []PermissionSeed
	err = o.step(ctx, ev.TenantID, StepCatalog, func(ctx context.Context) error {
		snap, err := o.snapshotWith(ctx, ev.ActiveFeatureIDs)
		if err != nil {
			return err
		}
		for _, p := range snap.PermissionsForFeatures(ev.ActiveFeatureIDs, ev.IsDedicated) {
			seeds = append(seeds, PermissionSeed{Code: p.Code, Name: p.Name, Category: p.Category})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Connection: conn}
	schema := conn.Schema
	owner := Owner{GlobalUserID: ev.OwnerID, Email: ev.OwnerEmail, FullName: ev.OwnerFullName}

	err = o.store.WithTenantTx(ctx, conn, func(ctx context.Context, tx TenantTx) error {
		if err := o.step(ctx, ev.TenantID, StepSchema, func(ctx context.Context) error {
			return tx.CreateSchema(ctx, schema)
		}); err != nil {
			return err
		}
		if err := o.step(ctx, ev.TenantID, StepTables, func(ctx context.Context) error {
			return tx.CreateTables(ctx, schema)
		}); err != nil {
			return err
		}
		if err := o.step(ctx, ev.TenantID, StepOwner, func(ctx context.Context) (err error) {
			res.OwnerLocalID, err = tx.UpsertOwner(ctx, schema, owner)
			return err
		}); err != nil {
			return err
		}
		if err := o.step(ctx, ev.TenantID, StepPermissions, func(ctx context.Context) (err error) {
			res.Permissions, err = tx.SyncPermissions(ctx, schema, seeds)
			return err
		}); err != nil {
			return err
		}
		if err := o.step(ctx, ev.TenantID, StepRole, func(ctx context.Context) (err error) {
			res.RoleID, err = tx.EnsureRole(ctx, schema, SuperAdminRole)
			return err
		}); err != nil {
			return err
		}
		if err := o.step(ctx, ev.TenantID, StepGrantPermissions, func(ctx context.Context) (err error) {
			res.NewGrants, err = tx.GrantAllPermissions(ctx, schema, res.RoleID)
			return err
		}); err != nil {
			return err
		}
		return o.step(ctx, ev.TenantID, StepGrantRole, func(ctx context.Context) error {
			return tx.GrantRole(ctx, schema, res.OwnerLocalID, res.RoleID)
		})
	})
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StepError{Step: StepTransaction, TenantID: ev.TenantID, Err: err}
	}
	return res, nil
}

// snapshotWith retorna un snapshot que conoce todos los featureIDs. Un feature
// recién creado puede no estar en el snapshot cacheado: se recarga una vez y,
// si sigue faltando, falla para que la redelivery lo reintente.
func (o *Orchestrator) snapshotWith(ctx context.Context, featureIDs []uuid.UUID) (*catalog.Catalog, error) {
	snap, err := o.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.UnknownFeatures(featureIDs)) == 0 {
		return snap, nil
	}

	o.catalog.Invalidate()
	snap, err = o.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if missing := snap.UnknownFeatures(featureIDs); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFeature, missing)
	}
	logger.From(ctx).Info("catalog snapshot reloaded for new features")
	return snap, nil
}

// step corre fn con el timeout por paso y registra su duración.
func (o *Orchestrator) step(ctx context.Context, tenantID uuid.UUID, name string, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	metrics.ProvisioningStepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.From(ctx).Error("provisioning step failed", logger.Step(name), logger.Err(err))
		return &StepError{Step: name, TenantID: tenantID, Err: err}
	}
	logger.From(ctx).Debug("provisioning step done", logger.Step(name), logger.DurationMs(time.Since(start)))
	return nil
}
