package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farutech/tenantcore/internal/catalog"
	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/tenantdb"
)

type staticCatalog struct {
	c   *catalog.Catalog
	err error
}

func (s *staticCatalog) Snapshot(context.Context) (*catalog.Catalog, error) { return s.c, s.err }
func (s *staticCatalog) Invalidate()                                         {}

// liveCatalogRepo devuelve filas que el test puede cambiar entre snapshots.
type liveCatalogRepo struct {
	mu    sync.Mutex
	rows  repository.CatalogRows
	loads int
}

func (r *liveCatalogRepo) LoadCatalog(context.Context) (*repository.CatalogRows, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	cp := r.rows
	cp.Features = append([]repository.FeatureRow(nil), r.rows.Features...)
	cp.Permissions = append([]repository.PermissionRow(nil), r.rows.Permissions...)
	cp.FeaturePermissions = append([][2]uuid.UUID(nil), r.rows.FeaturePermissions...)
	return &cp, nil
}

func (r *liveCatalogRepo) addFeature(moduleID uuid.UUID, code, permCode string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, p := uuid.New(), uuid.New()
	r.rows.Features = append(r.rows.Features, repository.FeatureRow{ID: f, ModuleID: moduleID, Code: code, IsActive: true})
	r.rows.Permissions = append(r.rows.Permissions, repository.PermissionRow{ID: p, Code: permCode, Name: permCode, IsActive: true})
	r.rows.FeaturePermissions = append(r.rows.FeaturePermissions, [2]uuid.UUID{f, p})
	return f
}

type recordingInvalidator struct {
	mu      sync.Mutex
	tenants []uuid.UUID
}

func (r *recordingInvalidator) InvalidateTenantPermissions(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, id)
	return nil
}

type testCatalog struct {
	cat                *catalog.Catalog
	invoices, reports  uuid.UUID
	dedicatedWarehouse uuid.UUID
}

func newTestCatalog(t *testing.T) testCatalog {
	t.Helper()
	prod, mod, bi := uuid.New(), uuid.New(), uuid.New()
	tc := testCatalog{invoices: uuid.New(), reports: uuid.New(), dedicatedWarehouse: uuid.New()}
	pRead, pWrite, pRep, pWh, pOff := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	cat, err := catalog.Build(&repository.CatalogRows{
		Products: []repository.ProductRow{{ID: prod, Code: "ERP", Name: "ERP", IsActive: true}},
		Modules: []repository.ModuleRow{
			{ID: mod, ProductID: prod, Code: "SALES", DeploymentMode: repository.DeploymentShared, IsActive: true},
			{ID: bi, ProductID: prod, Code: "WMS", DeploymentMode: repository.DeploymentDedicated, IsActive: true},
		},
		Features: []repository.FeatureRow{
			{ID: tc.invoices, ModuleID: mod, Code: "INVOICES", IsActive: true},
			{ID: tc.reports, ModuleID: mod, Code: "REPORTS", IsActive: true},
			{ID: tc.dedicatedWarehouse, ModuleID: bi, Code: "WAREHOUSE", IsActive: true},
		},
		Permissions: []repository.PermissionRow{
			{ID: pRead, Code: "invoices.read", Name: "Read invoices", Category: "sales", IsActive: true},
			{ID: pWrite, Code: "invoices.write", Name: "Write invoices", Category: "sales", IsActive: true},
			{ID: pRep, Code: "reports.read", Name: "Read reports", Category: "sales", IsActive: true},
			{ID: pWh, Code: "warehouse.manage", Name: "Warehouse", Category: "wms", IsActive: true},
			{ID: pOff, Code: "legacy.read", Name: "Legacy", IsActive: false},
		},
		FeaturePermissions: [][2]uuid.UUID{
			{tc.invoices, pRead}, {tc.invoices, pWrite},
			{tc.reports, pRep},
			{tc.dedicatedWarehouse, pWh},
		},
	})
	require.NoError(t, err)
	tc.cat = cat
	return tc
}

func newResolver(t *testing.T) *tenantdb.Resolver {
	t.Helper()
	r, err := tenantdb.NewResolver(tenantdb.Config{BaseDSN: "postgres://app:secret@db:5432/postgres?sslmode=disable"})
	require.NoError(t, err)
	return r
}

var replayTenant = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func replayEvent() InstanceProvisionedEvent {
	return InstanceProvisionedEvent{
		TenantID:      replayTenant,
		CustomerID:    uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		OwnerID:       uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		OwnerEmail:    "owner@acme.test",
		OwnerFullName: "Ana Owner",
	}
}

func newTestOrchestrator(t *testing.T, store TenantStore, inv CacheInvalidator) (*Orchestrator, testCatalog) {
	tc := newTestCatalog(t)
	return NewOrchestrator(Config{
		Resolver:    newResolver(t),
		Store:       store,
		Catalog:     &staticCatalog{c: tc.cat},
		Cache:       inv,
		StepTimeout: time.Second,
	}), tc
}

func TestProvision_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	inv := &recordingInvalidator{}
	o, _ := newTestOrchestrator(t, store, inv)
	ev := replayEvent()

	first, err := o.Provision(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "tenant_11111111111111111111111111111111", first.Connection.Schema)
	assert.Equal(t, "farutech_db_customers", first.Connection.Database)

	snapshot := store.get(first.Connection, first.Connection.Schema).clone()

	second, err := o.Provision(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, first.OwnerLocalID, second.OwnerLocalID)
	assert.Equal(t, first.RoleID, second.RoleID)
	assert.Zero(t, second.NewGrants, "la segunda entrega no agrega grants")

	s := store.get(second.Connection, second.Connection.Schema)
	assert.Equal(t, snapshot, s)

	// exactamente un SUPER_ADMIN y un grant del owner
	assert.Len(t, s.Roles, 1)
	_, ok := s.Roles["SUPER_ADMIN"]
	assert.True(t, ok)
	assert.Len(t, s.Users, 1)
	assert.Len(t, s.UserRoles, 1)
	assert.True(t, s.UserRoles[[2]uuid.UUID{first.OwnerLocalID, first.RoleID}])

	// sin features → todos los permisos activos del catálogo
	assert.Len(t, s.Perms, 4)
	assert.Len(t, s.RolePerms, 4)
	assert.NotContains(t, s.Perms, "legacy.read")

	assert.Equal(t, []uuid.UUID{replayTenant, replayTenant}, inv.tenants)
}

func TestProvision_FiltersByActiveFeatures(t *testing.T) {
	store := newMemStore()
	o, tc := newTestOrchestrator(t, store, nil)
	ev := replayEvent()
	ev.ActiveFeatureIDs = []uuid.UUID{tc.invoices, tc.dedicatedWarehouse}

	res, err := o.Provision(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Permissions, "warehouse es Dedicated y el tenant es Shared")

	s := store.get(res.Connection, res.Connection.Schema)
	assert.Contains(t, s.Perms, "invoices.read")
	assert.Contains(t, s.Perms, "invoices.write")
	assert.NotContains(t, s.Perms, "warehouse.manage")
}

func TestProvision_DedicatedUsesOwnDatabase(t *testing.T) {
	store := newMemStore()
	o, tc := newTestOrchestrator(t, store, nil)
	ev := replayEvent()
	ev.IsDedicated = true
	ev.OrgIdentifier = "ACME"
	ev.ActiveFeatureIDs = []uuid.UUID{tc.dedicatedWarehouse}

	res, err := o.Provision(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "farutech_db_customer_acme", res.Connection.Database)
	assert.Equal(t, "tenant_11111111111111111111111111111111", res.Connection.Schema)
	assert.Equal(t, 1, res.Permissions)
}

func TestProvision_ResyncDeactivatesRemovedPermissions(t *testing.T) {
	store := newMemStore()
	o, tc := newTestOrchestrator(t, store, nil)
	ev := replayEvent()

	_, err := o.Provision(context.Background(), ev)
	require.NoError(t, err)

	ev.ActiveFeatureIDs = []uuid.UUID{tc.reports}
	res, err := o.Provision(context.Background(), ev)
	require.NoError(t, err)

	s := store.get(res.Connection, res.Connection.Schema)
	assert.True(t, s.Perms["reports.read"].Active)
	assert.False(t, s.Perms["invoices.read"].Active)
	assert.Len(t, s.Roles, 1)

	// SUPER_ADMIN conserva sólo el grant del permiso vigente
	require.Len(t, s.RolePerms, 1)
	assert.True(t, s.RolePerms[[2]uuid.UUID{res.RoleID, s.Perms["reports.read"].ID}])
}

func TestProvision_StepFailureRollsBackAndReportsStep(t *testing.T) {
	store := newMemStore()
	inv := &recordingInvalidator{}
	o, _ := newTestOrchestrator(t, store, inv)
	boom := errors.New("deadlock detected")
	store.fail = func(_ context.Context, op string) error {
		if op == StepRole {
			return boom
		}
		return nil
	}

	_, err := o.Provision(context.Background(), replayEvent())
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepRole, se.Step)
	assert.Equal(t, replayTenant, se.TenantID)
	assert.ErrorIs(t, err, boom)

	// todo-o-nada: ni el schema quedó creado
	conn, _ := newResolver(t).BuildConnectionString(replayEvent().CustomerID, replayTenant, false, "")
	assert.Nil(t, store.get(conn, conn.Schema))
	assert.Empty(t, inv.tenants, "no se invalida cache si falló")

	// la redelivery converge
	store.fail = nil
	_, err = o.Provision(context.Background(), replayEvent())
	require.NoError(t, err)
	assert.NotNil(t, store.get(conn, conn.Schema))
}

func TestProvision_StepTimeout(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(t, store, nil)
	o.stepTimeout = 20 * time.Millisecond
	store.fail = func(ctx context.Context, op string) error {
		if op == StepTables {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	_, err := o.Provision(context.Background(), replayEvent())
	require.Error(t, err)
	assert.Equal(t, StepTables, FailedStep(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProvision_InvalidOrgIdentifier(t *testing.T) {
	o, _ := newTestOrchestrator(t, newMemStore(), nil)
	ev := replayEvent()
	ev.IsDedicated = true
	ev.OrgIdentifier = "acme; DROP SCHEMA public"

	_, err := o.Provision(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, StepResolve, FailedStep(err))
	assert.ErrorIs(t, err, tenantdb.ErrInvalidOrgIdentifier)
}

func TestProvision_CatalogUnavailable(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator(Config{
		Resolver: newResolver(t),
		Store:    store,
		Catalog:  &staticCatalog{err: errors.New("db down")},
	})
	_, err := o.Provision(context.Background(), replayEvent())
	require.Error(t, err)
	assert.Equal(t, StepCatalog, FailedStep(err))
	assert.Zero(t, store.txs)
}

func newLiveCatalog() (*liveCatalogRepo, uuid.UUID, uuid.UUID) {
	prod, mod, billing, pRead := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	repo := &liveCatalogRepo{rows: repository.CatalogRows{
		Products:           []repository.ProductRow{{ID: prod, Code: "ERP", Name: "ERP", IsActive: true}},
		Modules:            []repository.ModuleRow{{ID: mod, ProductID: prod, Code: "SALES", DeploymentMode: repository.DeploymentShared, IsActive: true}},
		Features:           []repository.FeatureRow{{ID: billing, ModuleID: mod, Code: "BILLING", IsActive: true}},
		Permissions:        []repository.PermissionRow{{ID: pRead, Code: "billing.read", Name: "Read billing", IsActive: true}},
		FeaturePermissions: [][2]uuid.UUID{{billing, pRead}},
	}}
	return repo, mod, billing
}

func TestProvision_FeatureNewerThanSnapshotReloadsCatalog(t *testing.T) {
	ctx := context.Background()
	repo, mod, billing := newLiveCatalog()
	store := newMemStore()
	o := NewOrchestrator(Config{
		Resolver:    newResolver(t),
		Store:       store,
		Catalog:     catalog.NewService(repo, time.Minute),
		StepTimeout: time.Second,
	})

	first := replayEvent()
	first.ActiveFeatureIDs = []uuid.UUID{billing}
	_, err := o.Provision(ctx, first)
	require.NoError(t, err)

	// el feature se crea con el snapshot ya cacheado
	banking := repo.addFeature(mod, "BANKING", "banking.write")

	second := replayEvent()
	second.TenantID = uuid.New()
	second.ActiveFeatureIDs = []uuid.UUID{banking}
	res, err := o.Provision(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Permissions)
	assert.Equal(t, 1, res.NewGrants)
	assert.Equal(t, 2, repo.loads)

	s := store.get(res.Connection, res.Connection.Schema)
	assert.True(t, s.Perms["banking.write"].Active)
	assert.Len(t, s.RolePerms, 1)
}

func TestProvision_UnknownFeatureFailsForRedelivery(t *testing.T) {
	repo, _, billing := newLiveCatalog()
	store := newMemStore()
	o := NewOrchestrator(Config{
		Resolver: newResolver(t),
		Store:    store,
		Catalog:  catalog.NewService(repo, time.Minute),
	})
	ev := replayEvent()
	ev.ActiveFeatureIDs = []uuid.UUID{billing, uuid.New()}

	_, err := o.Provision(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, StepCatalog, FailedStep(err))
	assert.ErrorIs(t, err, ErrUnknownFeature)
	assert.NotErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, 2, repo.loads, "una recarga y no más")
	assert.Zero(t, store.txs, "no se toca el schema del tenant")
}

func TestProvision_ConcurrentSameTenant(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(t, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Provision(context.Background(), replayEvent())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conn, _ := newResolver(t).BuildConnectionString(replayEvent().CustomerID, replayTenant, false, "")
	s := store.get(conn, conn.Schema)
	require.NotNil(t, s)
	assert.Len(t, s.Roles, 1)
	assert.Len(t, s.UserRoles, 1)
}
