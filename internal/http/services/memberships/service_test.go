package memberships

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farutech/tenantcore/internal/cache"
	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/permcache"
)

var rolePerms = map[string][]string{
	repository.RoleOwner: {"memberships.manage", "sales.read", "sales.write"},
	repository.RoleUser:  {"sales.read"},
}

// fakeDB hace de membresías y de fuente de permisos a la vez, así el test
// ve lo mismo que vería Postgres.
type fakeDB struct {
	mu        sync.Mutex
	users     map[string]repository.User
	roles     map[[2]uuid.UUID]string // (user, customer) -> role
	instances map[uuid.UUID][]repository.TenantInstance
	listErr   error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     map[string]repository.User{},
		roles:     map[[2]uuid.UUID]string{},
		instances: map[uuid.UUID][]repository.TenantInstance{},
	}
}

func (f *fakeDB) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeDB) GetByID(_ context.Context, id uuid.UUID) (*repository.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDB) ListActiveByUser(context.Context, uuid.UUID) ([]repository.Membership, error) {
	return nil, nil
}

func (f *fakeDB) Get(_ context.Context, userID, customerID uuid.UUID) (*repository.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[[2]uuid.UUID{userID, customerID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.Membership{UserID: userID, CustomerID: customerID, Role: role}, nil
}

func (f *fakeDB) Upsert(_ context.Context, userID, customerID uuid.UUID, role string) (*repository.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[[2]uuid.UUID{userID, customerID}] = role
	return &repository.Membership{ID: uuid.New(), UserID: userID, CustomerID: customerID, Role: role}, nil
}

func (f *fakeDB) UpdateRole(_ context.Context, userID, customerID uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]uuid.UUID{userID, customerID}
	if _, ok := f.roles[k]; !ok {
		return repository.ErrNotFound
	}
	f.roles[k] = role
	return nil
}

func (f *fakeDB) SoftDelete(_ context.Context, userID, customerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]uuid.UUID{userID, customerID}
	if _, ok := f.roles[k]; !ok {
		return repository.ErrNotFound
	}
	delete(f.roles, k)
	return nil
}

func (f *fakeDB) ListByCustomers(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]repository.TenantInstance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := map[uuid.UUID][]repository.TenantInstance{}
	for _, id := range ids {
		out[id] = f.instances[id]
	}
	return out, nil
}

// LoadUserPermissions acepta customer id o instance id.
func (f *fakeDB) LoadUserPermissions(_ context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	customerID := tenantID
	for cid, list := range f.instances {
		for _, ti := range list {
			if ti.ID == tenantID {
				customerID = cid
			}
		}
	}
	return append([]string(nil), rolePerms[f.roles[[2]uuid.UUID{userID, customerID}]]...), nil
}

type fixture struct {
	db       *fakeDB
	perms    *permcache.Manager
	svc      Service
	mr       *miniredis.Miniredis
	user     repository.User
	customer uuid.UUID
	instance uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := newFakeDB()
	user := repository.User{ID: uuid.New(), Email: "ana@acme.test", IsActive: true}
	db.users[user.Email] = user
	customer, instance := uuid.New(), uuid.New()
	db.instances[customer] = []repository.TenantInstance{{ID: instance, CustomerID: customer, Code: "prod", Status: repository.InstanceActive}}

	perms := permcache.New(cache.NewRedisFromClient(rdb, "test"), db, 10*time.Minute)
	svc := NewService(Deps{Users: db, Memberships: db, Instances: db, Permissions: perms})
	return &fixture{db: db, perms: perms, svc: svc, mr: mr, user: user, customer: customer, instance: instance}
}

func TestAssign_InvalidatesCachedPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// sin membresía queda cacheada la lista vacía
	got, err := f.perms.GetOrLoadUserPermissions(ctx, f.user.ID, f.customer)
	require.NoError(t, err)
	assert.Empty(t, got)

	m, err := f.svc.Assign(ctx, f.customer, "ANA@acme.test", "owner")
	require.NoError(t, err)
	assert.Equal(t, repository.RoleOwner, m.Role)

	got, err = f.perms.GetOrLoadUserPermissions(ctx, f.user.ID, f.customer)
	require.NoError(t, err)
	assert.ElementsMatch(t, rolePerms[repository.RoleOwner], got)
}

func TestChangeRole_InvalidatesCustomerAndInstanceEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, f.customer, f.user.Email, repository.RoleOwner)
	require.NoError(t, err)

	for _, tid := range []uuid.UUID{f.customer, f.instance} {
		got, err := f.perms.GetOrLoadUserPermissions(ctx, f.user.ID, tid)
		require.NoError(t, err)
		require.Contains(t, got, "memberships.manage")
	}

	require.NoError(t, f.svc.ChangeRole(ctx, f.customer, f.user.ID, repository.RoleUser))

	for _, tid := range []uuid.UUID{f.customer, f.instance} {
		assert.False(t, f.mr.Exists("test:"+permcache.Key(f.user.ID, tid)))
		got, err := f.perms.GetOrLoadUserPermissions(ctx, f.user.ID, tid)
		require.NoError(t, err)
		assert.Equal(t, []string{"sales.read"}, got)
	}
}

func TestChangeRole_ListInstancesFailureFallsBackToUserSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, f.customer, f.user.Email, repository.RoleOwner)
	require.NoError(t, err)
	_, err = f.perms.GetOrLoadUserPermissions(ctx, f.user.ID, f.instance)
	require.NoError(t, err)

	f.db.listErr = errors.New("db down")
	require.NoError(t, f.svc.ChangeRole(ctx, f.customer, f.user.ID, repository.RoleUser))
	assert.False(t, f.mr.Exists("test:"+permcache.Key(f.user.ID, f.instance)))
}

func TestRemove_InvalidatesEveryUserEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, f.customer, f.user.Email, repository.RoleOwner)
	require.NoError(t, err)
	other := uuid.New()
	require.NoError(t, f.perms.SetUserPermissions(ctx, f.user.ID, other, []string{"x.read"}))
	_, err = f.perms.GetOrLoadUserPermissions(ctx, f.user.ID, f.customer)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, f.customer, f.user.ID))

	assert.False(t, f.mr.Exists("test:"+permcache.Key(f.user.ID, f.customer)))
	assert.False(t, f.mr.Exists("test:"+permcache.Key(f.user.ID, other)))

	ok, err := f.perms.HasPermission(ctx, f.user.ID, f.customer, "memberships.manage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, f.customer, f.user.Email, "SUPER_ADMIN")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = f.svc.Assign(ctx, f.customer, "ghost@acme.test", repository.RoleUser)
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, f.svc.ChangeRole(ctx, f.customer, f.user.ID, repository.RoleUser), ErrMembershipNotFound)
	assert.ErrorIs(t, f.svc.Remove(ctx, f.customer, f.user.ID), ErrMembershipNotFound)
}

func TestService_InvalidationFailureIsReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Assign(ctx, f.customer, f.user.Email, repository.RoleOwner)
	require.NoError(t, err)

	f.mr.Close()
	err = f.svc.ChangeRole(ctx, f.customer, f.user.ID, repository.RoleUser)
	assert.ErrorIs(t, err, ErrInvalidationFailed)
	// la escritura quedó confirmada igual
	m, err := f.db.Get(ctx, f.user.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleUser, m.Role)
}
