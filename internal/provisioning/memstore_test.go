package provisioning

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/tenantdb"
)

// memStore es un TenantStore en memoria que respeta las mismas claves únicas
// que las tablas reales y aplica cada transacción todo-o-nada.
type memStore struct {
	mu      sync.Mutex
	schemas map[string]*memSchema
	// fail, si no es nil, se consulta antes de cada operación.
	fail func(ctx context.Context, op string) error
	txs  int
}

type memUser struct {
	ID       uuid.UUID
	GlobalID uuid.UUID
	Email    string
	FullName string
}

type memPerm struct {
	ID       uuid.UUID
	Name     string
	Category string
	Active   bool
}

type memSchema struct {
	Tables    bool
	Users     map[uuid.UUID]memUser // por global_user_id
	Roles     map[string]uuid.UUID  // role_code → role_id
	Perms     map[string]memPerm    // permission_code
	UserRoles map[[2]uuid.UUID]bool
	RolePerms map[[2]uuid.UUID]bool
}

func newMemStore() *memStore { return &memStore{schemas: map[string]*memSchema{}} }

func schemaKey(conn tenantdb.Connection, schema string) string {
	return conn.Host + "/" + conn.Database + "/" + schema
}

func (s *memSchema) clone() *memSchema {
	c := &memSchema{
		Tables:    s.Tables,
		Users:     map[uuid.UUID]memUser{},
		Roles:     map[string]uuid.UUID{},
		Perms:     map[string]memPerm{},
		UserRoles: map[[2]uuid.UUID]bool{},
		RolePerms: map[[2]uuid.UUID]bool{},
	}
	for k, v := range s.Users {
		c.Users[k] = v
	}
	for k, v := range s.Roles {
		c.Roles[k] = v
	}
	for k, v := range s.Perms {
		c.Perms[k] = v
	}
	for k, v := range s.UserRoles {
		c.UserRoles[k] = v
	}
	for k, v := range s.RolePerms {
		c.RolePerms[k] = v
	}
	return c
}

func (m *memStore) WithTenantTx(ctx context.Context, conn tenantdb.Connection, fn func(context.Context, TenantTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++

	work := make(map[string]*memSchema, len(m.schemas))
	for k, v := range m.schemas {
		work[k] = v.clone()
	}
	tx := &memTx{store: m, conn: conn, schemas: work}
	if err := fn(ctx, tx); err != nil {
		return err // rollback
	}
	m.schemas = work
	return nil
}

func (m *memStore) get(conn tenantdb.Connection, schema string) *memSchema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemas[schemaKey(conn, schema)]
}

type memTx struct {
	store   *memStore
	conn    tenantdb.Connection
	schemas map[string]*memSchema
}

func (t *memTx) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.store.fail != nil {
		return t.store.fail(ctx, op)
	}
	return nil
}

func (t *memTx) tables(schema string) (*memSchema, error) {
	s, ok := t.schemas[schemaKey(t.conn, schema)]
	if !ok {
		return nil, fmt.Errorf("schema %q does not exist", schema)
	}
	if !s.Tables {
		return nil, fmt.Errorf("relation %q.users does not exist", schema)
	}
	return s, nil
}

func (t *memTx) CreateSchema(ctx context.Context, schema string) error {
	if err := t.check(ctx, StepSchema); err != nil {
		return err
	}
	if _, err := tenantdb.QuoteSchema(schema); err != nil {
		return err
	}
	k := schemaKey(t.conn, schema)
	if _, ok := t.schemas[k]; !ok {
		t.schemas[k] = (&memSchema{}).clone()
	}
	return nil
}

func (t *memTx) CreateTables(ctx context.Context, schema string) error {
	if err := t.check(ctx, StepTables); err != nil {
		return err
	}
	s, ok := t.schemas[schemaKey(t.conn, schema)]
	if !ok {
		return fmt.Errorf("schema %q does not exist", schema)
	}
	s.Tables = true
	return nil
}

func (t *memTx) UpsertOwner(ctx context.Context, schema string, o Owner) (uuid.UUID, error) {
	if err := t.check(ctx, StepOwner); err != nil {
		return uuid.Nil, err
	}
	s, err := t.tables(schema)
	if err != nil {
		return uuid.Nil, err
	}
	u, ok := s.Users[o.GlobalUserID]
	if !ok {
		u = memUser{ID: uuid.New(), GlobalID: o.GlobalUserID}
	}
	u.Email, u.FullName = o.Email, o.FullName
	s.Users[o.GlobalUserID] = u
	return u.ID, nil
}

func (t *memTx) SyncPermissions(ctx context.Context, schema string, seeds []PermissionSeed) (int, error) {
	if err := t.check(ctx, StepPermissions); err != nil {
		return 0, err
	}
	s, err := t.tables(schema)
	if err != nil {
		return 0, err
	}
	keep := map[string]bool{}
	for _, p := range seeds {
		keep[p.Code] = true
		cur, ok := s.Perms[p.Code]
		if !ok {
			cur.ID = uuid.New()
		}
		cur.Name, cur.Category, cur.Active = p.Name, p.Category, true
		s.Perms[p.Code] = cur
	}
	for code, p := range s.Perms {
		if !keep[code] {
			p.Active = false
			s.Perms[code] = p
			for k := range s.RolePerms {
				if k[1] == p.ID {
					delete(s.RolePerms, k)
				}
			}
		}
	}
	return len(seeds), nil
}

func (t *memTx) EnsureRole(ctx context.Context, schema string, role RoleSeed) (uuid.UUID, error) {
	if err := t.check(ctx, StepRole); err != nil {
		return uuid.Nil, err
	}
	s, err := t.tables(schema)
	if err != nil {
		return uuid.Nil, err
	}
	if id, ok := s.Roles[role.Code]; ok {
		return id, nil
	}
	id := uuid.New()
	s.Roles[role.Code] = id
	return id, nil
}

func (t *memTx) GrantAllPermissions(ctx context.Context, schema string, roleID uuid.UUID) (int, error) {
	if err := t.check(ctx, StepGrantPermissions); err != nil {
		return 0, err
	}
	s, err := t.tables(schema)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range s.Perms {
		if !p.Active {
			continue
		}
		k := [2]uuid.UUID{roleID, p.ID}
		if !s.RolePerms[k] {
			s.RolePerms[k] = true
			n++
		}
	}
	return n, nil
}

func (t *memTx) GrantRole(ctx context.Context, schema string, userID, roleID uuid.UUID) error {
	if err := t.check(ctx, StepGrantRole); err != nil {
		return err
	}
	s, err := t.tables(schema)
	if err != nil {
		return err
	}
	s.UserRoles[[2]uuid.UUID{userID, roleID}] = true
	return nil
}
