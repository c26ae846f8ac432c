package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/farutech/tenantcore/internal/infra/tenantsql"
	"github.com/farutech/tenantcore/internal/tenantdb"
)

// PGStore implementa TenantStore sobre los pools de tenantsql.
type PGStore struct {
	pools *tenantsql.Manager
}

func NewPGStore(pools *tenantsql.Manager) *PGStore { return &PGStore{pools: pools} }

// WithTenantTx abre una transacción en una conexión propia del pool y toma
// pg_advisory_xact_lock por tenant antes de correr fn.
func (s *PGStore) WithTenantTx(ctx context.Context, conn tenantdb.Connection, fn func(context.Context, TenantTx) error) error {
	pool, err := s.pools.Pool(ctx, conn)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := tenantsql.AdvisoryXactLock(ctx, tx, tenantsql.LockID("tenant_provisioning", conn.TenantID.String())); err != nil {
			return err
		}
		return fn(ctx, &pgTenantTx{tx: tx})
	})
}

type pgTenantTx struct{ tx pgx.Tx }

func quoted(schema string) (string, error) {
	return tenantdb.QuoteSchema(schema)
}

func (t *pgTenantTx) CreateSchema(ctx context.Context, schema string) error {
	q, err := quoted(schema)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+q)
	return err
}

// tableDDL usa %[1]s para el schema ya escapado.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.users (
		user_id        UUID PRIMARY KEY,
		global_user_id UUID NOT NULL UNIQUE,
		email          TEXT NOT NULL,
		full_name      TEXT NOT NULL DEFAULT '',
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS ix_users_global_user_id ON %[1]s.users (global_user_id)`,
	`CREATE INDEX IF NOT EXISTS ix_users_email ON %[1]s.users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS %[1]s.roles (
		role_id     UUID PRIMARY KEY,
		role_code   TEXT NOT NULL UNIQUE,
		role_name   TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		level       INTEGER NOT NULL DEFAULT 0,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ix_roles_code ON %[1]s.roles (role_code)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.permissions (
		permission_id   UUID PRIMARY KEY,
		permission_code TEXT NOT NULL UNIQUE,
		permission_name TEXT NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS ix_permissions_code ON %[1]s.permissions (permission_code)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.user_roles (
		user_id    UUID NOT NULL REFERENCES %[1]s.users (user_id) ON DELETE CASCADE,
		role_id    UUID NOT NULL REFERENCES %[1]s.roles (role_id) ON DELETE CASCADE,
		granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		granted_by TEXT NOT NULL DEFAULT 'SYSTEM',
		PRIMARY KEY (user_id, role_id)
	)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.role_permissions (
		role_id       UUID NOT NULL REFERENCES %[1]s.roles (role_id) ON DELETE CASCADE,
		permission_id UUID NOT NULL REFERENCES %[1]s.permissions (permission_id) ON DELETE CASCADE,
		granted_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (role_id, permission_id)
	)`,
}

func (t *pgTenantTx) CreateTables(ctx context.Context, schema string) error {
	q, err := quoted(schema)
	if err != nil {
		return err
	}
	for _, ddl := range tableDDL {
		if _, err := t.tx.Exec(ctx, fmt.Sprintf(ddl, q)); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTenantTx) UpsertOwner(ctx context.Context, schema string, owner Owner) (uuid.UUID, error) {
	q, err := quoted(schema)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	err = t.tx.QueryRow(ctx, `
		INSERT INTO `+q+`.users (user_id, global_user_id, email, full_name, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (global_user_id) DO UPDATE
		SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, updated_at = now()
		RETURNING user_id`,
		uuid.New(), owner.GlobalUserID, owner.Email, owner.FullName,
	).Scan(&id)
	return id, err
}

func (t *pgTenantTx) SyncPermissions(ctx context.Context, schema string, seeds []PermissionSeed) (int, error) {
	q, err := quoted(schema)
	if err != nil {
		return 0, err
	}

	codes := make([]string, 0, len(seeds))
	batch := &pgx.Batch{}
	for _, p := range seeds {
		codes = append(codes, p.Code)
		batch.Queue(`
			INSERT INTO `+q+`.permissions (permission_id, permission_code, permission_name, category, is_active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (permission_code) DO UPDATE
			SET permission_name = EXCLUDED.permission_name,
			    category = EXCLUDED.category,
			    is_active = TRUE,
			    updated_at = now()`,
			uuid.New(), p.Code, p.Name, p.Category)
	}
	batch.Queue(`UPDATE `+q+`.permissions SET is_active = FALSE, updated_at = now()
		WHERE is_active AND NOT (permission_code = ANY($1))`, codes)
	// un permiso desactivado no queda concedido a ningún rol
	batch.Queue(`DELETE FROM ` + q + `.role_permissions rp
		USING ` + q + `.permissions p
		WHERE rp.permission_id = p.permission_id AND NOT p.is_active`)

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return len(seeds), nil
}

func (t *pgTenantTx) EnsureRole(ctx context.Context, schema string, role RoleSeed) (uuid.UUID, error) {
	q, err := quoted(schema)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	err = t.tx.QueryRow(ctx, `
		INSERT INTO `+q+`.roles (role_id, role_code, role_name, description, level, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (role_code) DO NOTHING
		RETURNING role_id`,
		uuid.New(), role.Code, role.Name, role.Description, role.Level,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}
	// ya existía
	err = t.tx.QueryRow(ctx, `SELECT role_id FROM `+q+`.roles WHERE role_code = $1`, role.Code).Scan(&id)
	return id, err
}

func (t *pgTenantTx) GrantAllPermissions(ctx context.Context, schema string, roleID uuid.UUID) (int, error) {
	q, err := quoted(schema)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO `+q+`.role_permissions (role_id, permission_id)
		SELECT $1, permission_id FROM `+q+`.permissions WHERE is_active
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTenantTx) GrantRole(ctx context.Context, schema string, userID, roleID uuid.UUID) error {
	q, err := quoted(schema)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO `+q+`.user_roles (user_id, role_id, granted_by)
		VALUES ($1, $2, 'SYSTEM')
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}
