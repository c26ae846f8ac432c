package provisioning

import (
	"context"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/tenantdb"
)

// Owner es la identidad global del dueño copiada al schema del tenant.
type Owner struct {
	GlobalUserID uuid.UUID
	Email        string
	FullName     string
}

// PermissionSeed es un permiso del catálogo global a copiar al tenant.
type PermissionSeed struct {
	Code     string
	Name     string
	Category string
}

// RoleSeed describe un rol local.
type RoleSeed struct {
	Code        string
	Name        string
	Description string
	Level       int
}

// SuperAdminRole es el rol que recibe todos los permisos locales.
var SuperAdminRole = RoleSeed{
	Code:        "SUPER_ADMIN",
	Name:        "Super Administrador",
	Description: "Acceso total al sistema",
	Level:       100,
}

// TenantStore abre una transacción por evento sobre la base donde vive el
// tenant. Dos transacciones del mismo tenant nunca corren en paralelo.
type TenantStore interface {
	WithTenantTx(ctx context.Context, conn tenantdb.Connection, fn func(ctx context.Context, tx TenantTx) error) error
}

// TenantTx son las operaciones idempotentes sobre el schema del tenant.
// schema siempre viene validado por tenantdb.IsValidSchemaName.
type TenantTx interface {
	CreateSchema(ctx context.Context, schema string) error
	CreateTables(ctx context.Context, schema string) error
	// UpsertOwner retorna el user_id local.
	UpsertOwner(ctx context.Context, schema string, owner Owner) (uuid.UUID, error)
	// SyncPermissions hace upsert por código y desactiva los que ya no
	// están en seeds. Retorna cuántos quedaron activos.
	SyncPermissions(ctx context.Context, schema string, seeds []PermissionSeed) (int, error)
	// EnsureRole crea el rol si no existe y retorna su id.
	EnsureRole(ctx context.Context, schema string, role RoleSeed) (uuid.UUID, error)
	// GrantAllPermissions otorga al rol todos los permisos activos; retorna
	// cuántas filas nuevas insertó.
	GrantAllPermissions(ctx context.Context, schema string, roleID uuid.UUID) (int, error)
	GrantRole(ctx context.Context, schema string, userID, roleID uuid.UUID) error
}
