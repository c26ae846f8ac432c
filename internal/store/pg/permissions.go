package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

// PermissionRepo resuelve tenant → customer → membresía → rol → permisos.
// El tenant puede venir como id de customer (claim tenant_id del access
// token) o como id de una instancia no dada de baja de ese customer.
// Owner y SUPER_ADMIN reciben todos los permisos activos del catálogo; el
// resto sale de membership_role_permissions.
type PermissionRepo struct{ pool *pgxpool.Pool }

func (r *PermissionRepo) LoadUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		WITH c AS (
			SELECT id FROM customers
			WHERE NOT is_deleted
			  AND (id = $2 OR id = (SELECT ti.customer_id FROM tenant_instances ti
			                        WHERE ti.id = $2 AND ti.status <> 'deprovisioned'))
		), m AS (
			SELECT mb.role
			FROM user_company_memberships mb
			JOIN c ON c.id = mb.customer_id
			WHERE mb.user_id = $1 AND NOT mb.is_deleted
		)
		SELECT p.code
		FROM catalog_permissions p, m
		WHERE p.is_active AND NOT p.is_deleted
		  AND (m.role IN ($3, $4)
		       OR EXISTS (SELECT 1 FROM membership_role_permissions rp
		                  WHERE rp.role = m.role AND rp.permission_id = p.id))
		ORDER BY p.code`, userID, tenantID, repository.RoleOwner, repository.RoleSuperAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		perms = append(perms, code)
	}
	return perms, rows.Err()
}
