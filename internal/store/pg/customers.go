package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

type CustomerRepo struct{ pool *pgxpool.Pool }

type InstanceRepo struct{ pool *pgxpool.Pool }

const customerColumns = `id, code, company_name, tax_id, is_active, is_deleted, created_at`

func (r *CustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Customer, error) {
	var c repository.Customer
	err := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND NOT is_deleted`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.TaxID, &c.IsActive, &c.IsDeleted, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *CustomerRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]repository.Customer, error) {
	out := make(map[uuid.UUID]repository.Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ANY($1) AND NOT is_deleted`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c repository.Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.TaxID, &c.IsActive, &c.IsDeleted, &c.CreatedAt); err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (r *InstanceRepo) ListByCustomers(ctx context.Context, customerIDs []uuid.UUID) (map[uuid.UUID][]repository.TenantInstance, error) {
	out := make(map[uuid.UUID][]repository.TenantInstance, len(customerIDs))
	if len(customerIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, code, name, status, deployment_mode, COALESCE(org_identifier, ''), created_at
		FROM tenant_instances
		WHERE customer_id = ANY($1) AND status <> 'deprovisioned'
		ORDER BY created_at, code`, customerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ti repository.TenantInstance
		var status, mode string
		if err := rows.Scan(&ti.ID, &ti.CustomerID, &ti.Code, &ti.Name, &status, &mode, &ti.OrgIdentifier, &ti.CreatedAt); err != nil {
			return nil, err
		}
		ti.Status = repository.InstanceStatus(status)
		ti.DeploymentMode = repository.DeploymentMode(mode)
		out[ti.CustomerID] = append(out[ti.CustomerID], ti)
	}
	return out, rows.Err()
}

// Get retorna una instancia no deprovisionada.
func (r *InstanceRepo) Get(ctx context.Context, id uuid.UUID) (*repository.TenantInstance, error) {
	var ti repository.TenantInstance
	var status, mode string
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, code, name, status, deployment_mode, COALESCE(org_identifier, ''), created_at
		FROM tenant_instances
		WHERE id = $1 AND status <> 'deprovisioned'`, id,
	).Scan(&ti.ID, &ti.CustomerID, &ti.Code, &ti.Name, &status, &mode, &ti.OrgIdentifier, &ti.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	ti.Status = repository.InstanceStatus(status)
	ti.DeploymentMode = repository.DeploymentMode(mode)
	return &ti, nil
}
