package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

type CatalogRepo struct{ pool *pgxpool.Pool }

// LoadCatalog lee todo el catálogo dentro de una transacción de sólo lectura
// para obtener un snapshot consistente.
func (r *CatalogRepo) LoadCatalog(ctx context.Context) (*repository.CatalogRows, error) {
	out := &repository.CatalogRows{}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := queryEach(ctx, tx, `SELECT id, code, name, is_active, is_deleted FROM catalog_products`,
			func(rows pgx.Rows) error {
				var p repository.ProductRow
				if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.IsActive, &p.IsDeleted); err != nil {
					return err
				}
				out.Products = append(out.Products, p)
				return nil
			}); err != nil {
			return err
		}

		if err := queryEach(ctx, tx, `SELECT id, product_id, code, name, deployment_mode, is_active, is_deleted FROM catalog_modules`,
			func(rows pgx.Rows) error {
				var m repository.ModuleRow
				var mode string
				if err := rows.Scan(&m.ID, &m.ProductID, &m.Code, &m.Name, &mode, &m.IsActive, &m.IsDeleted); err != nil {
					return err
				}
				m.DeploymentMode = repository.DeploymentMode(mode)
				out.Modules = append(out.Modules, m)
				return nil
			}); err != nil {
			return err
		}

		if err := queryEach(ctx, tx, `SELECT id, module_id, code, name, deployment_mode, is_active, is_deleted FROM catalog_features`,
			func(rows pgx.Rows) error {
				var f repository.FeatureRow
				var mode string
				if err := rows.Scan(&f.ID, &f.ModuleID, &f.Code, &f.Name, &mode, &f.IsActive, &f.IsDeleted); err != nil {
					return err
				}
				f.DeploymentMode = repository.DeploymentMode(mode)
				out.Features = append(out.Features, f)
				return nil
			}); err != nil {
			return err
		}

		if err := queryEach(ctx, tx, `SELECT id, code, name, description, category, is_active, is_deleted FROM catalog_permissions`,
			func(rows pgx.Rows) error {
				var p repository.PermissionRow
				if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Category, &p.IsActive, &p.IsDeleted); err != nil {
					return err
				}
				out.Permissions = append(out.Permissions, p)
				return nil
			}); err != nil {
			return err
		}

		if err := queryEach(ctx, tx, `SELECT feature_id, permission_id FROM catalog_feature_permissions`,
			func(rows pgx.Rows) error {
				var e [2]uuid.UUID
				if err := rows.Scan(&e[0], &e[1]); err != nil {
					return err
				}
				out.FeaturePermissions = append(out.FeaturePermissions, e)
				return nil
			}); err != nil {
			return err
		}

		if err := queryEach(ctx, tx, `
			SELECT id, product_id, code, name, max_users, max_transactions, storage_mb, is_active
			FROM subscription_plans WHERE NOT is_deleted`,
			func(rows pgx.Rows) error {
				var p repository.PlanRow
				if err := rows.Scan(&p.ID, &p.ProductID, &p.Code, &p.Name, &p.MaxUsers, &p.MaxTransactions, &p.StorageMB, &p.IsActive); err != nil {
					return err
				}
				out.Plans = append(out.Plans, p)
				return nil
			}); err != nil {
			return err
		}

		return queryEach(ctx, tx, `
			SELECT spf.plan_id, spf.feature_id
			FROM subscription_plan_features spf
			JOIN subscription_plans sp ON sp.id = spf.plan_id AND NOT sp.is_deleted`,
			func(rows pgx.Rows) error {
				var e [2]uuid.UUID
				if err := rows.Scan(&e[0], &e[1]); err != nil {
					return err
				}
				out.PlanFeatures = append(out.PlanFeatures, e)
				return nil
			})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func queryEach(ctx context.Context, tx pgx.Tx, sql string, fn func(pgx.Rows) error) error {
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
