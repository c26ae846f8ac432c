package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

type MembershipRepo struct{ pool *pgxpool.Pool }

const membershipColumns = `id, user_id, customer_id, role, is_deleted, created_at, updated_at`

func scanMembership(row pgx.Row) (*repository.Membership, error) {
	var m repository.Membership
	if err := row.Scan(&m.ID, &m.UserID, &m.CustomerID, &m.Role, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *MembershipRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]repository.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.user_id, m.customer_id, m.role, m.is_deleted, m.created_at, m.updated_at
		FROM user_company_memberships m
		JOIN customers c ON c.id = m.customer_id AND NOT c.is_deleted
		WHERE m.user_id = $1 AND NOT m.is_deleted
		ORDER BY c.company_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MembershipRepo) Get(ctx context.Context, userID, customerID uuid.UUID) (*repository.Membership, error) {
	return scanMembership(r.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM user_company_memberships
		WHERE user_id = $1 AND customer_id = $2 AND NOT is_deleted`, userID, customerID))
}

// Upsert se apoya en el índice único parcial (user_id, customer_id) WHERE NOT is_deleted.
func (r *MembershipRepo) Upsert(ctx context.Context, userID, customerID uuid.UUID, role string) (*repository.Membership, error) {
	return scanMembership(r.pool.QueryRow(ctx, `
		INSERT INTO user_company_memberships (id, user_id, customer_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, customer_id) WHERE NOT is_deleted
		DO UPDATE SET role = EXCLUDED.role, updated_at = now()
		RETURNING `+membershipColumns, uuid.New(), userID, customerID, role))
}

func (r *MembershipRepo) UpdateRole(ctx context.Context, userID, customerID uuid.UUID, role string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_company_memberships SET role = $3, updated_at = now()
		WHERE user_id = $1 AND customer_id = $2 AND NOT is_deleted`, userID, customerID, role)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MembershipRepo) SoftDelete(ctx context.Context, userID, customerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_company_memberships SET is_deleted = TRUE, updated_at = now()
		WHERE user_id = $1 AND customer_id = $2 AND NOT is_deleted`, userID, customerID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
