package pg

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farutech/tenantcore/internal/domain/repository"
)

type UserRepo struct{ pool *pgxpool.Pool }

const userColumns = `id, email, full_name, password_hash, is_active, created_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

type PasswordResetRepo struct{ pool *pgxpool.Pool }

func (r *PasswordResetRepo) Create(ctx context.Context, t repository.PasswordResetToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt)
	return mapErr(err)
}

// ConsumeAndSetPassword bloquea la fila del token para que dos resets
// concurrentes con el mismo token no puedan usarlo ambos.
func (r *PasswordResetRepo) ConsumeAndSetPassword(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (uuid.UUID, error) {
	var userID uuid.UUID
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			id        uuid.UUID
			expiresAt time.Time
			usedAt    *time.Time
		)
		err := tx.QueryRow(ctx, `
			SELECT id, user_id, expires_at, used_at
			FROM password_reset_tokens WHERE token_hash = $1
			FOR UPDATE`, tokenHash).Scan(&id, &userID, &expiresAt, &usedAt)
		if err != nil {
			return mapErr(err)
		}
		if usedAt != nil || !now.Before(expiresAt) {
			return repository.ErrTokenExpired
		}
		if _, err := tx.Exec(ctx, `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1`, id, now); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, userID, newPasswordHash, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}
