package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User identidad global de una persona.
type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// UserRepository operaciones sobre usuarios globales.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// PasswordResetToken token opaco de un solo uso. Solo se persiste el hash.
type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PasswordResetRepository persiste tokens de reset.
type PasswordResetRepository interface {
	Create(ctx context.Context, t PasswordResetToken) error

	// ConsumeAndSetPassword marca el token como usado y actualiza el hash de
	// password del usuario en una sola transacción. Retorna ErrNotFound si el
	// hash no existe y ErrTokenExpired si expiró o ya fue usado.
	ConsumeAndSetPassword(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (uuid.UUID, error)
}
