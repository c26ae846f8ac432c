// Package pg implementa los repositorios del dominio sobre la base global
// (customers, instancias, usuarios, membresías, catálogo) con pgx.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

type Store struct{ pool *pgxpool.Pool }

// Options de tuning del pool.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// New abre el pool. El ping inicial es no bloqueante: si falla se loguea y
// /readyz lo reporta.
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		pcfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		pcfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.From(ctx).With(logger.Component("pg"))
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}
	return &Store{pool: pool}, nil
}

// NewFromPool envuelve un pool existente.
func NewFromPool(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Pool expone el pool interno para usos avanzados (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Repositorios por agregado; comparten el pool del Store.
func (s *Store) Customers() *CustomerRepo           { return &CustomerRepo{pool: s.pool} }
func (s *Store) Instances() *InstanceRepo           { return &InstanceRepo{pool: s.pool} }
func (s *Store) Users() *UserRepo                   { return &UserRepo{pool: s.pool} }
func (s *Store) PasswordResets() *PasswordResetRepo { return &PasswordResetRepo{pool: s.pool} }
func (s *Store) Memberships() *MembershipRepo       { return &MembershipRepo{pool: s.pool} }
func (s *Store) Permissions() *PermissionRepo       { return &PermissionRepo{pool: s.pool} }
func (s *Store) Catalog() *CatalogRepo              { return &CatalogRepo{pool: s.pool} }

var (
	_ repository.CustomerRepository       = (*CustomerRepo)(nil)
	_ repository.TenantInstanceRepository = (*InstanceRepo)(nil)
	_ repository.UserRepository           = (*UserRepo)(nil)
	_ repository.PasswordResetRepository  = (*PasswordResetRepo)(nil)
	_ repository.MembershipRepository     = (*MembershipRepo)(nil)
	_ repository.PermissionSource         = (*PermissionRepo)(nil)
	_ repository.CatalogRepository        = (*CatalogRepo)(nil)
)

// mapErr traduce errores de pgx a errores de dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
		case "23503", "23514", "22P02": // fk, check, invalid_text_representation
			return fmt.Errorf("%w: %s", repository.ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}
