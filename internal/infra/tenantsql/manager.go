// Package tenantsql administra pools pgx por base de datos física (la base
// compartida y cada base dedicada) y el runner de migraciones globales.
package tenantsql

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/tenantdb"
)

var ErrManagerClosed = errors.New("tenantsql: manager closed")

// PoolConfig define parámetros de cada pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// PoolStat es un snapshot del estado de un pool específico.
type PoolStat struct {
	Database string
	Acquired int32
	Idle     int32
	Total    int32
}

// Manager abre un pool por (host, base) bajo demanda. Varios tenants del modo
// Shared comparten el mismo pool; el schema se califica en cada sentencia.
type Manager struct {
	poolCfg PoolConfig

	mu     sync.RWMutex
	pools  map[string]*pgxpool.Pool
	closed bool
	sf     singleflight.Group
}

// New crea un Manager vacío.
func New(cfg PoolConfig) *Manager {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.MinConns < 0 {
		cfg.MinConns = 0
	}
	if cfg.MaxConnLifetime <= 0 {
		cfg.MaxConnLifetime = 30 * time.Minute
	}
	return &Manager{poolCfg: cfg, pools: make(map[string]*pgxpool.Pool)}
}

// PoolKey identifica la base física de una conexión.
func PoolKey(conn tenantdb.Connection) string {
	return conn.Host + "/" + conn.Database
}

// PoolDSN quita search_path de la DSN: el pool es por base, no por schema.
func PoolDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Del("search_path")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Pool devuelve (o crea) el pool de la base donde vive el tenant.
func (m *Manager) Pool(ctx context.Context, conn tenantdb.Connection) (*pgxpool.Pool, error) {
	key := PoolKey(conn)

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrManagerClosed
	}
	if p, ok := m.pools[key]; ok {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do(key, func() (any, error) {
		p, err := m.open(ctx, conn.DSN)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			p.Close()
			return nil, ErrManagerClosed
		}
		m.pools[key] = p
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	logger.From(ctx).Debug("tenant pool ready",
		logger.Component("tenantsql"),
		logger.Database(conn.Database),
	)
	return v.(*pgxpool.Pool), nil
}

func (m *Manager) open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	clean, err := PoolDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("tenantsql: parse dsn: %w", err)
	}
	pcfg, err := pgxpool.ParseConfig(clean)
	if err != nil {
		return nil, fmt.Errorf("tenantsql: pool config: %w", err)
	}
	pcfg.MaxConns = m.poolCfg.MaxConns
	pcfg.MinConns = m.poolCfg.MinConns
	pcfg.MaxConnLifetime = m.poolCfg.MaxConnLifetime

	p, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("tenantsql: open pool: %w", err)
	}
	return p, nil
}

// PoolCount retorna el número de pools activos.
func (m *Manager) PoolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// Stats devuelve un snapshot con los stats actuales de cada pool.
func (m *Manager) Stats() map[string]PoolStat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]PoolStat, len(m.pools))
	for key, p := range m.pools {
		st := p.Stat()
		out[key] = PoolStat{
			Database: key[strings.LastIndex(key, "/")+1:],
			Acquired: st.AcquiredConns(),
			Idle:     st.IdleConns(),
			Total:    st.TotalConns(),
		}
	}
	return out
}

// Close cierra todos los pools activos. Llamadas posteriores a Pool fallan.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, p := range m.pools {
		p.Close()
		delete(m.pools, key)
	}
	m.closed = true
}
