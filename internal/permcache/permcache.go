// Package permcache implementa el cache-aside de permisos efectivos por
// (usuario, tenant) sobre internal/cache.
//
// Claves:
//
//	permissions:user:{userId}:tenant:{tenantId}
//
// Cualquier cambio de membresía o de permisos de un rol debe invalidar en
// forma síncrona, después de confirmar la escritura en la fuente de verdad.
// Si el cache no responde se lee directo de la fuente.
//
// El epoch que descarta cargas concurrentes con una invalidación es local al
// proceso. Entre procesos (serve y worker) una carga que leyó la fuente antes
// del commit de otro proceso puede dejar una lista vieja; esa ventana queda
// acotada por el TTL.
package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/farutech/tenantcore/internal/cache"
	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/metrics"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// ErrCacheUnavailable envuelve cualquier falla del backend de cache.
var ErrCacheUnavailable = errors.New("permcache: cache unavailable")

// DefaultTTL aplica cuando no se configura uno.
const DefaultTTL = 30 * time.Minute

// Key arma la clave exacta de (usuario, tenant).
func Key(userID, tenantID uuid.UUID) string {
	return fmt.Sprintf("permissions:user:%s:tenant:%s", userID, tenantID)
}

// UserPattern matchea todas las entradas de un usuario.
func UserPattern(userID uuid.UUID) string {
	return fmt.Sprintf("permissions:user:%s:*", userID)
}

// TenantPattern matchea todas las entradas de un tenant.
func TenantPattern(tenantID uuid.UUID) string {
	return fmt.Sprintf("permissions:user:*:tenant:%s", tenantID)
}

// Manager es seguro para uso concurrente.
type Manager struct {
	cache  cache.Client
	source repository.PermissionSource
	ttl    time.Duration
	// opTimeout acota cada llamada al cache.
	opTimeout time.Duration

	sf singleflight.Group
	// epoch se incrementa en cada invalidación local; una carga que empezó
	// antes de una invalidación no escribe su resultado.
	epoch atomic.Uint64
}

// New crea el Manager. ttl <= 0 usa DefaultTTL.
func New(c cache.Client, source repository.PermissionSource, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{cache: c, source: source, ttl: ttl, opTimeout: 2 * time.Second}
}

// TTL expone el TTL configurado.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opTimeout)
}

// GetUserPermissions lee sólo del cache. ok=false indica miss.
func (m *Manager) GetUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) (perms []string, ok bool, err error) {
	cctx, cancel := m.withTimeout(ctx)
	defer cancel()

	raw, err := m.cache.Get(cctx, Key(userID, tenantID))
	if cache.IsNotFound(err) {
		metrics.PermCacheRequests.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.PermCacheRequests.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		// Entrada corrupta: se trata como miss.
		metrics.PermCacheRequests.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	metrics.PermCacheRequests.WithLabelValues("hit").Inc()
	return perms, true, nil
}

// SetUserPermissions guarda la lista con el TTL configurado.
func (m *Manager) SetUserPermissions(ctx context.Context, userID, tenantID uuid.UUID, perms []string) error {
	b, err := json.Marshal(normalize(perms))
	if err != nil {
		return err
	}
	cctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.cache.Set(cctx, Key(userID, tenantID), string(b), m.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// GetOrLoadUserPermissions: cache → fuente de verdad → cache.
// Cargas concurrentes para la misma clave se coalescen. Una caída del cache
// nunca falla la operación.
func (m *Manager) GetOrLoadUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	log := logger.From(ctx).With(
		logger.Component("permcache"),
		logger.UserID(userID.String()),
		logger.TenantID(tenantID.String()),
	)

	perms, ok, err := m.GetUserPermissions(ctx, userID, tenantID)
	if ok {
		return perms, nil
	}
	cacheDown := err != nil
	if cacheDown {
		log.Warn("permission cache unavailable, reading source", logger.Err(err))
	}

	key := Key(userID, tenantID)
	v, err, _ := m.sf.Do(key, func() (any, error) {
		startEpoch := m.epoch.Load()

		loaded, err := m.source.LoadUserPermissions(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		loaded = normalize(loaded)

		if cacheDown {
			return loaded, nil
		}
		if m.epoch.Load() != startEpoch {
			log.Debug("invalidation during load, skipping cache write")
			return loaded, nil
		}
		if err := m.SetUserPermissions(ctx, userID, tenantID, loaded); err != nil {
			log.Warn("permission cache write failed", logger.Err(err))
			return loaded, nil
		}
		// Una invalidación entre el chequeo y el Set pudo borrar antes de que
		// escribiéramos: la entrada escrita ya es vieja.
		if m.epoch.Load() != startEpoch {
			m.dropStale(ctx, key, log)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, fmt.Errorf("permcache: load: %w", err)
	}
	return v.([]string), nil
}

func (m *Manager) dropStale(ctx context.Context, key string, log *zap.Logger) {
	cctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.cache.Delete(cctx, key); err != nil {
		log.Warn("stale permission entry could not be removed", logger.Err(err))
		return
	}
	log.Debug("invalidation raced cache write, entry removed")
}

// HasPermission resuelve si el usuario tiene el código en el tenant.
func (m *Manager) HasPermission(ctx context.Context, userID, tenantID uuid.UUID, code string) (bool, error) {
	perms, err := m.GetOrLoadUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(perms, code)
	return i < len(perms) && perms[i] == code, nil
}

// InvalidateUserPermissions borra la entrada exacta (usuario, tenant).
func (m *Manager) InvalidateUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) error {
	m.epoch.Add(1)
	key := Key(userID, tenantID)
	m.sf.Forget(key)

	cctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.cache.Delete(cctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	metrics.PermCacheInvalidations.WithLabelValues("user_tenant").Inc()
	return nil
}

// InvalidateAllUserPermissions borra todas las entradas del usuario.
func (m *Manager) InvalidateAllUserPermissions(ctx context.Context, userID uuid.UUID) error {
	return m.invalidatePattern(ctx, UserPattern(userID), "user")
}

// InvalidateTenantPermissions borra todas las entradas del tenant
// (ej: tras resincronizar los permisos del schema).
func (m *Manager) InvalidateTenantPermissions(ctx context.Context, tenantID uuid.UUID) error {
	return m.invalidatePattern(ctx, TenantPattern(tenantID), "tenant")
}

func (m *Manager) invalidatePattern(ctx context.Context, pattern, scope string) error {
	m.epoch.Add(1)

	cctx, cancel := m.withTimeout(ctx)
	defer cancel()
	n, err := m.cache.DeletePattern(cctx, pattern)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	metrics.PermCacheInvalidations.WithLabelValues(scope).Inc()
	logger.From(ctx).Debug("permission cache invalidated",
		logger.Component("permcache"),
		logger.Key(pattern),
		logger.Count(n),
	)
	return nil
}

// normalize ordena y deduplica; HasPermission depende del orden.
func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
