package cache

import (
	"context"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryClient implementa Client sobre go-cache.
// Útil para desarrollo y testing.
type MemoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cliente en memoria con limpieza periódica de expirados.
func NewMemory(prefix string) *MemoryClient {
	return &MemoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *MemoryClient) key(k string) string { return prefixed(m.prefix, k) }

func (m *MemoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	return v.(string), nil
}

func (m *MemoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *MemoryClient) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(m.key(k))
	}
	return nil
}

// DeletePattern usa path.Match: "*" matchea cualquier secuencia sin "/",
// suficiente para claves separadas por ":".
func (m *MemoryClient) DeletePattern(ctx context.Context, pattern string) (int, error) {
	match := m.key(pattern)
	deleted := 0
	for k := range m.c.Items() {
		ok, err := path.Match(match, k)
		if err != nil {
			return deleted, err
		}
		if ok {
			m.c.Delete(k)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryClient) Ping(ctx context.Context) error { return nil }

func (m *MemoryClient) Close() error {
	m.c.Flush()
	return nil
}
