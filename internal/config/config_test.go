package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "farutech_db_customers", c.Storage.SharedDatabase)
	assert.Equal(t, "farutech_db_customer_", c.Storage.DedicatedDatabasePrefix)
	assert.Equal(t, 60*time.Minute, c.JWT.IntermediateTTL)
	assert.Equal(t, 30*time.Minute, c.JWT.AccessTTL)
	assert.Equal(t, 48*time.Hour, c.JWT.RememberMeTTL)
	assert.Equal(t, time.Duration(0), c.JWT.ClockSkew)
	assert.Equal(t, "tenant.instance.provisioned", c.NATS.Subject)
	assert.Equal(t, "tenant.instance.provisioned.dlq", c.NATS.DLQSubject)
	assert.Equal(t, 5, c.NATS.MaxDeliver)
	assert.Equal(t, 2*time.Hour, c.PasswordReset.TTL)
	assert.Equal(t, 30*time.Minute, c.PermissionsTTL())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  addr: ":9000"
cache:
  kind: redis
  redis:
    addr: "localhost:6379"
  permissions_ttl_minutes: 5
jwt:
  issuer: "https://auth.local"
  audience: "farutech"
  access_ttl: 15m
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER_ADDR", ":9100")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", c.Server.Addr, "env gana sobre YAML")
	assert.Equal(t, "redis", c.Cache.Kind)
	assert.Equal(t, 5*time.Minute, c.PermissionsTTL())
	assert.Equal(t, 15*time.Minute, c.JWT.AccessTTL)
	assert.Equal(t, testSecret, c.JWT.Secret)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load("")
		require.NoError(t, err)
		c.JWT.Secret = testSecret
		c.JWT.Issuer = "iss"
		c.JWT.Audience = "aud"
		c.Storage.DSN = "postgres://localhost/db"
		return c
	}

	require.NoError(t, base().Validate())

	c := base()
	c.JWT.Secret = ""
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "jwt.secret")

	c = base()
	c.JWT.Secret = "short"
	assert.ErrorIs(t, c.Validate(), ErrConfigurationMissing)

	c = base()
	c.Cache.Kind = "redis"
	assert.ErrorContains(t, c.Validate(), "cache.redis.addr")
}

func TestValidateWorker(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	err = c.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.url")

	c.Storage.DSN = "postgres://localhost/db"
	c.NATS.URL = "nats://localhost:4222"
	assert.NoError(t, c.ValidateWorker())
}
