package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigurationMissing marca una configuración obligatoria ausente o inválida.
// El proceso no debe arrancar si Validate la devuelve.
var ErrConfigurationMissing = errors.New("configuration missing")

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"app_env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		// Base pública usada para armar links (reset password).
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`

	Storage struct {
		// DSN del cluster compartido (base global + base de clientes compartida).
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		// Base compartida donde viven los schemas tenant_<hex> en modo Shared.
		SharedDatabase string `yaml:"shared_database"`
		// Prefijo de la base dedicada: <prefix><org_identifier>.
		DedicatedDatabasePrefix string `yaml:"dedicated_database_prefix"`
		// Host alternativo para bases dedicadas (vacío = mismo host del DSN).
		DedicatedHost string `yaml:"dedicated_host"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // redis | memory
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		PermissionsTTLMinutes int `yaml:"permissions_ttl_minutes"`
	} `yaml:"cache"`

	JWT struct {
		Secret          string        `yaml:"secret"`
		Issuer          string        `yaml:"issuer"`
		Audience        string        `yaml:"audience"`
		IntermediateTTL time.Duration `yaml:"intermediate_ttl"`
		AccessTTL       time.Duration `yaml:"access_ttl"`
		RememberMeTTL   time.Duration `yaml:"remember_me_ttl"`
		ClockSkew       time.Duration `yaml:"clock_skew"`
	} `yaml:"jwt"`

	NATS struct {
		URL        string        `yaml:"url"`
		Stream     string        `yaml:"stream"`
		Subject    string        `yaml:"subject"`
		DLQSubject string        `yaml:"dlq_subject"`
		Durable    string        `yaml:"durable"`
		MaxDeliver int           `yaml:"max_deliver"`
		AckWait    time.Duration `yaml:"ack_wait"`
		FetchBatch int           `yaml:"fetch_batch"`
		FetchWait  time.Duration `yaml:"fetch_wait"`
	} `yaml:"nats"`

	Provisioning struct {
		StepTimeout time.Duration `yaml:"step_timeout"`
		Concurrency int           `yaml:"concurrency"`
	} `yaml:"provisioning"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`

	PasswordReset struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"password_reset"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`
}

// Load lee el YAML (si path no está vacío), aplica overrides de entorno y defaults.
// Un path inexistente no es error: el servicio puede configurarse solo por env.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "tenantcore"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Storage.MaxConns == 0 {
		c.Storage.MaxConns = 10
	}
	if c.Storage.SharedDatabase == "" {
		c.Storage.SharedDatabase = "farutech_db_customers"
	}
	if c.Storage.DedicatedDatabasePrefix == "" {
		c.Storage.DedicatedDatabasePrefix = "farutech_db_customer_"
	}
	if c.Storage.MigrationsDir == "" {
		c.Storage.MigrationsDir = "migrations/postgres"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "tenantcore"
	}
	if c.Cache.PermissionsTTLMinutes <= 0 {
		c.Cache.PermissionsTTLMinutes = 30
	}
	if c.JWT.IntermediateTTL == 0 {
		c.JWT.IntermediateTTL = 60 * time.Minute
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 30 * time.Minute
	}
	if c.JWT.RememberMeTTL == 0 {
		c.JWT.RememberMeTTL = 48 * time.Hour
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "TENANTS"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "tenant.instance.provisioned"
	}
	if c.NATS.DLQSubject == "" {
		c.NATS.DLQSubject = c.NATS.Subject + ".dlq"
	}
	if c.NATS.Durable == "" {
		c.NATS.Durable = "provisioning-orchestrator"
	}
	if c.NATS.MaxDeliver == 0 {
		c.NATS.MaxDeliver = 5
	}
	if c.NATS.AckWait == 0 {
		c.NATS.AckWait = 60 * time.Second
	}
	if c.NATS.FetchBatch == 0 {
		c.NATS.FetchBatch = 4
	}
	if c.NATS.FetchWait == 0 {
		c.NATS.FetchWait = 5 * time.Second
	}
	if c.Provisioning.StepTimeout == 0 {
		c.Provisioning.StepTimeout = 30 * time.Second
	}
	if c.Provisioning.Concurrency <= 0 {
		c.Provisioning.Concurrency = c.NATS.FetchBatch
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == 0 {
		c.Rate.Login.Window = time.Minute
	}
	if c.PasswordReset.TTL == 0 {
		c.PasswordReset.TTL = 2 * time.Hour
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_PUBLIC_URL"); ok {
		c.Server.PublicURL = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_CONNS"); ok {
		c.Storage.MaxConns = int32(v)
	}
	if v, ok := getEnvStr("STORAGE_SHARED_DATABASE"); ok {
		c.Storage.SharedDatabase = v
	}
	if v, ok := getEnvStr("STORAGE_DEDICATED_HOST"); ok {
		c.Storage.DedicatedHost = v
	}
	if v, ok := getEnvStr("STORAGE_MIGRATIONS_DIR"); ok {
		c.Storage.MigrationsDir = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvInt("PERMISSIONS_TTL_MINUTES"); ok {
		c.Cache.PermissionsTTLMinutes = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_AUDIENCE"); ok {
		c.JWT.Audience = v
	}
	if v, ok := getEnvDur("JWT_INTERMEDIATE_TTL"); ok {
		c.JWT.IntermediateTTL = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvDur("JWT_REMEMBER_ME_TTL"); ok {
		c.JWT.RememberMeTTL = v
	}
	if v, ok := getEnvDur("JWT_CLOCK_SKEW"); ok {
		c.JWT.ClockSkew = v
	}

	// NATS
	if v, ok := getEnvStr("NATS_URL"); ok {
		c.NATS.URL = v
	}
	if v, ok := getEnvStr("NATS_STREAM"); ok {
		c.NATS.Stream = v
	}
	if v, ok := getEnvStr("NATS_SUBJECT"); ok {
		c.NATS.Subject = v
	}
	if v, ok := getEnvStr("NATS_DLQ_SUBJECT"); ok {
		c.NATS.DLQSubject = v
	}
	if v, ok := getEnvInt("NATS_MAX_DELIVER"); ok {
		c.NATS.MaxDeliver = v
	}

	// PROVISIONING
	if v, ok := getEnvDur("PROVISIONING_STEP_TIMEOUT"); ok {
		c.Provisioning.StepTimeout = v
	}
	if v, ok := getEnvInt("PROVISIONING_CONCURRENCY"); ok {
		c.Provisioning.Concurrency = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvDur("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}

	// PASSWORD RESET
	if v, ok := getEnvDur("PASSWORD_RESET_TTL"); ok {
		c.PasswordReset.TTL = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USER"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}
}

// Validate chequea lo mínimo que necesita el API para arrancar.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.JWT.Secret) == "" {
		missing = append(missing, "jwt.secret")
	} else if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("%w: jwt.secret must be at least 32 bytes", ErrConfigurationMissing)
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		missing = append(missing, "jwt.issuer")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		missing = append(missing, "jwt.audience")
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		missing = append(missing, "storage.dsn")
	}
	if c.Cache.Kind == "redis" && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		missing = append(missing, "cache.redis.addr")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateWorker agrega los requisitos del consumidor de aprovisionamiento.
func (c *Config) ValidateWorker() error {
	var missing []string
	if strings.TrimSpace(c.Storage.DSN) == "" {
		missing = append(missing, "storage.dsn")
	}
	if strings.TrimSpace(c.NATS.URL) == "" {
		missing = append(missing, "nats.url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

// PermissionsTTL expone el TTL del cache de permisos como duración.
func (c *Config) PermissionsTTL() time.Duration {
	return time.Duration(c.Cache.PermissionsTTLMinutes) * time.Minute
}
