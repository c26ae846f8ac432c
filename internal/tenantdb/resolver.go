// Package tenantdb resuelve, sin I/O, el nombre de schema y la cadena de
// conexión de una instancia de tenant.
//
// Modo Shared: base compartida (farutech_db_customers) con search_path al
// schema del tenant. Modo Dedicated: base propia por organización
// (farutech_db_customer_<org>), mismo nombre de schema adentro.
package tenantdb

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const schemaPrefix = "tenant_"

var (
	schemaPattern = regexp.MustCompile(`^tenant_[0-9a-f]{32}$`)
	orgPattern    = regexp.MustCompile(`^[a-z0-9_]{1,40}$`)
)

var (
	ErrInvalidSchemaName    = errors.New("tenantdb: invalid schema name")
	ErrInvalidOrgIdentifier = errors.New("tenantdb: invalid org identifier")
	ErrInvalidBaseDSN       = errors.New("tenantdb: invalid base dsn")
)

// SchemaName retorna "tenant_" + hex del uuid, sin guiones, en minúsculas.
func SchemaName(tenantID uuid.UUID) string {
	return schemaPrefix + strings.ReplaceAll(tenantID.String(), "-", "")
}

// IsValidSchemaName valida contra el patrón fijo antes de que el nombre
// llegue a cualquier sentencia SQL.
func IsValidSchemaName(name string) bool {
	return schemaPattern.MatchString(name)
}

// TenantIDFromSchema invierte SchemaName.
func TenantIDFromSchema(name string) (uuid.UUID, error) {
	if !IsValidSchemaName(name) {
		return uuid.Nil, ErrInvalidSchemaName
	}
	return uuid.Parse(strings.TrimPrefix(name, schemaPrefix))
}

// QuoteIdent escapa un identificador de Postgres.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteSchema valida y escapa un nombre de schema de tenant.
func QuoteSchema(name string) (string, error) {
	if !IsValidSchemaName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSchemaName, name)
	}
	return QuoteIdent(name), nil
}

// Qualified arma "schema"."table" con ambos identificadores escapados.
// El schema debe haber pasado por IsValidSchemaName.
func Qualified(schema, table string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}

// Config describe el cluster compartido y la convención de bases dedicadas.
type Config struct {
	// BaseDSN es una URL postgres:// (credenciales, host, sslmode...).
	// La base del path se reemplaza según el modo.
	BaseDSN                 string
	SharedDatabase          string
	DedicatedDatabasePrefix string
	// DedicatedHost reemplaza host:port para bases dedicadas (opcional).
	DedicatedHost string
}

// Resolver es inmutable y seguro para uso concurrente.
type Resolver struct {
	cfg  Config
	base *url.URL
}

// NewResolver parsea la DSN base una sola vez.
func NewResolver(cfg Config) (*Resolver, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseDSN))
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") || u.Host == "" {
		return nil, fmt.Errorf("%w: expected postgres:// url", ErrInvalidBaseDSN)
	}
	if cfg.SharedDatabase == "" {
		cfg.SharedDatabase = "farutech_db_customers"
	}
	if cfg.DedicatedDatabasePrefix == "" {
		cfg.DedicatedDatabasePrefix = "farutech_db_customer_"
	}
	return &Resolver{cfg: cfg, base: u}, nil
}

// Connection es el resultado de resolver una instancia.
type Connection struct {
	CustomerID uuid.UUID
	TenantID   uuid.UUID
	Dedicated  bool
	Host       string
	Database   string
	Schema     string
	DSN        string
}

// String oculta la password.
func (c Connection) String() string {
	u, err := url.Parse(c.DSN)
	if err != nil {
		return c.Database + "/" + c.Schema
	}
	return u.Redacted()
}

// BuildConnectionString resuelve base y schema para la instancia.
func (r *Resolver) BuildConnectionString(customerID, tenantID uuid.UUID, isDedicated bool, orgIdentifier string) (Connection, error) {
	u := *r.base
	db := r.cfg.SharedDatabase

	if isDedicated {
		org := strings.ToLower(strings.TrimSpace(orgIdentifier))
		if !orgPattern.MatchString(org) {
			return Connection{}, fmt.Errorf("%w: %q", ErrInvalidOrgIdentifier, orgIdentifier)
		}
		db = r.cfg.DedicatedDatabasePrefix + org
		if r.cfg.DedicatedHost != "" {
			u.Host = r.cfg.DedicatedHost
		}
	}

	schema := SchemaName(tenantID)
	u.Path = "/" + db
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	return Connection{
		CustomerID: customerID,
		TenantID:   tenantID,
		Dedicated:  isDedicated,
		Host:       u.Host,
		Database:   db,
		Schema:     schema,
		DSN:        u.String(),
	}, nil
}

// ParseConnectionString recupera base y schema de una DSN construida por
// BuildConnectionString.
func ParseConnectionString(dsn string) (database, schema string, tenantID uuid.UUID, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidBaseDSN, err)
	}
	schema = u.Query().Get("search_path")
	tenantID, err = TenantIDFromSchema(schema)
	if err != nil {
		return "", "", uuid.Nil, err
	}
	return strings.TrimPrefix(u.Path, "/"), schema, tenantID, nil
}
