package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/farutech/tenantcore/internal/util"
)

// ─── HTTP ───

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Route(v string) zap.Field     { return zap.String("route", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// DurationMs registra una duración en milisegundos.
func DurationMs(d time.Duration) zap.Field { return zap.Int64("duration_ms", d.Milliseconds()) }

// ─── Negocio ───

func TenantID(v string) zap.Field   { return zap.String("tenant_id", v) }
func CustomerID(v string) zap.Field { return zap.String("customer_id", v) }
func UserID(v string) zap.Field     { return zap.String("user_id", v) }
func Role(v string) zap.Field       { return zap.String("role", v) }

// Email loguea la dirección enmascarada.
func Email(v string) zap.Field { return zap.String("email", util.MaskEmail(v)) }

// ─── Aprovisionamiento ───

func Schema(v string) zap.Field   { return zap.String("schema", v) }
func Step(v string) zap.Field     { return zap.String("step", v) }
func Subject(v string) zap.Field  { return zap.String("subject", v) }
func Attempt(v uint64) zap.Field  { return zap.Uint64("attempt", v) }
func Database(v string) zap.Field { return zap.String("database", v) }

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func Key(v string) zap.Field       { return zap.String("key", v) }

func String(key, v string) zap.Field            { return zap.String(key, v) }
func Int(key string, v int) zap.Field           { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field         { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field           { return zap.Any(key, v) }
func Dur(key string, v time.Duration) zap.Field { return zap.Duration(key, v) }
