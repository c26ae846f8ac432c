package middlewares

import (
	"context"

	"github.com/farutech/tenantcore/internal/jwt"
)

type ctxKey string

const (
	ctxAccessKey    ctxKey = "access"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithAccess inyecta el contexto tipado del access token.
func WithAccess(ctx context.Context, ac *jwt.AccessContext) context.Context {
	return context.WithValue(ctx, ctxAccessKey, ac)
}

// GetAccess obtiene el access token validado. nil si la ruta no pasó por RequireAccessToken.
func GetAccess(ctx context.Context) *jwt.AccessContext {
	ac, _ := ctx.Value(ctxAccessKey).(*jwt.AccessContext)
	return ac
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID retorna cadena vacía si no hay request ID.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}
