// Package audit registra eventos de auditoría (cambios de membresía,
// reseteo de contraseña) como logs estructurados con logger "audit".
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/farutech/tenantcore/internal/observability/logger"
)

// Eventos conocidos.
const (
	MembershipAssigned    = "membership.assigned"
	MembershipRoleChanged = "membership.role_changed"
	MembershipRemoved     = "membership.removed"
	PasswordResetDone     = "password.reset"
)

// Log escribe el evento con los campos del logger del request (request_id,
// user_id del actor) más los propios.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	l := logger.From(ctx).Named("audit")
	l.Info(event, append([]zap.Field{zap.String("event", event)}, fields...)...)
}
