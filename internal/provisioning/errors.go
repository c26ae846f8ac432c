package provisioning

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformedEvent: el payload no se puede procesar nunca; va a la DLQ sin reintentos.
var ErrMalformedEvent = errors.New("provisioning: malformed event")

// ErrUnknownFeature: el evento pide features que el catálogo todavía no tiene.
// Se reintenta; nunca se provisiona un tenant con un set de permisos incompleto.
var ErrUnknownFeature = errors.New("provisioning: unknown feature")

// Nombres de pasos, usados en logs, métricas y StepError.
const (
	StepResolve          = "resolve"
	StepCatalog          = "catalog"
	StepTransaction      = "transaction"
	StepSchema           = "schema"
	StepTables           = "tables"
	StepOwner            = "owner"
	StepPermissions      = "permissions"
	StepRole             = "role"
	StepGrantPermissions = "grant_permissions"
	StepGrantRole        = "grant_role"
)

// StepError indica qué paso falló para qué tenant. El mensaje queda para
// redelivery.
type StepError struct {
	Step     string
	TenantID uuid.UUID
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning step %s failed for tenant %s: %v", e.Step, e.TenantID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep extrae el paso de un error, o "" si no es un StepError.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
