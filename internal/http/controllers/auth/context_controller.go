package auth

import (
	"net/http"

	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/http/helpers"
	svc "github.com/farutech/tenantcore/internal/http/services/auth"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// ContextController maneja POST /auth/select-context.
type ContextController struct {
	service svc.ContextService
}

func (c *ContextController) SelectContext(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("ContextController.SelectContext"))

	var req dto.SelectContextRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resp, err := c.service.SelectContext(r.Context(), req)
	if err != nil {
		log.Debug("select context failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
