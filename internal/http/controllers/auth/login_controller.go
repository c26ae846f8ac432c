package auth

import (
	"net/http"

	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/http/helpers"
	svc "github.com/farutech/tenantcore/internal/http/services/auth"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// LoginController maneja POST /auth/login.
type LoginController struct {
	service svc.LoginService
}

// Login responde SecureLoginResponse o 401 genérico.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resp, err := c.service.Login(r.Context(), req)
	if err != nil {
		log.Debug("login failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
