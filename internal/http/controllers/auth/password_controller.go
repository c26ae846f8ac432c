package auth

import (
	"net/http"

	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/http/helpers"
	svc "github.com/farutech/tenantcore/internal/http/services/auth"
)

// PasswordController maneja forgot/reset password.
type PasswordController struct {
	service svc.PasswordService
}

// ForgotPassword responde siempre el mismo mensaje.
func (c *PasswordController) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.ForgotPassword(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: svc.ForgotPasswordMessage})
}

func (c *PasswordController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeAuthError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: "Contraseña actualizada."})
}
