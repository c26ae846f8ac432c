package auth

// ForgotPasswordRequest es el body de POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

// ResetPasswordRequest es el body de POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// MessageResponse es la respuesta genérica {message}.
type MessageResponse struct {
	Message string `json:"message"`
}
