package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/farutech/tenantcore/internal/authclient"
)

// tokenCmd hace login contra un API en marcha e imprime un access token.
func tokenCmd() *cobra.Command {
	var (
		baseURL    = envOr("TENANTCORE_URL", "http://localhost:8080")
		email      = envOr("TENANTCORE_EMAIL", "")
		tenant     string
		rememberMe bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtiene un access token (login + select-context)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pass := os.Getenv("TENANTCORE_PASSWORD")
			if email == "" || pass == "" {
				return fmt.Errorf("--email y env TENANTCORE_PASSWORD son requeridos")
			}
			cfg := authclient.Config{
				BaseURL:    baseURL,
				Email:      email,
				Password:   pass,
				RememberMe: rememberMe,
			}
			if tenant != "" {
				id, err := uuid.Parse(tenant)
				if err != nil {
					return fmt.Errorf("--tenant inválido: %w", err)
				}
				cfg.TenantID = id
			}

			s, err := authclient.New(cfg)
			if err != nil {
				return err
			}
			tok, err := s.Token(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", baseURL, "URL base del API (env TENANTCORE_URL)")
	cmd.Flags().StringVar(&email, "email", email, "Email del usuario (env TENANTCORE_EMAIL)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Organización a seleccionar si el login pide contexto")
	cmd.Flags().BoolVar(&rememberMe, "remember-me", false, "Pide un token de vida extendida")
	return cmd
}
