package main

import (
	"github.com/spf13/cobra"

	"github.com/farutech/tenantcore/internal/http/server"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el API HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load("api")
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := logger.ToContext(cmd.Context(), logger.L())
			api, err := server.BuildAPI(ctx, cfg)
			if err != nil {
				return err
			}
			defer api.Close()

			return server.Run(ctx, cfg.Server.Addr, api.Handler, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
		},
	}
}
