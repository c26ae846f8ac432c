package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/farutech/tenantcore/internal/infra/tenantsql"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/store/pg"
	migrations "github.com/farutech/tenantcore/migrations/postgres"
)

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de la base global",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load("migrate")
			if err != nil {
				return err
			}
			if cfg.Storage.DSN == "" {
				return fmt.Errorf("storage.dsn es requerido")
			}

			ctx := logger.ToContext(cmd.Context(), logger.L())
			st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer st.Close()

			// Si migrations_dir existe en disco se usa; si no, los scripts embebidos.
			var fsys fs.FS = migrations.GlobalFS
			if fi, err := os.Stat(cfg.Storage.MigrationsDir); err == nil && fi.IsDir() {
				fsys = os.DirFS(cfg.Storage.MigrationsDir)
			}
			n, err := tenantsql.RunMigrations(ctx, st.Pool(), fsys, migrations.GlobalDir)
			if err != nil {
				return err
			}
			logger.L().Info("migrations applied", logger.Count(n))
			return nil
		},
	}
}
