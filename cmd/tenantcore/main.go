// Command tenantcore corre el API de contexto de tenants, el worker de
// aprovisionamiento y las herramientas de operación.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/farutech/tenantcore/internal/config"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env: %v", err)
	}

	var cfgPath string
	root := &cobra.Command{
		Use:           "tenantcore",
		Short:         "Context authority, provisioning y catálogo multi-tenant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("CONFIG_PATH", "config.yaml"), "Archivo YAML de configuración (env CONFIG_PATH)")

	load := func(service string) (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.Logging.Level,
			ServiceName: service,
			Version:     cfg.App.Version,
		})
		return cfg, nil
	}

	root.AddCommand(
		serveCmd(load),
		workerCmd(load),
		migrateCmd(load),
		tokenCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type loader func(service string) (*config.Config, error)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
