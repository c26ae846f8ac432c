package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/farutech/tenantcore/internal/cache"
	"github.com/farutech/tenantcore/internal/catalog"
	"github.com/farutech/tenantcore/internal/config"
	healthctrl "github.com/farutech/tenantcore/internal/http/controllers/health"
	mw "github.com/farutech/tenantcore/internal/http/middlewares"
	"github.com/farutech/tenantcore/internal/http/server"
	healthsvc "github.com/farutech/tenantcore/internal/http/services/health"
	"github.com/farutech/tenantcore/internal/infra/tenantsql"
	"github.com/farutech/tenantcore/internal/metrics"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/permcache"
	"github.com/farutech/tenantcore/internal/provisioning"
	"github.com/farutech/tenantcore/internal/store/pg"
	"github.com/farutech/tenantcore/internal/tenantdb"
)

func workerCmd(load loader) *cobra.Command {
	var adminAddr string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume eventos de aprovisionamiento desde NATS JetStream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load("worker")
			if err != nil {
				return err
			}
			if err := cfg.ValidateWorker(); err != nil {
				return err
			}
			return runWorker(logger.ToContext(cmd.Context(), logger.L()), cfg, adminAddr)
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", envOr("WORKER_ADMIN_ADDR", ":9091"), "Dirección de /metrics y /readyz del worker (vacío = deshabilitado)")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config, adminAddr string) error {
	log := logger.From(ctx).With(logger.Component("worker"))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	resolver, err := tenantdb.NewResolver(tenantdb.Config{
		BaseDSN:                 cfg.Storage.DSN,
		SharedDatabase:          cfg.Storage.SharedDatabase,
		DedicatedDatabasePrefix: cfg.Storage.DedicatedDatabasePrefix,
		DedicatedHost:           cfg.Storage.DedicatedHost,
	})
	if err != nil {
		return err
	}

	st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: cfg.Storage.MaxConns})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	pools := tenantsql.New(tenantsql.PoolConfig{MaxConns: cfg.Storage.MaxConns})
	defer pools.Close()

	kv, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer kv.Close()

	// Sin NATS el worker no tiene nada que hacer: es fatal.
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("tenantcore-worker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logger.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	orch := provisioning.NewOrchestrator(provisioning.Config{
		Resolver:    resolver,
		Store:       provisioning.NewPGStore(pools),
		Catalog:     catalog.NewService(st.Catalog(), time.Minute),
		Cache:       permcache.New(kv, st.Permissions(), cfg.PermissionsTTL()),
		StepTimeout: cfg.Provisioning.StepTimeout,
	})
	consumer := provisioning.NewConsumer(js, orch, provisioning.ConsumerConfig{
		Stream:      cfg.NATS.Stream,
		Subject:     cfg.NATS.Subject,
		DLQSubject:  cfg.NATS.DLQSubject,
		Durable:     cfg.NATS.Durable,
		MaxDeliver:  cfg.NATS.MaxDeliver,
		AckWait:     cfg.NATS.AckWait,
		FetchBatch:  cfg.NATS.FetchBatch,
		FetchWait:   cfg.NATS.FetchWait,
		Concurrency: cfg.Provisioning.Concurrency,
	})
	if err := consumer.EnsureStream(); err != nil {
		return err
	}

	adminErr := make(chan error, 1)
	if adminAddr != "" {
		health := healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
			DBCheck:     st.Ping,
			CacheCheck:  kv.Ping,
			TenantPools: pools,
			Version:     cfg.App.Version,
		}))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
		mux.HandleFunc("/healthz", health.Healthz)
		mux.HandleFunc("/readyz", health.Readyz)
		h := mw.Chain(mux, mw.WithRecover(), mw.WithRequestID(), mw.WithLogging())

		go func() {
			adminErr <- server.Run(ctx, adminAddr, h, 5*time.Second, 10*time.Second)
		}()
	}

	log.Info("worker started", logger.String("nats", nc.ConnectedUrl()))
	if err := consumer.Run(ctx); err != nil {
		return err
	}

	if adminAddr != "" {
		if err := <-adminErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("admin server stopped with error", logger.Err(err))
		}
	}
	log.Info("worker stopped")
	return nil
}
