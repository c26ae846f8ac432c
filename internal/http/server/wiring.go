// Package server arma las dependencias de la API y corre el http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farutech/tenantcore/internal/cache"
	"github.com/farutech/tenantcore/internal/catalog"
	"github.com/farutech/tenantcore/internal/config"
	"github.com/farutech/tenantcore/internal/email"
	authctrl "github.com/farutech/tenantcore/internal/http/controllers/auth"
	catalogctrl "github.com/farutech/tenantcore/internal/http/controllers/catalog"
	healthctrl "github.com/farutech/tenantcore/internal/http/controllers/health"
	mectrl "github.com/farutech/tenantcore/internal/http/controllers/me"
	membershipsctrl "github.com/farutech/tenantcore/internal/http/controllers/memberships"
	"github.com/farutech/tenantcore/internal/http/router"
	authsvc "github.com/farutech/tenantcore/internal/http/services/auth"
	healthsvc "github.com/farutech/tenantcore/internal/http/services/health"
	membershipsvc "github.com/farutech/tenantcore/internal/http/services/memberships"
	"github.com/farutech/tenantcore/internal/jwt"
	"github.com/farutech/tenantcore/internal/metrics"
	"github.com/farutech/tenantcore/internal/observability/logger"
	"github.com/farutech/tenantcore/internal/permcache"
	"github.com/farutech/tenantcore/internal/rate"
	"github.com/farutech/tenantcore/internal/store/pg"
)

const catalogSnapshotTTL = 5 * time.Minute

// API es el handler armado más sus recursos a liberar.
type API struct {
	Handler http.Handler

	store *pg.Store
	cache cache.Client
}

// Close libera pools y conexiones.
func (a *API) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// BuildAPI instancia store, cache, tokens y services, y devuelve el router.
// Un secreto JWT ausente es fatal.
func BuildAPI(ctx context.Context, cfg *config.Config) (*API, error) {
	log := logger.From(ctx).With(logger.Component("server.wiring"))

	tokens, err := jwt.NewService(jwt.Config{
		Secret:          []byte(cfg.JWT.Secret),
		Issuer:          cfg.JWT.Issuer,
		Audience:        cfg.JWT.Audience,
		IntermediateTTL: cfg.JWT.IntermediateTTL,
		AccessTTL:       cfg.JWT.AccessTTL,
		RememberMeTTL:   cfg.JWT.RememberMeTTL,
		ClockSkew:       cfg.JWT.ClockSkew,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: cfg.Storage.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	api := &API{store: st}

	kv, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		api.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	api.cache = kv

	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		if rc, ok := kv.(*cache.RedisClient); ok {
			limiter = rate.NewRedisLimiter(rc.Redis(), cfg.Cache.Redis.Prefix+":rl:auth:", cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
		} else {
			limiter = rate.NewMemoryLimiter("rl:auth:", cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
		}
	}

	var sender email.Sender = email.LogSender{}
	if cfg.SMTP.Host != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	} else {
		log.Warn("smtp not configured, password reset links go to the log")
	}

	perms := permcache.New(kv, st.Permissions(), cfg.PermissionsTTL())
	catalogSvc := catalog.NewService(st.Catalog(), catalogSnapshotTTL)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		api.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	authServices := authsvc.NewServices(authsvc.Deps{
		Users:       st.Users(),
		Memberships: st.Memberships(),
		Customers:   st.Customers(),
		Instances:   st.Instances(),
		Resets:      st.PasswordResets(),
		Tokens:      tokens,
		Notifier:    email.NewResetNotifier(sender),
		ResetTTL:    cfg.PasswordReset.TTL,
		ResetURL:    resetURL(cfg.Server.PublicURL),
	})
	membershipService := membershipsvc.NewService(membershipsvc.Deps{
		Users:       st.Users(),
		Memberships: st.Memberships(),
		Instances:   st.Instances(),
		Permissions: perms,
	})
	health := healthsvc.NewHealthService(healthsvc.Deps{
		DBCheck:    st.Ping,
		CacheCheck: kv.Ping,
		Version:    cfg.App.Version,
	})

	api.Handler = router.New(router.Deps{
		Auth:        authctrl.NewControllers(authServices),
		Me:          mectrl.NewMeController(perms),
		Memberships: membershipsctrl.NewMembershipsController(membershipService),
		Catalog:     catalogctrl.NewCatalogController(catalogSvc),
		Health:      healthctrl.NewHealthController(health),
		Tokens:      tokens,
		Customers:   st.Customers(),
		Permissions: perms,
		AuthLimiter: limiter,
		Metrics:     metrics.Handler(prometheus.DefaultGatherer),
	})

	log.Info("api wired",
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("rate_limit", limiter != nil),
		logger.Dur("permissions_ttl", cfg.PermissionsTTL()),
	)
	return api, nil
}

func resetURL(publicURL string) string {
	if publicURL == "" {
		return ""
	}
	return publicURL + "/reset-password"
}

// Run sirve h en addr hasta que ctx se cancela y luego hace shutdown ordenado.
func Run(ctx context.Context, addr string, h http.Handler, readTimeout, writeTimeout time.Duration) error {
	log := logger.From(ctx).With(logger.Component("server"))

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
