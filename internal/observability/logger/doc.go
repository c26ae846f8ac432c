// Package logger expone un logger Zap único para el API y el worker de
// aprovisionamiento, con soporte para loggers "scoped" via context.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Logging.Level, ServiceName: "tenantcore-api"})
//	defer logger.Sync()
//
// En services y handlers:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("SelectContext"))
//	log.Info("context selected", logger.TenantID(id))
package logger
