package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"orcamento/internal/backend"
	"orcamento/internal/cli"
	"orcamento/internal/config"
	apphttp "orcamento/internal/http"
	applog "orcamento/internal/log"
	"orcamento/internal/middleware/ratelimit"
	"orcamento/internal/middleware/security"
	"orcamento/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp, (*config.Config).Validate)

	resolver, err := security.NewClientIPResolver(cfg.TrustedProxies...)
	if err != nil {
		logger.Error("Invalid trusted proxies", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg, backend.Options{})
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to release resources", applog.FieldError, err)
		}
	}()

	// A nil *amqp.Client must not become a non-nil interface.
	var publisher services.ConfigSavedPublisher
	if res.AMQP != nil {
		publisher = res.AMQP
	}
	reconciler := services.NewReconciler(res.Store, res.Views, publisher)
	reader := services.NewConfigReader(res.Store, services.NewCategoryDeduplicator(res.Store), res.Views)

	var limiter *ratelimit.Limiter
	if cfg.SaveRateLimit > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.Config{Requests: cfg.SaveRateLimit, Window: time.Minute})
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
		ClientIP:     resolver.ClientIP,
		SaveLimiter:  limiter,
	}, reader, reconciler, res.Store)

	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		logger.Info("Starting orcamento server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"driver", cfg.DatabaseDriver,
			"cache", cfg.CacheBackend,
			"amqp_enabled", res.AMQP != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
