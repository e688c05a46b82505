package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orcamento/internal/amqp"
	"orcamento/internal/cache"
	"orcamento/internal/config"
	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/storage"
)

// Result bundles the infrastructure shared by the server and the worker.
type Result struct {
	Store *storage.Store
	// Views is nil when caching is disabled.
	Views cache.Cache[core.View]
	// AMQP is nil when no broker is configured or, for the server, when it
	// could not be reached at startup.
	AMQP *amqp.Client

	cleanups []func() error
}

// Close releases everything in reverse order of creation.
func (r *Result) Close() error {
	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanups = nil
	return errors.Join(errs...)
}

func (r *Result) onClose(fn func() error) {
	r.cleanups = append(r.cleanups, fn)
}

// Options tunes what Create treats as fatal.
type Options struct {
	// RequireAMQP fails Create when the broker cannot be reached.
	RequireAMQP bool
	// SkipViewCache leaves Views nil whatever CACHE_BACKEND says. Processes
	// that never serve views set it.
	SkipViewCache bool
}

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create opens the store (running migrations), builds the view cache and
// connects to the broker. On error everything already opened is closed.
func (f *Factory) Create(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	res := &Result{}

	store, err := storage.Open(ctx, StorageOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	res.Store = store
	res.onClose(store.Close)
	f.logger.Info("Initialized store", applog.FieldComponent, applog.ComponentStorage, "driver", store.Driver())

	if !opts.SkipViewCache {
		if err := f.createViewCache(ctx, cfg, res); err != nil {
			_ = res.Close()
			return nil, err
		}
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		switch {
		case err != nil && opts.RequireAMQP:
			_ = res.Close()
			return nil, fmt.Errorf("connect to broker: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events",
				applog.FieldComponent, applog.ComponentAMQP, applog.FieldError, err)
		default:
			res.AMQP = client
			res.onClose(client.Close)
			f.logger.Info("Initialized AMQP client",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldExchange, cfg.AMQPExchange,
				applog.FieldQueue, cfg.AMQPQueue)
		}
	}

	return res, nil
}

func (f *Factory) createViewCache(ctx context.Context, cfg *config.Config, res *Result) error {
	switch cfg.CacheBackend {
	case config.CacheMemory:
		lru := cache.NewLRUCache[core.View](cfg.CacheSize, cfg.CacheTTL)
		manager := cache.NewManager()
		manager.Register(lru)
		manager.StartCleanup(cfg.CacheTTL)
		res.Views = lru
		res.onClose(func() error {
			manager.Stop()
			return nil
		})
	case config.CacheRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		// View keys already carry their namespace.
		res.Views = cache.NewRedisCache[core.View](client, "", cfg.CacheTTL)
		res.onClose(client.Close)
	default:
		f.logger.Info("View cache disabled", applog.FieldComponent, applog.ComponentCache)
		return nil
	}

	f.logger.Info("Initialized view cache", applog.FieldComponent, applog.ComponentCache, "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)
	return nil
}
