package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/middleware/ratelimit"
	"orcamento/internal/middleware/security"
	"orcamento/internal/middleware/trace"
	"orcamento/internal/services"
)

// ConfigLoader serves the read-model of one user.
type ConfigLoader interface {
	LoadView(ctx context.Context, userID int64) (core.View, error)
}

// ConfigSaver persists a submitted configuration tree.
type ConfigSaver interface {
	Reconcile(ctx context.Context, userID int64, tree core.Tree) (services.ReconcileResult, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the server. Zero values disable the optional parts.
type Options struct {
	Addr         string
	MaxBodyBytes int64
	Logger       *applog.Logger
	// ClientIP resolves the caller address for request logs.
	ClientIP func(*http.Request) string
	// SaveLimiter throttles PUT /api/config per user.
	SaveLimiter *ratelimit.Limiter
}

type Server struct {
	http.Server
	loader       ConfigLoader
	saver        ConfigSaver
	pinger       Pinger
	maxBodyBytes int64
	saveLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

const defaultMaxBodyBytes = 5 << 20

func NewServer(opts Options, loader ConfigLoader, saver ConfigSaver, pinger Pinger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		loader:       loader,
		saver:        saver,
		pinger:       pinger,
		maxBodyBytes: opts.MaxBodyBytes,
		saveLimiter:  opts.SaveLimiter,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)

	var handler http.Handler = mux
	if s.saveLimiter != nil {
		handler = s.saveLimiter.Middleware(
			func(r *http.Request) bool { return r.Method == http.MethodPut },
			func(r *http.Request) string { return r.Header.Get(HeaderUserID) },
		)(handler)
	}
	handler = trace.NewMiddleware(opts.ClientIP).Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	if opts.Logger != nil {
		handler = applog.Middleware(opts.Logger.WithComponent(applog.ComponentHTTP))(handler)
	}
	s.Handler = handler

	return s
}

// Shutdown stops the limiter and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.saveLimiter != nil {
			s.saveLimiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
