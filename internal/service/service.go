package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/InsulaLabs/msdscript/internal/config"
	"github.com/InsulaLabs/msdscript/internal/history"
	"github.com/InsulaLabs/msdscript/internal/runner"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	apiPrefix       = "/api/v1/"
	maxRequestBytes = 1 << 20
	maxBatchSources = 1000
)

type Config struct {
	Logger  *slog.Logger
	Runner  *runner.Runner
	History *history.Store // optional; websocket sessions are recorded when set

	HttpBinding              string
	RateLimit                config.RateLimiterConfig
	WebSocketReadBufferSize  int
	WebSocketWriteBufferSize int
	MaxConnections           int
}

// ConfigFrom maps the service section of the file configuration.
func ConfigFrom(cfg *config.Config, logger *slog.Logger, r *runner.Runner, store *history.Store) Config {
	return Config{
		Logger:                   logger,
		Runner:                   r,
		History:                  store,
		HttpBinding:              cfg.Service.HttpBinding,
		RateLimit:                cfg.Service.RateLimit,
		WebSocketReadBufferSize:  cfg.Service.WebSocketReadBufferSize,
		WebSocketWriteBufferSize: cfg.Service.WebSocketWriteBufferSize,
		MaxConnections:           cfg.Service.MaxConnections,
	}
}

// Service exposes the interpreter over HTTP and websockets.
type Service struct {
	appCtx  context.Context
	cfg     Config
	logger  *slog.Logger
	runner  *runner.Runner
	history *history.Store
	mux     *http.ServeMux

	startedAt time.Time

	rateLimiters map[string]*rate.Limiter

	wsUpgrader          websocket.Upgrader
	wsConnectionLock    sync.Mutex
	activeWsConnections int32
}

func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Runner == nil {
		return nil, errors.New("service requires a runner")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}
	logger := cfg.Logger.WithGroup("service")

	rateLimiters := make(map[string]*rate.Limiter)
	rlLogger := logger.With("component", "rate-limiter")
	if cfg.RateLimit.Limit > 0 {
		burst := max(cfg.RateLimit.Burst, 1)
		rateLimiters["default"] = rate.NewLimiter(rate.Limit(cfg.RateLimit.Limit), burst)
		rlLogger.Info("Initialized rate limiter for 'default'", "limit", cfg.RateLimit.Limit, "burst", burst)
		// batch requests count for more work each, so they get a tighter bucket
		rateLimiters["batch"] = rate.NewLimiter(rate.Limit(cfg.RateLimit.Limit/10), max(burst/10, 1))
		rlLogger.Info("Initialized rate limiter for 'batch'", "limit", cfg.RateLimit.Limit/10, "burst", max(burst/10, 1))
	}

	s := &Service{
		appCtx:       ctx,
		cfg:          cfg,
		logger:       logger,
		runner:       cfg.Runner,
		history:      cfg.History,
		mux:          http.NewServeMux(),
		startedAt:    time.Now(),
		rateLimiters: rateLimiters,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebSocketReadBufferSize,
			WriteBufferSize: cfg.WebSocketWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s, nil
}

func (s *Service) routes() {
	s.mux.Handle(apiPrefix+string(runner.ModeInterp), s.rateLimitMiddleware(s.evalHandler(runner.ModeInterp), "eval"))
	s.mux.Handle(apiPrefix+string(runner.ModePrint), s.rateLimitMiddleware(s.evalHandler(runner.ModePrint), "eval"))
	s.mux.Handle(apiPrefix+string(runner.ModePrettyPrint), s.rateLimitMiddleware(s.evalHandler(runner.ModePrettyPrint), "eval"))
	s.mux.Handle(apiPrefix+"batch", s.rateLimitMiddleware(http.HandlerFunc(s.batchHandler), "batch"))
	s.mux.Handle(apiPrefix+"ping", s.rateLimitMiddleware(http.HandlerFunc(s.pingHandler), "system"))
	s.mux.Handle(apiPrefix+"session", s.rateLimitMiddleware(http.HandlerFunc(s.sessionHandler), "default"))
}

// Handler returns the routed mux, for serving or for tests.
func (s *Service) Handler() http.Handler {
	return s.mux
}

func (s *Service) rateLimitMiddleware(next http.Handler, category string) http.Handler {
	limiter, ok := s.rateLimiters[category]
	if !ok {
		// Fallback to default limiter if category-specific one isn't found or configured
		limiter, ok = s.rateLimiters["default"]
		if !ok {
			s.logger.Warn("No rate limiter configured for category and no default limiter present", "category", category)
			return next
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			s.logger.Warn("Rate limit exceeded", "category", category, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until the context given to NewService is cancelled.
func (s *Service) Run() error {
	srv := &http.Server{
		Addr:              s.cfg.HttpBinding,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-s.appCtx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server shutdown error", "error", err)
		}
	}()

	s.startedAt = time.Now()
	s.logger.Info("Starting HTTP server", "listen_addr", s.cfg.HttpBinding)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "http server on %s", s.cfg.HttpBinding)
	}
	return nil
}
