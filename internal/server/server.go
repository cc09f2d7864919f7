// Package server exposes the agent over HTTP: the paid intelligence
// endpoints that earn revenue, the free dashboard API, and the SSE event
// stream.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/autonome-labs/autonome/internal/bus"
	"github.com/autonome-labs/autonome/internal/ledger"
	"github.com/autonome-labs/autonome/internal/model"
)

// Config tunes the HTTP surface.
type Config struct {
	Addr string

	// Prices charged per paid request, in USD.
	IntelPrice float64
	CheckPrice float64

	// Rate limiting across the paid endpoints.
	RateLimit rate.Limit
	RateBurst int

	// AllowedOrigins for dashboard CORS. Empty means allow all.
	AllowedOrigins []string
}

// DefaultConfig returns the stock server tuning.
func DefaultConfig() Config {
	return Config{
		Addr:       ":4020",
		IntelPrice: 0.08,
		CheckPrice: 0.02,
		RateLimit:  rate.Limit(5),
		RateBurst:  10,
	}
}

// Intel is the slice of the synthesizer the server needs.
type Intel interface {
	Synthesize(ctx context.Context, address string) (*model.IntelReport, error)
	QuickCheck(ctx context.Context, address string) (*model.QuickCheck, error)
}

// Server serves the paid API and the dashboard.
type Server struct {
	cfg     Config
	ledger  ledger.Ledger
	intel   Intel
	bus     *bus.Bus
	limiter *rate.Limiter
}

// New wires the server. All dependencies are required.
func New(cfg Config, lg ledger.Ledger, intel Intel, b *bus.Bus) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.IntelPrice <= 0 {
		cfg.IntelPrice = def.IntelPrice
	}
	if cfg.CheckPrice <= 0 {
		cfg.CheckPrice = def.CheckPrice
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	return &Server{
		cfg:     cfg,
		ledger:  lg,
		intel:   intel,
		bus:     b,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Payment-Address"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Paid endpoints.
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/intel/{address}", s.handleIntel)
		r.Get("/check/{address}", s.handleCheck)
	})

	// Free dashboard API.
	r.Route("/api", func(r chi.Router) {
		r.Get("/metrics", s.handleMetrics)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/timeseries", s.handleTimeSeries)
		r.Get("/agent/status", s.handleAgentStatus)
		r.Post("/agent/start", s.handleAgentStart)
		r.Post("/agent/stop", s.handleAgentStop)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.cfg.Addr))
		s.bus.Publish(model.EventServerStarted, map[string]any{"addr": s.cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.ledger.GetState(r.Context(), model.StateStatus)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if status == "" {
		status = "stopped"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agent":  status,
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request after it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
