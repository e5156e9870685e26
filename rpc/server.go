// Package rpc serves the chain over JSON-RPC 2.0 and streams contract events
// over websockets.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanchain/core/events"
	"loanchain/core/types"
	"loanchain/indexer"
	"loanchain/rpc/middleware"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Backend is the chain surface the server exposes.
type Backend interface {
	ChainID() uint64
	Height() uint64
	ApplyTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error)
	Balance(addr common.Address) (*big.Int, error)
	Nonce(addr common.Address) (uint64, error)
	TokenBalance(token, holder common.Address) (*big.Int, error)
	LoanAddress() (common.Address, error)
	Receipt(hash common.Hash) (*types.Receipt, error)
	SubscribeEvents(ch chan<- events.Envelope) event.Subscription
}

// HistoryStore answers loan history queries. It is optional.
type HistoryStore interface {
	History(ctx context.Context, user common.Address, limit int) ([]indexer.LoanEvent, error)
	OpenLoans(ctx context.Context) ([]indexer.Position, error)
}

type ServerConfig struct {
	ServiceName    string
	Auth           middleware.AuthConfig
	WriteScopes    []string
	RateLimit      middleware.RateLimit
	AllowedOrigins []string
	HistoryLimit   int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	EventQueue     int
	ExposeMetrics  bool
	LogRequests    bool
}

type Server struct {
	backend Backend
	history HistoryStore
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	router  chi.Router

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(backend Backend, history HistoryStore, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 64
	}
	s := &Server{
		backend: backend,
		history: history,
		cfg:     cfg,
		logger:  logger.With("component", "rpc"),
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.ServiceName,
			LogRequests: cfg.LogRequests,
		}, logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}))
	r.Use(s.obs.Middleware)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.ExposeMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return r
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", "addr", listener.Addr().String())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a server started with Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"status":"ok","chainId":%d,"height":%d}`, s.backend.ChainID(), s.backend.Height())
}
