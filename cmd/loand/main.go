package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/config"
	"loanchain/core"
	"loanchain/core/genesis"
	"loanchain/indexer"
	"loanchain/observability/logging"
	telemetry "loanchain/observability/otel"
	"loanchain/rpc"
	"loanchain/rpc/middleware"
	"loanchain/storage"
)

const genesisPathEnv = "LOAN_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides LOAN_GENESIS and config GenesisFile)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *genesisFlag); err != nil {
		fmt.Fprintf(os.Stderr, "loand: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, genesisOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "loand",
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "loand",
			Environment: cfg.Logging.Env,
			ChainID:     cfg.ChainID,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	chain, err := core.NewChain(db, core.Config{
		ChainID: cfg.ChainID,
		Pauses:  cfg.Pauses,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open chain: %w", err)
	}
	if cfg.Pauses.Loan {
		logger.Warn("loan module paused by configuration")
	}

	genesisPath := resolveGenesisPath(genesisOverride, cfg.GenesisFile, os.LookupEnv)
	if err := bootstrap(chain, genesisPath, logger); err != nil {
		return err
	}

	var (
		history HistoryCloser
		wg      sync.WaitGroup
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if cfg.Indexer.Driver != "" {
		ix, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger.With("component", "indexer"))
		if err != nil {
			return err
		}
		history = ix
		feed := ix.Subscribe(chain)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ix.Run(runCtx, feed); err != nil {
				logger.Error("indexer stopped", "error", err)
			}
		}()
	}

	server := rpc.NewServer(chain, historyStore(history), serverConfig(cfg), logger)
	listener, err := net.Listen("tcp", cfg.RPC.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPC.Address, err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	logger.Info("loand started",
		"chain_id", chain.ChainID(),
		"height", chain.Height(),
		"rpc", listener.Addr().String(),
		"database", cfg.Database)

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err = <-serveErr:
		if err != nil {
			logger.Error("rpc server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("rpc shutdown failed", "error", shutdownErr)
	}
	cancelRun()
	wg.Wait()
	if history != nil {
		if closeErr := history.Close(); closeErr != nil {
			logger.Warn("indexer close failed", "error", closeErr)
		}
	}
	return err
}

// HistoryCloser is the indexer as seen by the daemon.
type HistoryCloser interface {
	rpc.HistoryStore
	Close() error
}

// historyStore keeps a disabled indexer a nil interface for the server.
func historyStore(h HistoryCloser) rpc.HistoryStore {
	if h == nil {
		return nil
	}
	return h
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Database {
	case config.DatabaseMemory:
		return storage.NewMemDB(), nil
	case config.DatabaseLevelDB:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewLevelDB(cfg.DataDir)
	case config.DatabaseBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "chain.db"))
	default:
		return nil, fmt.Errorf("unsupported database %q", cfg.Database)
	}
}

func resolveGenesisPath(flagValue, configValue string, lookupEnv func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookupEnv != nil {
		if value, ok := lookupEnv(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(configValue)
}

// bootstrap applies the genesis document to an empty chain. A chain that
// already holds state is left untouched.
func bootstrap(chain *core.Chain, path string, logger *slog.Logger) error {
	if chain.Height() > 0 || len(chain.Contracts()) > 0 {
		logger.Info("existing chain state found", "height", chain.Height(), "contracts", len(chain.Contracts()))
		return nil
	}
	if path == "" {
		logger.Warn("no genesis configured; starting with an empty chain")
		return nil
	}
	spec, err := genesis.Load(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	result, err := genesis.Apply(chain, spec)
	if errors.Is(err, core.ErrGenesisAlreadyLoaded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	attrs := []any{"path", path}
	if result.Loan != (common.Address{}) {
		attrs = append(attrs, "loan", result.Loan.Hex())
	}
	for symbol, addr := range result.Tokens {
		attrs = append(attrs, "token_"+strings.ToLower(symbol), addr.Hex())
	}
	logger.Info("genesis applied", attrs...)
	return nil
}

func serverConfig(cfg *config.Config) rpc.ServerConfig {
	return rpc.ServerConfig{
		ServiceName: "loand",
		Auth: middleware.AuthConfig{
			Enabled:    cfg.RPC.Auth.Enabled,
			HMACSecret: cfg.RPC.Auth.HMACSecret,
			Issuer:     cfg.RPC.Auth.Issuer,
			Audience:   cfg.RPC.Auth.Audience,
			ScopeClaim: cfg.RPC.Auth.ScopeClaim,
			ClockSkew:  time.Duration(cfg.RPC.Auth.ClockSkew) * time.Second,
		},
		WriteScopes: append([]string(nil), cfg.RPC.Auth.Scopes...),
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RPC.RateLimit.RequestsPerMinute,
			Burst:             cfg.RPC.RateLimit.Burst,
		},
		AllowedOrigins: append([]string(nil), cfg.RPC.AllowedOrigins...),
		HistoryLimit:   cfg.RPC.HistoryLimit,
		ReadTimeout:    time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		EventQueue:     cfg.RPC.EventStreamQueue,
		ExposeMetrics:  cfg.RPC.ExposeMetrics,
		LogRequests:    cfg.Logging.Level == "debug",
	}
}
