package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DatabaseLevelDB = "leveldb"
	DatabaseBolt    = "bolt"
	DatabaseMemory  = "memory"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ChainID     uint64          `toml:"ChainID"`
	DataDir     string          `toml:"DataDir"`
	Database    string          `toml:"Database"`
	GenesisFile string          `toml:"GenesisFile"`
	Logging     LoggingConfig   `toml:"logging"`
	Indexer     IndexerConfig   `toml:"indexer"`
	RPC         RPCConfig       `toml:"rpc"`
	Telemetry   TelemetryConfig `toml:"telemetry"`
	Pauses      Pauses          `toml:"pauses"`
}

// Default returns the configuration written on first boot.
func Default() *Config {
	return &Config{
		ChainID:     1337,
		DataDir:     "./loan-data",
		Database:    DatabaseLevelDB,
		GenesisFile: "",
		Logging: LoggingConfig{
			Env:        "dev",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Indexer: IndexerConfig{
			Driver: DriverSQLite,
			DSN:    "loan-index.db",
		},
		RPC: RPCConfig{
			Address:          ":8545",
			ReadTimeout:      15,
			WriteTimeout:     15,
			HistoryLimit:     100,
			ExposeMetrics:    true,
			EventStreamQueue: 64,
			Auth: AuthConfig{
				ScopeClaim: "scope",
				ClockSkew:  120,
			},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 600,
				Burst:             50,
			},
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			SampleRatio: 1,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.Database = strings.ToLower(strings.TrimSpace(cfg.Database))
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	cfg.resolvePaths(filepath.Dir(path))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths anchors relative file locations to the config directory.
func (c *Config) resolvePaths(base string) {
	if base == "" || base == "." {
		return
	}
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.DataDir = anchor(c.DataDir)
	c.GenesisFile = anchor(c.GenesisFile)
	c.Logging.File = anchor(c.Logging.File)
	if c.Indexer.Driver == DriverSQLite && c.Indexer.DSN != ":memory:" && !strings.HasPrefix(c.Indexer.DSN, "file:") {
		c.Indexer.DSN = anchor(c.Indexer.DSN)
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
