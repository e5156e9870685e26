package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1337), cfg.ChainID)
	require.Equal(t, DatabaseLevelDB, cfg.Database)
	require.Equal(t, filepath.Join(dir, "node", "loan-data"), cfg.DataDir)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ChainID = 77
DataDir = "/var/lib/loan"
Database = "Memory"
GenesisFile = "genesis.json"

[logging]
Level = "debug"
File = "logs/node.log"

[indexer]
Driver = "postgres"
DSN = "host=db user=loan dbname=loan"

[rpc]
Address = "127.0.0.1:9000"
HistoryLimit = 10
AllowedOrigins = ["https://app.example"]

[rpc.auth]
Enabled = true
HMACSecret = "s3cret"
Scopes = ["loan:write"]

[rpc.rate_limit]
RequestsPerMinute = 60
Burst = 5

[telemetry]
Traces = true
SampleRatio = 0.25

[pauses]
Loan = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(77), cfg.ChainID)
	require.Equal(t, DatabaseMemory, cfg.Database)
	require.Equal(t, "/var/lib/loan", cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "genesis.json"), cfg.GenesisFile)
	require.Equal(t, filepath.Join(dir, "logs/node.log"), cfg.Logging.File)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, DriverPostgres, cfg.Indexer.Driver)
	require.Equal(t, "host=db user=loan dbname=loan", cfg.Indexer.DSN)
	require.Equal(t, "127.0.0.1:9000", cfg.RPC.Address)
	require.Equal(t, 10, cfg.RPC.HistoryLimit)
	require.Equal(t, 15, cfg.RPC.ReadTimeout)
	require.True(t, cfg.RPC.Auth.Enabled)
	require.Equal(t, []string{"loan:write"}, cfg.RPC.Auth.Scopes)
	require.Equal(t, 5, cfg.RPC.RateLimit.Burst)
	require.True(t, cfg.Telemetry.Traces)
	require.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
	require.True(t, cfg.Pauses.IsPaused("loan"))
	require.False(t, cfg.Pauses.IsPaused("token"))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ChainID = 1\nValidatorKey = \"abc\"\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "ValidatorKey")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero chain id", func(c *Config) { c.ChainID = 0 }, "ChainID"},
		{"unknown database", func(c *Config) { c.Database = "rocksdb" }, "unsupported backend"},
		{"bolt without dir", func(c *Config) { c.Database = DatabaseBolt; c.DataDir = "" }, "DataDir"},
		{"leveldb without dir", func(c *Config) { c.DataDir = " " }, "DataDir"},
		{"unknown driver", func(c *Config) { c.Indexer.Driver = "mysql" }, "unsupported driver"},
		{"driver without dsn", func(c *Config) { c.Indexer.DSN = "" }, "DSN required"},
		{"missing address", func(c *Config) { c.RPC.Address = "" }, "Address required"},
		{"zero history limit", func(c *Config) { c.RPC.HistoryLimit = 0 }, "HistoryLimit"},
		{"auth without secret", func(c *Config) { c.RPC.Auth.Enabled = true }, "HMACSecret"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "SampleRatio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorContains(t, Validate(cfg), tc.want)
		})
	}

	cfg := Default()
	cfg.Indexer.Driver = ""
	cfg.Indexer.DSN = ""
	require.NoError(t, Validate(cfg))
}
