package config

import (
	"errors"
	"fmt"
	"strings"
)

var errMissingSecret = errors.New("rpc.auth: HMACSecret required when auth is enabled")

// Validate rejects configurations the node cannot start with.
func Validate(c *Config) error {
	if c.ChainID == 0 {
		return fmt.Errorf("ChainID must be positive")
	}
	switch c.Database {
	case DatabaseLevelDB, DatabaseBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("DataDir required for the %s database", c.Database)
		}
	case DatabaseMemory:
	default:
		return fmt.Errorf("Database: unsupported backend %q", c.Database)
	}
	switch c.Indexer.Driver {
	case "":
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required for driver %s", c.Indexer.Driver)
		}
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		return fmt.Errorf("rpc: Address required")
	}
	if c.RPC.ReadTimeout < 0 || c.RPC.WriteTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if c.RPC.HistoryLimit <= 0 {
		return fmt.Errorf("rpc: HistoryLimit must be positive")
	}
	if c.RPC.RateLimit.RequestsPerMinute < 0 || c.RPC.RateLimit.Burst < 0 {
		return fmt.Errorf("rpc.rate_limit: values must not be negative")
	}
	if c.RPC.Auth.Enabled && strings.TrimSpace(c.RPC.Auth.HMACSecret) == "" {
		return errMissingSecret
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	return nil
}
