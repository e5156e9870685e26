package config

// LoggingConfig selects the structured log sink.
type LoggingConfig struct {
	Env        string `toml:"Env"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// IndexerConfig controls the loan history database. An empty Driver disables
// the indexer.
type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// AuthConfig gates state-changing RPC methods behind HS256 bearer tokens.
type AuthConfig struct {
	Enabled    bool     `toml:"Enabled"`
	HMACSecret string   `toml:"HMACSecret"`
	Issuer     string   `toml:"Issuer"`
	Audience   string   `toml:"Audience"`
	ScopeClaim string   `toml:"ScopeClaim"`
	Scopes     []string `toml:"Scopes"`
	ClockSkew  int      `toml:"ClockSkewSeconds"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// RPCConfig configures the JSON-RPC listener.
type RPCConfig struct {
	Address          string          `toml:"Address"`
	ReadTimeout      int             `toml:"ReadTimeoutSeconds"`
	WriteTimeout     int             `toml:"WriteTimeoutSeconds"`
	AllowedOrigins   []string        `toml:"AllowedOrigins"`
	HistoryLimit     int             `toml:"HistoryLimit"`
	Auth             AuthConfig      `toml:"auth"`
	RateLimit        RateLimitConfig `toml:"rate_limit"`
	ExposeMetrics    bool            `toml:"ExposeMetrics"`
	EventStreamQueue int             `toml:"EventStreamQueue"`
}

// TelemetryConfig mirrors the OpenTelemetry exporter knobs.
type TelemetryConfig struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Metrics     bool              `toml:"Metrics"`
	Traces      bool              `toml:"Traces"`
	SampleRatio float64           `toml:"SampleRatio"`
}

// Pauses lists the contract modules halted by the operator. A paused loan
// module rejects createLoan and payLoan.
type Pauses struct {
	Loan bool `toml:"Loan"`
}

// IsPaused reports whether module is halted.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "loan":
		return p.Loan
	default:
		return false
	}
}
