package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// Keys that carry public chain data or request metadata and may be logged
// verbatim. Everything else passed through MaskField is redacted.
var redactionAllowlist = map[string]struct{}{
	"service":     {},
	"env":         {},
	"message":     {},
	"severity":    {},
	"timestamp":   {},
	"error":       {},
	"reason":      {},
	"component":   {},
	"method":      {},
	"path":        {},
	"status":      {},
	"request_id":  {},
	"tx":          {},
	"from":        {},
	"to":          {},
	"block":       {},
	"borrower":    {},
	"loan":        {},
	"token":       {},
	"chain_id":    {},
	"duration_ms": {},
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the allowlisted keys, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns an attribute that redacts value unless key is
// allowlisted. Empty values pass through so absence stays visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskCredential redacts an Authorization style value but keeps its scheme,
// so "Bearer eyJ..." logs as "Bearer [REDACTED]".
func MaskCredential(key, value string) slog.Attr {
	value = strings.TrimSpace(value)
	if value == "" {
		return slog.String(key, "")
	}
	if scheme, _, ok := strings.Cut(value, " "); ok {
		return slog.String(key, scheme+" "+RedactedValue)
	}
	return slog.String(key, RedactedValue)
}
