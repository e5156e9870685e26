package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "loand", Env: "test", Level: "debug"})
	logger.Debug("tx applied", slog.String("tx", "0x01"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "loand", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "tx applied", line["message"])
	require.Contains(t, line, "timestamp")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "loand", Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "0xabc", MaskField("tx", "0xabc").Value.String())
	require.Equal(t, "", MaskField("secret", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "reason")
}

func TestMaskCredential(t *testing.T) {
	require.Equal(t, "Bearer "+RedactedValue, MaskCredential("authorization", "Bearer eyJhbGciOi").Value.String())
	require.Equal(t, RedactedValue, MaskCredential("authorization", "opaque").Value.String())
	require.Equal(t, "", MaskCredential("authorization", " ").Value.String())
	require.True(t, IsAllowlisted(" Borrower "))
}
