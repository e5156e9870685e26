package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret , broken, =nokey,tenant=loan ")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "loan"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "loand"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer("loanchain/test"))
}

func TestMergeHeaders(t *testing.T) {
	require.Nil(t, mergeHeaders(nil, nil))
	merged := mergeHeaders(map[string]string{"a": "env", "b": "env"}, map[string]string{"b": "cfg"})
	require.Equal(t, map[string]string{"a": "env", "b": "cfg"}, merged)
}

func TestBuildResourceCarriesChainID(t *testing.T) {
	res, err := buildResource(Config{ServiceName: "loand", Environment: "test", ChainID: 1337})
	require.NoError(t, err)
	value, ok := res.Set().Value("loan.chain_id")
	require.True(t, ok)
	require.Equal(t, "1337", value.AsString())
	require.NotNil(t, Meter("loanchain/test"))
}

func TestSampler(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
