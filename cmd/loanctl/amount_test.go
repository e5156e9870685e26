package main

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"12345", "12345"},
		{"1 ether", "1000000000000000000"},
		{"1.5 ETH", "1500000000000000000"},
		{"20 gwei", "20000000000"},
		{"7 wei", "7"},
		{"1_000 ether", "1000000000000000000000"},
		{"0.000000000000000001 ether", "1"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		want, _ := new(big.Int).SetString(tc.want, 10)
		require.Equal(t, 0, want.Cmp(got), "%s: got %s", tc.in, got)
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1 furlong", "0.5", "0.1 gwei 3", "0.0000000001 gwei"} {
		_, err := ParseAmount(in)
		require.Error(t, err, in)
	}
}
