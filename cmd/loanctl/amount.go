package main

import (
	"fmt"
	"math/big"
	"strings"
)

var amountUnits = map[string]int{
	"":      0,
	"wei":   0,
	"gwei":  9,
	"ether": 18,
	"eth":   18,
}

// ParseAmount converts "1.5 ether", "20 gwei" or a bare integer into wei.
// Fractions finer than one wei are rejected.
func ParseAmount(value string) (*big.Int, error) {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) == 0 || len(fields) > 2 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	unit := ""
	if len(fields) == 2 {
		unit = strings.ToLower(fields[1])
	}
	exp, ok := amountUnits[unit]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", fields[1])
	}
	number := strings.ReplaceAll(fields[0], "_", "")
	rat, ok := new(big.Rat).SetString(number)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	rat.Mul(rat, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)))
	if !rat.IsInt() {
		return nil, fmt.Errorf("amount %q is finer than 1 wei", value)
	}
	return new(big.Int).Set(rat.Num()), nil
}
