// Package vm defines the boundary between the chain runtime and the native
// contracts it hosts.
package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallContext describes the environment of a single contract invocation.
type CallContext struct {
	// Caller is the immediate sender of the call (msg.sender).
	Caller common.Address
	// Address is the address of the contract being executed.
	Address common.Address
	// Value is the native currency attached to the call. It has already been
	// credited to Address by the runtime when Run is invoked.
	Value *big.Int
	// ReadOnly marks static calls; contracts must not mutate state.
	ReadOnly    bool
	BlockNumber uint64
}

// Contract is a native contract reachable through ABI encoded calldata.
type Contract interface {
	// Run executes input against the contract and returns the ABI encoded
	// return data. Returning an error reverts every state change made by
	// the enclosing transaction.
	Run(ctx *CallContext, input []byte) ([]byte, error)
}
