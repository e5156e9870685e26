package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/core/vm"
)

// Contract exposes an Engine through ABI encoded calldata.
type Contract struct {
	engine *Engine
}

// NewContract wraps engine as a runtime contract.
func NewContract(engine *Engine) *Contract {
	return &Contract{engine: engine}
}

// Engine returns the wrapped engine.
func (c *Contract) Engine() *Engine { return c.engine }

// Run implements vm.Contract.
func (c *Contract) Run(ctx *vm.CallContext, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, vm.ErrNoReceive
	}
	method, args, err := vm.ResolveMethod(&ABI, ctx, input)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	switch method.Name {
	case "name", "symbol", "decimals", "totalSupply":
		meta, err := c.engine.Metadata()
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "name":
			out = []interface{}{meta.Name}
		case "symbol":
			out = []interface{}{meta.Symbol}
		case "decimals":
			out = []interface{}{meta.Decimals}
		default:
			out = []interface{}{meta.TotalSupply}
		}
	case "balanceOf":
		bal, err := c.engine.BalanceOf(args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		out = []interface{}{bal}
	case "allowance":
		allowed, err := c.engine.Allowance(args[0].(common.Address), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		out = []interface{}{allowed}
	case "approve":
		if err := c.engine.Approve(ctx.Caller, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		out = []interface{}{true}
	case "transfer":
		if err := c.engine.Transfer(ctx.Caller, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		out = []interface{}{true}
	case "transferFrom":
		if err := c.engine.TransferFrom(ctx.Caller, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)); err != nil {
			return nil, err
		}
		out = []interface{}{true}
	case "mint":
		if err := c.engine.Mint(args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
	default:
		return nil, vm.ErrUnknownMethod
	}
	return method.Outputs.Pack(out...)
}
