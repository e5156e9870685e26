package loan

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
		if ctx.ReadOnly {
			return nil, nil
		}
		return nil, c.engine.Receive(ctx.Caller, ctx.Value)
	}
	method, args, err := vm.ResolveMethod(&ABI, ctx, input)
	if err != nil {
		return nil, err
	}
	e := c.engine
	var out []interface{}
	switch method.RawName {
	case "owner":
		owner, err := e.Owner()
		if err != nil {
			return nil, err
		}
		out = []interface{}{owner}
	case "interestRate":
		rate, err := e.InterestRate()
		if err != nil {
			return nil, err
		}
		out = []interface{}{rate}
	case "collateralRatioBps":
		bps, err := e.CollateralRatioBps()
		if err != nil {
			return nil, err
		}
		out = []interface{}{new(big.Int).SetUint64(bps)}
	case "totalDebt":
		debt, err := e.TotalDebt()
		if err != nil {
			return nil, err
		}
		out = []interface{}{debt}
	case "tokenPrice":
		entry, err := e.TokenPrice(args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		out = []interface{}{entry.Name, entry.Price}
	case "loans":
		record, err := e.LoanOf(args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		out = []interface{}{record.LoanAmount, record.CollateralAmount, record.CollateralToken}
	case "lockedCollateral":
		locked, err := e.LockedCollateral(args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		out = []interface{}{locked}
	case "setInterestRate":
		err = e.SetInterestRate(ctx.Caller, args[0].(*big.Int))
	case "setTokenPrice":
		if len(args) == 3 {
			err = e.SetTokenPrice(ctx.Caller, args[0].(common.Address), args[1].([32]byte), args[2].(*big.Int))
		} else {
			err = e.SetTokenPrice(ctx.Caller, args[0].(common.Address), [32]byte{}, args[1].(*big.Int))
		}
	case "setCollateralRatio":
		bps := args[0].(*big.Int)
		if !bps.IsUint64() {
			return nil, ErrMathOverflow
		}
		err = e.SetCollateralRatio(ctx.Caller, bps.Uint64())
	case "createLoan":
		err = e.CreateLoan(ctx.Caller, args[0].(*big.Int), args[1].(*big.Int), args[2].(common.Address))
	case "payLoan":
		_, err = e.PayLoan(ctx.Caller, ctx.Value)
	case "withdraw":
		err = e.Withdraw(ctx.Caller, args[0].(*big.Int))
	case "withdrawTokens":
		err = e.WithdrawTokens(ctx.Caller, args[0].(common.Address), args[1].(*big.Int))
	default:
		return nil, vm.ErrUnknownMethod
	}
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}
