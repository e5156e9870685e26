package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/core"
	"loanchain/native/loan"
)

// Result lists the contracts created by Apply.
type Result struct {
	Loan   common.Address
	Tokens map[string]common.Address
}

// Apply writes the genesis state into a fresh chain. Tokens are deployed by
// the loan owner in declaration order, followed by the loan contract.
func Apply(chain *core.Chain, spec *Spec) (*Result, error) {
	if chain == nil || spec == nil {
		return nil, fmt.Errorf("genesis: chain and spec must not be nil")
	}
	if chain.Height() > 0 || len(chain.Contracts()) > 0 {
		return nil, core.ErrGenesisAlreadyLoaded
	}
	if spec.ChainID != chain.ChainID() {
		return nil, fmt.Errorf("genesis: chain id %d does not match runtime chain id %d", spec.ChainID, chain.ChainID())
	}
	if len(spec.alloc) > 0 {
		if err := chain.Allocate(spec.alloc); err != nil {
			return nil, err
		}
	}
	result := &Result{Tokens: make(map[string]common.Address, len(spec.Tokens))}
	if spec.Loan == nil {
		if len(spec.Tokens) > 0 {
			return nil, fmt.Errorf("genesis: tokens require a loan section for their deployer")
		}
		return result, nil
	}
	deployer := spec.Loan.owner
	for _, tok := range spec.Tokens {
		addr, err := chain.DeployToken(deployer, tok.Name, tok.Symbol, tok.Decimals, tok.holder, tok.supply)
		if err != nil {
			return nil, fmt.Errorf("genesis: deploy token %s: %w", tok.Symbol, err)
		}
		result.Tokens[strings.ToUpper(tok.Symbol)] = addr
	}
	loanAddr, err := chain.DeployLoan(deployer, spec.Loan.rate)
	if err != nil {
		return nil, fmt.Errorf("genesis: deploy loan: %w", err)
	}
	result.Loan = loanAddr

	if bps := spec.Loan.CollateralRatioBps; bps != 0 && bps != loan.DefaultCollateralRatioBps {
		data, err := loan.ABI.Pack("setCollateralRatio", new(big.Int).SetUint64(bps))
		if err != nil {
			return nil, err
		}
		if _, err := chain.SystemCall(deployer, loanAddr, data); err != nil {
			return nil, fmt.Errorf("genesis: collateral ratio: %w", err)
		}
	}
	prices := append([]PriceSpec(nil), spec.Loan.Prices...)
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Token < prices[j].Token })
	for _, price := range prices {
		tokenAddr, ok := result.Tokens[strings.ToUpper(strings.TrimSpace(price.Token))]
		if !ok {
			tokenAddr = common.HexToAddress(price.Token)
		}
		name := price.Name
		if name == "" && !common.IsHexAddress(price.Token) {
			name = strings.ToUpper(strings.TrimSpace(price.Token))
		}
		data, err := loan.ABI.Pack("setTokenPrice", tokenAddr, loan.TokenName(name), price.price)
		if err != nil {
			return nil, err
		}
		if _, err := chain.SystemCall(deployer, loanAddr, data); err != nil {
			return nil, fmt.Errorf("genesis: price %s: %w", price.Token, err)
		}
	}
	if spec.Loan.funding.Sign() > 0 {
		if err := chain.Allocate(map[common.Address]*big.Int{loanAddr: spec.Loan.funding}); err != nil {
			return nil, fmt.Errorf("genesis: fund loan: %w", err)
		}
	}
	return result, nil
}
