package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/core/types"
	"loanchain/crypto"
	"loanchain/native/loan"
	"loanchain/native/token"
)

// call is a contract invocation ready to be signed.
type call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// submitter is the chain a signed transaction is sent to: a remote node over
// JSON-RPC or an in-memory chain during simulations.
type submitter interface {
	ChainID(ctx context.Context) (uint64, error)
	Nonce(ctx context.Context, addr common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

func fundCall(loanAddr common.Address, amount *big.Int) call {
	return call{To: loanAddr, Value: amount}
}

func setRateCall(loanAddr common.Address, rate *big.Int) (call, error) {
	data, err := loan.ABI.Pack("setInterestRate", rate)
	return call{To: loanAddr, Data: data}, err
}

func setCollateralRatioCall(loanAddr common.Address, bps *big.Int) (call, error) {
	data, err := loan.ABI.Pack("setCollateralRatio", bps)
	return call{To: loanAddr, Data: data}, err
}

func setPriceCall(loanAddr, tokenAddr common.Address, name string, price *big.Int) (call, error) {
	data, err := loan.ABI.Pack("setTokenPrice", tokenAddr, loan.TokenName(name), price)
	return call{To: loanAddr, Data: data}, err
}

func createLoanCall(loanAddr, collateralToken common.Address, amount, collateral *big.Int) (call, error) {
	data, err := loan.ABI.Pack("createLoan", amount, collateral, collateralToken)
	return call{To: loanAddr, Data: data}, err
}

func payLoanCall(loanAddr common.Address, value *big.Int) (call, error) {
	data, err := loan.ABI.Pack("payLoan")
	return call{To: loanAddr, Value: value, Data: data}, err
}

func withdrawCall(loanAddr common.Address, amount *big.Int) (call, error) {
	data, err := loan.ABI.Pack("withdraw", amount)
	return call{To: loanAddr, Data: data}, err
}

func withdrawTokensCall(loanAddr, tokenAddr common.Address, amount *big.Int) (call, error) {
	data, err := loan.ABI.Pack("withdrawTokens", tokenAddr, amount)
	return call{To: loanAddr, Data: data}, err
}

func approveCall(tokenAddr, spender common.Address, amount *big.Int) (call, error) {
	data, err := token.ABI.Pack("approve", spender, amount)
	return call{To: tokenAddr, Data: data}, err
}

func transferCall(tokenAddr, to common.Address, amount *big.Int) (call, error) {
	data, err := token.ABI.Pack("transfer", to, amount)
	return call{To: tokenAddr, Data: data}, err
}

// send signs c with key at the sender's next nonce and submits it.
func send(ctx context.Context, sub submitter, key *crypto.PrivateKey, c call) (*types.Receipt, error) {
	chainID, err := sub.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := sub.Nonce(ctx, key.Address())
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	value := c.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := &types.Transaction{
		ChainID: chainID,
		Nonce:   nonce,
		To:      c.To,
		Value:   value,
		Data:    c.Data,
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sub.SendTransaction(ctx, tx)
}
