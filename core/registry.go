package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"loanchain/core/vm"
	"loanchain/native/loan"
	"loanchain/native/token"
)

var contractsKey = []byte("core/contracts")

// ContractInfo is the persisted registry entry of a deployed contract.
type ContractInfo struct {
	Address common.Address `json:"address"`
	Kind    string         `json:"kind"`
}

// instantiate builds the runtime object for a registry entry and wires it to
// the chain's state, recorder and pause view.
func (c *Chain) instantiate(info ContractInfo) (vm.Contract, error) {
	switch info.Kind {
	case loan.Kind:
		engine := loan.NewEngine(info.Address)
		engine.SetState(c.state)
		engine.SetTokens(tokenResolver{chain: c})
		engine.SetEmitter(c.recorder)
		engine.SetPauses(c.pauses)
		return loan.NewContract(engine), nil
	case token.Kind:
		engine := token.NewEngine(info.Address)
		engine.SetState(c.state)
		engine.SetEmitter(c.recorder)
		return token.NewContract(engine), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContractKind, info.Kind)
	}
}

func (c *Chain) loadRegistry() error {
	var infos []ContractInfo
	if err := c.state.KVGetList(contractsKey, &infos); err != nil {
		return fmt.Errorf("core: load contract registry: %w", err)
	}
	for _, info := range infos {
		contract, err := c.instantiate(info)
		if err != nil {
			return err
		}
		c.contracts[info.Address] = contract
		c.infos = append(c.infos, info)
	}
	return nil
}

// register must be called with the write lock held and inside an uncommitted
// state change.
func (c *Chain) register(deployer common.Address, kind string) (common.Address, vm.Contract, error) {
	nonce, err := c.state.Nonce(deployer)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr := crypto.CreateAddress(deployer, nonce)
	if _, exists := c.contracts[addr]; exists {
		return common.Address{}, nil, fmt.Errorf("core: contract already deployed at %s", addr.Hex())
	}
	if err := c.state.SetNonce(deployer, nonce+1); err != nil {
		return common.Address{}, nil, err
	}
	info := ContractInfo{Address: addr, Kind: kind}
	contract, err := c.instantiate(info)
	if err != nil {
		return common.Address{}, nil, err
	}
	infos := append(append([]ContractInfo(nil), c.infos...), info)
	if err := c.state.KVPut(contractsKey, infos); err != nil {
		return common.Address{}, nil, err
	}
	return addr, contract, nil
}

// DeployLoan deploys a loan contract owned by deployer.
func (c *Chain) DeployLoan(deployer common.Address, interestRate *big.Int) (common.Address, error) {
	return c.deploy(deployer, loan.Kind, func(contract vm.Contract) error {
		return contract.(*loan.Contract).Engine().Initialize(deployer, interestRate)
	})
}

// DeployToken deploys an ERC-20 token and mints supply to holder.
func (c *Chain) DeployToken(deployer common.Address, name, symbol string, decimals uint8, holder common.Address, supply *big.Int) (common.Address, error) {
	return c.deploy(deployer, token.Kind, func(contract vm.Contract) error {
		return contract.(*token.Contract).Engine().Initialize(name, symbol, decimals, holder, supply)
	})
}

func (c *Chain) deploy(deployer common.Address, kind string, construct func(vm.Contract) error) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recorder.reset(true)
	addr, contract, err := c.register(deployer, kind)
	if err == nil {
		err = construct(contract)
	}
	if err == nil {
		err = c.state.Commit()
	}
	if err != nil {
		c.state.Discard()
		return common.Address{}, err
	}
	c.contracts[addr] = contract
	c.infos = append(c.infos, ContractInfo{Address: addr, Kind: kind})
	c.logger.Info("contract deployed",
		"kind", kind,
		"address", addr.Hex(),
		"deployer", deployer.Hex())
	return addr, nil
}

// Contracts lists every deployed contract in deployment order.
func (c *Chain) Contracts() []ContractInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ContractInfo(nil), c.infos...)
}

// LoanAddress returns the first deployed loan contract.
func (c *Chain) LoanAddress() (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.infos {
		if info.Kind == loan.Kind {
			return info.Address, nil
		}
	}
	return common.Address{}, ErrNoLoanContract
}

// ViewLoan runs fn against the engine of the loan contract at addr while the
// read lock is held. The engine reads live state, so it must not escape fn
// and fn must not mutate through it.
func (c *Chain) ViewLoan(addr common.Address, fn func(*loan.Engine) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[addr].(*loan.Contract)
	if !ok {
		return fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	return fn(contract.Engine())
}

func (c *Chain) tokenEngineLocked(addr common.Address) (*token.Engine, error) {
	contract, ok := c.contracts[addr].(*token.Contract)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	return contract.Engine(), nil
}

// tokenResolver lets loan engines reach token contracts hosted by the same
// chain. It is only used while the chain lock is held.
type tokenResolver struct {
	chain *Chain
}

func (r tokenResolver) CollateralToken(addr common.Address) (loan.CollateralToken, error) {
	engine, err := r.chain.tokenEngineLocked(addr)
	if err != nil {
		return nil, loan.ErrCollateralTokenNoContract
	}
	return engine, nil
}
