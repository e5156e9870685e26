package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"loanchain/core/events"
	"loanchain/core/vm"
)

// Kind identifies token contracts in the contract registry.
const Kind = "erc20"

var (
	ErrTransferExceedsBalance   = vm.NewRevert("ERC20: transfer amount exceeds balance")
	ErrTransferExceedsAllowance = vm.NewRevert("ERC20: transfer amount exceeds allowance")
	ErrTransferToZero           = vm.NewRevert("ERC20: transfer to the zero address")
	ErrTransferFromZero         = vm.NewRevert("ERC20: transfer from the zero address")
	ErrApproveToZero            = vm.NewRevert("ERC20: approve to the zero address")
	ErrMintToZero               = vm.NewRevert("ERC20: mint to the zero address")
	ErrSupplyOverflow           = vm.NewRevert("ERC20: total supply overflow")

	errNilState       = errors.New("token engine: state not configured")
	errNotInitialized = errors.New("token engine: token not initialised")
	errNegativeAmount = errors.New("token engine: amount must not be negative")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Metadata describes a fungible token.
type Metadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Engine implements ERC-20 bookkeeping for a single token contract address.
type Engine struct {
	addr    common.Address
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a token engine bound to the contract address.
func NewEngine(addr common.Address) *Engine {
	return &Engine{addr: addr, emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Address returns the contract address the engine serves.
func (e *Engine) Address() common.Address { return e.addr }

func (e *Engine) metaKey() []byte {
	return append([]byte("token/meta/"), e.addr.Bytes()...)
}

func (e *Engine) balanceKey(holder common.Address) []byte {
	key := append([]byte("token/balance/"), e.addr.Bytes()...)
	return append(key, holder.Bytes()...)
}

func (e *Engine) allowanceKey(owner, spender common.Address) []byte {
	key := append([]byte("token/allowance/"), e.addr.Bytes()...)
	key = append(key, owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

// Initialize stores the token metadata and mints supply to holder.
func (e *Engine) Initialize(name, symbol string, decimals uint8, holder common.Address, supply *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	meta := &Metadata{Name: name, Symbol: symbol, Decimals: decimals, TotalSupply: big.NewInt(0)}
	if err := e.state.KVPut(e.metaKey(), meta); err != nil {
		return err
	}
	if supply != nil && supply.Sign() > 0 {
		return e.Mint(holder, supply)
	}
	return nil
}

// Metadata returns the stored token description.
func (e *Engine) Metadata() (*Metadata, error) {
	if e.state == nil {
		return nil, errNilState
	}
	meta := new(Metadata)
	ok, err := e.state.KVGet(e.metaKey(), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return meta, nil
}

func (e *Engine) readAmount(key []byte) (*uint256.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var stored big.Int
	ok, err := e.state.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(&stored)
	if overflow {
		return nil, fmt.Errorf("token engine: stored amount overflows")
	}
	return value, nil
}

func (e *Engine) writeAmount(key []byte, value *uint256.Int) error {
	if value.IsZero() {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, value.ToBig())
}

// BalanceOf returns the token balance of holder.
func (e *Engine) BalanceOf(holder common.Address) (*big.Int, error) {
	value, err := e.readAmount(e.balanceKey(holder))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Allowance returns how much spender may move on behalf of owner.
func (e *Engine) Allowance(owner, spender common.Address) (*big.Int, error) {
	value, err := e.readAmount(e.allowanceKey(owner, spender))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Approve sets the allowance of spender over owner's tokens.
func (e *Engine) Approve(owner, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return ErrApproveToZero
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if err := e.writeAmount(e.allowanceKey(owner, spender), value); err != nil {
		return err
	}
	e.emit(events.TokenApproval{Token: e.addr, Owner: owner, Spender: spender, Value: value.ToBig()},
		"Approval", owner, spender, value.ToBig())
	return nil
}

// Transfer moves amount from one holder to another.
func (e *Engine) Transfer(from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) {
		return ErrTransferFromZero
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	fromBal, err := e.readAmount(e.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Lt(value) {
		return ErrTransferExceedsBalance
	}
	if err := e.writeAmount(e.balanceKey(from), new(uint256.Int).Sub(fromBal, value)); err != nil {
		return err
	}
	toBal, err := e.readAmount(e.balanceKey(to))
	if err != nil {
		return err
	}
	// Total supply bounds every balance, so the credit cannot overflow.
	if err := e.writeAmount(e.balanceKey(to), new(uint256.Int).Add(toBal, value)); err != nil {
		return err
	}
	e.emit(events.TokenTransfer{Token: e.addr, From: from, To: to, Value: value.ToBig()},
		"Transfer", from, to, value.ToBig())
	return nil
}

// TransferFrom moves amount from owner to recipient using the allowance
// granted to spender.
func (e *Engine) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	allowed, err := e.readAmount(e.allowanceKey(from, spender))
	if err != nil {
		return err
	}
	if allowed.Lt(value) {
		return ErrTransferExceedsAllowance
	}
	if err := e.Transfer(from, to, amount); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(allowed, value)
	if err := e.writeAmount(e.allowanceKey(from, spender), remaining); err != nil {
		return err
	}
	e.emit(events.TokenApproval{Token: e.addr, Owner: from, Spender: spender, Value: remaining.ToBig()},
		"Approval", from, spender, remaining.ToBig())
	return nil
}

// Mint creates amount new tokens for account.
func (e *Engine) Mint(account common.Address, amount *big.Int) error {
	if account == (common.Address{}) {
		return ErrMintToZero
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	meta, err := e.Metadata()
	if err != nil {
		return err
	}
	supply, overflow := uint256.FromBig(meta.TotalSupply)
	if overflow {
		return ErrSupplyOverflow
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, value)
	if overflow {
		return ErrSupplyOverflow
	}
	meta.TotalSupply = newSupply.ToBig()
	if err := e.state.KVPut(e.metaKey(), meta); err != nil {
		return err
	}
	bal, err := e.readAmount(e.balanceKey(account))
	if err != nil {
		return err
	}
	if err := e.writeAmount(e.balanceKey(account), new(uint256.Int).Add(bal, value)); err != nil {
		return err
	}
	e.emit(events.TokenTransfer{Token: e.addr, To: account, Value: value.ToBig()},
		"Transfer", common.Address{}, account, value.ToBig())
	return nil
}

func (e *Engine) emit(ev events.Event, name string, args ...interface{}) {
	e.emitter.Emit(ev)
	logs, ok := e.emitter.(events.LogEmitter)
	if !ok {
		return
	}
	if log, err := vm.EncodeLog(&ABI, e.addr, name, args...); err == nil {
		logs.EmitLog(log)
	}
}

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, errNegativeAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	return value, nil
}
