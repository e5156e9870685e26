package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"loanchain/core/types"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the account's
	// native balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would overflow 256 bits.
	ErrBalanceOverflow = errors.New("state: balance overflow")
	errNegativeAmount  = errors.New("state: amount must not be negative")
)

// stateAccount is the persisted form of a native account. Balances are kept as
// 256-bit integers to match the EVM word size.
type stateAccount struct {
	Nonce   uint64
	Balance *uint256.Int
}

func accountKey(addr common.Address) []byte {
	buf := make([]byte, len(accountPrefix)+common.AddressLength)
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr.Bytes())
	return buf
}

func (m *Manager) loadStateAccount(addr common.Address) (*stateAccount, error) {
	acc := new(stateAccount)
	ok, err := m.KVGet(accountKey(addr), acc)
	if err != nil {
		return nil, fmt.Errorf("state: load account %s: %w", addr.Hex(), err)
	}
	if !ok || acc.Balance == nil {
		if !ok {
			acc = &stateAccount{}
		}
		acc.Balance = new(uint256.Int)
	}
	return acc, nil
}

func (m *Manager) writeStateAccount(addr common.Address, acc *stateAccount) error {
	return m.KVPut(accountKey(addr), acc)
}

// GetAccount returns the native account stored under addr. Missing accounts
// are returned zero-valued.
func (m *Manager) GetAccount(addr common.Address) (*types.Account, error) {
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return nil, err
	}
	return &types.Account{Nonce: acc.Nonce, Balance: acc.Balance.ToBig()}, nil
}

// Balance returns the native balance of addr in wei.
func (m *Manager) Balance(addr common.Address) (*big.Int, error) {
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance.ToBig(), nil
}

// SetBalance overwrites the native balance of addr.
func (m *Manager) SetBalance(addr common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = value
	return m.writeStateAccount(addr, acc)
}

// AddBalance credits amount to addr.
func (m *Manager) AddBalance(addr common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(acc.Balance, value)
	if overflow {
		return ErrBalanceOverflow
	}
	acc.Balance = sum
	return m.writeStateAccount(addr, acc)
}

// SubBalance debits amount from addr.
func (m *Manager) SubBalance(addr common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance.Lt(value) {
		return ErrInsufficientBalance
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, value)
	return m.writeStateAccount(addr, acc)
}

// Transfer moves amount of native currency from one account to another.
func (m *Manager) Transfer(from, to common.Address, amount *big.Int) error {
	if err := m.SubBalance(from, amount); err != nil {
		return err
	}
	return m.AddBalance(to, amount)
}

// Nonce returns the transaction count of addr.
func (m *Manager) Nonce(addr common.Address) (uint64, error) {
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// SetNonce overwrites the transaction count of addr.
func (m *Manager) SetNonce(addr common.Address, nonce uint64) error {
	acc, err := m.loadStateAccount(addr)
	if err != nil {
		return err
	}
	acc.Nonce = nonce
	return m.writeStateAccount(addr, acc)
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
		return nil, ErrBalanceOverflow
	}
	return value, nil
}
