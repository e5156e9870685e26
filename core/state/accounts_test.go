package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"loanchain/storage"
)

func TestBalanceMutations(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")

	if bal, err := mgr.Balance(alice); err != nil || bal.Sign() != 0 {
		t.Fatalf("expected zero balance for unknown account, got %v err=%v", bal, err)
	}
	if err := mgr.AddBalance(alice, big.NewInt(100)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mgr.Transfer(alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := mgr.Transfer(bob, alice, big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	aliceBal, _ := mgr.Balance(alice)
	bobBal, _ := mgr.Balance(bob)
	if aliceBal.Cmp(big.NewInt(70)) != 0 || bobBal.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
	if err := mgr.SubBalance(alice, big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestBalanceOverflow(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := common.HexToAddress("0x03")
	max := new(uint256.Int).SetAllOne().ToBig()
	if err := mgr.SetBalance(addr, max); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.AddBalance(addr, big.NewInt(1)); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	tooBig := new(big.Int).Add(max, big.NewInt(1))
	if err := mgr.SetBalance(addr, tooBig); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow for 257-bit value, got %v", err)
	}
}

func TestNonceAndAccountView(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := common.HexToAddress("0x04")
	if err := mgr.SetNonce(addr, 3); err != nil {
		t.Fatalf("set nonce: %v", err)
	}
	if err := mgr.AddBalance(addr, big.NewInt(5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	acc, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Nonce != 3 || acc.Balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected account %+v", acc)
	}
}
