package loan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"loanchain/core/events"
	"loanchain/core/vm"
)

type mockEngineState struct {
	kv       map[string][]byte
	balances map[common.Address]*big.Int
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		kv:       make(map[string][]byte),
		balances: make(map[common.Address]*big.Int),
	}
}

func (m *mockEngineState) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m *mockEngineState) KVPut(key []byte, value interface{}) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = data
	return nil
}

func (m *mockEngineState) KVDelete(key []byte) error {
	delete(m.kv, string(key))
	return nil
}

func (m *mockEngineState) Balance(addr common.Address) (*big.Int, error) {
	if bal, ok := m.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockEngineState) credit(addr common.Address, amount *big.Int) {
	bal, _ := m.Balance(addr)
	m.balances[addr] = bal.Add(bal, amount)
}

func (m *mockEngineState) Transfer(from, to common.Address, amount *big.Int) error {
	bal, _ := m.Balance(from)
	if bal.Cmp(amount) < 0 {
		return vm.NewRevert("insufficient native balance")
	}
	m.balances[from] = bal.Sub(bal, amount)
	m.credit(to, amount)
	return nil
}

// mockToken is a minimal ERC-20 ledger.
type mockToken struct {
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
	// onTransfer runs before every transfer and may call back into the
	// engine.
	onTransfer func() error
}

func newMockToken() *mockToken {
	return &mockToken{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
	}
}

func (t *mockToken) BalanceOf(holder common.Address) (*big.Int, error) {
	if bal, ok := t.balances[holder]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (t *mockToken) mint(to common.Address, amount *big.Int) {
	bal, _ := t.BalanceOf(to)
	t.balances[to] = bal.Add(bal, amount)
}

func (t *mockToken) approve(owner, spender common.Address, amount *big.Int) {
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(amount)
}

func (t *mockToken) Transfer(from, to common.Address, amount *big.Int) error {
	if t.onTransfer != nil {
		if err := t.onTransfer(); err != nil {
			return err
		}
	}
	bal, _ := t.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return vm.NewRevert("ERC20: transfer amount exceeds balance")
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.mint(to, amount)
	return nil
}

func (t *mockToken) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	key := [2]common.Address{from, spender}
	allowed := t.allowances[key]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return vm.NewRevert("ERC20: transfer amount exceeds allowance")
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[key] = new(big.Int).Sub(allowed, amount)
	return nil
}

type mockResolver map[common.Address]*mockToken

func (r mockResolver) CollateralToken(addr common.Address) (CollateralToken, error) {
	tok, ok := r[addr]
	if !ok {
		return nil, ErrCollateralTokenNoContract
	}
	return tok, nil
}

type recordingEmitter struct {
	events []events.Event
	logs   []*gethtypes.Log
}

func (r *recordingEmitter) Emit(ev events.Event)       { r.events = append(r.events, ev) }
func (r *recordingEmitter) EmitLog(log *gethtypes.Log) { r.logs = append(r.logs, log) }

func (r *recordingEmitter) last() events.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	return s.modules[module]
}
