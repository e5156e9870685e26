package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"loanchain/core/events"
)

type mockState struct {
	kv map[string][]byte
}

func newMockState() *mockState {
	return &mockState{kv: make(map[string][]byte)}
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = data
	return nil
}

func (m *mockState) KVDelete(key []byte) error {
	delete(m.kv, string(key))
	return nil
}

type recordingEmitter struct {
	events []events.Event
	logs   []*gethtypes.Log
}

func (r *recordingEmitter) Emit(ev events.Event)       { r.events = append(r.events, ev) }
func (r *recordingEmitter) EmitLog(log *gethtypes.Log) { r.logs = append(r.logs, log) }

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestEngine(t *testing.T, supply int64) (*Engine, *recordingEmitter) {
	t.Helper()
	engine := NewEngine(tokenAddr)
	engine.SetState(newMockState())
	rec := &recordingEmitter{}
	engine.SetEmitter(rec)
	require.NoError(t, engine.Initialize("Dai Stablecoin", "DAI", 18, alice, big.NewInt(supply)))
	return engine, rec
}

func TestInitializeMintsSupply(t *testing.T) {
	engine, rec := newTestEngine(t, 1000)
	meta, err := engine.Metadata()
	require.NoError(t, err)
	require.Equal(t, "DAI", meta.Symbol)
	require.Equal(t, uint8(18), meta.Decimals)
	require.Equal(t, big.NewInt(1000), meta.TotalSupply)

	bal, err := engine.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), bal)

	require.Len(t, rec.events, 1)
	require.Len(t, rec.logs, 1)
	require.Equal(t, ABI.Events["Transfer"].ID, rec.logs[0].Topics[0])
	require.Equal(t, common.Hash{}, rec.logs[0].Topics[1])
}

func TestTransfer(t *testing.T) {
	engine, _ := newTestEngine(t, 100)
	require.NoError(t, engine.Transfer(alice, bob, big.NewInt(40)))

	aliceBal, _ := engine.BalanceOf(alice)
	bobBal, _ := engine.BalanceOf(bob)
	require.Equal(t, big.NewInt(60), aliceBal)
	require.Equal(t, big.NewInt(40), bobBal)

	err := engine.Transfer(bob, carol, big.NewInt(41))
	require.True(t, errors.Is(err, ErrTransferExceedsBalance))
	require.ErrorIs(t, engine.Transfer(alice, common.Address{}, big.NewInt(1)), ErrTransferToZero)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	engine, _ := newTestEngine(t, 100)

	err := engine.TransferFrom(bob, alice, carol, big.NewInt(10))
	require.ErrorIs(t, err, ErrTransferExceedsAllowance)

	require.NoError(t, engine.Approve(alice, bob, big.NewInt(25)))
	require.NoError(t, engine.TransferFrom(bob, alice, carol, big.NewInt(10)))

	left, err := engine.Allowance(alice, bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(15), left)

	carolBal, _ := engine.BalanceOf(carol)
	require.Equal(t, big.NewInt(10), carolBal)

	require.ErrorIs(t, engine.TransferFrom(bob, alice, carol, big.NewInt(16)), ErrTransferExceedsAllowance)
}

func TestTransferFromChecksBalanceAfterAllowance(t *testing.T) {
	engine, _ := newTestEngine(t, 5)
	require.NoError(t, engine.Approve(alice, bob, big.NewInt(50)))
	require.ErrorIs(t, engine.TransferFrom(bob, alice, carol, big.NewInt(6)), ErrTransferExceedsBalance)
}

func TestMint(t *testing.T) {
	engine, _ := newTestEngine(t, 0)
	require.NoError(t, engine.Mint(bob, big.NewInt(7)))
	meta, err := engine.Metadata()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), meta.TotalSupply)
	require.ErrorIs(t, engine.Mint(common.Address{}, big.NewInt(1)), ErrMintToZero)
}

func TestMetadataRequiresInitialize(t *testing.T) {
	engine := NewEngine(tokenAddr)
	engine.SetState(newMockState())
	_, err := engine.Metadata()
	require.ErrorIs(t, err, errNotInitialized)
}
