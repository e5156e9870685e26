package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"loanchain/core/vm"
)

func call(t *testing.T, c *Contract, caller common.Address, method string, args ...interface{}) ([]byte, error) {
	t.Helper()
	input, err := ABI.Pack(method, args...)
	require.NoError(t, err)
	return c.Run(&vm.CallContext{Caller: caller, Address: tokenAddr, Value: new(big.Int)}, input)
}

func TestContractRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t, 500)
	c := NewContract(engine)

	_, err := call(t, c, alice, "approve", bob, big.NewInt(200))
	require.NoError(t, err)
	_, err = call(t, c, bob, "transferFrom", alice, bob, big.NewInt(120))
	require.NoError(t, err)

	out, err := call(t, c, carol, "balanceOf", bob)
	require.NoError(t, err)
	values, err := ABI.Unpack("balanceOf", out)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(120), values[0])

	out, err = call(t, c, carol, "symbol")
	require.NoError(t, err)
	values, err = ABI.Unpack("symbol", out)
	require.NoError(t, err)
	require.Equal(t, "DAI", values[0])
}

func TestContractRevertsCarryReason(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	c := NewContract(engine)

	_, err := call(t, c, bob, "transferFrom", alice, bob, big.NewInt(1))
	require.Error(t, err)

	var revert *vm.RevertError
	require.ErrorAs(t, err, &revert)
	reason, err := abi.UnpackRevert(revert.Data())
	require.NoError(t, err)
	require.Equal(t, "ERC20: transfer amount exceeds allowance", reason)
}

func TestContractRejectsValueAndPlainTransfers(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	c := NewContract(engine)

	input, err := ABI.Pack("transfer", bob, big.NewInt(1))
	require.NoError(t, err)
	_, err = c.Run(&vm.CallContext{Caller: alice, Value: big.NewInt(1)}, input)
	require.ErrorIs(t, err, vm.ErrNonPayable)

	_, err = c.Run(&vm.CallContext{Caller: alice, Value: big.NewInt(1)}, nil)
	require.ErrorIs(t, err, vm.ErrNoReceive)

	_, err = c.Run(&vm.CallContext{Caller: alice, ReadOnly: true}, input)
	require.ErrorIs(t, err, vm.ErrWriteProtected)
}
