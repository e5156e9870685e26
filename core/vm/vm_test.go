package vm

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testABI = MustParseABI(`[
 {"type":"function","name":"get","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"set","stateMutability":"nonpayable","inputs":[{"name":"v","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"event","name":"Moved","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`)

func TestRevertEncoding(t *testing.T) {
	err := NewRevert("Collateral token not registered to system")
	reason, decodeErr := abi.UnpackRevert(err.Data())
	require.NoError(t, decodeErr)
	require.Equal(t, "Collateral token not registered to system", reason)
	require.Equal(t, "execution reverted: Collateral token not registered to system", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	require.True(t, errors.Is(wrapped, NewRevert("Collateral token not registered to system")))
	require.False(t, errors.Is(wrapped, NewRevert("other")))
	require.Equal(t, "Collateral token not registered to system", RevertReason(wrapped))
	require.Equal(t, "plain", RevertReason(errors.New("plain")))
	require.Empty(t, RevertReason(nil))
}

func TestResolveMethod(t *testing.T) {
	set, err := testABI.Pack("set", big.NewInt(5))
	require.NoError(t, err)

	method, args, err := ResolveMethod(&testABI, &CallContext{}, set)
	require.NoError(t, err)
	require.Equal(t, "set", method.Name)
	require.Equal(t, big.NewInt(5), args[0])

	_, _, err = ResolveMethod(&testABI, &CallContext{Value: big.NewInt(1)}, set)
	require.ErrorIs(t, err, ErrNonPayable)

	_, _, err = ResolveMethod(&testABI, &CallContext{ReadOnly: true}, set)
	require.ErrorIs(t, err, ErrWriteProtected)

	deposit, err := testABI.Pack("deposit")
	require.NoError(t, err)
	_, _, err = ResolveMethod(&testABI, &CallContext{Value: big.NewInt(1)}, deposit)
	require.NoError(t, err)

	_, _, err = ResolveMethod(&testABI, &CallContext{}, []byte{1, 2})
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, _, err = ResolveMethod(&testABI, &CallContext{}, set[:4])
	require.Error(t, err)
}

func TestEncodeLog(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	contract := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	log, err := EncodeLog(&testABI, contract, "Moved", from, big.NewInt(9))
	require.NoError(t, err)
	require.Equal(t, contract, log.Address)
	require.Len(t, log.Topics, 2)
	require.Equal(t, testABI.Events["Moved"].ID, log.Topics[0])
	require.Equal(t, common.BytesToHash(from.Bytes()), log.Topics[1])

	values, err := testABI.Unpack("Moved", log.Data)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9), values[0])

	_, err = EncodeLog(&testABI, contract, "Missing")
	require.Error(t, err)
	_, err = EncodeLog(&testABI, contract, "Moved", from)
	require.Error(t, err)
}
