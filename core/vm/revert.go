package vm

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// revertSelector is the 4-byte selector of Error(string).
var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

var stringArgs = func() abi.Arguments {
	typ, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: typ}}
}()

// RevertError is a contract level failure carrying a stable, human readable
// reason. Two RevertErrors match under errors.Is when their reasons are equal.
type RevertError struct {
	Reason string
}

// NewRevert builds a RevertError for reason.
func NewRevert(reason string) *RevertError {
	return &RevertError{Reason: reason}
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// Is matches any RevertError with the same reason.
func (e *RevertError) Is(target error) bool {
	var other *RevertError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

// Data returns the ABI encoding of Error(reason).
func (e *RevertError) Data() []byte {
	return EncodeRevert(e.Reason)
}

// EncodeRevert produces the Error(string) payload Solidity emits on revert.
func EncodeRevert(reason string) []byte {
	packed, err := stringArgs.Pack(reason)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(revertSelector)+len(packed))
	out = append(out, revertSelector...)
	return append(out, packed...)
}

// RevertReason extracts a reason from any error returned by a contract.
// Errors that are not RevertErrors still revert; their message becomes the
// reason.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Reason
	}
	return err.Error()
}

// Revert values shared by every native contract.
var (
	ErrNonPayable     = NewRevert("non-payable function received value")
	ErrUnknownMethod  = NewRevert("function selector was not recognized")
	ErrWriteProtected = NewRevert("state modification in static call")
	ErrNoReceive      = NewRevert("contract does not accept plain transfers")
)
