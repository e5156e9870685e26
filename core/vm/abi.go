package vm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MustParseABI parses a JSON ABI definition and panics on malformed input. It
// is meant for package level ABI constants.
func MustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ResolveMethod selects the ABI method addressed by input, enforces the
// payable and static-call rules and decodes the arguments.
func ResolveMethod(contractABI *abi.ABI, ctx *CallContext, input []byte) (*abi.Method, []interface{}, error) {
	if len(input) < 4 {
		return nil, nil, ErrUnknownMethod
	}
	method, err := contractABI.MethodById(input[:4])
	if err != nil {
		return nil, nil, ErrUnknownMethod
	}
	if ctx.Value != nil && ctx.Value.Sign() > 0 && !method.IsPayable() {
		return nil, nil, ErrNonPayable
	}
	if ctx.ReadOnly && !method.IsConstant() {
		return nil, nil, ErrWriteProtected
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, NewRevert("invalid calldata for " + method.Name)
	}
	return method, args, nil
}
