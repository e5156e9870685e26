package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// EncodeLog builds the EVM log for the named ABI event emitted by addr. Args
// follow the event's declared input order; indexed inputs become topics and
// the rest are ABI packed into the data field.
func EncodeLog(contractABI *abi.ABI, addr common.Address, name string, args ...interface{}) (*gethtypes.Log, error) {
	ev, ok := contractABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("vm: unknown event %q", name)
	}
	if len(args) != len(ev.Inputs) {
		return nil, fmt.Errorf("vm: event %s expects %d arguments, got %d", name, len(ev.Inputs), len(args))
	}
	topics := []common.Hash{ev.ID}
	var (
		indexed []interface{}
		data    []interface{}
	)
	for i, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, args[i])
			continue
		}
		data = append(data, args[i])
	}
	if len(indexed) > 0 {
		query := make([][]interface{}, len(indexed))
		for i, v := range indexed {
			query[i] = []interface{}{v}
		}
		made, err := abi.MakeTopics(query...)
		if err != nil {
			return nil, fmt.Errorf("vm: encode topics for %s: %w", name, err)
		}
		for _, t := range made {
			topics = append(topics, t[0])
		}
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("vm: encode data for %s: %w", name, err)
	}
	return &gethtypes.Log{Address: addr, Topics: topics, Data: packed}, nil
}
