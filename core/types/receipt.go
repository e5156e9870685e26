package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	// ReceiptStatusFailed is the status of a reverted transaction.
	ReceiptStatusFailed = uint64(0)
	// ReceiptStatusSuccessful is the status of a committed transaction.
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt records the outcome of a transaction. A reverted transaction carries
// no logs or events; its RevertData holds the ABI encoded Error(string)
// payload and RevertReason the decoded message.
type Receipt struct {
	TxHash       common.Hash      `json:"transactionHash"`
	BlockNumber  uint64           `json:"blockNumber"`
	From         common.Address   `json:"from"`
	To           common.Address   `json:"to"`
	Value        *big.Int         `json:"value"`
	Status       uint64           `json:"status"`
	ReturnData   hexutil.Bytes    `json:"returnData,omitempty"`
	RevertData   hexutil.Bytes    `json:"revertData,omitempty"`
	RevertReason string           `json:"revertReason,omitempty"`
	Logs         []*gethtypes.Log `json:"logs"`
	Events       []*Event         `json:"events"`
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}
