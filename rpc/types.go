package rpc

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
	// codeExecutionReverted matches the code Ethereum clients use for
	// reverted eth_call requests; Data carries the revert payload.
	codeExecutionReverted = 3
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// CallArgs addresses a read-only contract call. A nil To targets the loan
// contract.
type CallArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

type LoanResult struct {
	Borrower          common.Address `json:"borrower"`
	LoanAmount        *big.Int       `json:"loanAmount"`
	CollateralAmount  *big.Int       `json:"collateralAmount"`
	CollateralAddress common.Address `json:"collateralAddress"`
	Active            bool           `json:"active"`
}

type TokenPriceResult struct {
	Token      common.Address `json:"token"`
	TokenName  string         `json:"tokenName"`
	Price      *big.Int       `json:"price"`
	Registered bool           `json:"registered"`
}

type ContractResult struct {
	Address            common.Address `json:"address"`
	Owner              common.Address `json:"owner"`
	InterestRate       *big.Int       `json:"interestRate"`
	CollateralRatioBps *big.Int       `json:"collateralRatioBps"`
	TotalDebt          *big.Int       `json:"totalDebt"`
	Balance            *big.Int       `json:"balance"`
	ChainID            uint64         `json:"chainId"`
	Height             uint64         `json:"height"`
}

type HistoryEntry struct {
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
	LogIndex    int    `json:"logIndex"`
	Type        string `json:"type"`
	Borrower    string `json:"borrower,omitempty"`
	Token       string `json:"token,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Collateral  string `json:"collateral,omitempty"`
	Interest    string `json:"interest,omitempty"`
	Closed      bool   `json:"closed"`
}

type PositionResult struct {
	Borrower         string `json:"borrower"`
	CollateralToken  string `json:"collateralToken"`
	Principal        string `json:"principal"`
	Outstanding      string `json:"outstanding"`
	CollateralAmount string `json:"collateralAmount"`
	OpenedAt         uint64 `json:"openedAt"`
}

// EventMessage is the payload streamed on /ws/events.
type EventMessage struct {
	BlockNumber uint64            `json:"blockNumber"`
	TxHash      common.Hash       `json:"txHash"`
	Index       int               `json:"index"`
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
}

func trimName(name [32]byte) string {
	end := len(name)
	for end > 0 && name[end-1] == 0 {
		end--
	}
	return string(name[:end])
}
