package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"loanchain/core/types"
)

// Client is a minimal JSON-RPC client for the loan node.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Uint64
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/") + "/",
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method and decodes the result into out. JSON-RPC failures are
// returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("rpc: encode %s params: %w", method, err)
		}
		rawParams = append(rawParams, encoded)
	}
	id := json.RawMessage(strconv.FormatUint(c.nextID.Add(1), 10))
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: id})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("rpc: read %s response: %w", method, err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("rpc: %s: unexpected response (%s): %w", method, resp.Status, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt := new(types.Receipt)
	if err := c.Call(ctx, "loan_sendRawTransaction", receipt, tx); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id uint64
	err := c.Call(ctx, "loan_chainId", &id)
	return id, err
}

func (c *Client) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	err := c.Call(ctx, "loan_getNonce", &nonce, addr.Hex())
	return nonce, err
}

func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance := new(big.Int)
	err := c.Call(ctx, "loan_getBalance", balance, addr.Hex())
	return balance, err
}

func (c *Client) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	balance := new(big.Int)
	err := c.Call(ctx, "loan_getTokenBalance", balance, token.Hex(), holder.Hex())
	return balance, err
}

func (c *Client) Loan(ctx context.Context, user common.Address) (*LoanResult, error) {
	out := new(LoanResult)
	if err := c.Call(ctx, "loan_getLoan", out, user.Hex()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Contract(ctx context.Context) (*ContractResult, error) {
	out := new(ContractResult)
	if err := c.Call(ctx, "loan_contract", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CallContract(ctx context.Context, args CallArgs) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.Call(ctx, "loan_call", &out, args); err != nil {
		return nil, err
	}
	return out, nil
}

// IsRevert reports whether err is a JSON-RPC execution revert.
func IsRevert(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == codeExecutionReverted
}
