package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"loanchain/core"
	"loanchain/core/types"
	"loanchain/core/vm"
	"loanchain/native/loan"
)

func parseAddressParam(raw json.RawMessage) (common.Address, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.New("not a hex address")
	}
	return common.HexToAddress(value), nil
}

func (s *Server) requireAddress(req *RPCRequest, idx int, name string) (common.Address, *RPCError) {
	if len(req.Params) <= idx {
		return common.Address{}, invalidParams(name+" parameter required", nil)
	}
	addr, err := parseAddressParam(req.Params[idx])
	if err != nil {
		return common.Address{}, invalidParams("invalid "+name, err)
	}
	return addr, nil
}

func (s *Server) handleSendRawTransaction(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	ctx, err := s.auth.Authorize(r, s.cfg.WriteScopes...)
	if err != nil {
		return nil, &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	if len(req.Params) == 0 {
		return nil, invalidParams("transaction parameter required", nil)
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		return nil, invalidParams("invalid transaction format", err)
	}
	receipt, err := s.backend.ApplyTransaction(ctx, &tx)
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, core.ErrKnownTransaction):
		return nil, &RPCError{Code: codeDuplicateTx, Message: "transaction has already been mined"}
	case errors.Is(err, types.ErrMissingSignature), errors.Is(err, types.ErrInvalidSignature):
		return nil, invalidParams("invalid transaction signature", err)
	case errors.Is(err, core.ErrChainIDMismatch),
		errors.Is(err, core.ErrNonceTooLow),
		errors.Is(err, core.ErrNonceTooHigh),
		errors.Is(err, core.ErrInsufficientFunds):
		return nil, invalidParams(err.Error(), nil)
	default:
		return nil, serverError("failed to apply transaction", err)
	}
}

func (s *Server) handleCall(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) == 0 {
		return nil, invalidParams("call object required", nil)
	}
	var args CallArgs
	if err := json.Unmarshal(req.Params[0], &args); err != nil {
		return nil, invalidParams("invalid call object", err)
	}
	to := common.Address{}
	if args.To != nil {
		to = *args.To
	} else {
		addr, rpcErr := s.loanAddress()
		if rpcErr != nil {
			return nil, rpcErr
		}
		to = addr
	}
	ret, err := s.backend.Call(r.Context(), args.From, to, args.Data)
	if err != nil {
		return nil, callError(err)
	}
	return hexutil.Bytes(ret), nil
}

func callError(err error) *RPCError {
	var revert *vm.RevertError
	if errors.As(err, &revert) {
		return &RPCError{
			Code:    codeExecutionReverted,
			Message: revert.Error(),
			Data:    hexutil.Encode(revert.Data()),
		}
	}
	if errors.Is(err, core.ErrContractNotFound) {
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	}
	return &RPCError{
		Code:    codeExecutionReverted,
		Message: "execution reverted: " + vm.RevertReason(err),
		Data:    hexutil.Encode(vm.EncodeRevert(vm.RevertReason(err))),
	}
}

func (s *Server) handleBlockNumber(_ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	return s.backend.Height(), nil
}

func (s *Server) handleChainID(_ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	return s.backend.ChainID(), nil
}

func (s *Server) handleGetBalance(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	addr, rpcErr := s.requireAddress(req, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.backend.Balance(addr)
	if err != nil {
		return nil, serverError("failed to load balance", err)
	}
	return balance, nil
}

func (s *Server) handleGetNonce(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	addr, rpcErr := s.requireAddress(req, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.backend.Nonce(addr)
	if err != nil {
		return nil, serverError("failed to load nonce", err)
	}
	return nonce, nil
}

func (s *Server) handleGetTokenBalance(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	token, rpcErr := s.requireAddress(req, 0, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	holder, rpcErr := s.requireAddress(req, 1, "holder")
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.backend.TokenBalance(token, holder)
	if errors.Is(err, core.ErrContractNotFound) {
		return nil, &RPCError{Code: codeNotFound, Message: err.Error()}
	}
	if err != nil {
		return nil, serverError("failed to load token balance", err)
	}
	return balance, nil
}

func (s *Server) loanAddress() (common.Address, *RPCError) {
	addr, err := s.backend.LoanAddress()
	if errors.Is(err, core.ErrNoLoanContract) {
		return common.Address{}, &RPCError{Code: codeNotFound, Message: err.Error()}
	}
	if err != nil {
		return common.Address{}, serverError("failed to resolve loan contract", err)
	}
	return addr, nil
}

// loanView runs a view method of the loan contract and decodes its outputs.
func (s *Server) loanView(ctx context.Context, method string, args ...interface{}) ([]interface{}, *RPCError) {
	addr, rpcErr := s.loanAddress()
	if rpcErr != nil {
		return nil, rpcErr
	}
	data, err := loan.ABI.Pack(method, args...)
	if err != nil {
		return nil, serverError("failed to encode "+method, err)
	}
	ret, err := s.backend.Call(ctx, common.Address{}, addr, data)
	if err != nil {
		return nil, callError(err)
	}
	out, err := loan.ABI.Unpack(method, ret)
	if err != nil {
		return nil, serverError("failed to decode "+method, err)
	}
	return out, nil
}

func (s *Server) handleGetLoan(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	user, rpcErr := s.requireAddress(req, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out, rpcErr := s.loanView(r.Context(), "loans", user)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount := out[0].(*big.Int)
	return LoanResult{
		Borrower:          user,
		LoanAmount:        amount,
		CollateralAmount:  out[1].(*big.Int),
		CollateralAddress: out[2].(common.Address),
		Active:            amount.Sign() > 0,
	}, nil
}

func (s *Server) handleTotalDebt(r *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	out, rpcErr := s.loanView(r.Context(), "totalDebt")
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out[0].(*big.Int), nil
}

func (s *Server) handleGetInterestRate(r *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	out, rpcErr := s.loanView(r.Context(), "interestRate")
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out[0].(*big.Int), nil
}

func (s *Server) handleGetTokenPrice(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	token, rpcErr := s.requireAddress(req, 0, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out, rpcErr := s.loanView(r.Context(), "tokenPrice", token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price := out[1].(*big.Int)
	return TokenPriceResult{
		Token:      token,
		TokenName:  trimName(out[0].([32]byte)),
		Price:      price,
		Registered: price.Sign() > 0,
	}, nil
}

func (s *Server) handleContract(r *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	addr, rpcErr := s.loanAddress()
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := ContractResult{
		Address: addr,
		ChainID: s.backend.ChainID(),
		Height:  s.backend.Height(),
	}
	owner, rpcErr := s.loanView(r.Context(), "owner")
	if rpcErr != nil {
		return nil, rpcErr
	}
	result.Owner = owner[0].(common.Address)
	rate, rpcErr := s.loanView(r.Context(), "interestRate")
	if rpcErr != nil {
		return nil, rpcErr
	}
	result.InterestRate = rate[0].(*big.Int)
	ratio, rpcErr := s.loanView(r.Context(), "collateralRatioBps")
	if rpcErr != nil {
		return nil, rpcErr
	}
	result.CollateralRatioBps = ratio[0].(*big.Int)
	debt, rpcErr := s.loanView(r.Context(), "totalDebt")
	if rpcErr != nil {
		return nil, rpcErr
	}
	result.TotalDebt = debt[0].(*big.Int)
	balance, err := s.backend.Balance(addr)
	if err != nil {
		return nil, serverError("failed to load contract balance", err)
	}
	result.Balance = balance
	return result, nil
}

func (s *Server) handleGetReceipt(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) == 0 {
		return nil, invalidParams("transaction hash required", nil)
	}
	var raw string
	if err := json.Unmarshal(req.Params[0], &raw); err != nil {
		return nil, invalidParams("invalid transaction hash", err)
	}
	hashBytes, err := hexutil.Decode(raw)
	if err != nil || len(hashBytes) != common.HashLength {
		return nil, invalidParams("invalid transaction hash", err)
	}
	receipt, err := s.backend.Receipt(common.BytesToHash(hashBytes))
	if errors.Is(err, core.ErrReceiptNotFound) {
		return nil, &RPCError{Code: codeNotFound, Message: "receipt not found"}
	}
	if err != nil {
		return nil, serverError("failed to load receipt", err)
	}
	return receipt, nil
}

func (s *Server) handleHistory(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if s.history == nil {
		return nil, &RPCError{Code: codeServerError, Message: "loan history indexer disabled"}
	}
	user, rpcErr := s.requireAddress(req, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	limit := s.cfg.HistoryLimit
	if len(req.Params) > 1 {
		var requested int
		if err := json.Unmarshal(req.Params[1], &requested); err != nil || requested <= 0 {
			return nil, invalidParams("limit must be a positive integer", err)
		}
		if requested < limit {
			limit = requested
		}
	}
	rows, err := s.history.History(r.Context(), user, limit)
	if err != nil {
		return nil, serverError("failed to load history", err)
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, HistoryEntry{
			BlockNumber: row.BlockNumber,
			TxHash:      row.TxHash,
			LogIndex:    row.LogIndex,
			Type:        row.Type,
			Borrower:    row.Borrower,
			Token:       row.Token,
			Amount:      row.Amount,
			Collateral:  row.Collateral,
			Interest:    row.Interest,
			Closed:      row.Closed,
		})
	}
	return out, nil
}

func (s *Server) handleOpenLoans(r *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	if s.history == nil {
		return nil, &RPCError{Code: codeServerError, Message: "loan history indexer disabled"}
	}
	rows, err := s.history.OpenLoans(r.Context())
	if err != nil {
		return nil, serverError("failed to load open loans", err)
	}
	out := make([]PositionResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, PositionResult{
			Borrower:         row.Borrower,
			CollateralToken:  row.CollateralToken,
			Principal:        row.Principal,
			Outstanding:      row.Outstanding,
			CollateralAmount: row.CollateralAmount,
			OpenedAt:         row.OpenedAt,
		})
	}
	return out, nil
}
