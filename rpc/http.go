package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"loanchain/rpc/middleware"
)

type handlerFunc func(r *http.Request, req *RPCRequest) (interface{}, *RPCError)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"loan_sendRawTransaction": s.handleSendRawTransaction,
		"loan_call":               s.handleCall,
		"loan_blockNumber":        s.handleBlockNumber,
		"loan_chainId":            s.handleChainID,
		"loan_getBalance":         s.handleGetBalance,
		"loan_getNonce":           s.handleGetNonce,
		"loan_getTokenBalance":    s.handleGetTokenBalance,
		"loan_getLoan":            s.handleGetLoan,
		"loan_totalDebt":          s.handleTotalDebt,
		"loan_getInterestRate":    s.handleGetInterestRate,
		"loan_getTokenPrice":      s.handleGetTokenPrice,
		"loan_contract":           s.handleContract,
		"loan_getReceipt":         s.handleGetReceipt,
		"loan_history":            s.handleHistory,
		"loan_openLoans":          s.handleOpenLoans,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "method required"})
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method})
		return
	}
	result, rpcErr := handler(r, req)
	if rpcErr != nil {
		if rpcErr.Code == codeServerError {
			s.logger.Error("rpc method failed",
				"method", req.Method,
				"request_id", middleware.RequestIDFrom(r.Context()),
				"error", rpcErr.Data)
		}
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func statusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeDuplicateTx:
		return http.StatusConflict
	case codeServerError:
		return http.StatusInternalServerError
	case codeNotFound:
		return http.StatusNotFound
	case codeExecutionReverted:
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func invalidParams(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

func serverError(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeServerError, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}
