package core

import "errors"

// Transaction admission errors. A rejected transaction is not mined, does not
// consume its nonce and produces no receipt.
var (
	ErrChainIDMismatch      = errors.New("core: transaction chain id mismatch")
	ErrNonceTooLow          = errors.New("core: nonce too low")
	ErrNonceTooHigh         = errors.New("core: nonce too high")
	ErrInsufficientFunds    = errors.New("core: insufficient funds for transfer")
	ErrKnownTransaction     = errors.New("core: transaction already mined")
	ErrReceiptNotFound      = errors.New("core: receipt not found")
	ErrContractNotFound     = errors.New("core: no contract at address")
	ErrUnknownContractKind  = errors.New("core: unknown contract kind")
	ErrNoLoanContract       = errors.New("core: loan contract not deployed")
	ErrGenesisAlreadyLoaded = errors.New("core: genesis already applied")
)
