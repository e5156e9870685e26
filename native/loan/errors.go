package loan

import (
	"errors"

	"loanchain/core/vm"
)

// Business rule reverts. Reasons are stable so callers can discriminate
// failures.
var (
	ErrNotOwner                  = vm.NewRevert("Ownable: caller is not the owner")
	ErrTokenNotRegistered        = vm.NewRevert("Collateral token not registered to system")
	ErrInsufficientCollateral    = vm.NewRevert("Collateral posted is insufficient to receive a loan")
	ErrOutstandingDebt           = vm.NewRevert("User already owes tokens")
	ErrInsufficientLiquidity     = vm.NewRevert("Insufficient funds to disburse loan")
	ErrInvalidLoanAmount         = vm.NewRevert("Loan amount must be positive")
	ErrNoDebt                    = vm.NewRevert("User has no outstanding debt")
	ErrInvalidPayment            = vm.NewRevert("Payment must be positive")
	ErrOverpayment               = vm.NewRevert("Payment exceeds outstanding debt")
	ErrZeroTokenAddress          = vm.NewRevert("Token address must not be zero")
	ErrInvalidCollateralRatio    = vm.NewRevert("Collateral ratio must be positive")
	ErrInvalidWithdrawal         = vm.NewRevert("Withdrawal amount must be positive")
	ErrWithdrawExceedsBalance    = vm.NewRevert("Insufficient funds to withdraw")
	ErrWithdrawExceedsUnlocked   = vm.NewRevert("Amount exceeds unlocked token balance")
	ErrMathOverflow              = vm.NewRevert("Arithmetic overflow")
	ErrCollateralTokenNoContract = vm.NewRevert("Collateral token has no contract")
)

var (
	errNilState       = errors.New("loan engine: state not configured")
	errNilTokens      = errors.New("loan engine: token resolver not configured")
	errNotInitialized = errors.New("loan engine: contract not initialised")
	errInitialized    = errors.New("loan engine: contract already initialised")
	errNegativeAmount = errors.New("loan engine: amount must not be negative")
)
