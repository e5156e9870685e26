package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/core/types"
)

const (
	// TypeLoanInterestRate is emitted when the owner changes the interest rate.
	TypeLoanInterestRate = "loan.interest_rate"
	// TypeLoanTokenPrice is emitted when a collateral token price is upserted.
	TypeLoanTokenPrice = "loan.token_price"
	// TypeLoanCollateralRatio is emitted when the collateralisation threshold
	// changes.
	TypeLoanCollateralRatio = "loan.collateral_ratio"
	// TypeLoanCreated is emitted when a borrower opens a loan.
	TypeLoanCreated = "loan.new_loan"
	// TypeLoanPaid is emitted for every repayment, partial or final.
	TypeLoanPaid = "loan.paid_loan"
	// TypeLoanFunded is emitted when native liquidity is sent to the contract.
	TypeLoanFunded = "loan.funded"
	// TypeLoanWithdrawn is emitted when the owner withdraws liquidity or
	// retained interest tokens.
	TypeLoanWithdrawn = "loan.withdrawn"
)

// InterestRateSet mirrors the InterestRate(value) contract event.
type InterestRateSet struct {
	Contract common.Address
	Value    *big.Int
}

func (InterestRateSet) EventType() string { return TypeLoanInterestRate }

func (e InterestRateSet) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanInterestRate,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"value":    formatAmount(e.Value),
		},
	}
}

// TokenPriceSet mirrors TokenPrice(tokenAddress, tokenName, price).
type TokenPriceSet struct {
	Contract     common.Address
	TokenAddress common.Address
	TokenName    [32]byte
	Price        *big.Int
}

func (TokenPriceSet) EventType() string { return TypeLoanTokenPrice }

func (e TokenPriceSet) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanTokenPrice,
		Attributes: map[string]string{
			"contract":     formatAddress(e.Contract),
			"tokenAddress": formatAddress(e.TokenAddress),
			"tokenName":    formatName(e.TokenName),
			"price":        formatAmount(e.Price),
		},
	}
}

// CollateralRatioSet records a new minimum collateral ratio in basis points.
type CollateralRatioSet struct {
	Contract common.Address
	Bps      uint64
}

func (CollateralRatioSet) EventType() string { return TypeLoanCollateralRatio }

func (e CollateralRatioSet) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCollateralRatio,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"value":    new(big.Int).SetUint64(e.Bps).String(),
		},
	}
}

// LoanCreated mirrors NewLoan(user, loanAmount, collateralAddress,
// collateralAmount).
type LoanCreated struct {
	Contract          common.Address
	User              common.Address
	LoanAmount        *big.Int
	CollateralAddress common.Address
	CollateralAmount  *big.Int
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCreated,
		Attributes: map[string]string{
			"contract":          formatAddress(e.Contract),
			"user":              formatAddress(e.User),
			"loanAmount":        formatAmount(e.LoanAmount),
			"collateralAddress": formatAddress(e.CollateralAddress),
			"collateralAmount":  formatAmount(e.CollateralAmount),
		},
	}
}

// LoanPaid mirrors PaidLoan(user, paidAmount, loanClosed). Released and
// Interest are only populated when the loan closes.
type LoanPaid struct {
	Contract   common.Address
	User       common.Address
	PaidAmount *big.Int
	LoanClosed bool
	Released   *big.Int
	Interest   *big.Int
}

func (LoanPaid) EventType() string { return TypeLoanPaid }

func (e LoanPaid) Event() *types.Event {
	attrs := map[string]string{
		"contract":   formatAddress(e.Contract),
		"user":       formatAddress(e.User),
		"paidAmount": formatAmount(e.PaidAmount),
		"loanClosed": formatBool(e.LoanClosed),
	}
	if e.LoanClosed {
		attrs["collateralReleased"] = formatAmount(e.Released)
		attrs["interest"] = formatAmount(e.Interest)
	}
	return &types.Event{Type: TypeLoanPaid, Attributes: attrs}
}

// LoanFunded records native liquidity sent to the contract.
type LoanFunded struct {
	Contract common.Address
	Sender   common.Address
	Amount   *big.Int
}

func (LoanFunded) EventType() string { return TypeLoanFunded }

func (e LoanFunded) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanFunded,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"sender":   formatAddress(e.Sender),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// LoanWithdrawn records an owner withdrawal. Token is the zero address for
// native currency.
type LoanWithdrawn struct {
	Contract common.Address
	To       common.Address
	Token    common.Address
	Amount   *big.Int
}

func (LoanWithdrawn) EventType() string { return TypeLoanWithdrawn }

func (e LoanWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"contract": formatAddress(e.Contract),
		"to":       formatAddress(e.To),
		"amount":   formatAmount(e.Amount),
	}
	if e.Token != (common.Address{}) {
		attrs["token"] = e.Token.Hex()
	}
	return &types.Event{Type: TypeLoanWithdrawn, Attributes: attrs}
}
