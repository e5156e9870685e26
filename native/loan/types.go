package loan

import (
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/text/unicode/norm"
)

// Params holds the contract wide configuration.
type Params struct {
	Owner              common.Address
	InterestRate       *big.Int
	CollateralRatioBps uint64
}

// TokenPrice is a collateral registry entry. A zero price means the token is
// not registered.
type TokenPrice struct {
	Name  [32]byte
	Price *big.Int
}

// Registered reports whether the entry carries a non-zero price.
func (p *TokenPrice) Registered() bool {
	return p != nil && p.Price != nil && p.Price.Sign() > 0
}

// Loan is the outstanding position of a single borrower.
type Loan struct {
	LoanAmount       *big.Int
	CollateralAmount *big.Int
	CollateralToken  common.Address
}

// Active reports whether the borrower still owes currency.
func (l *Loan) Active() bool {
	return l != nil && l.LoanAmount != nil && l.LoanAmount.Sign() > 0
}

// Repayment summarises the effect of a PayLoan call.
type Repayment struct {
	Paid      *big.Int
	Remaining *big.Int
	Closed    bool
	// Released and Interest are set once the loan closes.
	Released *big.Int
	Interest *big.Int
}

// TokenName NFC-normalises name and right-pads it into a bytes32 label.
// Names longer than 32 bytes are cut at the last whole rune that fits.
func TokenName(name string) [32]byte {
	var out [32]byte
	label := norm.NFC.String(strings.TrimSpace(name))
	for len(label) > len(out) {
		_, size := utf8.DecodeLastRuneInString(label)
		label = label[:len(label)-size]
	}
	copy(out[:], label)
	return out
}

// CollateralToken is the subset of a fungible token the loan contract relies
// on. Implementations revert with the token's own reason on failure.
type CollateralToken interface {
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(holder common.Address) (*big.Int, error)
}

// TokenResolver locates the token contract deployed at addr.
type TokenResolver interface {
	CollateralToken(addr common.Address) (CollateralToken, error)
}
