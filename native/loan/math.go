package loan

import (
	"math/big"

	"github.com/holiman/uint256"
)

// DefaultCollateralRatioBps requires collateral value to at least match the
// loan amount.
const DefaultCollateralRatioBps = 10_000

var (
	wad         = uint256.NewInt(1_000_000_000_000_000_000)
	basisPoints = uint256.NewInt(10_000)
)

func toWord(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, errNegativeAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

// Interest returns collateral × rate / 1e18 using a 512-bit intermediate.
func Interest(collateral, rate *big.Int) (*big.Int, error) {
	c, err := toWord(collateral)
	if err != nil {
		return nil, err
	}
	r, err := toWord(rate)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(c, r, wad)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out.ToBig(), nil
}

// CollateralSufficient reports whether collateral × price × 10000 is at
// least loanAmount × ratioBps. Operands are validated as 256-bit words; the
// products are compared at arbitrary precision.
func CollateralSufficient(collateral, price, loanAmount *big.Int, ratioBps uint64) (bool, error) {
	c, err := toWord(collateral)
	if err != nil {
		return false, err
	}
	p, err := toWord(price)
	if err != nil {
		return false, err
	}
	l, err := toWord(loanAmount)
	if err != nil {
		return false, err
	}
	have := new(big.Int).Mul(c.ToBig(), p.ToBig())
	have.Mul(have, basisPoints.ToBig())
	needed := new(big.Int).Mul(l.ToBig(), new(big.Int).SetUint64(ratioBps))
	return have.Cmp(needed) >= 0, nil
}

func addWord(a, b *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrMathOverflow
	}
	return sum.ToBig(), nil
}

func subWord(a, b *big.Int) (*big.Int, error) {
	x, err := toWord(a)
	if err != nil {
		return nil, err
	}
	y, err := toWord(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrMathOverflow
	}
	return diff.ToBig(), nil
}
