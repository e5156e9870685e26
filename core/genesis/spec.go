package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Spec is the JSON genesis document of a loan chain.
type Spec struct {
	ChainID uint64            `json:"chainId"`
	Alloc   map[string]string `json:"alloc"`
	Tokens  []TokenSpec       `json:"tokens"`
	Loan    *LoanSpec         `json:"loan,omitempty"`

	alloc map[common.Address]*big.Int
}

// TokenSpec describes an ERC-20 collateral token deployed at genesis.
type TokenSpec struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Holder   string `json:"holder"`
	Supply   string `json:"supply"`

	holder common.Address
	supply *big.Int
}

// LoanSpec configures the loan contract deployed at genesis.
type LoanSpec struct {
	Owner              string      `json:"owner"`
	InterestRate       string      `json:"interestRate"`
	CollateralRatioBps uint64      `json:"collateralRatioBps,omitempty"`
	Funding            string      `json:"funding,omitempty"`
	Prices             []PriceSpec `json:"prices,omitempty"`

	owner   common.Address
	rate    *big.Int
	funding *big.Int
}

// PriceSpec registers a collateral token. Token is either the symbol of a
// genesis token or a hex address.
type PriceSpec struct {
	Token string `json:"token"`
	Name  string `json:"name,omitempty"`
	Price string `json:"price"`

	price *big.Int
}

// Load reads and validates a genesis document.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes and validates a genesis document. Unknown fields are
// rejected.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) validate() error {
	if s.ChainID == 0 {
		return fmt.Errorf("chainId must be positive")
	}
	s.alloc = make(map[common.Address]*big.Int, len(s.Alloc))
	for rawAddr, rawAmount := range s.Alloc {
		addr, err := parseAddress(rawAddr)
		if err != nil {
			return fmt.Errorf("alloc: %w", err)
		}
		amount, err := parseAmountString(rawAmount)
		if err != nil {
			return fmt.Errorf("alloc %s: %w", rawAddr, err)
		}
		s.alloc[addr] = amount
	}
	symbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		token := &s.Tokens[i]
		if err := token.validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := strings.ToUpper(token.Symbol)
		if _, dup := symbols[key]; dup {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, token.Symbol)
		}
		symbols[key] = struct{}{}
	}
	if s.Loan != nil {
		if err := s.Loan.validate(symbols); err != nil {
			return fmt.Errorf("loan: %w", err)
		}
	}
	return nil
}

func (t *TokenSpec) validate() error {
	t.Symbol = strings.TrimSpace(t.Symbol)
	if t.Symbol == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.HasPrefix(t.Symbol, "0x") {
		return fmt.Errorf("symbol must not look like an address")
	}
	if strings.TrimSpace(t.Name) == "" {
		t.Name = t.Symbol
	}
	holder, err := parseAddress(t.Holder)
	if err != nil {
		return fmt.Errorf("holder: %w", err)
	}
	supply, err := parseAmountString(t.Supply)
	if err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	t.holder = holder
	t.supply = supply
	return nil
}

func (l *LoanSpec) validate(symbols map[string]struct{}) error {
	owner, err := parseAddress(l.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	rate, err := parseAmountString(l.InterestRate)
	if err != nil {
		return fmt.Errorf("interestRate: %w", err)
	}
	funding, err := parseAmountString(l.Funding)
	if err != nil {
		return fmt.Errorf("funding: %w", err)
	}
	for i := range l.Prices {
		price := &l.Prices[i]
		ref := strings.TrimSpace(price.Token)
		if ref == "" {
			return fmt.Errorf("prices[%d]: token must be provided", i)
		}
		if common.IsHexAddress(ref) {
			if common.HexToAddress(ref) == (common.Address{}) {
				return fmt.Errorf("prices[%d]: token must not be the zero address", i)
			}
		} else if _, ok := symbols[strings.ToUpper(ref)]; !ok {
			return fmt.Errorf("prices[%d]: unknown token %q", i, ref)
		}
		if len(price.Name) > 32 {
			return fmt.Errorf("prices[%d]: name exceeds 32 bytes", i)
		}
		value, err := parseAmountString(price.Price)
		if err != nil {
			return fmt.Errorf("prices[%d]: %w", i, err)
		}
		price.price = value
	}
	l.owner = owner
	l.rate = rate
	l.funding = funding
	return nil
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
