package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"loanchain/core/types"
)

const (
	// TypeTokenTransfer is emitted for fungible token balance movements.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval is emitted when an allowance changes.
	TypeTokenApproval = "token.approval"
)

// TokenTransfer mirrors the ERC-20 Transfer(from, to, value) event. Mints use
// the zero address as From.
type TokenTransfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"token": e.Token.Hex(),
			"from":  e.From.Hex(),
			"to":    e.To.Hex(),
			"value": formatAmount(e.Value),
		},
	}
}

// TokenApproval mirrors the ERC-20 Approval(owner, spender, value) event.
type TokenApproval struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Value   *big.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApproval,
		Attributes: map[string]string{
			"token":   e.Token.Hex(),
			"owner":   e.Owner.Hex(),
			"spender": e.Spender.Hex(),
			"value":   formatAmount(e.Value),
		},
	}
}
