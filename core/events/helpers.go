package events

import (
	"bytes"
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// formatName trims the zero padding of a bytes32 label. Labels that are not
// clean UTF-8 text are rendered as 0x-prefixed hex of the full word.
func formatName(name [32]byte) string {
	trimmed := bytes.TrimRight(name[:], "\x00")
	if !utf8.Valid(trimmed) || bytes.IndexByte(trimmed, 0) >= 0 {
		return hexutil.Encode(name[:])
	}
	return string(trimmed)
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
