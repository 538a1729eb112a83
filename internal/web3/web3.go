package web3

import (
	"fmt"
	"strings"
)

// ChainType distinguishes signature schemes and RPC families.
type ChainType string

const (
	ChainEthereum ChainType = "ethereum"
	ChainSolana   ChainType = "solana"
)

// ParseChainType normalises user supplied chain identifiers.
func ParseChainType(raw string) (ChainType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ethereum", "eth", "evm":
		return ChainEthereum, nil
	case "solana", "sol":
		return ChainSolana, nil
	default:
		return "", fmt.Errorf("unsupported chain type %q", raw)
	}
}

func (c ChainType) String() string { return string(c) }
