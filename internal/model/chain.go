package model

import "fmt"

// Chain is a supported payout destination chain.
type Chain string

const (
	ChainEthereum Chain = "Ethereum"
	ChainBase     Chain = "Base"
	ChainArbitrum Chain = "Arbitrum"
)

// Chains returns every supported chain in a stable order.
func Chains() []Chain {
	return []Chain{ChainEthereum, ChainBase, ChainArbitrum}
}

// Valid reports whether c is one of the supported chains.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainBase, ChainArbitrum:
		return true
	default:
		return false
	}
}

// ParseChain converts a chain name into a Chain.
func ParseChain(input string) (Chain, error) {
	c := Chain(input)
	if !c.Valid() {
		return "", fmt.Errorf("unsupported chain: %q", input)
	}
	return c, nil
}
