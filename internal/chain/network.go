// Package chain holds the supported payout networks and their RPC clients.
package chain

import (
	"fmt"
	"math/big"

	"triggerpay/internal/model"
)

// Network describes one payout destination.
type Network struct {
	Chain          model.Chain
	ChainID        *big.Int
	RPCURL         string
	DerivationPath string
}

// DefaultNetworks returns the testnet defaults for every supported chain.
func DefaultNetworks() map[model.Chain]Network {
	return map[model.Chain]Network{
		model.ChainEthereum: {
			Chain:          model.ChainEthereum,
			ChainID:        big.NewInt(11155111),
			RPCURL:         "https://sepolia.drpc.org",
			DerivationPath: "ethereum-1",
		},
		model.ChainBase: {
			Chain:          model.ChainBase,
			ChainID:        big.NewInt(84532),
			RPCURL:         "https://sepolia.base.org",
			DerivationPath: "base-1",
		},
		model.ChainArbitrum: {
			Chain:          model.ChainArbitrum,
			ChainID:        big.NewInt(421614),
			RPCURL:         "https://sepolia-rollup.arbitrum.io/rpc",
			DerivationPath: "arbitrum-1",
		},
	}
}

// Networks resolves the supported networks, replacing RPC URLs with non-empty
// overrides.
func Networks(rpcOverrides map[model.Chain]string) (map[model.Chain]Network, error) {
	networks := DefaultNetworks()
	for c, url := range rpcOverrides {
		n, ok := networks[c]
		if !ok {
			return nil, fmt.Errorf("unsupported chain: %q", c)
		}
		if url != "" {
			n.RPCURL = url
			networks[c] = n
		}
	}
	return networks, nil
}

// DerivationPath returns the fixed derivation path for c.
func DerivationPath(c model.Chain) (string, bool) {
	n, ok := DefaultNetworks()[c]
	if !ok {
		return "", false
	}
	return n.DerivationPath, true
}
