package payout

import (
	"context"
	"fmt"

	"triggerpay/internal/model"
)

// Account is the orchestrator's sending account on one chain.
type Account struct {
	Address string      `json:"address"`
	Balance string      `json:"balance"`
	Chain   model.Chain `json:"chain"`
}

// Address returns the derived sender address for c without touching RPC.
func (o *Orchestrator) Address(c model.Chain) (string, error) {
	network, ok := o.networks[c]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
	}
	_, addr, err := o.deriver.Derive(network.DerivationPath)
	if err != nil {
		return "", fmt.Errorf("derive %s address: %w", c, err)
	}
	return addr.Hex(), nil
}

// Account returns the derived sender address for c and its balance in wei.
func (o *Orchestrator) Account(ctx context.Context, c model.Chain) (Account, error) {
	network, ok := o.networks[c]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
	}
	_, addr, err := o.deriver.Derive(network.DerivationPath)
	if err != nil {
		return Account{}, fmt.Errorf("derive %s address: %w", c, err)
	}
	backend, err := o.backends(ctx, c)
	if err != nil {
		return Account{}, fmt.Errorf("connect %s: %w", c, err)
	}
	balance, err := backend.BalanceAt(ctx, addr)
	if err != nil {
		return Account{}, fmt.Errorf("get %s balance: %w", c, err)
	}
	return Account{Address: addr.Hex(), Balance: balance.String(), Chain: c}, nil
}
