package chain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"triggerpay/internal/model"
)

// Registry lazily dials one client per network and reuses it.
type Registry struct {
	networks map[model.Chain]Network
	slots    map[model.Chain]*slot
	logger   *zap.Logger
}

// slot serializes dialing for one chain so a slow endpoint only delays callers
// of that chain.
type slot struct {
	mu     sync.Mutex
	client *Client
}

// NewRegistry builds a registry over networks.
func NewRegistry(networks map[model.Chain]Network, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := make(map[model.Chain]*slot, len(networks))
	for c := range networks {
		slots[c] = &slot{}
	}
	return &Registry{
		networks: networks,
		slots:    slots,
		logger:   logger,
	}
}

// Network returns the configuration for c.
func (r *Registry) Network(c model.Chain) (Network, bool) {
	n, ok := r.networks[c]
	return n, ok
}

// Client returns the client for c, dialing it on first use. A node reporting a
// chain id different from the configured one is rejected.
func (r *Registry) Client(ctx context.Context, c model.Chain) (*Client, error) {
	s, ok := r.slots[c]
	if !ok {
		return nil, fmt.Errorf("unsupported chain: %q", c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	network := r.networks[c]

	client, err := NewClient(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", c, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get %s chain id: %w", c, err)
	}
	if network.ChainID != nil && chainID.Cmp(network.ChainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("%s rpc reports chain id %s, expected %s", c, chainID, network.ChainID)
	}

	r.logger.Info("connected to rpc",
		zap.String("chain", string(c)),
		zap.String("chain_id", chainID.String()),
	)
	s.client = client
	return client, nil
}

// Close closes every dialed client.
func (r *Registry) Close() {
	for _, s := range r.slots {
		s.mu.Lock()
		if s.client != nil {
			s.client.Close()
			s.client = nil
		}
		s.mu.Unlock()
	}
}
