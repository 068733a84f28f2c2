package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NonceBackend is the subset of ethclient.Client the tracker needs.
type NonceBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceTracker hands out transaction nonces for one sender across chains. Nonces are
// optimistic: fetched from the pending pool once, then incremented locally.
type NonceTracker struct {
	sender   common.Address
	backends map[model.ChainID]NonceBackend

	mu     sync.Mutex
	nonces map[model.ChainID]uint64
}

func NewNonceTracker(sender common.Address) *NonceTracker {
	return &NonceTracker{
		sender:   sender,
		backends: make(map[model.ChainID]NonceBackend),
		nonces:   make(map[model.ChainID]uint64),
	}
}

// Dial registers an RPC endpoint for chain.
func (t *NonceTracker) Dial(chain model.ChainID, rpcURL string) error {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return fmt.Errorf("dial %s rpc: %w", chain, err)
	}
	t.Register(chain, client)
	return nil
}

func (t *NonceTracker) Register(chain model.ChainID, backend NonceBackend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backends[chain] = backend
}

func (t *NonceTracker) Supports(chain model.ChainID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.backends[chain]
	return ok
}

// Reserve returns the nonce for the next transaction on chain and advances the local
// counter, so concurrent orders never share a nonce. The first call per chain reads the
// pending nonce from the node.
func (t *NonceTracker) Reserve(ctx context.Context, chain model.ChainID) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nonces[chain]
	if !ok {
		backend, found := t.backends[chain]
		if !found {
			return 0, fmt.Errorf("no rpc backend for chain %s", chain)
		}
		fetched, err := backend.PendingNonceAt(ctx, t.sender)
		if err != nil {
			return 0, fmt.Errorf("fetch pending nonce: %w", err)
		}
		n = fetched
	}
	t.nonces[chain] = n + 1
	return n, nil
}
