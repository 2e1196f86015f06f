package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/scratch-engine/internal/asset"
)

// Memory implements Ledger with in-memory maps. Used for testing
// and development.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]map[asset.ID]uint64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]map[asset.ID]uint64)}
}

func (m *Memory) Balance(_ context.Context, account string, a asset.ID) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account][a], nil
}

func (m *Memory) Transfer(_ context.Context, from, to string, a asset.ID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	have := m.balances[from][a]
	if have < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientBalance, from, have, a, amount)
	}
	if from == to {
		return nil
	}
	if m.balances[to][a] > ^uint64(0)-amount {
		return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, to, a)
	}
	m.balances[from][a] = have - amount
	m.credit(to, a, amount)
	return nil
}

func (m *Memory) Deposit(_ context.Context, account string, a asset.ID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[account][a] > ^uint64(0)-amount {
		return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, account, a)
	}
	m.credit(account, a, amount)
	return nil
}

// credit must be called with mu held.
func (m *Memory) credit(account string, a asset.ID, amount uint64) {
	acct, ok := m.balances[account]
	if !ok {
		acct = make(map[asset.ID]uint64)
		m.balances[account] = acct
	}
	acct[a] += amount
}

// MemoryRegistry implements Registry with an in-memory owner map.
type MemoryRegistry struct {
	mu     sync.RWMutex
	owners map[string]string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{owners: make(map[string]string)}
}

func (r *MemoryRegistry) Mint(_ context.Context, owner string, tokenIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, ok := r.owners[id]; ok || seen[id] {
			return fmt.Errorf("%w: %s", ErrTokenExists, id)
		}
		seen[id] = true
	}
	for _, id := range tokenIDs {
		r.owners[id] = owner
	}
	return nil
}

func (r *MemoryRegistry) OwnerOf(_ context.Context, tokenID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	return owner, nil
}

func (r *MemoryRegistry) IsOwner(ctx context.Context, tokenID, account string) (bool, error) {
	owner, err := r.OwnerOf(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return owner == account, nil
}

func (r *MemoryRegistry) TransferOwnership(_ context.Context, tokenID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not own %s", ErrNotTokenOwner, from, tokenID)
	}
	r.owners[tokenID] = to
	return nil
}
