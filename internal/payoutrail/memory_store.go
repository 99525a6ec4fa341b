package payoutrail

import (
	"context"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory Directory for demo/development mode.
type MemoryDirectory struct {
	mu        sync.RWMutex
	byAccount map[string]*Account
	byRail    map[string]*Account
}

// NewMemoryDirectory creates a new in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byAccount: make(map[string]*Account),
		byRail:    make(map[string]*Account),
	}
}

func (d *MemoryDirectory) Get(ctx context.Context, accountID string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acct, ok := d.byAccount[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (d *MemoryDirectory) GetByRailID(ctx context.Context, railAccountID string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acct, ok := d.byRail[railAccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, acct *Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byAccount[acct.AccountID]; ok {
		return ErrAlreadyLinked
	}

	cp := *acct
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	d.byAccount[cp.AccountID] = &cp
	d.byRail[cp.RailAccountID] = &cp
	return nil
}

func (d *MemoryDirectory) UpdateState(ctx context.Context, railAccountID string, state *AccountState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.byRail[railAccountID]
	if !ok {
		return ErrAccountNotFound
	}

	acct.ChargesEnabled = state.ChargesEnabled
	acct.PayoutsEnabled = state.PayoutsEnabled
	acct.DetailsSubmitted = state.DetailsSubmitted
	acct.Status = statusFromState(state)
	acct.UpdatedAt = time.Now()
	return nil
}
