package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/vendora/paycore/internal/money"
)

// MemoryStore is an in-memory wallet store for demo/development mode.
type MemoryStore struct {
	wallets map[string]*Wallet
	entries []*Transaction
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
		entries: make([]*Transaction, 0),
	}
}

func (m *MemoryStore) GetWallet(ctx context.Context, accountID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[accountID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) CreateWallet(ctx context.Context, accountID, currency string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.wallets[accountID]; ok {
		cp := *w
		return &cp, nil
	}

	now := time.Now()
	w := &Wallet{
		AccountID:      accountID,
		Balance:        money.Zero,
		PendingBalance: money.Zero,
		TotalEarned:    money.Zero,
		TotalPaidOut:   money.Zero,
		Currency:       currency,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.wallets[accountID] = w
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) ApplyTransaction(ctx context.Context, txn *Transaction) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[txn.AccountID]
	if !ok {
		return nil, ErrWalletNotFound
	}

	amount, okAmt := money.Parse(txn.Amount)
	if !okAmt || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	balance, _ := money.Parse(w.Balance)
	before := new(big.Int).Set(balance)

	if txn.Type.Debits() {
		pending, _ := money.Parse(w.PendingBalance)
		available := new(big.Int).Sub(balance, pending)
		if available.Cmp(amount) < 0 {
			return nil, ErrInsufficientFunds
		}
		balance.Sub(balance, amount)
	} else {
		balance.Add(balance, amount)
	}

	switch txn.Type {
	case TypeCredit, TypeRefund:
		w.TotalEarned = money.Add(w.TotalEarned, txn.Amount)
	case TypeDebit, TypePayout:
		w.TotalPaidOut = money.Add(w.TotalPaidOut, txn.Amount)
	}

	w.Balance = money.Format(balance)
	w.UpdatedAt = time.Now()

	completed := *txn
	completed.Status = StatusCompleted
	completed.BalanceBefore = money.Format(before)
	completed.BalanceAfter = w.Balance
	if completed.CreatedAt.IsZero() {
		completed.CreatedAt = w.UpdatedAt
	}

	m.entries = append(m.entries, &completed)

	cp := completed
	return &cp, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, accountID string, filter TransactionFilter) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var result []*Transaction
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) Statistics(ctx context.Context, accountID string, since time.Time) (*Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Statistics{
		TotalEarned:      money.Zero,
		TotalPaidOut:     money.Zero,
		TotalRefunded:    money.Zero,
		TotalAdjustments: money.Zero,
	}

	for _, e := range m.entries {
		if e.AccountID != accountID || e.Status != StatusCompleted {
			continue
		}
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		stats.TransactionCount++
		switch e.Type {
		case TypeCredit:
			stats.TotalEarned = money.Add(stats.TotalEarned, e.Amount)
		case TypeRefund:
			stats.TotalRefunded = money.Add(stats.TotalRefunded, e.Amount)
		case TypeDebit, TypePayout:
			stats.TotalPaidOut = money.Add(stats.TotalPaidOut, e.Amount)
		case TypeAdjustment:
			stats.TotalAdjustments = money.Add(stats.TotalAdjustments, e.Amount)
		}
	}
	return stats, nil
}

func (m *MemoryStore) AddHold(ctx context.Context, accountID, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[accountID]
	if !ok {
		return ErrWalletNotFound
	}

	balance, _ := money.Parse(w.Balance)
	pending, _ := money.Parse(w.PendingBalance)
	hold, okAmt := money.Parse(amount)
	if !okAmt || hold.Sign() <= 0 {
		return ErrInvalidAmount
	}

	available := new(big.Int).Sub(balance, pending)
	if available.Cmp(hold) < 0 {
		return ErrInsufficientFunds
	}

	pending.Add(pending, hold)
	w.PendingBalance = money.Format(pending)
	w.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ReleaseHold(ctx context.Context, accountID, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[accountID]
	if !ok {
		return ErrWalletNotFound
	}

	pending, _ := money.Parse(w.PendingBalance)
	rel, okAmt := money.Parse(amount)
	if !okAmt || rel.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if pending.Cmp(rel) < 0 {
		return ErrInsufficientFunds
	}

	pending.Sub(pending, rel)
	w.PendingBalance = money.Format(pending)
	w.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SettleHold(ctx context.Context, accountID, amount, reference string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[accountID]
	if !ok {
		return nil, ErrWalletNotFound
	}

	balance, _ := money.Parse(w.Balance)
	pending, _ := money.Parse(w.PendingBalance)
	amt, okAmt := money.Parse(amount)
	if !okAmt || amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if pending.Cmp(amt) < 0 || balance.Cmp(amt) < 0 {
		return nil, ErrInsufficientFunds
	}

	before := new(big.Int).Set(balance)
	balance.Sub(balance, amt)
	pending.Sub(pending, amt)

	now := time.Now()
	w.Balance = money.Format(balance)
	w.PendingBalance = money.Format(pending)
	w.TotalPaidOut = money.Add(w.TotalPaidOut, amount)
	w.UpdatedAt = now

	txn := &Transaction{
		ID:            "txn_settle_" + reference,
		AccountID:     accountID,
		Type:          TypePayout,
		Status:        StatusCompleted,
		Amount:        money.Format(amt),
		BalanceBefore: money.Format(before),
		BalanceAfter:  w.Balance,
		ReferenceID:   reference,
		Description:   "withdrawal_settled",
		CreatedAt:     now,
	}
	m.entries = append(m.entries, txn)

	cp := *txn
	return &cp, nil
}
