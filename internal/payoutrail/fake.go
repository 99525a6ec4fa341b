package payoutrail

import (
	"context"
	"fmt"
	"sync"

	"github.com/vendora/paycore/internal/idgen"
)

// FakeRail is an in-memory Rail for demo mode and tests. Accounts
// start with payouts enabled unless configured otherwise, and every
// transfer is recorded so tests can assert on exactly what was sent.
type FakeRail struct {
	mu             sync.Mutex
	states         map[string]*AccountState
	transfers      []FakeTransfer
	byIdemKey      map[string]string // idempotency key -> transfer ID
	TransferErr    error             // returned by CreateTransfer when set
	PayoutsEnabled bool              // initial state for new accounts
}

// FakeTransfer records one CreateTransfer call.
type FakeTransfer struct {
	ID             string
	RailAccountID  string
	Amount         string
	Currency       string
	IdempotencyKey string
}

// NewFakeRail creates a fake rail whose new accounts can pay out
// immediately.
func NewFakeRail() *FakeRail {
	return &FakeRail{
		states:         make(map[string]*AccountState),
		byIdemKey:      make(map[string]string),
		PayoutsEnabled: true,
	}
}

func (f *FakeRail) CreateAccount(ctx context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := idgen.WithPrefix("acct_rail_")
	f.states[id] = &AccountState{
		ChargesEnabled:   f.PayoutsEnabled,
		PayoutsEnabled:   f.PayoutsEnabled,
		DetailsSubmitted: f.PayoutsEnabled,
	}
	return id, nil
}

func (f *FakeRail) OnboardingLink(ctx context.Context, railAccountID, returnURL, refreshURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.states[railAccountID]; !ok {
		return "", ErrAccountNotFound
	}
	return fmt.Sprintf("https://rail.invalid/onboard/%s", railAccountID), nil
}

func (f *FakeRail) AccountState(ctx context.Context, railAccountID string) (*AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.states[railAccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *state
	return &cp, nil
}

// SetState overrides an account's capability flags.
func (f *FakeRail) SetState(railAccountID string, state AccountState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[railAccountID] = &state
}

func (f *FakeRail) CreateTransfer(ctx context.Context, railAccountID, amount, currency, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TransferErr != nil {
		return "", f.TransferErr
	}
	if _, ok := f.states[railAccountID]; !ok {
		return "", ErrAccountNotFound
	}

	// Idempotent replay returns the original transfer.
	if id, ok := f.byIdemKey[idempotencyKey]; ok {
		return id, nil
	}

	id := idgen.WithPrefix("tr_")
	f.transfers = append(f.transfers, FakeTransfer{
		ID:             id,
		RailAccountID:  railAccountID,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
	})
	if idempotencyKey != "" {
		f.byIdemKey[idempotencyKey] = id
	}
	return id, nil
}

// Transfers returns a copy of all recorded transfers.
func (f *FakeRail) Transfers() []FakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeTransfer(nil), f.transfers...)
}
