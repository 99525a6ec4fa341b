// Package payoutrail moves settled funds out of the platform.
//
// The rail is Stripe Connect in production and an in-memory fake in
// demo mode. Each seller account maps to at most one rail account; the
// Directory stores that mapping together with the rail's capability
// flags, refreshed from webhooks and on-demand status checks.
package payoutrail

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("payout account not found")
	ErrAlreadyLinked   = errors.New("account already has a payout account")
	// ErrAmbiguous means the rail call may or may not have gone through
	// (timeout, connection drop after send). Callers must not assume
	// failure; retrying with the same idempotency key is the only safe
	// follow-up.
	ErrAmbiguous = errors.New("rail outcome unknown")
)

// AccountStatus is the onboarding state of a rail account.
type AccountStatus string

const (
	StatusPending    AccountStatus = "pending"
	StatusActive     AccountStatus = "active"
	StatusRestricted AccountStatus = "restricted"
)

// Account links a seller account to its rail account.
type Account struct {
	AccountID        string        `json:"accountId"`
	RailAccountID    string        `json:"railAccountId"`
	Status           AccountStatus `json:"status"`
	ChargesEnabled   bool          `json:"chargesEnabled"`
	PayoutsEnabled   bool          `json:"payoutsEnabled"`
	DetailsSubmitted bool          `json:"detailsSubmitted"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// AccountState is the rail's current view of an account's capabilities.
type AccountState struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// Rail is the external money-movement provider.
type Rail interface {
	// CreateAccount provisions a new rail account and returns its ID.
	// Email is optional and prefills the rail's onboarding form.
	CreateAccount(ctx context.Context, email string) (string, error)

	// OnboardingLink returns a URL where the seller completes KYC.
	OnboardingLink(ctx context.Context, railAccountID, returnURL, refreshURL string) (string, error)

	// AccountState fetches the rail's capability flags for an account.
	AccountState(ctx context.Context, railAccountID string) (*AccountState, error)

	// CreateTransfer sends amount (decimal string) to a rail account.
	// The idempotency key makes retries safe: the rail executes the
	// transfer at most once per key. Returns ErrAmbiguous when the
	// outcome cannot be determined.
	CreateTransfer(ctx context.Context, railAccountID, amount, currency, idempotencyKey string) (transferID string, err error)
}

// Directory persists the seller-to-rail account mapping.
type Directory interface {
	Get(ctx context.Context, accountID string) (*Account, error)
	GetByRailID(ctx context.Context, railAccountID string) (*Account, error)
	Create(ctx context.Context, acct *Account) error
	UpdateState(ctx context.Context, railAccountID string, state *AccountState) error
}

func statusFromState(state *AccountState) AccountStatus {
	switch {
	case state.PayoutsEnabled:
		return StatusActive
	case state.DetailsSubmitted:
		return StatusRestricted
	default:
		return StatusPending
	}
}
