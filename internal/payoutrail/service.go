package payoutrail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendora/paycore/internal/circuitbreaker"
	"github.com/vendora/paycore/internal/logging"
	"github.com/vendora/paycore/internal/metrics"
	"github.com/vendora/paycore/internal/traces"
)

// breakerKey guards all transfer calls to the rail. One key because
// rail health is global, not per seller.
const breakerKey = "rail_transfer"

// OnboardResult is the outcome of starting seller onboarding.
type OnboardResult struct {
	Account       *Account `json:"account"`
	OnboardingURL string   `json:"onboardingUrl"`
}

// Service coordinates the rail and the account directory.
type Service struct {
	rail       Rail
	dir        Directory
	breaker    *circuitbreaker.Breaker
	returnURL  string
	refreshURL string
}

// NewService creates a payout rail service.
func NewService(rail Rail, dir Directory, returnURL, refreshURL string) *Service {
	return &Service{
		rail:       rail,
		dir:        dir,
		breaker:    circuitbreaker.New(5, 30*time.Second),
		returnURL:  returnURL,
		refreshURL: refreshURL,
	}
}

// Onboard provisions a rail account for a seller (or reuses the
// existing one) and returns a fresh onboarding link.
func (s *Service) Onboard(ctx context.Context, accountID, email string) (*OnboardResult, error) {
	ctx, span := traces.StartSpan(ctx, "payoutrail.Onboard", traces.AccountID(accountID))
	defer span.End()

	acct, err := s.dir.Get(ctx, accountID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	if acct == nil {
		railID, err := s.rail.CreateAccount(ctx, email)
		if err != nil {
			metrics.PayoutRailRequestsTotal.WithLabelValues("create_account", "error").Inc()
			span.RecordError(err)
			return nil, fmt.Errorf("failed to create rail account: %w", err)
		}
		metrics.PayoutRailRequestsTotal.WithLabelValues("create_account", "ok").Inc()

		acct = &Account{
			AccountID:     accountID,
			RailAccountID: railID,
			Status:        StatusPending,
		}
		if err := s.dir.Create(ctx, acct); err != nil {
			if errors.Is(err, ErrAlreadyLinked) {
				// Lost a race with a concurrent onboard. The orphaned rail
				// account is harmless; use the winner's.
				logging.L(ctx).Warn("concurrent onboard, rail account orphaned",
					"account", accountID, "orphaned_rail_account", railID)
				acct, err = s.dir.Get(ctx, accountID)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
	}

	url, err := s.rail.OnboardingLink(ctx, acct.RailAccountID, s.returnURL, s.refreshURL)
	if err != nil {
		metrics.PayoutRailRequestsTotal.WithLabelValues("onboarding_link", "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create onboarding link: %w", err)
	}
	metrics.PayoutRailRequestsTotal.WithLabelValues("onboarding_link", "ok").Inc()

	return &OnboardResult{Account: acct, OnboardingURL: url}, nil
}

// Account returns the seller's payout account mapping.
func (s *Service) Account(ctx context.Context, accountID string) (*Account, error) {
	return s.dir.Get(ctx, accountID)
}

// RefreshStatus re-reads capability flags from the rail and stores them.
func (s *Service) RefreshStatus(ctx context.Context, accountID string) (*Account, error) {
	acct, err := s.dir.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	state, err := s.rail.AccountState(ctx, acct.RailAccountID)
	if err != nil {
		metrics.PayoutRailRequestsTotal.WithLabelValues("account_state", "error").Inc()
		return nil, fmt.Errorf("failed to fetch rail account state: %w", err)
	}
	metrics.PayoutRailRequestsTotal.WithLabelValues("account_state", "ok").Inc()

	if err := s.dir.UpdateState(ctx, acct.RailAccountID, state); err != nil {
		return nil, err
	}
	return s.dir.Get(ctx, accountID)
}

// PayoutsEnabled reports whether the seller can receive transfers.
// Returns ErrAccountNotFound when onboarding never started.
func (s *Service) PayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	acct, err := s.dir.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	return acct.PayoutsEnabled, nil
}

// Transfer sends amount to the seller's rail account. Calls go through
// the circuit breaker; when the rail is failing repeatedly the breaker
// rejects immediately with circuitbreaker.ErrOpen. The idempotency key
// makes the call safe to retry.
func (s *Service) Transfer(ctx context.Context, accountID, amount, currency, idempotencyKey string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "payoutrail.Transfer",
		traces.AccountID(accountID), traces.Amount(amount))
	defer span.End()

	acct, err := s.dir.Get(ctx, accountID)
	if err != nil {
		return "", err
	}

	var transferID string
	err = s.breaker.Do(breakerKey, func() error {
		var railErr error
		transferID, railErr = s.rail.CreateTransfer(ctx, acct.RailAccountID, amount, currency, idempotencyKey)
		return railErr
	})
	if err != nil {
		result := "error"
		if errors.Is(err, ErrAmbiguous) {
			result = "ambiguous"
		} else if errors.Is(err, circuitbreaker.ErrOpen) {
			result = "rejected"
		}
		metrics.PayoutRailRequestsTotal.WithLabelValues("transfer", result).Inc()
		span.RecordError(err)
		return "", err
	}

	metrics.PayoutRailRequestsTotal.WithLabelValues("transfer", "ok").Inc()
	span.SetAttributes(traces.TransferID(transferID))
	return transferID, nil
}

// HandleAccountUpdated applies a rail account.updated event to the
// directory. Events for unknown rail accounts are ignored.
func (s *Service) HandleAccountUpdated(ctx context.Context, railAccountID string, state *AccountState) error {
	err := s.dir.UpdateState(ctx, railAccountID, state)
	if errors.Is(err, ErrAccountNotFound) {
		logging.L(ctx).Debug("account.updated for unknown rail account", "rail_account", railAccountID)
		return nil
	}
	return err
}
