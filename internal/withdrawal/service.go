package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendora/paycore/internal/consistency"
	"github.com/vendora/paycore/internal/idgen"
	"github.com/vendora/paycore/internal/logging"
	"github.com/vendora/paycore/internal/metrics"
	"github.com/vendora/paycore/internal/money"
	"github.com/vendora/paycore/internal/payoutrail"
	"github.com/vendora/paycore/internal/retry"
	"github.com/vendora/paycore/internal/traces"
	"github.com/vendora/paycore/internal/validation"
	"github.com/vendora/paycore/internal/wallet"
)

// WalletLedger is the wallet surface the withdrawal lifecycle needs.
// wallet.Service satisfies it.
type WalletLedger interface {
	AvailableBalance(ctx context.Context, accountID string) (string, error)
	Hold(ctx context.Context, accountID, amount string) error
	ReleaseHold(ctx context.Context, accountID, amount string) error
	SettleHold(ctx context.Context, accountID, amount, reference string) (*wallet.Transaction, error)
}

// PayoutGateway is the rail surface the withdrawal lifecycle needs.
// payoutrail.Service satisfies it.
type PayoutGateway interface {
	PayoutsEnabled(ctx context.Context, accountID string) (bool, error)
	Transfer(ctx context.Context, accountID, amount, currency, idempotencyKey string) (string, error)
}

// Invalidator marks read-model collections stale after a mutation.
type Invalidator interface {
	Invalidate(m consistency.Mutation)
}

// Service drives withdrawal requests through their lifecycle.
type Service struct {
	store     Store
	ledger    WalletLedger
	gateway   PayoutGateway
	inval     Invalidator
	minAmount string
	currency  string
}

// NewService creates a withdrawal service. minAmount is the smallest
// accepted withdrawal (decimal string).
func NewService(store Store, ledger WalletLedger, gateway PayoutGateway, inval Invalidator, minAmount, currency string) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		gateway:   gateway,
		inval:     inval,
		minAmount: minAmount,
		currency:  currency,
	}
}

// Request creates a pending withdrawal and places the wallet hold.
// The two writes are tied together by compensation: if the request
// row cannot be created the hold is released again.
func (s *Service) Request(ctx context.Context, accountID, amount string) (*Request, error) {
	ctx, span := traces.StartSpan(ctx, "withdrawal.Request",
		traces.AccountID(accountID), traces.Amount(amount))
	defer span.End()

	if !validation.IsValidAmount(amount) || !money.IsPositive(amount) {
		return nil, ErrInvalidAmount
	}
	if money.Cmp(amount, s.minAmount) < 0 {
		return nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, s.minAmount)
	}

	available, err := s.ledger.AvailableBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			// Nothing earned yet, so nothing can be withdrawn.
			return nil, ErrExceedsBalance
		}
		return nil, fmt.Errorf("failed to read available balance: %w", err)
	}
	if money.Cmp(amount, available) > 0 {
		return nil, ErrExceedsBalance
	}

	enabled, err := s.gateway.PayoutsEnabled(ctx, accountID)
	if err != nil {
		if errors.Is(err, payoutrail.ErrAccountNotFound) {
			return nil, ErrPayoutsDisabled
		}
		return nil, fmt.Errorf("failed to check payout capability: %w", err)
	}
	if !enabled {
		return nil, ErrPayoutsDisabled
	}

	// The hold re-checks the balance atomically; a racing request can
	// still lose here even after the check above passed.
	if err := s.ledger.Hold(ctx, accountID, amount); err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, ErrExceedsBalance
		}
		return nil, fmt.Errorf("failed to reserve funds: %w", err)
	}

	req := &Request{
		ID:        idgen.WithPrefix("wd_"),
		AccountID: accountID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, req); err != nil {
		// Compensate: the hold must not outlive the request.
		if relErr := s.ledger.ReleaseHold(ctx, accountID, amount); relErr != nil {
			logging.L(ctx).Error("CRITICAL: hold release failed after request create failure, funds stuck in pending",
				"account", accountID, "amount", amount, "error", relErr)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusPending)).Inc()
	s.inval.Invalidate(consistency.MutationRequestWithdrawal)
	return req, nil
}

// Approve moves a pending request to processing, asks the rail for
// the transfer, and on acceptance settles the hold into a payout
// transaction. The rail call happens outside any wallet lock.
//
// When the rail outcome is ambiguous the request STAYS in processing:
// the transfer may exist, so neither settling nor releasing the hold
// is safe. The webhook (ResolveTransfer) or an operator finishes the
// job. A clean rail failure reverts the request to pending.
func (s *Service) Approve(ctx context.Context, requestID string) (*Request, error) {
	ctx, span := traces.StartSpan(ctx, "withdrawal.Approve", traces.WithdrawalID(requestID))
	defer span.End()

	req, err := s.store.MarkProcessing(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// The request ID doubles as the rail idempotency key, so a retry
	// can never create a second transfer for the same withdrawal.
	var transferID string
	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		var railErr error
		transferID, railErr = s.gateway.Transfer(ctx, req.AccountID, req.Amount, req.Currency, req.ID)
		if railErr != nil && errors.Is(railErr, payoutrail.ErrAmbiguous) {
			// Unknown outcome: stop retrying, leave resolution to the webhook.
			return retry.Permanent(railErr)
		}
		return railErr
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, payoutrail.ErrAmbiguous) {
			logging.L(ctx).Warn("rail outcome ambiguous, request stays processing",
				"withdrawal", req.ID, "error", err)
			return nil, fmt.Errorf("%w: outcome unknown, request remains processing", ErrRailUnavailable)
		}
		// Clean failure: no transfer exists, safe to hand the request
		// back to the admin queue.
		if _, revErr := s.store.MarkPending(ctx, req.ID); revErr != nil {
			logging.L(ctx).Error("CRITICAL: failed to revert withdrawal to pending after rail failure",
				"withdrawal", req.ID, "error", revErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}

	return s.complete(ctx, req, transferID)
}

// complete marks the request completed and settles the hold. Called
// with a transfer that the rail has definitely accepted.
//
// The completion CAS runs before the ledger write. A redelivered
// webhook and an admin racing the webhook both land here; only the
// CAS winner may settle, so one withdrawal never produces two payout
// transactions.
func (s *Service) complete(ctx context.Context, req *Request, transferID string) (*Request, error) {
	completed, err := s.store.MarkCompleted(ctx, req.ID, transferID)
	if err != nil {
		if errors.Is(err, ErrStateConflict) {
			cur, getErr := s.store.Get(ctx, req.ID)
			if getErr == nil && cur.Status == StatusCompleted {
				// Another caller won the CAS and owns the settlement.
				return cur, nil
			}
		}
		return nil, err
	}

	if _, err := s.ledger.SettleHold(ctx, req.AccountID, req.Amount, req.ID); err != nil {
		// Compensate: put the request back in processing so a webhook
		// redelivery or an operator retries the settlement.
		if _, reopenErr := s.store.ReopenForSettlement(ctx, req.ID); reopenErr != nil {
			logging.L(ctx).Error("CRITICAL: settlement failed and request could not be reopened, manual reconciliation required",
				"withdrawal", req.ID, "transfer", transferID, "account", req.AccountID,
				"amount", req.Amount, "error", err, "reopenError", reopenErr)
		} else {
			logging.L(ctx).Error("transfer accepted but hold settlement failed, request reopened",
				"withdrawal", req.ID, "transfer", transferID, "error", err)
		}
		return nil, fmt.Errorf("transfer %s accepted but ledger settlement failed: %w", transferID, err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	s.inval.Invalidate(consistency.MutationApproveWithdrawal)
	return completed, nil
}

// Reject declines a pending request and releases its hold. Nothing is
// written to the wallet ledger.
func (s *Service) Reject(ctx context.Context, requestID, reason string) (*Request, error) {
	ctx, span := traces.StartSpan(ctx, "withdrawal.Reject", traces.WithdrawalID(requestID))
	defer span.End()

	if reason == "" {
		return nil, ErrEmptyReason
	}

	req, err := s.store.MarkRejected(ctx, requestID, reason)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.ReleaseHold(ctx, req.AccountID, req.Amount); err != nil {
		logging.L(ctx).Error("CRITICAL: hold release failed after rejection, funds stuck in pending",
			"withdrawal", req.ID, "account", req.AccountID, "amount", req.Amount, "error", err)
		return nil, fmt.Errorf("request rejected but hold release failed: %w", err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusRejected)).Inc()
	s.inval.Invalidate(consistency.MutationRejectWithdrawal)
	return req, nil
}

// Get returns one withdrawal request.
func (s *Service) Get(ctx context.Context, requestID string) (*Request, error) {
	return s.store.Get(ctx, requestID)
}

// List returns an account's withdrawal requests, newest first.
func (s *Service) List(ctx context.Context, accountID string, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, accountID, limit)
}

// ListByStatus returns the admin queue for one status.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrStateConflict, status)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, status, limit)
}

// ResolveTransfer applies an asynchronous rail outcome to a processing
// request. Idempotent: terminal requests are left untouched, so
// webhook redelivery and a racing admin approval are both harmless.
func (s *Service) ResolveTransfer(ctx context.Context, withdrawalID, transferID string, succeeded bool) error {
	req, err := s.store.Get(ctx, withdrawalID)
	if err != nil {
		return err
	}

	if req.Status.Terminal() {
		return nil
	}
	if req.Status != StatusProcessing {
		// A transfer event for a pending request means this node never
		// saw the rail accept it. Surface for investigation.
		return fmt.Errorf("%w: transfer %s reported for %s request %s",
			ErrStateConflict, transferID, req.Status, req.ID)
	}

	if !succeeded {
		logging.L(ctx).Warn("rail reported transfer failure, reverting to pending",
			"withdrawal", req.ID, "transfer", transferID)
		if _, err := s.store.MarkPending(ctx, req.ID); err != nil {
			return err
		}
		s.inval.Invalidate(consistency.MutationRequestWithdrawal)
		return nil
	}

	_, err = s.complete(ctx, req, transferID)
	return err
}
