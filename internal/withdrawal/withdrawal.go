// Package withdrawal implements the seller withdrawal state machine.
//
// A withdrawal request reserves its amount in the wallet the moment it
// is created and keeps exactly one hold alive until it reaches a
// terminal state: completed (hold settled into a payout transaction)
// or rejected (hold released, nothing written to the ledger). The
// rail transfer itself happens between pending and completed, in the
// processing state; a request stuck in processing means the rail
// outcome is not yet known and must be resolved by webhook or an
// operator, never by blind retry.
package withdrawal

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("withdrawal request not found")
	ErrInvalidAmount   = errors.New("invalid withdrawal amount")
	ErrBelowMinimum    = errors.New("amount below withdrawal minimum")
	ErrExceedsBalance  = errors.New("amount exceeds available balance")
	ErrPayoutsDisabled = errors.New("payouts are not enabled for this account")
	ErrEmptyReason     = errors.New("rejection reason is required")
	// ErrStateConflict means the request is not in the state the
	// transition requires. The caller sees the authoritative state by
	// re-reading the request.
	ErrStateConflict = errors.New("withdrawal state conflict")
	// ErrRailUnavailable means the payout rail did not accept the
	// transfer. The request stays in processing when the outcome is
	// ambiguous and reverts to pending when the failure was clean.
	ErrRailUnavailable = errors.New("payout rail unavailable")
)

// Status is the lifecycle state of a withdrawal request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Request is one withdrawal through its lifecycle.
type Request struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"accountId"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	TransferID      string     `json:"transferId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
}

// Store persists withdrawal requests. The Mark* methods are
// compare-and-set transitions: they succeed only from the named
// source state and return ErrStateConflict otherwise, so two admins
// approving the same request cannot both win.
type Store interface {
	Get(ctx context.Context, id string) (*Request, error)
	Create(ctx context.Context, req *Request) error
	List(ctx context.Context, accountID string, limit int) ([]*Request, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error)

	// MarkProcessing moves pending -> processing.
	MarkProcessing(ctx context.Context, id string) (*Request, error)
	// MarkCompleted moves processing -> completed, recording the rail
	// transfer ID and the processing timestamp.
	MarkCompleted(ctx context.Context, id, transferID string) (*Request, error)
	// MarkRejected moves pending -> rejected with a reason.
	MarkRejected(ctx context.Context, id, reason string) (*Request, error)
	// MarkPending moves processing -> pending (clean rail failure
	// before the transfer could have been created).
	MarkPending(ctx context.Context, id string) (*Request, error)
	// ReopenForSettlement moves completed -> processing when the ledger
	// settlement failed after the completion CAS. The transfer exists,
	// so a webhook redelivery or an operator retries the settlement.
	ReopenForSettlement(ctx context.Context, id string) (*Request, error)
}
