// Package creditterm implements supplier credit terms for wholesale
// orders.
//
// A supplier grants a buyer payment terms: instant (pay on order) or
// credit (pay within N days up to a limit). Authorizing a credit
// order consumes limit headroom atomically; settling the order
// releases it exactly once. Overdue is never stored, it is derived
// from the due date at read time.
package creditterm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTermNotFound        = errors.New("credit term not found")
	ErrOrderNotFound       = errors.New("wholesale order not found")
	ErrTermInactive        = errors.New("credit term is not active")
	ErrCreditLimitExceeded = errors.New("order exceeds remaining credit")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrInvalidDays         = errors.New("credit days must be positive")
	ErrOrderExists         = errors.New("order already authorized")
)

// PaymentMethod is how a buyer pays under a term.
type PaymentMethod string

const (
	MethodInstant PaymentMethod = "instant"
	MethodCredit  PaymentMethod = "credit"
)

// ValidMethod reports whether m is a known payment method.
func ValidMethod(m PaymentMethod) bool {
	return m == MethodInstant || m == MethodCredit
}

// PaymentStatus is the settlement state of a wholesale order. Overdue
// is computed, never persisted; see Order.PaymentStatusAt.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue" // derived only
)

// Term is the credit arrangement between one supplier (grantor) and
// one buyer (recipient). At most one term exists per pair.
type Term struct {
	ID            string        `json:"id"`
	GrantorID     string        `json:"grantorId"`
	RecipientID   string        `json:"recipientId"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	CreditDays    int           `json:"creditDays"`
	CreditLimit   string        `json:"creditLimit"`
	UsedCredit    string        `json:"usedCredit"`
	IsActive      bool          `json:"isActive"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Order is a wholesale order authorized under a term.
type Order struct {
	ID            string        `json:"id"`
	TermID        string        `json:"termId"`
	BuyerID       string        `json:"buyerId"`
	SupplierID    string        `json:"supplierId"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	CreditDays    int           `json:"creditDays,omitempty"`
	DueDate       *time.Time    `json:"dueDate,omitempty"`
	Total         string        `json:"total"`
	PaidAmount    string        `json:"paidAmount"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	// CreditReleased guards settle idempotence: the term's used credit
	// is given back at most once per order.
	CreditReleased bool      `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PaymentStatusAt derives the effective payment status at now: an
// unpaid or partially paid credit order past its due date reads as
// overdue.
func (o *Order) PaymentStatusAt(now time.Time) PaymentStatus {
	if o.PaymentStatus == PaymentPaid {
		return PaymentPaid
	}
	if o.DueDate != nil && now.After(*o.DueDate) {
		return PaymentOverdue
	}
	return o.PaymentStatus
}

// Store persists terms and orders.
//
// AuthorizeOrder and SettleOrder are atomic: the used-credit bound
// check, the credit movement, and the order write commit together or
// not at all.
type Store interface {
	GetTerm(ctx context.Context, id string) (*Term, error)
	GetTermByPair(ctx context.Context, grantorID, recipientID string) (*Term, error)
	// UpsertTerm creates the (grantor, recipient) term or updates its
	// method, days, limit, and active flag. UsedCredit is preserved.
	UpsertTerm(ctx context.Context, term *Term) (*Term, error)
	ListByGrantor(ctx context.Context, grantorID string, limit int) ([]*Term, error)

	GetOrder(ctx context.Context, id string) (*Order, error)
	// AuthorizeOrder inserts the order; for credit orders it also
	// increments the term's used credit, failing with
	// ErrCreditLimitExceeded when used + total would pass the limit.
	AuthorizeOrder(ctx context.Context, order *Order) (*Order, error)
	// SettleOrder adds paidAmount to the order's cumulative paid total
	// and moves it to partial or paid. On the transition to paid it
	// releases the order's credit back to the term, exactly once.
	SettleOrder(ctx context.Context, orderID, paidAmount string) (*Order, error)
}
