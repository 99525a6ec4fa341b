// Package wallet implements the marketplace wallet ledger.
//
// Every seller account has one wallet. The balance is derived state: it
// is only ever moved by appending a ledger transaction, and each
// completed transaction records the balance before and after it so the
// full history replays to the current balance. Funds reserved by
// in-flight withdrawals sit in pending_balance and are excluded from
// the spendable amount.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/vendora/paycore/internal/money"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletInactive    = errors.New("wallet is not active")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrInvalidPeriod     = errors.New("invalid statistics period")
	ErrInsufficientFunds = errors.New("insufficient available balance")
)

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TypeCredit     TransactionType = "credit"     // earnings added to the balance
	TypeDebit      TransactionType = "debit"      // charges taken from the balance
	TypePayout     TransactionType = "payout"     // settled withdrawal to the payout rail
	TypeRefund     TransactionType = "refund"     // reversed charge returned to the balance
	TypeAdjustment TransactionType = "adjustment" // manual correction, additive
)

// TransactionStatus is the lifecycle state of a ledger transaction.
// Only completed transactions affect the balance; a completed
// transaction is immutable.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// ValidType reports whether t is a known transaction type.
func ValidType(t TransactionType) bool {
	switch t {
	case TypeCredit, TypeDebit, TypePayout, TypeRefund, TypeAdjustment:
		return true
	}
	return false
}

// Debits reports whether the type decreases the balance.
func (t TransactionType) Debits() bool {
	return t == TypeDebit || t == TypePayout
}

// Wallet is the balance-holding record for one account.
type Wallet struct {
	AccountID      string    `json:"accountId"`
	Balance        string    `json:"balance"`
	PendingBalance string    `json:"pendingBalance"` // reserved by in-flight withdrawals
	TotalEarned    string    `json:"totalEarned"`
	TotalPaidOut   string    `json:"totalPaidOut"`
	Currency       string    `json:"currency"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AvailableBalance is the spendable amount: balance minus pending holds.
func (w *Wallet) AvailableBalance() string {
	return money.Sub(w.Balance, w.PendingBalance)
}

// Transaction is one entry in the wallet ledger. Amount is always
// positive; the type carries the sign.
type Transaction struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"accountId"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Amount        string            `json:"amount"`
	BalanceBefore string            `json:"balanceBefore"`
	BalanceAfter  string            `json:"balanceAfter"`
	OrderID       string            `json:"orderId,omitempty"`
	ReferenceID   string            `json:"referenceId,omitempty"`
	Description   string            `json:"description,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	Type  TransactionType // empty = all types
	Limit int
}

// Statistics aggregates completed transactions over a period.
type Statistics struct {
	Period           string `json:"period"`
	TotalEarned      string `json:"totalEarned"`
	TotalPaidOut     string `json:"totalPaidOut"`
	TotalRefunded    string `json:"totalRefunded"`
	TotalAdjustments string `json:"totalAdjustments"`
	TransactionCount int    `json:"transactionCount"`
}

// ConnectAccount is the wallet view of the linked payout-rail account.
type ConnectAccount struct {
	AccountID      string `json:"accountId"`
	RailAccountID  string `json:"railAccountId"`
	Status         string `json:"status"`
	ChargesEnabled bool   `json:"chargesEnabled"`
	PayoutsEnabled bool   `json:"payoutsEnabled"`
}

// AccountProvider resolves the payout-rail account linked to a wallet,
// so wallet doesn't import the rail implementation. Implementations
// return (nil, nil) when no account is linked.
type AccountProvider interface {
	ConnectAccountFor(ctx context.Context, accountID string) (*ConnectAccount, error)
}

// Store persists wallets and their ledger.
//
// ApplyTransaction and SettleHold are atomic: the balance mutation and
// the ledger row are committed together or not at all, and both
// re-check fund sufficiency under the store's own serialization so the
// service-level lock is not the only line of defense.
type Store interface {
	GetWallet(ctx context.Context, accountID string) (*Wallet, error)
	CreateWallet(ctx context.Context, accountID, currency string) (*Wallet, error)

	// ApplyTransaction completes txn against the wallet: it fills in
	// BalanceBefore/BalanceAfter, marks it completed, moves the balance
	// and lifetime totals, and appends the ledger row.
	ApplyTransaction(ctx context.Context, txn *Transaction) (*Transaction, error)

	ListTransactions(ctx context.Context, accountID string, filter TransactionFilter) ([]*Transaction, error)
	Statistics(ctx context.Context, accountID string, since time.Time) (*Statistics, error)

	// Withdrawal hold lifecycle. AddHold reserves available funds into
	// pending_balance; ReleaseHold returns them; SettleHold converts the
	// hold into a completed payout transaction (balance and pending both
	// decrease, total_paid_out increases) in one atomic step.
	AddHold(ctx context.Context, accountID, amount string) error
	ReleaseHold(ctx context.Context, accountID, amount string) error
	SettleHold(ctx context.Context, accountID, amount, reference string) (*Transaction, error)
}
