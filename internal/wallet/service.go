package wallet

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/vendora/paycore/internal/consistency"
	"github.com/vendora/paycore/internal/idgen"
	"github.com/vendora/paycore/internal/metrics"
	"github.com/vendora/paycore/internal/money"
	"github.com/vendora/paycore/internal/syncutil"
	"github.com/vendora/paycore/internal/traces"
	"github.com/vendora/paycore/internal/validation"
)

// Invalidator marks read-model collections stale after a mutation.
type Invalidator interface {
	Invalidate(m consistency.Mutation)
}

// Service implements the wallet ledger business logic. All
// balance-affecting operations on one wallet are serialized through a
// per-account lock; reads go straight to the store.
type Service struct {
	store    Store
	accounts AccountProvider // optional
	inval    Invalidator
	locks    *syncutil.ContextShardedMutex
}

// NewService creates a wallet service.
func NewService(store Store, inval Invalidator) *Service {
	return &Service{
		store: store,
		inval: inval,
		locks: syncutil.NewContextShardedMutex(),
	}
}

// WithAccountProvider attaches a payout-rail account lookup for GetWallet.
func (s *Service) WithAccountProvider(p AccountProvider) *Service {
	s.accounts = p
	return s
}

// WalletView is the read model returned by GetWallet.
type WalletView struct {
	Wallet             *Wallet         `json:"wallet"`
	RecentTransactions []*Transaction  `json:"recentTransactions"`
	ConnectAccount     *ConnectAccount `json:"connectAccount,omitempty"`
}

// GetWallet returns the wallet, its most recent transactions, and the
// linked payout-rail account if one exists. The balance reflects only
// completed transactions.
func (s *Service) GetWallet(ctx context.Context, accountID string, recentLimit int) (*WalletView, error) {
	w, err := s.store.GetWallet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if recentLimit <= 0 {
		recentLimit = 10
	}
	txns, err := s.store.ListTransactions(ctx, accountID, TransactionFilter{Limit: recentLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}

	view := &WalletView{Wallet: w, RecentTransactions: txns}

	if s.accounts != nil {
		acct, err := s.accounts.ConnectAccountFor(ctx, accountID)
		if err == nil {
			view.ConnectAccount = acct
		}
		// A rail lookup failure degrades the view, it does not fail the read.
	}

	return view, nil
}

// EnsureWallet creates the wallet for an account if it does not exist.
func (s *Service) EnsureWallet(ctx context.Context, accountID, currency string) (*Wallet, error) {
	w, err := s.store.GetWallet(ctx, accountID)
	if err == nil {
		return w, nil
	}
	if err != ErrWalletNotFound {
		return nil, err
	}
	return s.store.CreateWallet(ctx, accountID, currency)
}

// AppendTransaction validates and appends a ledger transaction,
// returning it in completed state with balances filled in.
func (s *Service) AppendTransaction(ctx context.Context, accountID string, typ TransactionType, amount, reference, description string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "wallet.AppendTransaction",
		traces.AccountID(accountID), traces.Amount(amount))
	defer span.End()

	if !ValidType(typ) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if !validation.IsValidAmount(amount) || !money.IsPositive(amount) {
		return nil, fmt.Errorf("%w: amount must be a positive decimal", ErrInvalidAmount)
	}

	unlock, err := s.locks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := s.store.GetWallet(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !w.IsActive {
		return nil, ErrWalletInactive
	}

	if typ.Debits() && money.Cmp(amount, w.AvailableBalance()) > 0 {
		return nil, ErrInsufficientFunds
	}

	txn := &Transaction{
		ID:          idgen.WithPrefix("txn_"),
		AccountID:   accountID,
		Type:        typ,
		Status:      StatusPending,
		Amount:      amount,
		ReferenceID: reference,
		Description: description,
		CreatedAt:   time.Now(),
	}

	completed, err := s.store.ApplyTransaction(ctx, txn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply transaction failed")
		metrics.WalletTransactionsTotal.WithLabelValues(string(typ), string(StatusFailed)).Inc()
		return nil, err
	}

	metrics.WalletTransactionsTotal.WithLabelValues(string(typ), string(completed.Status)).Inc()
	s.inval.Invalidate(consistency.MutationAppendTransaction)

	return completed, nil
}

// Credit records earnings for an account (e.g. a completed order).
func (s *Service) Credit(ctx context.Context, accountID, amount, orderID, description string) (*Transaction, error) {
	return s.AppendTransaction(ctx, accountID, TypeCredit, amount, orderID, description)
}

// Refund returns a previously charged amount to the wallet.
func (s *Service) Refund(ctx context.Context, accountID, amount, orderID, description string) (*Transaction, error) {
	return s.AppendTransaction(ctx, accountID, TypeRefund, amount, orderID, description)
}

// ListTransactions returns ledger entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID string, filter TransactionFilter) ([]*Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Type != "" && !ValidType(filter.Type) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, filter.Type)
	}
	return s.store.ListTransactions(ctx, accountID, filter)
}

// GetStatistics aggregates completed transactions for a period:
// "day", "week", "month", "year", or "all". Pure read, no side effects.
func (s *Service) GetStatistics(ctx context.Context, accountID, period string) (*Statistics, error) {
	since, err := periodStart(period, time.Now())
	if err != nil {
		return nil, err
	}

	stats, err := s.store.Statistics(ctx, accountID, since)
	if err != nil {
		return nil, err
	}
	stats.Period = period
	return stats, nil
}

func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "year":
		return now.AddDate(-1, 0, 0), nil
	case "", "all":
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

// --- Withdrawal hold operations ---
//
// These are consumed by the withdrawal settlement component through its
// WalletLedger interface. They take the same per-account lock as
// AppendTransaction so holds and ledger writes never interleave.

// AvailableBalance returns the spendable amount for an account.
func (s *Service) AvailableBalance(ctx context.Context, accountID string) (string, error) {
	w, err := s.store.GetWallet(ctx, accountID)
	if err != nil {
		return "", err
	}
	return w.AvailableBalance(), nil
}

// Hold reserves amount from the available balance into pending.
func (s *Service) Hold(ctx context.Context, accountID, amount string) error {
	if !money.IsPositive(amount) {
		return ErrInvalidAmount
	}

	unlock, err := s.locks.LockContext(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.AddHold(ctx, accountID, amount)
}

// ReleaseHold returns a reserved amount to the available balance.
// The balance itself does not change.
func (s *Service) ReleaseHold(ctx context.Context, accountID, amount string) error {
	if !money.IsPositive(amount) {
		return ErrInvalidAmount
	}

	unlock, err := s.locks.LockContext(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.ReleaseHold(ctx, accountID, amount)
}

// SettleHold converts a reserved amount into a completed payout
// transaction and returns it.
func (s *Service) SettleHold(ctx context.Context, accountID, amount, reference string) (*Transaction, error) {
	if !money.IsPositive(amount) {
		return nil, ErrInvalidAmount
	}

	unlock, err := s.locks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	txn, err := s.store.SettleHold(ctx, accountID, amount, reference)
	if err != nil {
		return nil, err
	}

	metrics.WalletTransactionsTotal.WithLabelValues(string(TypePayout), string(txn.Status)).Inc()
	return txn, nil
}
