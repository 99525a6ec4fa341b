package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/vendora/paycore/internal/consistency"
	"github.com/vendora/paycore/internal/money"
)

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(consistency.Mutation) {}

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	svc := NewService(NewMemoryStore(), noopInvalidator{})
	return svc, context.Background()
}

func TestCreditIncreasesBalance(t *testing.T) {
	svc, ctx := newTestService(t)

	if _, err := svc.EnsureWallet(ctx, "acct_1", "USD"); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}

	txn, err := svc.Credit(ctx, "acct_1", "100.00", "order_1", "order completed")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if txn.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", txn.Status)
	}
	if txn.BalanceBefore != "0.00" || txn.BalanceAfter != "100.00" {
		t.Errorf("balances = %s -> %s, want 0.00 -> 100.00", txn.BalanceBefore, txn.BalanceAfter)
	}

	view, err := svc.GetWallet(ctx, "acct_1", 10)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Wallet.Balance != "100.00" {
		t.Errorf("balance = %s, want 100.00", view.Wallet.Balance)
	}
	if view.Wallet.TotalEarned != "100.00" {
		t.Errorf("totalEarned = %s, want 100.00", view.Wallet.TotalEarned)
	}
}

func TestDebitRequiresAvailableFunds(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")
	svc.Credit(ctx, "acct_1", "50.00", "", "")

	if _, err := svc.AppendTransaction(ctx, "acct_1", TypeDebit, "80.00", "", "fee"); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraw error = %v, want ErrInsufficientFunds", err)
	}

	txn, err := svc.AppendTransaction(ctx, "acct_1", TypeDebit, "30.00", "", "fee")
	if err != nil {
		t.Fatalf("debit within balance: %v", err)
	}
	if txn.BalanceAfter != "20.00" {
		t.Errorf("balanceAfter = %s, want 20.00", txn.BalanceAfter)
	}
}

func TestHoldsReduceAvailableNotBalance(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")
	svc.Credit(ctx, "acct_1", "100.00", "", "")

	if err := svc.Hold(ctx, "acct_1", "60.00"); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	avail, err := svc.AvailableBalance(ctx, "acct_1")
	if err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	if avail != "40.00" {
		t.Errorf("available = %s, want 40.00", avail)
	}

	view, _ := svc.GetWallet(ctx, "acct_1", 0)
	if view.Wallet.Balance != "100.00" {
		t.Errorf("balance = %s, want 100.00 (hold must not move balance)", view.Wallet.Balance)
	}

	// A debit beyond the available (but within balance) must fail.
	if _, err := svc.AppendTransaction(ctx, "acct_1", TypeDebit, "50.00", "", ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("debit against held funds = %v, want ErrInsufficientFunds", err)
	}

	// A second hold exceeding what's left must fail too.
	if err := svc.Hold(ctx, "acct_1", "50.00"); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("second hold error = %v, want ErrInsufficientFunds", err)
	}
}

func TestReleaseHoldRestoresAvailable(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")
	svc.Credit(ctx, "acct_1", "100.00", "", "")
	svc.Hold(ctx, "acct_1", "80.00")

	if err := svc.ReleaseHold(ctx, "acct_1", "80.00"); err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}

	avail, _ := svc.AvailableBalance(ctx, "acct_1")
	if avail != "100.00" {
		t.Errorf("available after release = %s, want 100.00", avail)
	}

	// No ledger entry is written for a hold round-trip.
	txns, _ := svc.ListTransactions(ctx, "acct_1", TransactionFilter{})
	if len(txns) != 1 {
		t.Errorf("transaction count = %d, want 1 (only the credit)", len(txns))
	}
}

func TestSettleHoldWritesPayoutTransaction(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")
	svc.Credit(ctx, "acct_1", "100.00", "", "")
	svc.Hold(ctx, "acct_1", "30.00")

	txn, err := svc.SettleHold(ctx, "acct_1", "30.00", "wd_abc")
	if err != nil {
		t.Fatalf("SettleHold: %v", err)
	}
	if txn.Type != TypePayout {
		t.Errorf("type = %s, want payout", txn.Type)
	}
	if txn.ReferenceID != "wd_abc" {
		t.Errorf("referenceId = %s, want wd_abc", txn.ReferenceID)
	}

	view, _ := svc.GetWallet(ctx, "acct_1", 0)
	if view.Wallet.Balance != "70.00" {
		t.Errorf("balance = %s, want 70.00", view.Wallet.Balance)
	}
	if view.Wallet.PendingBalance != "0.00" {
		t.Errorf("pending = %s, want 0.00", view.Wallet.PendingBalance)
	}
	if view.Wallet.TotalPaidOut != "30.00" {
		t.Errorf("totalPaidOut = %s, want 30.00", view.Wallet.TotalPaidOut)
	}
}

func TestBalanceReplaysFromLedger(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")

	svc.Credit(ctx, "acct_1", "200.00", "order_1", "")
	svc.AppendTransaction(ctx, "acct_1", TypeDebit, "45.50", "", "platform fee")
	svc.Refund(ctx, "acct_1", "10.00", "order_2", "")
	svc.AppendTransaction(ctx, "acct_1", TypeAdjustment, "5.25", "", "support correction")

	view, _ := svc.GetWallet(ctx, "acct_1", 0)
	w := view.Wallet

	// balance = total_earned - total_paid_out + adjustments
	adjustments := "5.25"
	replayed := money.Add(money.Sub(w.TotalEarned, w.TotalPaidOut), adjustments)
	if w.Balance != replayed {
		t.Errorf("balance %s does not replay: earned %s - paid %s + adj %s = %s",
			w.Balance, w.TotalEarned, w.TotalPaidOut, adjustments, replayed)
	}
	if w.Balance != "169.75" {
		t.Errorf("balance = %s, want 169.75", w.Balance)
	}

	// Each transaction's balanceAfter chains into the next balanceBefore.
	txns, _ := svc.ListTransactions(ctx, "acct_1", TransactionFilter{Limit: 10})
	for i := 0; i < len(txns)-1; i++ {
		if txns[i].BalanceBefore != txns[i+1].BalanceAfter {
			t.Errorf("chain break at %s: before=%s, previous after=%s",
				txns[i].ID, txns[i].BalanceBefore, txns[i+1].BalanceAfter)
		}
	}
}

func TestAppendTransactionValidation(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")

	if _, err := svc.AppendTransaction(ctx, "acct_1", "bogus", "10.00", "", ""); !errors.Is(err, ErrInvalidType) {
		t.Errorf("bogus type error = %v, want ErrInvalidType", err)
	}
	if _, err := svc.Credit(ctx, "acct_1", "-5.00", "", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Credit(ctx, "acct_1", "0.00", "", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Credit(ctx, "acct_missing", "10.00", "", ""); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("missing wallet error = %v, want ErrWalletNotFound", err)
	}
}

func TestStatisticsAggregation(t *testing.T) {
	svc, ctx := newTestService(t)
	svc.EnsureWallet(ctx, "acct_1", "USD")

	svc.Credit(ctx, "acct_1", "100.00", "", "")
	svc.Credit(ctx, "acct_1", "50.00", "", "")
	svc.AppendTransaction(ctx, "acct_1", TypeDebit, "20.00", "", "")
	svc.Refund(ctx, "acct_1", "15.00", "", "")

	stats, err := svc.GetStatistics(ctx, "acct_1", "all")
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalEarned != "150.00" {
		t.Errorf("totalEarned = %s, want 150.00", stats.TotalEarned)
	}
	if stats.TotalPaidOut != "20.00" {
		t.Errorf("totalPaidOut = %s, want 20.00", stats.TotalPaidOut)
	}
	if stats.TotalRefunded != "15.00" {
		t.Errorf("totalRefunded = %s, want 15.00", stats.TotalRefunded)
	}
	if stats.TransactionCount != 4 {
		t.Errorf("count = %d, want 4", stats.TransactionCount)
	}

	if _, err := svc.GetStatistics(ctx, "acct_1", "fortnight"); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("invalid period error = %v, want ErrInvalidPeriod", err)
	}
}

func TestEnsureWalletIsIdempotent(t *testing.T) {
	svc, ctx := newTestService(t)

	w1, err := svc.EnsureWallet(ctx, "acct_1", "USD")
	if err != nil {
		t.Fatalf("first EnsureWallet: %v", err)
	}
	svc.Credit(ctx, "acct_1", "25.00", "", "")

	w2, err := svc.EnsureWallet(ctx, "acct_1", "USD")
	if err != nil {
		t.Fatalf("second EnsureWallet: %v", err)
	}
	if w1.CreatedAt != w2.CreatedAt {
		t.Errorf("EnsureWallet recreated the wallet")
	}
	if w2.Balance != "25.00" {
		t.Errorf("balance = %s, want 25.00", w2.Balance)
	}
}
