package creditterm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendora/paycore/internal/consistency"
)

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(consistency.Mutation) {}

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	return NewService(NewMemoryStore(), noopInvalidator{}), context.Background()
}

func enableCredit(t *testing.T, svc *Service, ctx context.Context, limit string) *Term {
	t.Helper()
	term, err := svc.Enable(ctx, "supplier_1", "buyer_1", MethodCredit, 30, limit)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return term
}

func TestEnableValidation(t *testing.T) {
	svc, ctx := newTestService(t)

	if _, err := svc.Enable(ctx, "s", "b", "cod", 30, "100.00"); !errors.Is(err, ErrInvalidMethod) {
		t.Errorf("bad method error = %v, want ErrInvalidMethod", err)
	}
	if _, err := svc.Enable(ctx, "s", "b", MethodCredit, 0, "100.00"); !errors.Is(err, ErrInvalidDays) {
		t.Errorf("zero days error = %v, want ErrInvalidDays", err)
	}
	if _, err := svc.Enable(ctx, "s", "b", MethodCredit, 30, "-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative limit error = %v, want ErrInvalidAmount", err)
	}
}

func TestEnableIsIdempotentOnPair(t *testing.T) {
	svc, ctx := newTestService(t)

	first := enableCredit(t, svc, ctx, "500.00")
	svc.Authorize(ctx, first.ID, "ord_1", "200.00")

	// Re-enabling updates the arrangement but keeps the used credit.
	second, err := svc.Enable(ctx, "supplier_1", "buyer_1", MethodCredit, 45, "800.00")
	if err != nil {
		t.Fatalf("re-Enable: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a second term: %s vs %s", first.ID, second.ID)
	}
	if second.CreditDays != 45 || second.CreditLimit != "800.00" {
		t.Errorf("arrangement not updated: days=%d limit=%s", second.CreditDays, second.CreditLimit)
	}
	if second.UsedCredit != "200.00" {
		t.Errorf("usedCredit = %s, want 200.00 (preserved)", second.UsedCredit)
	}
}

func TestAuthorizeConsumesCredit(t *testing.T) {
	svc, ctx := newTestService(t)
	term := enableCredit(t, svc, ctx, "1000.00")

	// Consume most of the limit.
	if _, err := svc.Authorize(ctx, term.ID, "ord_1", "800.00"); err != nil {
		t.Fatalf("first Authorize: %v", err)
	}

	// 150 fits in the remaining 200.
	order, err := svc.Authorize(ctx, term.ID, "ord_2", "150.00")
	if err != nil {
		t.Fatalf("second Authorize: %v", err)
	}
	if order.DueDate == nil {
		t.Fatal("credit order has no due date")
	}
	if order.PaymentStatus != PaymentPending {
		t.Errorf("paymentStatus = %s, want pending", order.PaymentStatus)
	}

	current, _ := svc.Get(ctx, term.ID)
	if current.UsedCredit != "950.00" {
		t.Errorf("usedCredit = %s, want 950.00", current.UsedCredit)
	}

	// 100 does not fit in the remaining 50; used credit must not move.
	if _, err := svc.Authorize(ctx, term.ID, "ord_3", "100.00"); !errors.Is(err, ErrCreditLimitExceeded) {
		t.Fatalf("over-limit error = %v, want ErrCreditLimitExceeded", err)
	}
	current, _ = svc.Get(ctx, term.ID)
	if current.UsedCredit != "950.00" {
		t.Errorf("usedCredit after rejection = %s, want 950.00 (unchanged)", current.UsedCredit)
	}
}

func TestAuthorizeInactiveTerm(t *testing.T) {
	svc, ctx := newTestService(t)
	term := enableCredit(t, svc, ctx, "1000.00")

	// Disabling is an upsert with is_active = false.
	disabled := *term
	disabled.IsActive = false
	if _, err := svc.store.UpsertTerm(ctx, &disabled); err != nil {
		t.Fatalf("disable term: %v", err)
	}

	if _, err := svc.Authorize(ctx, term.ID, "ord_1", "10.00"); !errors.Is(err, ErrTermInactive) {
		t.Errorf("inactive term error = %v, want ErrTermInactive", err)
	}
}

func TestInstantOrdersBypassCredit(t *testing.T) {
	svc, ctx := newTestService(t)
	term, err := svc.Enable(ctx, "supplier_1", "buyer_1", MethodInstant, 0, "")
	if err != nil {
		t.Fatalf("Enable instant: %v", err)
	}

	order, err := svc.Authorize(ctx, term.ID, "ord_1", "5000.00")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if order.DueDate != nil {
		t.Error("instant order must not carry a due date")
	}

	current, _ := svc.Get(ctx, term.ID)
	if current.UsedCredit != "0.00" {
		t.Errorf("usedCredit = %s, want 0.00", current.UsedCredit)
	}
}

func TestSettleReleasesCreditExactlyOnce(t *testing.T) {
	svc, ctx := newTestService(t)
	term := enableCredit(t, svc, ctx, "1000.00")
	svc.Authorize(ctx, term.ID, "ord_1", "300.00")

	// Partial payment keeps the credit consumed.
	order, err := svc.Settle(ctx, "ord_1", "100.00")
	if err != nil {
		t.Fatalf("partial Settle: %v", err)
	}
	if order.PaymentStatus != PaymentPartial {
		t.Errorf("paymentStatus = %s, want partial", order.PaymentStatus)
	}
	current, _ := svc.Get(ctx, term.ID)
	if current.UsedCredit != "300.00" {
		t.Errorf("usedCredit after partial = %s, want 300.00", current.UsedCredit)
	}

	// Completing the payment releases the credit.
	order, err = svc.Settle(ctx, "ord_1", "200.00")
	if err != nil {
		t.Fatalf("final Settle: %v", err)
	}
	if order.PaymentStatus != PaymentPaid {
		t.Errorf("paymentStatus = %s, want paid", order.PaymentStatus)
	}
	current, _ = svc.Get(ctx, term.ID)
	if current.UsedCredit != "0.00" {
		t.Errorf("usedCredit after paid = %s, want 0.00", current.UsedCredit)
	}

	// Replaying the settle must not release credit again or grow the
	// paid amount.
	replayed, err := svc.Settle(ctx, "ord_1", "200.00")
	if err != nil {
		t.Fatalf("replayed Settle: %v", err)
	}
	if replayed.PaidAmount != "300.00" {
		t.Errorf("paidAmount after replay = %s, want 300.00", replayed.PaidAmount)
	}
	current, _ = svc.Get(ctx, term.ID)
	if current.UsedCredit != "0.00" {
		t.Errorf("usedCredit after replay = %s, want 0.00", current.UsedCredit)
	}
}

func TestOverdueIsDerivedAtReadTime(t *testing.T) {
	past := time.Now().AddDate(0, 0, -1)
	future := time.Now().AddDate(0, 0, 10)

	order := &Order{PaymentStatus: PaymentPending, DueDate: &past}
	if got := order.PaymentStatusAt(time.Now()); got != PaymentOverdue {
		t.Errorf("past-due pending = %s, want overdue", got)
	}

	order.PaymentStatus = PaymentPartial
	if got := order.PaymentStatusAt(time.Now()); got != PaymentOverdue {
		t.Errorf("past-due partial = %s, want overdue", got)
	}

	// Paid orders never read as overdue, regardless of the due date.
	order.PaymentStatus = PaymentPaid
	if got := order.PaymentStatusAt(time.Now()); got != PaymentPaid {
		t.Errorf("past-due paid = %s, want paid", got)
	}

	order = &Order{PaymentStatus: PaymentPending, DueDate: &future}
	if got := order.PaymentStatusAt(time.Now()); got != PaymentPending {
		t.Errorf("not-yet-due pending = %s, want pending", got)
	}

	// Instant orders have no due date and never go overdue.
	order = &Order{PaymentStatus: PaymentPending}
	if got := order.PaymentStatusAt(time.Now()); got != PaymentPending {
		t.Errorf("no due date = %s, want pending", got)
	}
}

func TestAuthorizeDuplicateOrder(t *testing.T) {
	svc, ctx := newTestService(t)
	term := enableCredit(t, svc, ctx, "1000.00")

	if _, err := svc.Authorize(ctx, term.ID, "ord_1", "100.00"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if _, err := svc.Authorize(ctx, term.ID, "ord_1", "100.00"); !errors.Is(err, ErrOrderExists) {
		t.Errorf("duplicate order error = %v, want ErrOrderExists", err)
	}
}
