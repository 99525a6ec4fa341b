package creditterm

import (
	"context"
	"fmt"
	"time"

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

// Service implements credit-terms business logic. Credit movements on
// one term are serialized through a per-term lock on top of the
// store's own atomicity.
type Service struct {
	store Store
	inval Invalidator
	locks *syncutil.ContextShardedMutex
}

// NewService creates a credit-terms service.
func NewService(store Store, inval Invalidator) *Service {
	return &Service{
		store: store,
		inval: inval,
		locks: syncutil.NewContextShardedMutex(),
	}
}

// Enable creates or updates the term between grantor and recipient.
// Idempotent on the pair: repeated calls update the arrangement and
// keep the used credit.
func (s *Service) Enable(ctx context.Context, grantorID, recipientID string, method PaymentMethod, creditDays int, creditLimit string) (*Term, error) {
	ctx, span := traces.StartSpan(ctx, "creditterm.Enable", traces.AccountID(grantorID))
	defer span.End()

	if !ValidMethod(method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if method == MethodCredit {
		if creditDays <= 0 {
			return nil, ErrInvalidDays
		}
		if !validation.IsValidAmount(creditLimit) {
			return nil, fmt.Errorf("%w: credit limit must be a non-negative decimal", ErrInvalidAmount)
		}
	} else {
		creditDays = 0
		creditLimit = money.Zero
	}

	term := &Term{
		ID:            idgen.WithPrefix("ct_"),
		GrantorID:     grantorID,
		RecipientID:   recipientID,
		PaymentMethod: method,
		CreditDays:    creditDays,
		CreditLimit:   creditLimit,
		UsedCredit:    money.Zero,
		IsActive:      true,
	}

	saved, err := s.store.UpsertTerm(ctx, term)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.inval.Invalidate(consistency.MutationEnableCreditTerm)
	return saved, nil
}

// Get returns one term.
func (s *Service) Get(ctx context.Context, termID string) (*Term, error) {
	return s.store.GetTerm(ctx, termID)
}

// ListByGrantor returns the terms a supplier has granted.
func (s *Service) ListByGrantor(ctx context.Context, grantorID string, limit int) ([]*Term, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByGrantor(ctx, grantorID, limit)
}

// Authorize admits a wholesale order under a term. Credit orders
// consume limit headroom and get a due date of now + credit days;
// instant orders pass through without touching the credit.
func (s *Service) Authorize(ctx context.Context, termID, orderID, total string) (*Order, error) {
	ctx, span := traces.StartSpan(ctx, "creditterm.Authorize",
		traces.CreditTermID(termID), traces.OrderID(orderID), traces.Amount(total))
	defer span.End()

	if !validation.IsValidAmount(total) || !money.IsPositive(total) {
		return nil, fmt.Errorf("%w: total must be a positive decimal", ErrInvalidAmount)
	}

	unlock, err := s.locks.LockContext(ctx, termID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	term, err := s.store.GetTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !term.IsActive {
		metrics.CreditAuthorizationsTotal.WithLabelValues("rejected_inactive").Inc()
		return nil, ErrTermInactive
	}

	order := &Order{
		ID:            orderID,
		TermID:        term.ID,
		BuyerID:       term.RecipientID,
		SupplierID:    term.GrantorID,
		PaymentMethod: term.PaymentMethod,
		Total:         total,
		PaidAmount:    money.Zero,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	if order.ID == "" {
		order.ID = idgen.WithPrefix("ord_")
	}
	if term.PaymentMethod == MethodCredit {
		order.CreditDays = term.CreditDays
		due := time.Now().AddDate(0, 0, term.CreditDays)
		order.DueDate = &due
	}

	authorized, err := s.store.AuthorizeOrder(ctx, order)
	if err != nil {
		span.RecordError(err)
		if err == ErrCreditLimitExceeded {
			metrics.CreditAuthorizationsTotal.WithLabelValues("rejected_limit").Inc()
		}
		return nil, err
	}

	metrics.CreditAuthorizationsTotal.WithLabelValues("authorized").Inc()
	s.inval.Invalidate(consistency.MutationAuthorizeCreditOrder)
	return authorized, nil
}

// Settle records a payment against an order. Payments accumulate;
// reaching the total releases the order's credit back to the term
// exactly once, so replaying a settle is harmless.
func (s *Service) Settle(ctx context.Context, orderID, paidAmount string) (*Order, error) {
	ctx, span := traces.StartSpan(ctx, "creditterm.Settle",
		traces.OrderID(orderID), traces.Amount(paidAmount))
	defer span.End()

	if !validation.IsValidAmount(paidAmount) || !money.IsPositive(paidAmount) {
		return nil, fmt.Errorf("%w: paid amount must be a positive decimal", ErrInvalidAmount)
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, order.TermID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	settled, err := s.store.SettleOrder(ctx, orderID, paidAmount)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.inval.Invalidate(consistency.MutationSettleWholesaleOrder)
	return settled, nil
}

// GetOrder returns an order with its payment status derived at now.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.PaymentStatus = order.PaymentStatusAt(time.Now())
	return order, nil
}
