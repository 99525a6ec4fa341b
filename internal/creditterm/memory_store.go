package creditterm

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/vendora/paycore/internal/money"
)

// MemoryStore is an in-memory credit-terms store for demo/development
// mode.
type MemoryStore struct {
	mu     sync.Mutex
	terms  map[string]*Term
	byPair map[string]*Term // grantorID + "\x00" + recipientID
	orders map[string]*Order
}

// NewMemoryStore creates a new in-memory credit-terms store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		terms:  make(map[string]*Term),
		byPair: make(map[string]*Term),
		orders: make(map[string]*Order),
	}
}

func pairKey(grantorID, recipientID string) string {
	return grantorID + "\x00" + recipientID
}

func (m *MemoryStore) GetTerm(ctx context.Context, id string) (*Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	term, ok := m.terms[id]
	if !ok {
		return nil, ErrTermNotFound
	}
	cp := *term
	return &cp, nil
}

func (m *MemoryStore) GetTermByPair(ctx context.Context, grantorID, recipientID string) (*Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	term, ok := m.byPair[pairKey(grantorID, recipientID)]
	if !ok {
		return nil, ErrTermNotFound
	}
	cp := *term
	return &cp, nil
}

func (m *MemoryStore) UpsertTerm(ctx context.Context, term *Term) (*Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := pairKey(term.GrantorID, term.RecipientID)

	if existing, ok := m.byPair[key]; ok {
		existing.PaymentMethod = term.PaymentMethod
		existing.CreditDays = term.CreditDays
		existing.CreditLimit = term.CreditLimit
		existing.IsActive = term.IsActive
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}

	cp := *term
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.terms[cp.ID] = &cp
	m.byPair[key] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) ListByGrantor(ctx context.Context, grantorID string, limit int) ([]*Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Term
	for _, term := range m.terms {
		if term.GrantorID != grantorID {
			continue
		}
		cp := *term
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *MemoryStore) AuthorizeOrder(ctx context.Context, order *Order) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return nil, ErrOrderExists
	}

	term, ok := m.terms[order.TermID]
	if !ok {
		return nil, ErrTermNotFound
	}

	if order.PaymentMethod == MethodCredit {
		used, _ := money.Parse(term.UsedCredit)
		limit, _ := money.Parse(term.CreditLimit)
		total, okAmt := money.Parse(order.Total)
		if !okAmt {
			return nil, ErrInvalidAmount
		}

		next := new(big.Int).Add(used, total)
		if next.Cmp(limit) > 0 {
			return nil, ErrCreditLimitExceeded
		}
		term.UsedCredit = money.Format(next)
		term.UpdatedAt = time.Now()
	}

	cp := *order
	m.orders[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) SettleOrder(ctx context.Context, orderID, paidAmount string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	// Replaying a settle on a paid order changes nothing.
	if order.PaymentStatus == PaymentPaid {
		cp := *order
		return &cp, nil
	}

	paid, _ := money.Parse(order.PaidAmount)
	add, okAmt := money.Parse(paidAmount)
	if !okAmt || add.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	total, _ := money.Parse(order.Total)

	paid.Add(paid, add)
	order.PaidAmount = money.Format(paid)

	if paid.Cmp(total) >= 0 {
		order.PaymentStatus = PaymentPaid
		if order.PaymentMethod == MethodCredit && !order.CreditReleased {
			if term, ok := m.terms[order.TermID]; ok {
				used, _ := money.Parse(term.UsedCredit)
				used.Sub(used, total)
				if used.Sign() < 0 {
					used.SetInt64(0)
				}
				term.UsedCredit = money.Format(used)
				term.UpdatedAt = time.Now()
			}
			order.CreditReleased = true
		}
	} else {
		order.PaymentStatus = PaymentPartial
	}

	cp := *order
	return &cp, nil
}
