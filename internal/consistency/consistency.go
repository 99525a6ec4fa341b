// Package consistency defines the read-model consistency contract for
// paycore mutations.
//
// Every mutating operation invalidates a declared set of read-model
// collections. A caller that cached any collection in that set must
// treat it as stale the moment the mutation returns and re-fetch from
// the authoritative store before rendering a balance or making another
// authorization decision. No caller may locally adjust a cached
// balance, used_credit, or payment_status value; the source of truth is
// always the store's response to the mutation or the subsequent read.
package consistency

import (
	"sync"

	"github.com/vendora/paycore/internal/metrics"
)

// Collection names a cacheable read-model collection.
type Collection string

const (
	CollectionWallet          Collection = "wallet"
	CollectionTransactions    Collection = "transactions"
	CollectionWithdrawals     Collection = "withdrawals"
	CollectionCreditTerms     Collection = "credit_terms"
	CollectionWholesaleOrders Collection = "wholesale_orders"
)

// Mutation identifies a state-changing operation.
type Mutation string

const (
	MutationAppendTransaction    Mutation = "append_transaction"
	MutationRequestWithdrawal    Mutation = "request_withdrawal"
	MutationApproveWithdrawal    Mutation = "approve_withdrawal"
	MutationRejectWithdrawal     Mutation = "reject_withdrawal"
	MutationEnableCreditTerm     Mutation = "enable_credit_term"
	MutationAuthorizeCreditOrder Mutation = "authorize_credit_order"
	MutationSettleWholesaleOrder Mutation = "settle_wholesale_order"
)

// invalidationSets is the authoritative mutation → stale-collections table.
var invalidationSets = map[Mutation][]Collection{
	MutationAppendTransaction:    {CollectionWallet, CollectionTransactions},
	MutationRequestWithdrawal:    {CollectionWallet, CollectionWithdrawals},
	MutationApproveWithdrawal:    {CollectionWallet, CollectionTransactions, CollectionWithdrawals},
	MutationRejectWithdrawal:     {CollectionWallet, CollectionTransactions, CollectionWithdrawals},
	MutationEnableCreditTerm:     {CollectionCreditTerms},
	MutationAuthorizeCreditOrder: {CollectionCreditTerms, CollectionWholesaleOrders},
	MutationSettleWholesaleOrder: {CollectionCreditTerms, CollectionWholesaleOrders},
}

// Invalidates returns the collections a mutation marks stale. The
// returned slice is a copy; mutating it does not affect the table.
func Invalidates(m Mutation) []Collection {
	set := invalidationSets[m]
	out := make([]Collection, len(set))
	copy(out, set)
	return out
}

// Coordinator tracks a monotonically increasing version per collection.
// Read-model callers snapshot versions at fetch time and compare later
// to decide whether a re-fetch is required.
type Coordinator struct {
	mu       sync.RWMutex
	versions map[Collection]uint64
}

// NewCoordinator creates a coordinator with all collections at version 0.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		versions: map[Collection]uint64{
			CollectionWallet:          0,
			CollectionTransactions:    0,
			CollectionWithdrawals:     0,
			CollectionCreditTerms:     0,
			CollectionWholesaleOrders: 0,
		},
	}
}

// Invalidate bumps the version of every collection in the mutation's
// declared set. Services call this after a mutation commits, never before.
func (c *Coordinator) Invalidate(m Mutation) {
	set, ok := invalidationSets[m]
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, col := range set {
		c.versions[col]++
		metrics.ReadModelInvalidationsTotal.WithLabelValues(string(col)).Inc()
	}
}

// Version returns the current version of a collection.
func (c *Coordinator) Version(col Collection) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[col]
}

// Snapshot captures the current version of every collection.
func (c *Coordinator) Snapshot() map[Collection]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[Collection]uint64, len(c.versions))
	for col, v := range c.versions {
		snap[col] = v
	}
	return snap
}

// Stale returns the collections whose version has advanced past the
// snapshot. A non-empty result means the caller must re-fetch those
// collections before using them.
func (c *Coordinator) Stale(snapshot map[Collection]uint64) []Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var stale []Collection
	for col, snapped := range snapshot {
		if c.versions[col] > snapped {
			stale = append(stale, col)
		}
	}
	return stale
}
