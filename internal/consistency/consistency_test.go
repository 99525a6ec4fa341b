package consistency

import (
	"sort"
	"testing"
)

func TestInvalidates_Table(t *testing.T) {
	tests := []struct {
		mutation Mutation
		want     []Collection
	}{
		{MutationAppendTransaction, []Collection{CollectionWallet, CollectionTransactions}},
		{MutationRequestWithdrawal, []Collection{CollectionWallet, CollectionWithdrawals}},
		{MutationApproveWithdrawal, []Collection{CollectionWallet, CollectionTransactions, CollectionWithdrawals}},
		{MutationRejectWithdrawal, []Collection{CollectionWallet, CollectionTransactions, CollectionWithdrawals}},
		{MutationEnableCreditTerm, []Collection{CollectionCreditTerms}},
		{MutationAuthorizeCreditOrder, []Collection{CollectionCreditTerms, CollectionWholesaleOrders}},
		{MutationSettleWholesaleOrder, []Collection{CollectionCreditTerms, CollectionWholesaleOrders}},
	}

	for _, tt := range tests {
		got := Invalidates(tt.mutation)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.mutation, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.mutation, got, tt.want)
				break
			}
		}
	}
}

func TestCoordinator_VersionsAdvance(t *testing.T) {
	c := NewCoordinator()

	if v := c.Version(CollectionWallet); v != 0 {
		t.Fatalf("fresh coordinator wallet version = %d", v)
	}

	c.Invalidate(MutationAppendTransaction)

	if v := c.Version(CollectionWallet); v != 1 {
		t.Errorf("wallet version = %d, want 1", v)
	}
	if v := c.Version(CollectionTransactions); v != 1 {
		t.Errorf("transactions version = %d, want 1", v)
	}
	if v := c.Version(CollectionWithdrawals); v != 0 {
		t.Errorf("withdrawals version = %d, want 0 (not in set)", v)
	}
}

func TestCoordinator_StaleDetection(t *testing.T) {
	c := NewCoordinator()
	snap := c.Snapshot()

	if stale := c.Stale(snap); len(stale) != 0 {
		t.Fatalf("expected no stale collections, got %v", stale)
	}

	c.Invalidate(MutationApproveWithdrawal)

	stale := c.Stale(snap)
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })

	want := []Collection{CollectionTransactions, CollectionWallet, CollectionWithdrawals}
	if len(stale) != len(want) {
		t.Fatalf("stale = %v, want %v", stale, want)
	}
	for i := range want {
		if stale[i] != want[i] {
			t.Fatalf("stale = %v, want %v", stale, want)
		}
	}

	// A fresh snapshot is clean again.
	if stale := c.Stale(c.Snapshot()); len(stale) != 0 {
		t.Errorf("fresh snapshot should not be stale, got %v", stale)
	}
}

func TestCoordinator_UnknownMutationIsNoop(t *testing.T) {
	c := NewCoordinator()
	snap := c.Snapshot()
	c.Invalidate(Mutation("unknown"))
	if stale := c.Stale(snap); len(stale) != 0 {
		t.Errorf("unknown mutation should not invalidate, got %v", stale)
	}
}
