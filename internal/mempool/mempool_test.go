package mempool

import "testing"

func tx(id string) *Transaction { return &Transaction{ID: id} }

func TestBoundInvariant(t *testing.T) {
	m := New(WithMaxSize(3))
	m.Add(tx("a"), 10)
	m.Add(tx("b"), 20)
	m.Add(tx("c"), 30)
	m.Add(tx("d"), 5)

	if got := m.Len(); got != 3 {
		t.Fatalf("expected bounded length 3, got %d", got)
	}
}

func TestEvictionPopsBeforePush(t *testing.T) {
	// spec.md §4.5/§9 quirk: the minimum is popped before the newcomer is
	// pushed, without comparing priorities, so a low-priority newcomer
	// displaces a higher-priority entry and becomes the new minimum.
	m := New(WithMaxSize(3))
	m.Add(tx("a"), 10)
	m.Add(tx("b"), 20)
	m.Add(tx("c"), 30)

	m.Add(tx("d"), 5)

	if m.Len() != 3 {
		t.Fatalf("expected length 3 after eviction, got %d", m.Len())
	}
	if m.Contains("a") {
		t.Errorf("expected original minimum (a, fee 10) to have been evicted")
	}
	if !m.Contains("d") {
		t.Errorf("expected newcomer d (fee 5) to occupy the freed slot under the pop-then-push quirk")
	}
}

func TestCompareBeforeEvictRejectsLowerPriorityNewcomer(t *testing.T) {
	m := New(WithMaxSize(3), CompareBeforeEvict(true))
	m.Add(tx("a"), 10)
	m.Add(tx("b"), 20)
	m.Add(tx("c"), 30)

	m.Add(tx("d"), 5)

	if m.Contains("d") {
		t.Errorf("expected low-priority newcomer to be rejected under CompareBeforeEvict")
	}
	if !m.Contains("a") {
		t.Errorf("expected existing minimum to survive when newcomer is rejected")
	}
}

func TestTopNOrdersByPriority(t *testing.T) {
	m := New(WithMaxSize(10))
	m.Add(tx("a"), 10)
	m.Add(tx("b"), 30)
	m.Add(tx("c"), 20)

	top := m.TopN(2)
	if len(top) != 2 || top[0].ID != "b" || top[1].ID != "c" {
		t.Fatalf("expected [b, c] in descending priority order, got %v", ids(top))
	}
	if m.Len() != 3 {
		t.Errorf("TopN must not remove transactions from the pool, got len %d", m.Len())
	}
}

func ids(txs []*Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestRemoveAndContains(t *testing.T) {
	m := New()
	m.Add(tx("a"), 1)
	if !m.Contains("a") {
		t.Fatalf("expected a to be present")
	}
	m.Remove("a")
	if m.Contains("a") {
		t.Errorf("expected a to be removed")
	}
}
