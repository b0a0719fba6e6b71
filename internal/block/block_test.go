package block

import (
	"crypto/ed25519"
	"testing"

	"github.com/artha-network/artha-core/internal/mempool"
)

func TestTransactionRootEmptyIsZero(t *testing.T) {
	root := TransactionRoot(nil)
	if root != ([32]byte{}) {
		t.Errorf("expected zero root for an empty transaction list")
	}
}

func TestTransactionRootOddDuplication(t *testing.T) {
	txs := []*mempool.Transaction{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	root := TransactionRoot(txs)
	if root == ([32]byte{}) {
		t.Fatalf("expected a non-zero root for 3 transactions")
	}

	// Appending a 4th transaction must change the root (it is not just
	// re-duplicating the 3rd).
	withFourth := TransactionRoot(append(txs, &mempool.Transaction{ID: "d"}))
	if root == withFourth {
		t.Errorf("expected root to change when a 4th transaction is added")
	}
}

func TestHashDeterministic(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	var prev [32]byte
	b1 := New(pub, prev, 1, nil)
	b2 := *b1
	if b1.Hash() != b2.Hash() {
		t.Errorf("expected identical blocks to hash identically")
	}

	b3 := New(pub, prev, 2, nil)
	if b1.Hash() == b3.Hash() {
		t.Errorf("expected a different height to change the block hash")
	}
}
