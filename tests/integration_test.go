// Package tests exercises the full commit path across packages: a
// transaction submitted to the mempool ends up in a committed block,
// applied to the state tree, and persisted to storage.
package tests

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/artha-network/artha-core/internal/block"
	"github.com/artha-network/artha-core/internal/consensus"
	"github.com/artha-network/artha-core/internal/evidence"
	"github.com/artha-network/artha-core/internal/keystore"
	"github.com/artha-network/artha-core/internal/mempool"
	"github.com/artha-network/artha-core/internal/validator"
	"github.com/artha-network/artha-core/pkg/merkle"

	"github.com/artha-network/artha-core/testutil"
)

// noopTransport discards broadcasts: a single-validator engine reaches
// quorum on its own vote and never needs to deliver anything to a peer.
type noopTransport struct{}

func (noopTransport) Broadcast(env *consensus.Envelope) error { return nil }

func TestTransactionReachesCommittedPersistedBlock(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	defer env.Close()

	signer, err := keystore.GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}
	vs := validator.NewSet([]*validator.Validator{validator.NewValidator(signer.PublicKey(), 100)})
	pool := evidence.NewPool(vs, 24*time.Hour, 2)

	mp := mempool.New()
	alice, err := keystore.GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}
	tx := &mempool.Transaction{ID: "tx-1", Sender: hex.EncodeToString(alice.PublicKey()), Recipient: "bob", Amount: 42, GasLimit: 1, GasPrice: 5}
	sig, err := alice.Sign(tx.SignBytes())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Signature = sig
	mp.Add(tx, tx.Fee())

	state := merkle.New()

	engine := consensus.NewEngine(consensus.Config{
		Signer:       signer,
		Validators:   vs,
		EvidencePool: pool,
		Mempool:      mp,
		State:        state,
		Transport:    noopTransport{},
		Store:        env.Store,
	})

	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if engine.CurrentHeight() != 2 {
		t.Fatalf("expected engine to advance to height 2 after committing height 1, got %d", engine.CurrentHeight())
	}

	commit, ok := engine.CommitAt(1)
	if !ok {
		t.Fatalf("expected a recorded commit at height 1")
	}
	if len(commit.Votes) != 1 {
		t.Errorf("expected a single-validator commit to carry 1 vote, got %d", len(commit.Votes))
	}

	if mp.Contains("tx-1") {
		t.Errorf("expected committed transaction to be removed from the mempool")
	}

	if state.Len() == 0 {
		t.Errorf("expected the committed transaction to have been applied to state")
	}

	raw := env.MustGet(context.Background(), []byte("block/1"))
	if raw == nil {
		t.Fatalf("expected block 1 to be persisted to storage")
	}
	var persisted block.Block
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("failed to unmarshal persisted block: %v", err)
	}
	if persisted.Header.Height != 1 {
		t.Errorf("expected persisted block height 1, got %d", persisted.Header.Height)
	}
	if len(persisted.Transactions) != 1 || persisted.Transactions[0].ID != "tx-1" {
		t.Errorf("expected persisted block to contain tx-1, got %v", persisted.Transactions)
	}

	latestRaw := env.MustGet(context.Background(), []byte("latest-block"))
	if latestRaw == nil {
		t.Fatalf("expected latest-block pointer to be persisted")
	}
}
