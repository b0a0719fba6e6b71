package consensus

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/artha-network/artha-core/internal/evidence"
	"github.com/artha-network/artha-core/internal/keystore"
	"github.com/artha-network/artha-core/internal/mempool"
	"github.com/artha-network/artha-core/internal/validator"
	"github.com/artha-network/artha-core/pkg/merkle"
)

// signedTx builds a transaction signed by sender, so it survives the
// engine's transaction-signature verification.
func signedTx(t *testing.T, sender *keystore.InMemorySigner, id string) *mempool.Transaction {
	t.Helper()
	tx := &mempool.Transaction{ID: id, Sender: hex.EncodeToString(sender.PublicKey())}
	sig, err := sender.Sign(tx.SignBytes())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Signature = sig
	return tx
}

// fakeNetwork wires a set of engines' Broadcaster calls directly into each
// other's HandleEnvelope, synchronously, standing in for internal/gossip in
// these in-process tests.
type fakeNetwork struct {
	engines map[string]*Engine
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{engines: make(map[string]*Engine)}
}

type fakeTransport struct {
	self string
	net  *fakeNetwork
}

func (t *fakeTransport) Broadcast(env *Envelope) error {
	for addr, eng := range t.net.engines {
		if addr == t.self {
			continue
		}
		eng.HandleEnvelope(env) //nolint:errcheck // routing to peers best-effort, like real gossip
	}
	return nil
}

func buildEngine(t *testing.T, net *fakeNetwork, votingPower uint64, allValidators []*validator.Validator, policy QuorumPolicy) (*Engine, string) {
	t.Helper()
	signer, err := keystore.GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}
	addr := validator.AddressFromPubKey(signer.PublicKey())

	vs := validator.NewSet(allValidators)
	pool := evidence.NewPool(vs, 24*time.Hour, 2)
	mp := mempool.New()
	state := merkle.New()
	transport := &fakeTransport{self: addr, net: net}

	eng := NewEngine(Config{
		Signer:       signer,
		Validators:   vs,
		EvidencePool: pool,
		Mempool:      mp,
		State:        state,
		Transport:    transport,
		Policy:       policy,
	})
	net.engines[addr] = eng
	return eng, addr
}

func TestSingleValidatorHappyPath(t *testing.T) {
	net := newFakeNetwork()

	// Build the one validator's identity first so its public key can seed
	// the shared validator list every engine (here, just the one) is
	// constructed with.
	signer, err := keystore.GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}
	validators := []*validator.Validator{validator.NewValidator(signer.PublicKey(), 100)}

	vs := validator.NewSet(validators)
	pool := evidence.NewPool(vs, 24*time.Hour, 2)
	mp := mempool.New()
	mp.Add(signedTx(t, signer, "tx-1"), 10)
	state := merkle.New()
	addr := validator.AddressFromPubKey(signer.PublicKey())
	transport := &fakeTransport{self: addr, net: net}

	eng := NewEngine(Config{
		Signer:       signer,
		Validators:   vs,
		EvidencePool: pool,
		Mempool:      mp,
		State:        state,
		Transport:    transport,
	})
	net.engines[addr] = eng

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if eng.CurrentHeight() != 2 {
		t.Fatalf("expected engine to have advanced to height 2 after committing height 1, got %d", eng.CurrentHeight())
	}
	commit, ok := eng.CommitAt(1)
	if !ok {
		t.Fatalf("expected a commit recorded for height 1")
	}
	if len(commit.Votes) != 1 {
		t.Errorf("expected exactly 1 precommit in a single-validator commit, got %d", len(commit.Votes))
	}
}

func TestFourValidatorThreeOfFourQuorum(t *testing.T) {
	net := newFakeNetwork()

	signers := make([]*keystore.InMemorySigner, 4)
	validators := make([]*validator.Validator, 4)
	for i := range signers {
		s, err := keystore.GenerateInMemorySigner()
		if err != nil {
			t.Fatalf("GenerateInMemorySigner: %v", err)
		}
		signers[i] = s
		validators[i] = validator.NewValidator(s.PublicKey(), 100)
	}

	engines := make([]*Engine, 4)
	for i, s := range signers {
		addr := validator.AddressFromPubKey(s.PublicKey())
		vs := validator.NewSet(validators)
		pool := evidence.NewPool(vs, 24*time.Hour, 2)
		mp := mempool.New()
		state := merkle.New()
		transport := &fakeTransport{self: addr, net: net}

		eng := NewEngine(Config{
			Signer:       s,
			Validators:   vs,
			EvidencePool: pool,
			Mempool:      mp,
			State:        state,
			Transport:    transport,
		})
		net.engines[addr] = eng
		engines[i] = eng
	}

	// Only the proposer needs to Start explicitly; the others react to its
	// broadcast proposal exactly as a live network would deliver it.
	proposerAddr, err := engines[0].validators.Proposer()
	if err != nil {
		t.Fatalf("Proposer: %v", err)
	}
	var proposerEngine *Engine
	for addr, eng := range net.engines {
		if addr == proposerAddr.Address {
			proposerEngine = eng
		}
	}
	if proposerEngine == nil {
		t.Fatalf("could not locate proposer engine")
	}
	if err := proposerEngine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i, eng := range engines {
		if eng.CurrentHeight() != 2 {
			t.Errorf("engine %d: expected height 2 after commit, got %d", i, eng.CurrentHeight())
		}
		if _, ok := eng.CommitAt(1); !ok {
			t.Errorf("engine %d: expected a recorded commit for height 1", i)
		}
	}
}
