package evidence

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/artha-network/artha-core/internal/validator"
)

func mustKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv
}

func sign(priv ed25519.PrivateKey, ev *Evidence) {
	ev.Signature = ed25519.Sign(priv, ev.SignBytes())
}

func TestDuplicateVoteSlash(t *testing.T) {
	pub, priv := mustKeyPair(t)
	vs := validator.NewSet([]*validator.Validator{validator.NewValidator(pub, 2000)})
	pool := NewPool(vs, 24*time.Hour, 2)

	now := time.Now()
	ev1 := &Evidence{EvidenceType: DuplicateVote, Validator: pub, Reporter: pub, Height: 5, Round: 0, Timestamp: now}
	sign(priv, ev1)
	ev2 := &Evidence{EvidenceType: DuplicateVote, Validator: pub, Reporter: pub, Height: 6, Round: 0, Timestamp: now}
	sign(priv, ev2)

	pool.Submit(ev1)
	pool.Submit(ev2)

	addr := validator.AddressFromPubKey(pub)
	v, ok := vs.ByAddress(addr)
	if !ok {
		t.Fatalf("validator missing")
	}
	if v.AccumulatedSlashes != 1 {
		t.Errorf("expected 1 accumulated slash, got %d", v.AccumulatedSlashes)
	}
	if v.VotingPower != 1000 {
		t.Errorf("expected voting power 2000-1000=1000, got %d", v.VotingPower)
	}
	if !v.IsJailed(now.Add(time.Hour)) {
		t.Errorf("expected validator jailed shortly after slash")
	}
}

func TestStaleEvidenceRejected(t *testing.T) {
	pub, priv := mustKeyPair(t)
	vs := validator.NewSet([]*validator.Validator{validator.NewValidator(pub, 100)})
	pool := NewPool(vs, 24*time.Hour, 2)

	ev := &Evidence{
		EvidenceType: InvalidVote,
		Validator:    pub,
		Reporter:     pub,
		Height:       10,
		Timestamp:    time.Now().Add(-25 * time.Hour),
	}
	sign(priv, ev)

	if pool.VerifyEvidence(ev, time.Now()) {
		t.Errorf("expected stale evidence to be rejected")
	}
}

func TestDuplicateEvidenceRejected(t *testing.T) {
	pub, priv := mustKeyPair(t)
	vs := validator.NewSet([]*validator.Validator{validator.NewValidator(pub, 100)})
	pool := NewPool(vs, 24*time.Hour, 5)

	ev := &Evidence{EvidenceType: InvalidVote, Validator: pub, Reporter: pub, Height: 1, Timestamp: time.Now()}
	sign(priv, ev)

	pool.Submit(ev)
	pool.ProcessEvidence(time.Now())

	ev2 := &Evidence{EvidenceType: InvalidVote, Validator: pub, Reporter: pub, Height: 1, Timestamp: time.Now()}
	sign(priv, ev2)
	if pool.VerifyEvidence(ev2, time.Now()) {
		t.Errorf("expected duplicate (type, validator, height) evidence to be rejected")
	}
}

func TestUnknownValidatorRejected(t *testing.T) {
	pub, priv := mustKeyPair(t)
	other, _ := mustKeyPair(t)
	vs := validator.NewSet([]*validator.Validator{validator.NewValidator(other, 100)})
	pool := NewPool(vs, 24*time.Hour, 2)

	ev := &Evidence{EvidenceType: InvalidVote, Validator: pub, Reporter: pub, Height: 1, Timestamp: time.Now()}
	sign(priv, ev)

	if pool.VerifyEvidence(ev, time.Now()) {
		t.Errorf("expected evidence against unknown validator to be rejected")
	}
}
