// Package validator holds the validator set: voting power, proposer
// priority, and the genesis/Add/Remove/UpdateVotingPower update pipeline.
// Grounded on the teacher's internal/consensus validator bookkeeping
// (rechain/internal/consensus/consensus.go kept a bare []string of
// validator IDs; this package generalizes that into the full weighted,
// sluggable set spec.md §3/§4.2 requires).
package validator

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"
)

// Validator is one member of the active set.
type Validator struct {
	Address            string // hex of PublicKey
	PublicKey          ed25519.PublicKey
	VotingPower        uint64
	ProposerPriority   int64
	JailedUntil        *time.Time
	AccumulatedSlashes uint32
	LastHeight         uint64
	LastRound          uint32
}

// NewValidator builds a Validator from a raw Ed25519 public key.
func NewValidator(pub ed25519.PublicKey, votingPower uint64) *Validator {
	return &Validator{
		Address:     AddressFromPubKey(pub),
		PublicKey:   append(ed25519.PublicKey(nil), pub...),
		VotingPower: votingPower,
	}
}

// AddressFromPubKey derives a validator's address: the hex of its public key.
func AddressFromPubKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// IsJailed reports whether the validator is jailed as of now.
func (v *Validator) IsJailed(now time.Time) bool {
	return v.JailedUntil != nil && v.JailedUntil.After(now)
}

// EverJailed reports whether the validator has ever been jailed, which
// feeds the 0.5x performance-factor penalty even after the jail expires.
func (v *Validator) EverJailed() bool {
	return v.JailedUntil != nil
}

// Clone returns a deep copy, so callers can safely mutate snapshots
// returned from read-only set accessors.
func (v *Validator) Clone() *Validator {
	cp := *v
	cp.PublicKey = append(ed25519.PublicKey(nil), v.PublicKey...)
	if v.JailedUntil != nil {
		t := *v.JailedUntil
		cp.JailedUntil = &t
	}
	return &cp
}
