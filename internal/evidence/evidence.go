// Package evidence implements C3: buffering, verification, deduplication,
// and slashing of validator misbehavior evidence. It is intentionally
// independent of internal/consensus (imported by it, never the reverse),
// mirroring how the original Rust source keeps evidence/jailing as a
// security boundary separate from the consensus loop
// (original_source/artha-blockchain/src/security/{state,network}.rs).
package evidence

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

// Type classifies the kind of validator misbehavior an Evidence record
// attests to.
type Type string

const (
	DuplicateVote   Type = "DuplicateVote"
	InvalidVote     Type = "InvalidVote"
	InvalidProposal Type = "InvalidProposal"
	InvalidCommit   Type = "InvalidCommit"
)

// Evidence is a cryptographically verifiable record of misbehavior.
// Signature authenticates the report itself: it is produced by Reporter
// (the validator that observed and is submitting the misbehavior), not by
// Validator (the accused) — a Byzantine validator cannot be expected to
// countersign proof of its own fault. This mirrors the original Rust
// source's ConsensusMessage::Evidence, whose signature comes from the
// gossiping sender's message metadata, not from the accused voter named in
// the payload.
type Evidence struct {
	EvidenceType Type
	Validator    ed25519.PublicKey
	Reporter     ed25519.PublicKey
	Height       uint64
	Round        uint32
	Timestamp    time.Time
	Signature    []byte
}

// SignBytes returns the canonical ASCII payload the reporter signs:
// "{evidence_type}:{validator}:{height}:{round}".
func (e *Evidence) SignBytes() []byte {
	return []byte(fmt.Sprintf("%s:%x:%d:%d", e.EvidenceType, []byte(e.Validator), e.Height, e.Round))
}

// Key identifies an evidence record for the pool's uniqueness invariant:
// (type, validator, height) may appear at most once in the accepted pool.
type Key struct {
	EvidenceType Type
	Validator    string
	Height       uint64
}

func (e *Evidence) key() Key {
	return Key{EvidenceType: e.EvidenceType, Validator: string(e.Validator), Height: e.Height}
}

// SlashSpec captures the deterministic penalty for one evidence type.
type SlashSpec struct {
	SlashAmount  uint64
	JailDuration time.Duration
	MinCount     int
}

// DefaultSlashSpecs is the spec.md §4.3 default slashing table.
func DefaultSlashSpecs() map[Type]SlashSpec {
	return map[Type]SlashSpec{
		DuplicateVote: {SlashAmount: 1000, JailDuration: 24 * time.Hour, MinCount: 2},
		InvalidVote:   {SlashAmount: 5000, JailDuration: 72 * time.Hour, MinCount: 1},
	}
}
