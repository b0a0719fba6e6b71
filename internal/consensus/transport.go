package consensus

import "github.com/artha-network/artha-core/internal/evidence"

// EnvelopeKind tags which consensus message an Envelope carries, per
// spec.md §4.6's five wire message variants.
type EnvelopeKind int

const (
	EnvelopeNewRound EnvelopeKind = iota
	EnvelopeProposal
	EnvelopeVote
	EnvelopeCommit
	EnvelopeEvidence
)

// Envelope is the transport-agnostic wrapper the engine hands to a
// Broadcaster and receives back through Engine.HandleEnvelope. Exactly one of the
// payload fields is populated, selected by Kind.
type Envelope struct {
	Kind EnvelopeKind

	NewRoundHeight uint64
	NewRoundRound  uint32

	Proposal *Proposal
	Vote     *Vote
	Commit   *Commit
	Evidence *evidence.Evidence
}

// Broadcaster is the C6 transport adapter's contract from the consensus
// engine's point of view: send a message to every peer. A concrete
// implementation (internal/gossip) is injected at construction so the
// engine never depends on libp2p directly.
type Broadcaster interface {
	Broadcast(env *Envelope) error
}
