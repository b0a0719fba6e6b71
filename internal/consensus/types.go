// Package consensus implements C1: the height/round/step state machine
// that drives proposer selection, vote tallying, and commit finalization.
// Grounded on rechain/internal/consensus/consensus.go's Step/Propose/
// Prevote/Precommit/Commit shape, generalized to the full validator-set-
// weighted BFT protocol of spec.md §4.1.
package consensus

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/artha-network/artha-core/internal/block"
)

// Step is the phase within a round.
type Step int

const (
	StepNewHeight Step = iota
	StepNewRound
	StepPropose
	StepPrevote
	StepPrecommit
	StepCommit
)

func (s Step) String() string {
	switch s {
	case StepNewHeight:
		return "NewHeight"
	case StepNewRound:
		return "NewRound"
	case StepPropose:
		return "Propose"
	case StepPrevote:
		return "Prevote"
	case StepPrecommit:
		return "Precommit"
	case StepCommit:
		return "Commit"
	default:
		return "Unknown"
	}
}

// VoteType distinguishes a prevote from a precommit; the two are tallied
// against independent voteSets even within the same height/round.
type VoteType int

const (
	Prevote VoteType = iota
	Precommit
)

func (t VoteType) String() string {
	if t == Precommit {
		return "Precommit"
	}
	return "Prevote"
}

// Vote is a validator's prevote or precommit for a block (or nil, when
// BlockHash is empty) at a given height/round.
type Vote struct {
	Type      VoteType
	Validator ed25519.PublicKey
	Height    uint64
	Round     uint32
	BlockHash []byte // empty means a nil-vote
	Timestamp time.Time
	Signature []byte
}

// SignBytes is the canonical payload a Vote's Signature covers:
// "{height}:{round}:{hex(block_hash)}", matching
// original_source/artha-blockchain/src/consensus/mod.rs's create_vote
// exactly (no type tag) so vote signatures verify the same way across
// implementations.
func (v *Vote) SignBytes() []byte {
	return []byte(fmt.Sprintf("%d:%d:%s", v.Height, v.Round, hex.EncodeToString(v.BlockHash)))
}

// IsNil reports whether this is a nil-vote (no block).
func (v *Vote) IsNil() bool { return len(v.BlockHash) == 0 }

// Proposal is a proposer's submitted block for a height/round.
type Proposal struct {
	Proposer  ed25519.PublicKey
	Height    uint64
	Round     uint32
	Block     *block.Block
	Timestamp time.Time
	Signature []byte
}

// SignBytes is the canonical payload a Proposal's Signature covers:
// "{height}:{round}:{hex(block_hash)}" where block_hash =
// SHA256(canonical_header_bytes).
func (p *Proposal) SignBytes() []byte {
	hash := p.Block.Hash()
	return []byte(fmt.Sprintf("%d:%d:%s", p.Height, p.Round, hex.EncodeToString(hash[:])))
}

// Commit is the quorum of votes that finalized a block at a height/round.
type Commit struct {
	Height    uint64
	Round     uint32
	BlockHash []byte
	Votes     []*Vote
	Timestamp time.Time
	Signature []byte
}

// SignBytes is the canonical payload a Commit's own Signature covers:
// "{height}:{hex(block_hash)}".
func (c *Commit) SignBytes() []byte {
	return []byte(fmt.Sprintf("%d:%s", c.Height, hex.EncodeToString(c.BlockHash)))
}
