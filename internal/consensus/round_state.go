package consensus

import (
	"time"

	"github.com/artha-network/artha-core/internal/block"
)

// RoundState is the mutable progress of a single height: which round and
// step it is in, the current proposal, and the accumulated vote tallies.
// It is the "round_state" guarded region of spec.md §5's lock model.
type RoundState struct {
	Height    uint64
	Round     uint32
	Step      Step
	StartTime time.Time

	Proposal *Proposal

	prevotes   *voteSet
	precommits *voteSet

	// LockedBlock/LockedRound are slots for the Tendermint locking rule
	// (after precommitting a non-nil block, prevote only for that block in
	// later rounds of the height until a prevote quorum unlocks it). The
	// engine does not set or consult them, so no locking is enforced.
	LockedBlock *block.Block
	LockedRound int32 // -1 means unlocked

	ValidBlock *block.Block
	ValidRound int32
}

func newRoundState(height uint64, round uint32) *RoundState {
	return &RoundState{
		Height:      height,
		Round:       round,
		Step:        StepNewRound,
		StartTime:   time.Now().UTC(),
		prevotes:    newVoteSet(height, round),
		precommits:  newVoteSet(height, round),
		LockedRound: -1,
		ValidRound:  -1,
	}
}
