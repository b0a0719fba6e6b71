package consensus

import (
	"bytes"
	"time"

	"github.com/artha-network/artha-core/internal/evidence"
	"github.com/artha-network/artha-core/internal/validator"
)

// voteSet accumulates prevotes or precommits for a single height/round,
// keyed by validator address. spec.md's REDESIGN FLAGS resolve the vote-map
// keying ambiguity in favor of keeping the FIRST vote a validator casts and
// reporting any conflicting later vote as DuplicateVote evidence, rather
// than silently overwriting it.
type voteSet struct {
	height uint64
	round  uint32
	byAddr map[string]*Vote
}

func newVoteSet(height uint64, round uint32) *voteSet {
	return &voteSet{height: height, round: round, byAddr: make(map[string]*Vote)}
}

// observe records vote, returning the DuplicateVote evidence to submit if
// the validator had already voted differently this height/round, or nil if
// this is either the validator's first vote or an identical repeat.
func (vs *voteSet) observe(vote *Vote) *evidence.Evidence {
	addr := validator.AddressFromPubKey(vote.Validator)
	existing, ok := vs.byAddr[addr]
	if !ok {
		vs.byAddr[addr] = vote
		return nil
	}
	if bytes.Equal(existing.BlockHash, vote.BlockHash) {
		return nil
	}
	return &evidence.Evidence{
		EvidenceType: evidence.DuplicateVote,
		Validator:    vote.Validator,
		Height:       vote.Height,
		Round:        vote.Round,
		Timestamp:    time.Now().UTC(),
	}
}

// powerFor sums the voting power of every validator whose recorded vote
// matches blockHash (pass nil for a nil-vote tally).
func (vs *voteSet) powerFor(blockHash []byte, vset *validator.Set) uint64 {
	var total uint64
	for addr, v := range vs.byAddr {
		if !bytes.Equal(v.BlockHash, blockHash) {
			continue
		}
		val, ok := vset.ByAddress(addr)
		if !ok {
			continue
		}
		total += val.VotingPower
	}
	return total
}

// votersFor counts distinct validators whose recorded vote matches
// blockHash, used by SVBFTPolicy's MinVotes floor.
func (vs *voteSet) votersFor(blockHash []byte) int {
	n := 0
	for _, v := range vs.byAddr {
		if bytes.Equal(v.BlockHash, blockHash) {
			n++
		}
	}
	return n
}

// leadingBlockHash returns the block hash (possibly nil, for a nil-vote)
// with the greatest accumulated voting power, and that power.
func (vs *voteSet) leadingBlockHash(vset *validator.Set) ([]byte, uint64) {
	powers := make(map[string]uint64)
	hashes := make(map[string][]byte)
	for addr, v := range vs.byAddr {
		val, ok := vset.ByAddress(addr)
		if !ok {
			continue
		}
		key := string(v.BlockHash)
		powers[key] += val.VotingPower
		hashes[key] = v.BlockHash
	}
	var bestKey string
	var bestPower uint64
	first := true
	for key, power := range powers {
		if first || power > bestPower {
			bestKey, bestPower, first = key, power, false
		}
	}
	if first {
		return nil, 0
	}
	return hashes[bestKey], bestPower
}

func (vs *voteSet) len() int { return len(vs.byAddr) }
