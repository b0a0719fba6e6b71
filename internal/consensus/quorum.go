package consensus

// QuorumPolicy decides whether a set of votes for a block, out of a known
// total voting power, is sufficient to advance a step or commit a block.
// spec.md's REDESIGN FLAGS unify the tally threshold and the commit
// threshold onto this single interface so both consult the same policy
// instead of two independently-tunable constants.
type QuorumPolicy interface {
	// HasQuorum reports whether votingPowerFor out of totalVotingPower
	// clears the policy's threshold.
	HasQuorum(votingPowerFor, totalVotingPower uint64) bool
}

// BFTPolicy is classic Tendermint-style supermajority: votingPowerFor must
// strictly exceed QuorumFraction of totalVotingPower. Default QuorumFraction
// is 2/3, matching spec.md's ">2/3 of total voting power" invariant.
type BFTPolicy struct {
	QuorumFraction float64
}

// NewBFTPolicy builds a BFTPolicy with the spec default of 2/3.
func NewBFTPolicy() *BFTPolicy {
	return &BFTPolicy{QuorumFraction: 2.0 / 3.0}
}

func (p *BFTPolicy) HasQuorum(votingPowerFor, totalVotingPower uint64) bool {
	if totalVotingPower == 0 {
		return false
	}
	fraction := p.QuorumFraction
	if fraction <= 0 {
		fraction = 2.0 / 3.0
	}
	return float64(votingPowerFor) > fraction*float64(totalVotingPower)
}

// SVBFTPolicy is the supplemented alternative from original_source: quorum
// requires BOTH a fraction of total voting power AND an absolute floor on
// the number of distinct validators counted (MinVotes), useful for small
// validator sets where a fraction alone can be satisfied by a single
// validator with disproportionate power.
type SVBFTPolicy struct {
	ThresholdFraction float64
	MinVotes          int
	votersFor         func() int
}

// NewSVBFTPolicy builds an SVBFTPolicy. votersFor must return the number of
// distinct validators whose vote counted toward votingPowerFor in the most
// recent HasQuorum call's context; the engine supplies it per-tally since
// this policy alone only sees aggregated power.
func NewSVBFTPolicy(thresholdFraction float64, minVotes int, votersFor func() int) *SVBFTPolicy {
	return &SVBFTPolicy{ThresholdFraction: thresholdFraction, MinVotes: minVotes, votersFor: votersFor}
}

func (p *SVBFTPolicy) HasQuorum(votingPowerFor, totalVotingPower uint64) bool {
	if totalVotingPower == 0 {
		return false
	}
	fraction := p.ThresholdFraction
	if fraction <= 0 {
		fraction = 2.0 / 3.0
	}
	if float64(votingPowerFor) <= fraction*float64(totalVotingPower) {
		return false
	}
	if p.votersFor != nil && p.votersFor() < p.MinVotes {
		return false
	}
	return true
}
