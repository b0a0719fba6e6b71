package validator

import (
	"time"

	"github.com/artha-network/artha-core/internal/arthaerr"
)

// UpdateKind selects the operation an Update applies.
type UpdateKind int

const (
	Add UpdateKind = iota
	Remove
	UpdateVotingPower
)

// Update is one entry of a validator-set update batch, as produced by a
// governance action or genesis load.
type Update struct {
	Kind        UpdateKind
	PublicKey   []byte
	VotingPower uint64
}

// Set is the ordered collection of active validators plus the derived
// total voting power and cached proposer.
type Set struct {
	validators []*Validator
	total      uint64
	proposer   *Validator
	lastHeight uint64
	lastRound  uint32
}

// NewSet builds a validator set from a genesis validator list and
// recomputes proposer priorities immediately.
func NewSet(initial []*Validator) *Set {
	s := &Set{}
	for _, v := range initial {
		s.validators = append(s.validators, v.Clone())
	}
	s.recomputeTotal()
	s.RecomputeProposerPriorities(time.Now())
	return s
}

func (s *Set) indexOf(address string) int {
	for i, v := range s.validators {
		if v.Address == address {
			return i
		}
	}
	return -1
}

// Apply runs a batch of updates in order. Add is idempotent (a duplicate
// public key is silently dropped); Remove removes all matches;
// UpdateVotingPower overwrites the voting power of an existing entry and is
// a no-op if the validator is absent. After the batch, total voting power
// is recomputed and proposer priorities are updated.
func (s *Set) Apply(updates []Update) {
	for _, u := range updates {
		addr := AddressFromPubKey(u.PublicKey)
		switch u.Kind {
		case Add:
			if s.indexOf(addr) >= 0 {
				continue
			}
			s.validators = append(s.validators, NewValidator(append([]byte(nil), u.PublicKey...), u.VotingPower))
		case Remove:
			if idx := s.indexOf(addr); idx >= 0 {
				s.validators = append(s.validators[:idx], s.validators[idx+1:]...)
			}
		case UpdateVotingPower:
			if idx := s.indexOf(addr); idx >= 0 {
				s.validators[idx].VotingPower = u.VotingPower
			}
		}
	}
	s.recomputeTotal()
	s.RecomputeProposerPriorities(time.Now())
}

func (s *Set) recomputeTotal() {
	var total uint64
	for _, v := range s.validators {
		total += v.VotingPower
	}
	s.total = total
}

// TotalVotingPower returns the sum of all members' voting power.
func (s *Set) TotalVotingPower() uint64 {
	return s.total
}

// Len returns the number of validators in the set.
func (s *Set) Len() int { return len(s.validators) }

// Validators returns a defensive copy of the member list, in set order.
func (s *Set) Validators() []*Validator {
	out := make([]*Validator, len(s.validators))
	for i, v := range s.validators {
		out[i] = v.Clone()
	}
	return out
}

// ByAddress looks up a validator by its hex address.
func (s *Set) ByAddress(address string) (*Validator, bool) {
	if idx := s.indexOf(address); idx >= 0 {
		return s.validators[idx].Clone(), true
	}
	return nil, false
}

// RecomputeProposerPriorities applies spec.md §4.1's proposer-priority
// formula to every member and recaches the selected proposer:
//
//	base            = (votingPower / total) * 1000
//	performance     = 0.0 if jailed now; 0.5 if ever jailed; else 1.0
//	slashingPenalty = 1 / (1 + 0.2*accumulatedSlashes)
//	powerBonus      = 1 + votingPower/100
//	priority        = floor(base * performance * slashingPenalty * powerBonus)
//
// The proposer is the validator with the lexicographically greatest
// (priority, votingPower) pair, ties broken by position in the set.
func (s *Set) RecomputeProposerPriorities(now time.Time) {
	if s.total == 0 {
		for _, v := range s.validators {
			v.ProposerPriority = 0
		}
		s.proposer = nil
		return
	}

	for _, v := range s.validators {
		base := (float64(v.VotingPower) / float64(s.total)) * 1000.0

		performance := 1.0
		switch {
		case v.IsJailed(now):
			performance = 0.0
		case v.EverJailed():
			performance = 0.5
		}

		slashingPenalty := 1.0 / (1.0 + 0.2*float64(v.AccumulatedSlashes))
		powerBonus := 1.0 + float64(v.VotingPower)/100.0

		v.ProposerPriority = int64(base * performance * slashingPenalty * powerBonus)
	}

	s.proposer = s.selectProposerLocked()
}

func (s *Set) selectProposerLocked() *Validator {
	var best *Validator
	for _, v := range s.validators {
		if best == nil {
			best = v
			continue
		}
		if v.ProposerPriority > best.ProposerPriority {
			best = v
			continue
		}
		if v.ProposerPriority == best.ProposerPriority && v.VotingPower > best.VotingPower {
			best = v
		}
	}
	return best
}

// Proposer returns the cached current proposer, or an InvalidState error
// when the set has no positive total voting power (spec.md §4.2 invariant:
// total_voting_power > 0 whenever any consensus step advances).
func (s *Set) Proposer() (*Validator, error) {
	if s.total == 0 {
		return nil, arthaerr.New(arthaerr.KindInvalidState, "validator set has zero total voting power")
	}
	if s.proposer == nil {
		return nil, arthaerr.New(arthaerr.KindInvalidState, "no proposer cached")
	}
	return s.proposer.Clone(), nil
}

// ApplySlash applies the deterministic slashing penalty in place for the
// validator at address: accumulated_slashes += 1, voting power saturates
// down by slashAmount, jailed_until is extended to now+jailDuration, and
// proposer priorities / total voting power are recomputed.
func (s *Set) ApplySlash(address string, slashAmount uint64, jailDuration time.Duration, now time.Time) bool {
	idx := s.indexOf(address)
	if idx < 0 {
		return false
	}

	v := s.validators[idx]
	v.AccumulatedSlashes++
	if v.VotingPower > slashAmount {
		v.VotingPower -= slashAmount
	} else {
		v.VotingPower = 0
	}
	until := now.Add(jailDuration)
	v.JailedUntil = &until

	s.recomputeTotal()
	s.RecomputeProposerPriorities(now)
	return true
}

// LastHeight / LastRound record the height and round this set last
// participated in, used when resuming after a restart.
func (s *Set) LastHeight() uint64  { return s.lastHeight }
func (s *Set) LastRound() uint32   { return s.lastRound }
func (s *Set) SetLast(height uint64, round uint32) {
	s.lastHeight = height
	s.lastRound = round
}
