package evidence

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/artha-network/artha-core/internal/validator"
)

// Pool buffers, verifies, deduplicates, and slashes on validator evidence.
// It guards its own region independently of the engine's round_state lock,
// per spec.md §5's five named regions.
type Pool struct {
	mu sync.RWMutex

	vs *validator.Set

	pending  []*Evidence
	accepted map[string][]*Evidence // validator address -> accepted evidence
	seen     map[Key]bool
	slashed  map[Key]bool // (type, validator, height) milestones already slashed

	maxAge           time.Duration
	minEvidenceCount int
	slashSpecs       map[Type]SlashSpec
}

// NewPool creates an evidence pool bound to a validator set. maxAge and
// minEvidenceCount default to spec.md §6 values (24h, 2) when zero.
func NewPool(vs *validator.Set, maxAge time.Duration, minEvidenceCount int) *Pool {
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	if minEvidenceCount == 0 {
		minEvidenceCount = 2
	}
	return &Pool{
		vs:               vs,
		accepted:         make(map[string][]*Evidence),
		seen:             make(map[Key]bool),
		slashed:          make(map[Key]bool),
		maxAge:           maxAge,
		minEvidenceCount: minEvidenceCount,
		slashSpecs:       DefaultSlashSpecs(),
	}
}

// Submit appends evidence to the pending queue. When the pending count
// reaches minEvidenceCount, it triggers a batch ProcessEvidence pass.
func (p *Pool) Submit(ev *Evidence) {
	p.mu.Lock()
	p.pending = append(p.pending, ev)
	trigger := len(p.pending) >= p.minEvidenceCount
	p.mu.Unlock()

	if trigger {
		p.ProcessEvidence(time.Now())
	}
}

// VerifyEvidence checks an evidence record against all five spec.md §4.3
// conditions: age, validator existence, validator not jailed at the
// evidence's own timestamp, signature validity, and non-duplication.
// Signature validity means the report carries a valid signature from a
// known validator (Reporter) — not from the accused (Validator), which a
// Byzantine actor would never cooperate in producing.
// Failing any check returns false; the caller must discard, not re-queue.
func (p *Pool) VerifyEvidence(ev *Evidence, now time.Time) bool {
	if now.Sub(ev.Timestamp) > p.maxAge {
		return false
	}

	v, ok := p.vs.ByAddress(validator.AddressFromPubKey(ev.Validator))
	if !ok {
		return false
	}

	if v.IsJailed(ev.Timestamp) {
		return false
	}

	if _, ok := p.vs.ByAddress(validator.AddressFromPubKey(ev.Reporter)); !ok {
		return false
	}

	if len(ev.Signature) != ed25519.SignatureSize {
		return false
	}
	if !ed25519.Verify(ev.Reporter, ev.SignBytes(), ev.Signature) {
		return false
	}

	p.mu.RLock()
	dup := p.seen[ev.key()]
	p.mu.RUnlock()
	if dup {
		return false
	}

	return true
}

// ProcessEvidence verifies all pending evidence, moves valid records into
// the accepted pool (discarding invalid ones outright), applies slashing
// once a (type, validator) group reaches its configured min_count, and
// prunes accepted evidence older than max_evidence_age.
func (p *Pool) ProcessEvidence(now time.Time) {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ev := range pending {
		if !p.VerifyEvidence(ev, now) {
			continue
		}

		p.mu.Lock()
		addr := validator.AddressFromPubKey(ev.Validator)
		p.accepted[addr] = append(p.accepted[addr], ev)
		p.seen[ev.key()] = true
		count := 0
		for _, a := range p.accepted[addr] {
			if a.EvidenceType == ev.EvidenceType {
				count++
			}
		}
		spec, hasSpec := p.slashSpecs[ev.EvidenceType]
		shouldSlash := hasSpec && count == spec.MinCount && !p.slashed[ev.key()]
		if shouldSlash {
			p.slashed[ev.key()] = true
		}
		p.mu.Unlock()

		if shouldSlash {
			p.vs.ApplySlash(addr, spec.SlashAmount, spec.JailDuration, now)
		}
	}

	p.prune(now)
}

func (p *Pool) prune(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, list := range p.accepted {
		kept := list[:0:0]
		for _, ev := range list {
			if now.Sub(ev.Timestamp) <= p.maxAge {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			delete(p.accepted, addr)
		} else {
			p.accepted[addr] = kept
		}
	}
}

// Accepted returns the accepted evidence for a validator address.
func (p *Pool) Accepted(address string) []*Evidence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Evidence, len(p.accepted[address]))
	copy(out, p.accepted[address])
	return out
}

// PendingCount returns the number of not-yet-processed evidence records.
func (p *Pool) PendingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// AllAccepted returns every accepted evidence record across all validators,
// for snapshotting/recovery.
func (p *Pool) AllAccepted() []*Evidence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Evidence
	for _, list := range p.accepted {
		out = append(out, list...)
	}
	return out
}
