package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/artha-network/artha-core/internal/evidence"
	"github.com/artha-network/artha-core/internal/validator"
)

// validatorSetHash computes header.validator_hash: a SHA-256 over every
// member's address and voting power, in address-sorted order, so it is
// independent of the set's internal slice ordering.
func validatorSetHash(vs *validator.Set) [32]byte {
	members := vs.Validators()
	sort.Slice(members, func(i, j int) bool { return members[i].Address < members[j].Address })

	h := sha256.New()
	var buf [8]byte
	for _, v := range members {
		h.Write([]byte(v.Address))
		binary.BigEndian.PutUint64(buf[:], v.VotingPower)
		h.Write(buf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// evidenceRootHash computes header.evidence_root: a SHA-256 over every
// currently-accepted evidence record's sign bytes, in a deterministic
// order, so two nodes with the same accepted set agree on the root
// regardless of acceptance order.
func evidenceRootHash(all []*evidence.Evidence) [32]byte {
	if len(all) == 0 {
		return [32]byte{}
	}

	payloads := make([][]byte, len(all))
	for i, ev := range all {
		payloads[i] = ev.SignBytes()
	}
	sort.Slice(payloads, func(i, j int) bool { return string(payloads[i]) < string(payloads[j]) })

	h := sha256.New()
	for _, p := range payloads {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
