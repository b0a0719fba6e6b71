// Package block defines the Block/BlockHeader data model and the
// transaction-root merkle computation, grounded on
// original_source/artha-blockchain/src/types/block.rs's Block::new and
// calculate_merkle_root.
package block

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/artha-network/artha-core/internal/mempool"
)

// Header is the portion of a Block that is hashed into BlockHash and
// referenced by votes/proposals/commits.
type Header struct {
	Version          uint32
	PreviousHash     [32]byte
	Timestamp        time.Time
	Height           uint64
	Proposer         ed25519.PublicKey
	TransactionRoot  [32]byte
	StateRoot        [32]byte
	EvidenceRoot     [32]byte
	ValidatorHash    [32]byte
	ConsensusHash    [32]byte
	AppHash          [32]byte
}

// Block is a header plus its transactions.
type Block struct {
	Header       Header
	Transactions []*mempool.Transaction
}

// TransactionRoot computes header.transaction_root:
// merkle(SHA256(tx.id) for tx in transactions), duplicating the last node
// at odd levels (spec.md §3 Block/BlockHeader invariant). Empty block
// yields the zero hash.
func TransactionRoot(txs []*mempool.Transaction) [32]byte {
	if len(txs) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, len(txs))
	for i, tx := range txs {
		level[i] = sha256.Sum256([]byte(tx.ID))
	}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			combined := append(append([]byte(nil), left[:]...), right[:]...)
			next = append(next, sha256.Sum256(combined))
		}
		level = next
	}
	return level[0]
}

// Hash computes the block hash: SHA256 of the canonical header bytes, as
// referenced by proposal/vote/commit signatures (spec.md §3).
func (b *Block) Hash() [32]byte {
	return b.Header.canonicalHash()
}

func (h *Header) canonicalHash() [32]byte {
	buf := make([]byte, 0, 256)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], h.Version)
	buf = append(buf, u32[:]...)
	buf = append(buf, h.PreviousHash[:]...)

	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], uint64(h.Timestamp.UnixNano()))
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], h.Height)
	buf = append(buf, u64[:]...)

	buf = append(buf, h.Proposer...)
	buf = append(buf, h.TransactionRoot[:]...)
	buf = append(buf, h.StateRoot[:]...)
	buf = append(buf, h.EvidenceRoot[:]...)
	buf = append(buf, h.ValidatorHash[:]...)
	buf = append(buf, h.ConsensusHash[:]...)
	buf = append(buf, h.AppHash[:]...)

	return sha256.Sum256(buf)
}

// New builds a block from a proposer, previous hash, height, and a set of
// transactions already pulled from the mempool, computing its transaction
// root. StateRoot/EvidenceRoot/ValidatorHash are filled in by the engine
// once the proposed transactions have been applied to a scratch copy of
// state; ConsensusHash and AppHash are left zero.
func New(proposer ed25519.PublicKey, previousHash [32]byte, height uint64, txs []*mempool.Transaction) *Block {
	return &Block{
		Header: Header{
			Version:         1,
			PreviousHash:    previousHash,
			Timestamp:       time.Now().UTC(),
			Height:          height,
			Proposer:        append(ed25519.PublicKey(nil), proposer...),
			TransactionRoot: TransactionRoot(txs),
		},
		Transactions: txs,
	}
}
