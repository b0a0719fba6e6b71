package consensus

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/artha-network/artha-core/internal/arthaerr"
	"github.com/artha-network/artha-core/internal/block"
	"github.com/artha-network/artha-core/internal/evidence"
	"github.com/artha-network/artha-core/internal/keystore"
	"github.com/artha-network/artha-core/internal/mempool"
	"github.com/artha-network/artha-core/internal/storage"
	"github.com/artha-network/artha-core/internal/validator"
	"github.com/artha-network/artha-core/pkg/merkle"
)

// Engine drives one node's participation in consensus: proposer selection,
// vote tallying, and block finalization. Its five guarded regions — state,
// validator_set, evidence_pool, round_state, network — are always locked
// in that fixed order when a single call needs more than one, matching
// spec.md §5's lock-ordering invariant (the teacher's consensus.go used a
// single coarse mutex; this generalizes it into the per-region model the
// spec requires while keeping the same "engine owns its own locking"
// shape).
type Engine struct {
	selfSigner  keystore.Signer
	selfAddress string

	stateMu sync.RWMutex
	state   *merkle.Tree

	validatorMu sync.RWMutex
	validators  *validator.Set

	evidencePool *evidence.Pool

	roundMu sync.RWMutex
	round   *RoundState
	commits map[uint64]*Commit // height -> final commit, for recovery/queries

	networkMu sync.RWMutex
	transport Broadcaster

	mempool *mempool.Mempool
	policy  QuorumPolicy

	lastBlock *block.Block
	store     storage.Store

	maxTxsPerBlock int
	maxBlockSize   int64
	proposeTimeout time.Duration
}

// Config collects Engine construction parameters.
type Config struct {
	Signer         keystore.Signer
	Validators     *validator.Set
	EvidencePool   *evidence.Pool
	Mempool        *mempool.Mempool
	State          *merkle.Tree
	Transport      Broadcaster
	Store          storage.Store
	Policy         QuorumPolicy
	MaxTxsPerBlock int
	MaxBlockSize   int64
	ProposeTimeout time.Duration
}

// NewEngine builds an Engine ready to Start at height 1, round 0.
func NewEngine(cfg Config) *Engine {
	maxTxs := cfg.MaxTxsPerBlock
	if maxTxs <= 0 {
		maxTxs = 1000
	}
	maxBlockSize := cfg.MaxBlockSize
	if maxBlockSize <= 0 {
		maxBlockSize = 1000000
	}
	timeout := cfg.ProposeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	policy := cfg.Policy
	if policy == nil {
		policy = NewBFTPolicy()
	}

	e := &Engine{
		selfSigner:     cfg.Signer,
		selfAddress:    validator.AddressFromPubKey(cfg.Signer.PublicKey()),
		state:          cfg.State,
		validators:     cfg.Validators,
		evidencePool:   cfg.EvidencePool,
		mempool:        cfg.Mempool,
		transport:      cfg.Transport,
		store:          cfg.Store,
		policy:         policy,
		maxTxsPerBlock: maxTxs,
		maxBlockSize:   maxBlockSize,
		proposeTimeout: timeout,
		commits:        make(map[uint64]*Commit),
	}
	e.round = newRoundState(1, 0)
	return e
}

// Start enters height 1, round 0: if this node is the proposer it builds
// and broadcasts a proposal, otherwise it waits for one to arrive via
// HandleEnvelope.
func (e *Engine) Start() error {
	return e.enterNewRound()
}

func (e *Engine) enterNewRound() error {
	e.roundMu.Lock()
	height, round := e.round.Height, e.round.Round
	e.round.Step = StepNewRound
	e.roundMu.Unlock()

	e.validatorMu.RLock()
	proposer, err := e.validators.Proposer()
	e.validatorMu.RUnlock()
	if err != nil {
		return err
	}

	e.networkMu.RLock()
	_ = e.transport.Broadcast(&Envelope{Kind: EnvelopeNewRound, NewRoundHeight: height, NewRoundRound: round})
	e.networkMu.RUnlock()

	if proposer.Address == e.selfAddress {
		return e.createProposal()
	}

	e.roundMu.Lock()
	e.round.Step = StepPropose
	e.roundMu.Unlock()
	return nil
}

// createProposal assembles a block from the highest-priority mempool
// transactions, signs it, stores it as this round's own proposal, and
// broadcasts it.
func (e *Engine) createProposal() error {
	e.roundMu.Lock()
	height, round := e.round.Height, e.round.Round
	e.roundMu.Unlock()

	// The mempool does not itself validate signatures, so a single bad
	// entry must not be able to permanently stall proposing: drop invalid
	// candidates instead of aborting the round.
	txs := filterValidTransactions(e.mempool.TopN(e.maxTxsPerBlock))

	var prevHash [32]byte
	if e.lastBlock != nil {
		prevHash = e.lastBlock.Hash()
	}

	blk := block.New(e.selfSigner.PublicKey(), prevHash, height, txs)
	e.fitBlockSize(blk)

	e.stateMu.RLock()
	scratch := e.state.Clone()
	e.stateMu.RUnlock()
	applyTransactions(scratch, blk.Transactions)
	blk.Header.StateRoot = scratch.Root()

	e.validatorMu.RLock()
	blk.Header.ValidatorHash = validatorSetHash(e.validators)
	e.validatorMu.RUnlock()

	blk.Header.EvidenceRoot = evidenceRootHash(e.evidencePool.AllAccepted())

	proposal := &Proposal{
		Proposer:  e.selfSigner.PublicKey(),
		Height:    height,
		Round:     round,
		Block:     blk,
		Timestamp: time.Now().UTC(),
	}
	sig, err := e.selfSigner.Sign(proposal.SignBytes())
	if err != nil {
		return arthaerr.Wrap(arthaerr.KindInternalError, "sign proposal", err)
	}
	proposal.Signature = sig

	e.roundMu.Lock()
	e.round.Proposal = proposal
	e.round.Step = StepPrevote
	e.roundMu.Unlock()

	e.networkMu.RLock()
	broadcastErr := e.transport.Broadcast(&Envelope{Kind: EnvelopeProposal, Proposal: proposal})
	e.networkMu.RUnlock()
	if broadcastErr != nil {
		return broadcastErr
	}

	// The proposer prevotes for its own proposal exactly like a recipient
	// would, instead of implicitly trusting it.
	blockHash := blk.Hash()
	return e.castVote(Prevote, blockHash[:])
}

// HandleEnvelope dispatches an inbound wire message to the matching
// handler. It is the engine's single entry point for transport-delivered
// messages.
func (e *Engine) HandleEnvelope(env *Envelope) error {
	switch env.Kind {
	case EnvelopeProposal:
		return e.handleProposal(env.Proposal)
	case EnvelopeVote:
		return e.handleVote(env.Vote)
	case EnvelopeCommit:
		return e.handleCommit(env.Commit)
	case EnvelopeEvidence:
		return e.handleEvidence(env.Evidence)
	case EnvelopeNewRound:
		return nil
	default:
		return arthaerr.New(arthaerr.KindInvalidState, fmt.Sprintf("unknown envelope kind %d", env.Kind))
	}
}

// handleProposal validates a received proposal's signature and provenance,
// accepts it for the round, then casts and broadcasts this node's own
// prevote.
func (e *Engine) handleProposal(p *Proposal) error {
	if p == nil {
		return arthaerr.New(arthaerr.KindInvalidProposal, "nil proposal")
	}

	e.validatorMu.RLock()
	proposer, ok := e.validators.ByAddress(validator.AddressFromPubKey(p.Proposer))
	var expectedProposer *validator.Validator
	if ok {
		expectedProposer, _ = e.validators.Proposer()
	}
	e.validatorMu.RUnlock()
	if !ok {
		return arthaerr.New(arthaerr.KindInvalidProposal, "proposal from unknown validator")
	}

	if !keystore.Verify(p.Proposer, p.SignBytes(), p.Signature) {
		e.submitEvidence(&evidence.Evidence{
			EvidenceType: evidence.InvalidProposal,
			Validator:    p.Proposer,
			Height:       p.Height,
			Round:        p.Round,
			Timestamp:    time.Now().UTC(),
		})
		return arthaerr.New(arthaerr.KindInvalidSignature, "proposal signature does not verify")
	}

	if err := e.verifyBlock(p.Block); err != nil {
		e.submitEvidence(&evidence.Evidence{
			EvidenceType: evidence.InvalidProposal,
			Validator:    p.Proposer,
			Height:       p.Height,
			Round:        p.Round,
			Timestamp:    time.Now().UTC(),
		})
		return err
	}

	e.roundMu.Lock()
	if p.Height != e.round.Height || p.Round != e.round.Round {
		e.roundMu.Unlock()
		return arthaerr.New(arthaerr.KindInvalidProposal, "proposal for a different height/round")
	}
	if expectedProposer != nil && expectedProposer.Address != proposer.Address {
		e.roundMu.Unlock()
		return arthaerr.New(arthaerr.KindInvalidProposal, "proposal from non-proposer validator")
	}
	e.round.Proposal = p
	e.round.Step = StepPrevote
	e.roundMu.Unlock()

	blockHash := p.Block.Hash()
	return e.castVote(Prevote, blockHash[:])
}

// castVote signs and broadcasts a vote of the given type for the current
// height/round, then records it in this node's own tally.
func (e *Engine) castVote(voteType VoteType, blockHash []byte) error {
	e.roundMu.RLock()
	height, round := e.round.Height, e.round.Round
	e.roundMu.RUnlock()

	vote := &Vote{
		Type:      voteType,
		Validator: e.selfSigner.PublicKey(),
		Height:    height,
		Round:     round,
		BlockHash: blockHash,
		Timestamp: time.Now().UTC(),
	}
	sig, err := e.selfSigner.Sign(vote.SignBytes())
	if err != nil {
		return arthaerr.Wrap(arthaerr.KindInternalError, "sign vote", err)
	}
	vote.Signature = sig

	if err := e.handleVote(vote); err != nil {
		return err
	}

	e.networkMu.RLock()
	defer e.networkMu.RUnlock()
	return e.transport.Broadcast(&Envelope{Kind: EnvelopeVote, Vote: vote})
}

// handleVote verifies a vote's signature and provenance, records it
// (submitting DuplicateVote evidence if the validator already voted
// differently this height/round), and advances the round's step when a
// quorum is reached.
func (e *Engine) handleVote(v *Vote) error {
	if v == nil {
		return arthaerr.New(arthaerr.KindInvalidVote, "nil vote")
	}

	e.validatorMu.RLock()
	val, ok := e.validators.ByAddress(validator.AddressFromPubKey(v.Validator))
	total := e.validators.TotalVotingPower()
	e.validatorMu.RUnlock()
	if !ok {
		return arthaerr.New(arthaerr.KindInvalidVote, "vote from unknown validator")
	}
	if val.IsJailed(v.Timestamp) {
		return arthaerr.New(arthaerr.KindInvalidVote, "vote from jailed validator")
	}

	if !keystore.Verify(v.Validator, v.SignBytes(), v.Signature) {
		e.submitEvidence(&evidence.Evidence{
			EvidenceType: evidence.InvalidVote,
			Validator:    v.Validator,
			Height:       v.Height,
			Round:        v.Round,
			Timestamp:    time.Now().UTC(),
		})
		return arthaerr.New(arthaerr.KindInvalidSignature, "vote signature does not verify")
	}

	e.roundMu.Lock()
	if v.Height != e.round.Height || v.Round != e.round.Round {
		e.roundMu.Unlock()
		return nil // stale or future vote; silently ignored like a slow peer catching up
	}

	var vs *voteSet
	if v.Type == Prevote {
		vs = e.round.prevotes
	} else {
		vs = e.round.precommits
	}
	dup := vs.observe(v)
	step := e.round.Step
	e.roundMu.Unlock()

	if dup != nil {
		e.submitEvidence(dup)
	}

	if v.Type == Prevote && step == StepPrevote {
		return e.maybeAdvanceFromPrevotes(total)
	}
	if v.Type == Precommit && step == StepPrecommit {
		return e.maybeAdvanceFromPrecommits(total)
	}
	return nil
}

func (e *Engine) maybeAdvanceFromPrevotes(total uint64) error {
	e.validatorMu.RLock()
	e.roundMu.Lock()
	blockHash, power := e.round.prevotes.leadingBlockHash(e.validators)
	votersFn := func() int { return e.round.prevotes.votersFor(blockHash) }
	hasQuorum := e.quorum(power, total, votersFn)
	alreadyPast := e.round.Step != StepPrevote
	if hasQuorum && !alreadyPast {
		e.round.Step = StepPrecommit
		if len(blockHash) > 0 {
			e.round.ValidBlock = e.round.Proposal.Block
			e.round.ValidRound = int32(e.round.Round)
		}
	}
	e.roundMu.Unlock()
	e.validatorMu.RUnlock()

	if !hasQuorum || alreadyPast {
		return nil
	}
	return e.castVote(Precommit, blockHash)
}

func (e *Engine) maybeAdvanceFromPrecommits(total uint64) error {
	e.validatorMu.RLock()
	e.roundMu.Lock()
	blockHash, power := e.round.precommits.leadingBlockHash(e.validators)
	votersFn := func() int { return e.round.precommits.votersFor(blockHash) }
	hasQuorum := e.quorum(power, total, votersFn) && len(blockHash) > 0
	alreadyCommitted := e.round.Step == StepCommit
	proposal := e.round.Proposal
	var votes []*Vote
	if hasQuorum && !alreadyCommitted {
		for _, vv := range e.round.precommits.byAddr {
			votes = append(votes, vv)
		}
		e.round.Step = StepCommit
	}
	e.roundMu.Unlock()
	e.validatorMu.RUnlock()

	if !hasQuorum || alreadyCommitted || proposal == nil {
		return nil
	}

	commit := &Commit{
		Height:    proposal.Height,
		Round:     proposal.Round,
		BlockHash: blockHash,
		Votes:     votes,
		Timestamp: time.Now().UTC(),
	}
	sig, err := e.selfSigner.Sign(commit.SignBytes())
	if err != nil {
		return arthaerr.Wrap(arthaerr.KindInternalError, "sign commit", err)
	}
	commit.Signature = sig

	if err := e.finalizeBlock(proposal.Block, commit); err != nil {
		return err
	}

	e.networkMu.RLock()
	defer e.networkMu.RUnlock()
	return e.transport.Broadcast(&Envelope{Kind: EnvelopeCommit, Commit: commit})
}

// quorum evaluates the configured QuorumPolicy, wiring in an SVBFTPolicy's
// MinVotes floor via votersFn when applicable.
func (e *Engine) quorum(power, total uint64, votersFn func() int) bool {
	if sv, ok := e.policy.(*SVBFTPolicy); ok {
		sv.votersFor = votersFn
	}
	return e.policy.HasQuorum(power, total)
}

// handleCommit accepts a commit broadcast by another node that reached
// quorum first: it verifies the aggregate voting power behind it clears
// quorum and finalizes the referenced block if this node has it staged as
// the current round's proposal.
func (e *Engine) handleCommit(c *Commit) error {
	if c == nil {
		return arthaerr.New(arthaerr.KindInvalidCommit, "nil commit")
	}

	e.roundMu.RLock()
	alreadyHave := e.commits[c.Height] != nil
	proposal := e.round.Proposal
	sameHeight := e.round.Height == c.Height
	e.roundMu.RUnlock()
	if alreadyHave {
		return nil
	}

	e.validatorMu.RLock()
	var power uint64
	counted := make(map[string]bool)
	for _, v := range c.Votes {
		if !keystore.Verify(v.Validator, v.SignBytes(), v.Signature) {
			continue
		}
		addr := validator.AddressFromPubKey(v.Validator)
		val, ok := e.validators.ByAddress(addr)
		if ok && !counted[addr] {
			counted[addr] = true
			power += val.VotingPower
		}
	}
	total := e.validators.TotalVotingPower()
	e.validatorMu.RUnlock()

	if !e.quorum(power, total, func() int { return len(counted) }) {
		return arthaerr.New(arthaerr.KindInvalidCommit, "commit does not carry quorum voting power")
	}

	if sameHeight && proposal != nil {
		blockHash := proposal.Block.Hash()
		if string(blockHash[:]) == string(c.BlockHash) {
			return e.finalizeBlock(proposal.Block, c)
		}
	}

	e.roundMu.Lock()
	e.commits[c.Height] = c
	e.roundMu.Unlock()
	return nil
}

// decodeSenderPubKey decodes a transaction's hex-encoded Sender address —
// validator.AddressFromPubKey's own encoding — back into the Ed25519 public
// key it names.
func decodeSenderPubKey(sender string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(sender)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("sender %q does not decode to an ed25519 public key", sender)
	}
	return ed25519.PublicKey(raw), nil
}

// verifyTransaction reports whether tx carries a valid signature from its
// declared sender, per spec.md §4.1's "every transaction must pass
// signature verification".
func verifyTransaction(tx *mempool.Transaction) bool {
	pub, err := decodeSenderPubKey(tx.Sender)
	if err != nil {
		return false
	}
	return keystore.Verify(pub, tx.SignBytes(), tx.Signature)
}

// filterValidTransactions drops transactions with an invalid or missing
// signature. Used when building this node's own proposal: the mempool does
// not validate signatures on Add, so a single bad entry must not be able to
// stall createProposal indefinitely.
func filterValidTransactions(txs []*mempool.Transaction) []*mempool.Transaction {
	out := make([]*mempool.Transaction, 0, len(txs))
	for _, tx := range txs {
		if verifyTransaction(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// applyTransactions writes each transaction's canonical payload into state
// keyed by its ID. Both createProposal's scratch state_root computation and
// finalizeBlock's verify-then-commit share this so they can never diverge.
func applyTransactions(state *merkle.Tree, txs []*mempool.Transaction) {
	for _, tx := range txs {
		state.Update([]byte(tx.ID), tx.SignBytes())
	}
}

// fitBlockSize trims transactions from the end of blk until its serialized
// size is within maxBlockSize, recomputing TransactionRoot after any trim,
// per spec.md §6's max_block_size.
func (e *Engine) fitBlockSize(blk *block.Block) {
	for len(blk.Transactions) > 0 {
		data, err := json.Marshal(blk)
		if err == nil && int64(len(data)) <= e.maxBlockSize {
			return
		}
		blk.Transactions = blk.Transactions[:len(blk.Transactions)-1]
		blk.Header.TransactionRoot = block.TransactionRoot(blk.Transactions)
	}
}

// verifyBlock runs spec.md §4.1's block-verification checks on a received
// proposal's block: size, every transaction's signature, and the declared
// state_root against what applying those transactions to the live state
// actually produces.
func (e *Engine) verifyBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return arthaerr.Wrap(arthaerr.KindInvalidBlock, "marshal block for size check", err)
	}
	if int64(len(data)) > e.maxBlockSize {
		return arthaerr.New(arthaerr.KindInvalidBlock, "block exceeds max_block_size")
	}

	for _, tx := range blk.Transactions {
		if !verifyTransaction(tx) {
			return arthaerr.New(arthaerr.KindInvalidTransaction, fmt.Sprintf("transaction %s failed signature verification", tx.ID))
		}
	}

	e.stateMu.RLock()
	scratch := e.state.Clone()
	e.stateMu.RUnlock()
	applyTransactions(scratch, blk.Transactions)
	if scratch.Root() != blk.Header.StateRoot {
		return arthaerr.New(arthaerr.KindInvalidState, "block state_root does not match applied transactions")
	}

	return nil
}

// submitEvidence signs ev as this node's own report and submits it to the
// evidence pool. The accused validator can never be expected to countersign
// proof of its own misbehavior, so the report is authenticated by the
// detecting node (Reporter), not by ev.Validator (the accused) — see
// evidence.Evidence's doc comment.
func (e *Engine) submitEvidence(ev *evidence.Evidence) {
	ev.Reporter = e.selfSigner.PublicKey()
	sig, err := e.selfSigner.Sign(ev.SignBytes())
	if err != nil {
		log.Printf("consensus: failed to sign evidence report: %v", err)
		return
	}
	ev.Signature = sig
	e.evidencePool.Submit(ev)
}

// handleEvidence forwards externally-gossiped evidence into the evidence
// pool for verification and slashing.
func (e *Engine) handleEvidence(ev *evidence.Evidence) error {
	if ev == nil {
		return arthaerr.New(arthaerr.KindInvalidEvidence, "nil evidence")
	}
	e.evidencePool.Submit(ev)
	return nil
}

// finalizeBlock applies a committed block's transactions to state, records
// the commit, and advances the engine to the next height's new round.
func (e *Engine) finalizeBlock(blk *block.Block, commit *Commit) error {
	e.stateMu.Lock()
	scratch := e.state.Clone()
	applyTransactions(scratch, blk.Transactions)
	if scratch.Root() != blk.Header.StateRoot {
		e.stateMu.Unlock()
		return arthaerr.New(arthaerr.KindInvalidState, "block state_root does not match applied transactions; refusing to commit")
	}
	applyTransactions(e.state, blk.Transactions)
	e.stateMu.Unlock()

	for _, tx := range blk.Transactions {
		e.mempool.Remove(tx.ID)
	}

	e.roundMu.Lock()
	e.commits[commit.Height] = commit
	e.lastBlock = blk
	e.round = newRoundState(commit.Height+1, 0)
	e.roundMu.Unlock()

	e.validatorMu.Lock()
	e.validators.SetLast(commit.Height, commit.Round)
	e.validatorMu.Unlock()

	e.persistBlock(blk)

	return e.enterNewRound()
}

// persistBlock writes the finalized block to the configured store under
// both its height key and "latest-block", so a restart or an API query can
// find it. Persistence failures are logged, not propagated: a node that
// cannot write to disk still needs to keep participating in consensus for
// the rest of the network (spec.md §7's StateError policy is reserved for
// corruption the node itself detects, not storage I/O hiccups).
func (e *Engine) persistBlock(blk *block.Block) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(blk)
	if err != nil {
		log.Printf("consensus: failed to marshal block %d for persistence: %v", blk.Header.Height, err)
		return
	}

	ctx := context.Background()
	if err := e.store.Set(ctx, []byte(fmt.Sprintf("block/%d", blk.Header.Height)), data); err != nil {
		log.Printf("consensus: failed to persist block %d: %v", blk.Header.Height, err)
		return
	}
	if err := e.store.Set(ctx, []byte("latest-block"), data); err != nil {
		log.Printf("consensus: failed to persist latest-block pointer: %v", err)
	}
}

// CommitAt returns the finalized commit for height, if this node has seen
// one.
func (e *Engine) CommitAt(height uint64) (*Commit, bool) {
	e.roundMu.RLock()
	defer e.roundMu.RUnlock()
	c, ok := e.commits[height]
	return c, ok
}

// CurrentHeight returns the height the engine is actively working on.
func (e *Engine) CurrentHeight() uint64 {
	e.roundMu.RLock()
	defer e.roundMu.RUnlock()
	return e.round.Height
}

// RecoverState rebuilds in-memory round progress after a restart from the
// last block this node had persisted, resuming at the following height's
// new round rather than replaying history.
func (e *Engine) RecoverState(last *block.Block) error {
	e.roundMu.Lock()
	e.lastBlock = last
	nextHeight := uint64(1)
	if last != nil {
		nextHeight = last.Header.Height + 1
	}
	e.round = newRoundState(nextHeight, 0)
	e.roundMu.Unlock()
	return e.enterNewRound()
}
