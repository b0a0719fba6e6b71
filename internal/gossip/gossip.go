// Package gossip implements C6: the libp2p-backed consensus transport
// adapter. It carries the five consensus wire messages (NewRound,
// Proposal, Vote, Commit, Evidence) between validators, tracks per-peer
// rate limits and quality scores, and exposes the mempool ingestion path
// gossiped transactions arrive through.
//
// Grounded on rechain/internal/gossip/gossip.go's libp2p host/stream-handler
// shape (replacing its CRDT epidemic-broadcast payload with consensus
// envelopes) and on decub-crypto's JSON wire framing pattern.
package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/artha-network/artha-core/internal/consensus"
	"github.com/artha-network/artha-core/internal/mempool"
)

const protocolID = protocol.ID("/artha/consensus/1.0.0")

// Rate limit defaults, per peer: spec.md §4.6/§5.
const (
	maxMessagesPerWindow = 100
	maxBytesPerWindow    = 1 << 20 // 1 MiB
	rateWindow           = time.Second
)

// Delivery retry policy, per spec.md §4.6/§7's NetworkError handling:
// best-effort delivery retried up to 3 times per peer with linear backoff
// (100 ms * attempt).
const (
	maxSendRetries   = 3
	retryBackoffUnit = 100 * time.Millisecond
)

// EnvelopeHandler is satisfied by *consensus.Engine. It is set after both
// the engine and the Adapter are constructed (they would otherwise need
// each other at construction time), mirroring how the teacher's stream
// handler was wired to the protocol instance post-NewGossipProtocol.
type EnvelopeHandler interface {
	HandleEnvelope(env *consensus.Envelope) error
}

// wireMessage is the JSON-framed payload sent over a libp2p stream.
type wireMessage struct {
	Envelope *consensus.Envelope
}

// peerState tracks one peer's rate-limit window, latency, and quality
// score.
type peerState struct {
	id       peer.ID
	lastSeen time.Time
	latency  time.Duration

	successCount uint64
	failureCount uint64

	quality float64

	windowStart time.Time
	windowMsgs  int
	windowBytes int
}

// Adapter is the C6 transport: a libp2p host that broadcasts consensus
// envelopes to every known peer and dispatches inbound ones to a handler.
type Adapter struct {
	host host.Host

	peersMu sync.RWMutex
	peers   map[peer.ID]*peerState

	handlerMu sync.RWMutex
	handler   EnvelopeHandler

	mempool *mempool.Mempool

	quit chan struct{}
}

// New creates a libp2p host listening on listenAddr and wires its stream
// handler to the adapter's own dispatch. mp is the local mempool gossiped
// transactions are added to.
func New(listenAddr string, mp *mempool.Mempool) (*Adapter, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("gossip: failed to create libp2p host: %w", err)
	}

	a := &Adapter{
		host:    h,
		peers:   make(map[peer.ID]*peerState),
		mempool: mp,
		quit:    make(chan struct{}),
	}
	h.SetStreamHandler(protocolID, a.handleStream)

	log.Printf("gossip: consensus transport listening, peer id %s", h.ID())
	return a, nil
}

// SetHandler wires the component (the consensus engine) that receives
// dispatched inbound envelopes.
func (a *Adapter) SetHandler(h EnvelopeHandler) {
	a.handlerMu.Lock()
	defer a.handlerMu.Unlock()
	a.handler = h
}

// Close tears down the libp2p host.
func (a *Adapter) Close() error {
	close(a.quit)
	return a.host.Close()
}

// AddPeer connects to and registers a peer by its multiaddr, e.g.
// "/ip4/10.0.0.5/tcp/26656/p2p/Qm...".
func (a *Adapter) AddPeer(multiaddrStr string) error {
	addr, err := multiaddr.NewMultiaddr(multiaddrStr)
	if err != nil {
		return fmt.Errorf("gossip: invalid peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("gossip: failed to parse peer info: %w", err)
	}
	if err := a.host.Connect(context.Background(), *info); err != nil {
		return fmt.Errorf("gossip: failed to connect to peer: %w", err)
	}

	a.peersMu.Lock()
	a.peers[info.ID] = &peerState{id: info.ID, lastSeen: time.Now(), quality: 1.0}
	a.peersMu.Unlock()
	return nil
}

// Broadcast implements consensus.Broadcaster: it sends env to every
// connected peer whose rate-limit window has room, and records the
// attempt against that peer's success/failure counters.
func (a *Adapter) Broadcast(env *consensus.Envelope) error {
	payload, err := json.Marshal(wireMessage{Envelope: env})
	if err != nil {
		return fmt.Errorf("gossip: failed to marshal envelope: %w", err)
	}

	a.peersMu.RLock()
	ids := make([]peer.ID, 0, len(a.peers))
	for id := range a.peers {
		ids = append(ids, id)
	}
	a.peersMu.RUnlock()

	for _, id := range ids {
		a.sendTo(id, payload)
	}
	return nil
}

// sendTo delivers payload to a single peer with best-effort semantics: one
// attempt plus up to maxSendRetries retries, sleeping 100 ms * retry number
// before each retry, per spec.md §4.6/§7's NetworkError policy. Every
// attempt, success or failure, is recorded against the peer's outcome
// counters.
func (a *Adapter) sendTo(id peer.ID, payload []byte) {
	a.peersMu.Lock()
	ps, ok := a.peers[id]
	if !ok {
		a.peersMu.Unlock()
		return
	}
	allowed := ps.allow(len(payload))
	a.peersMu.Unlock()
	if !allowed {
		return
	}

	for retry := 0; retry <= maxSendRetries; retry++ {
		if retry > 0 {
			time.Sleep(time.Duration(retry) * retryBackoffUnit)
		}
		if a.attemptSend(id, payload) {
			return
		}
	}
}

// attemptSend makes one delivery attempt to id and records its outcome.
func (a *Adapter) attemptSend(id peer.ID, payload []byte) bool {
	start := time.Now()
	s, err := a.host.NewStream(context.Background(), id, protocolID)
	if err != nil {
		a.recordOutcome(id, start, false)
		return false
	}
	defer s.Close()

	if _, err := s.Write(payload); err != nil {
		a.recordOutcome(id, start, false)
		return false
	}
	a.recordOutcome(id, start, true)
	return true
}

// allow applies the tumbling 1-second, 100-message/1-MiB rate window,
// resetting the window when it has elapsed. Callers must hold peersMu.
func (ps *peerState) allow(size int) bool {
	now := time.Now()
	if now.Sub(ps.windowStart) >= rateWindow {
		ps.windowStart = now
		ps.windowMsgs = 0
		ps.windowBytes = 0
	}
	if ps.windowMsgs >= maxMessagesPerWindow || ps.windowBytes+size > maxBytesPerWindow {
		return false
	}
	ps.windowMsgs++
	ps.windowBytes += size
	return true
}

func (a *Adapter) recordOutcome(id peer.ID, start time.Time, ok bool) {
	a.peersMu.Lock()
	defer a.peersMu.Unlock()
	ps, found := a.peers[id]
	if !found {
		return
	}
	ps.latency = time.Since(start)
	ps.lastSeen = time.Now()
	if ok {
		ps.successCount++
	} else {
		ps.failureCount++
	}
	a.rescoreLocked(ps)
}

// rescoreLocked applies spec.md §4.6's peer-quality decay formula:
// quality *= 0.8 when the peer's window is >80% full (bandwidth pressure),
// *= 0.9 when idle >10s, and *= 0.5 when idle >30s (treated as likely
// disconnected). Callers must hold peersMu.
func (a *Adapter) rescoreLocked(ps *peerState) {
	idle := time.Since(ps.lastSeen)
	if float64(ps.windowBytes) > 0.8*float64(maxBytesPerWindow) {
		ps.quality *= 0.8
	}
	switch {
	case idle > 30*time.Second:
		ps.quality *= 0.5
	case idle > 10*time.Second:
		ps.quality *= 0.9
	}
	if ps.quality <= 0 {
		ps.quality = 0.01 // never fully zero out; a recovering peer can still climb back
	}
}

// UpdatePeerQuality lets external callers (e.g. the consensus engine
// noticing a peer repeatedly sent invalid messages) directly adjust a
// peer's score instead of waiting for the decay schedule.
func (a *Adapter) UpdatePeerQuality(id peer.ID, delta float64) {
	a.peersMu.Lock()
	defer a.peersMu.Unlock()
	if ps, ok := a.peers[id]; ok {
		ps.quality += delta
		if ps.quality < 0 {
			ps.quality = 0
		}
	}
}

// GetPeers returns the currently known peer IDs.
func (a *Adapter) GetPeers() []peer.ID {
	a.peersMu.RLock()
	defer a.peersMu.RUnlock()
	out := make([]peer.ID, 0, len(a.peers))
	for id := range a.peers {
		out = append(out, id)
	}
	return out
}

// GetPeerLatency returns the last observed round-trip latency to a peer.
func (a *Adapter) GetPeerLatency(id peer.ID) (time.Duration, bool) {
	a.peersMu.RLock()
	defer a.peersMu.RUnlock()
	ps, ok := a.peers[id]
	if !ok {
		return 0, false
	}
	return ps.latency, true
}

// GetPeerSuccessRate returns successes / (successes + failures) for a peer,
// or (0, false) if nothing has been recorded yet.
func (a *Adapter) GetPeerSuccessRate(id peer.ID) (float64, bool) {
	a.peersMu.RLock()
	defer a.peersMu.RUnlock()
	ps, ok := a.peers[id]
	if !ok {
		return 0, false
	}
	total := ps.successCount + ps.failureCount
	if total == 0 {
		return 0, false
	}
	return float64(ps.successCount) / float64(total), true
}

// AddTransaction admits a gossiped transaction into the local mempool.
func (a *Adapter) AddTransaction(tx *mempool.Transaction) {
	a.mempool.Add(tx, tx.Fee())
}

// GetMempool returns every transaction currently buffered locally, for a
// peer performing anti-entropy / catch-up sync.
func (a *Adapter) GetMempool() []*mempool.Transaction {
	return a.mempool.GetTransactions()
}

// handleStream decodes one inbound wire message and dispatches its
// envelope to the registered handler.
func (a *Adapter) handleStream(s network.Stream) {
	defer s.Close()

	var msg wireMessage
	if err := json.NewDecoder(s).Decode(&msg); err != nil {
		log.Printf("gossip: failed to decode inbound message: %v", err)
		return
	}

	remote := s.Conn().RemotePeer()
	a.peersMu.Lock()
	if _, ok := a.peers[remote]; !ok {
		a.peers[remote] = &peerState{id: remote, quality: 1.0}
	}
	a.peers[remote].lastSeen = time.Now()
	a.peersMu.Unlock()

	if msg.Envelope == nil {
		return
	}

	a.handlerMu.RLock()
	h := a.handler
	a.handlerMu.RUnlock()
	if h == nil {
		return
	}
	if err := h.HandleEnvelope(msg.Envelope); err != nil {
		log.Printf("gossip: envelope from %s rejected: %v", remote, err)
	}
}
