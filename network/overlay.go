package network

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tolelom/tolchain/core"
)

// MaxConnections bounds the outbound connection pool (spec §5).
const MaxConnections = 8

const (
	discoveryInterval    = 30 * time.Second
	samplerInterval      = 60 * time.Second
	seenMessageCacheSize = 10_000
)

// Overlay manages the peer directory, the bounded outbound pool, the
// handshake sequence, and deduplicated message dispatch (spec §6, §5
// "Connection pool"). It knows nothing about chain validation; callers
// wire the On* hooks to interpret payloads (Replicator does this for
// tx/block/chain/stake/slash traffic; it leaves the roster-update,
// network-details and file hooks unset, and no other package in this
// module sets them).
type Overlay struct {
	nodeID string
	name   string
	host   string
	port   int
	pubPEM string
	regime core.Regime
	log    zerolog.Logger

	hasChain func() bool

	mu        sync.RWMutex
	outbound  map[string]*Peer        // addr -> peer
	inbound   map[string]*Peer        // remote addr -> peer
	directory map[string]PeerInfoData // addr -> known peer info
	names     map[string]bool         // assigned display names, for uniquification

	seen *lru.Cache[string, struct{}]

	OnNewTx                 func(NewTxPayload)
	OnNewBlock              func(NewBlockPayload)
	OnChain                 func(*Peer, ChainPayload)
	OnChainRequest          func(*Peer)
	OnStake                 func(StakeAnnouncementPayload)
	OnSlash                 func(SlashAnnouncementPayload)
	OnMinersListUpdate      func(MinersListUpdatePayload)
	OnNetworkDetailsRequest func(*Peer)
	OnNetworkDetails        func(NetworkDetailsPayload)
	OnFile                  func(FilePayload)
}

// NewOverlay creates an Overlay for the local node. hasChain reports
// whether the node already has a persisted chain, which gates whether
// add_peer precedes ping on outbound handshake (spec §6).
func NewOverlay(nodeID, name, host string, port int, pubPEM string, regime core.Regime, log zerolog.Logger, hasChain func() bool) *Overlay {
	cache, err := lru.New[string, struct{}](seenMessageCacheSize)
	if err != nil {
		panic(err) // only fails for non-positive size, which seenMessageCacheSize never is
	}
	return &Overlay{
		nodeID:    nodeID,
		name:      name,
		host:      host,
		port:      port,
		pubPEM:    pubPEM,
		regime:    regime,
		log:       log,
		hasChain:  hasChain,
		outbound:  make(map[string]*Peer),
		inbound:   make(map[string]*Peer),
		directory: make(map[string]PeerInfoData),
		names:     map[string]bool{name: true},
		seen:      cache,
	}
}

// ServeHTTP upgrades an inbound connection and begins serving it. Mount
// this at the overlay listen path (e.g. "/p2p").
func (o *Overlay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peer, err := Accept(w, r)
	if err != nil {
		o.log.Warn().Err(err).Msg("overlay: upgrade failed")
		return
	}
	o.mu.Lock()
	o.inbound[peer.Addr] = peer
	o.mu.Unlock()
	go o.readLoop(peer, false)
}

// Dial connects to addr, registers it in the outbound pool, and starts
// the handshake (spec §6: outbound sends add_peer-if-no-chain then ping).
func (o *Overlay) Dial(addr string) error {
	o.mu.RLock()
	_, already := o.outbound[addr]
	full := len(o.outbound) >= MaxConnections
	o.mu.RUnlock()
	if already {
		return nil
	}
	if full {
		return fmt.Errorf("outbound pool full (%d)", MaxConnections)
	}
	peer, err := Dial(addr)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.outbound[addr] = peer
	o.mu.Unlock()
	go o.readLoop(peer, true)

	if !o.hasChain() {
		if err := o.sendSelfInfo(peer, MsgAddPeer); err != nil {
			o.log.Warn().Err(err).Msg("overlay: send add_peer")
		}
	}
	if err := peer.Send(Message{Type: MsgPing}); err != nil {
		o.log.Warn().Err(err).Msg("overlay: send ping")
	}
	return nil
}

func (o *Overlay) sendSelfInfo(peer *Peer, typ MsgType) error {
	data, err := json.Marshal(PeerInfoData{Host: o.host, Port: o.port, Name: o.name, PublicKey: o.pubPEM, NodeID: o.nodeID})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: typ, Payload: data})
}

// Broadcast sends msg to every connected peer, marking its id seen so
// the sender itself won't re-relay a later echo of it.
func (o *Overlay) Broadcast(msg Message) {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	o.seen.Add(msg.ID, struct{}{})
	for _, p := range o.allPeers() {
		if err := p.Send(msg); err != nil {
			o.log.Warn().Err(err).Str("peer", p.Addr).Msg("overlay: broadcast send failed")
		}
	}
}

func (o *Overlay) allPeers() []*Peer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Peer, 0, len(o.outbound)+len(o.inbound))
	for _, p := range o.outbound {
		out = append(out, p)
	}
	for _, p := range o.inbound {
		out = append(out, p)
	}
	return out
}

// Directory returns a snapshot of known peer endpoints (for persistence
// and the status/control surface).
func (o *Overlay) Directory() []PeerInfoData {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PeerInfoData, 0, len(o.directory))
	for _, info := range o.directory {
		out = append(out, info)
	}
	return out
}

// LoadDirectory seeds the known-peer directory from persisted state
// without dialing; discovery will connect to entries as capacity allows.
func (o *Overlay) LoadDirectory(peers []PeerInfoData) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range peers {
		o.directory[fmt.Sprintf("%s:%d", p.Host, p.Port)] = p
	}
}

func (o *Overlay) readLoop(peer *Peer, outbound bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("peer", peer.Addr).Msg("overlay: readLoop panic")
		}
		peer.Close()
		o.mu.Lock()
		if outbound {
			delete(o.outbound, peer.Addr)
		} else {
			delete(o.inbound, peer.Addr)
		}
		o.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		o.dispatch(peer, msg)
	}
}

func (o *Overlay) dispatch(peer *Peer, msg Message) {
	if msg.Type != MsgPing && msg.Type != MsgPong {
		if _, dup := o.seen.Get(msg.ID); dup {
			return // DuplicateMessage: drop silently (spec §7)
		}
		o.seen.Add(msg.ID, struct{}{})
	}

	switch msg.Type {
	case MsgPing:
		_ = peer.Send(Message{Type: MsgPong})
	case MsgPong:
		_ = o.sendSelfInfo(peer, MsgPeerInfo)
	case MsgAddPeer, MsgNewPeer, MsgPeerInfo:
		o.handlePeerInfo(peer, msg)
	case MsgKnownPeers:
		o.handleKnownPeers(msg)
		o.RequestChain()
	case MsgChangeName:
		o.handleChangeName(msg)
	case MsgChainRequest:
		if o.OnChainRequest != nil {
			o.OnChainRequest(peer)
		}
	case MsgChain:
		var payload ChainPayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnChain != nil {
			o.OnChain(peer, payload)
		}
	case MsgNewTx:
		var payload NewTxPayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnNewTx != nil {
			o.OnNewTx(payload)
			o.relay(msg, peer)
		}
	case MsgNewBlock:
		var payload NewBlockPayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnNewBlock != nil {
			o.OnNewBlock(payload)
			o.relay(msg, peer)
		}
	case MsgStakeAnnouncement:
		var payload StakeAnnouncementPayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnStake != nil {
			o.OnStake(payload)
			o.relay(msg, peer)
		}
	case MsgSlashAnnouncement:
		var payload SlashAnnouncementPayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnSlash != nil {
			o.OnSlash(payload)
			o.relay(msg, peer)
		}
	case MsgMinersListUpdate:
		var payload MinersListUpdatePayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnMinersListUpdate != nil {
			o.OnMinersListUpdate(payload)
			o.relay(msg, peer)
		}
	case MsgNetworkDetailsRequest:
		if o.OnNetworkDetailsRequest != nil {
			o.OnNetworkDetailsRequest(peer)
		}
	case MsgNetworkDetails:
		var payload NetworkDetailsPayload
		if json.Unmarshal(msg.Payload, &payload) == nil {
			if o.OnNetworkDetails != nil {
				o.OnNetworkDetails(payload)
			}
			_ = peer.Send(Message{Type: MsgChainRequest})
		}
	case MsgFile:
		var payload FilePayload
		if json.Unmarshal(msg.Payload, &payload) == nil && o.OnFile != nil {
			o.OnFile(payload)
			o.relay(msg, peer)
		}
	}
}

// relay re-broadcasts a gossiped message to every other peer, since the
// dedup set already marked msg.ID seen.
func (o *Overlay) relay(msg Message, origin *Peer) {
	for _, p := range o.allPeers() {
		if p == origin {
			continue
		}
		if err := p.Send(msg); err != nil {
			o.log.Debug().Err(err).Str("peer", p.Addr).Msg("overlay: relay send failed")
		}
	}
}

func (o *Overlay) handlePeerInfo(peer *Peer, msg Message) {
	var info PeerInfoData
	if err := json.Unmarshal(msg.Payload, &info); err != nil {
		return
	}
	addr := fmt.Sprintf("%s:%d", info.Host, info.Port)

	o.mu.Lock()
	if o.names[info.Name] {
		original := info.Name
		n := 2
		for o.names[fmt.Sprintf("%s-%d", original, n)] {
			n++
		}
		info.Name = fmt.Sprintf("%s-%d", original, n)
		o.names[info.Name] = true
		o.mu.Unlock()
		payload, _ := json.Marshal(ChangeNamePayload{NewPeerMsgID: msg.ID, NewName: info.Name})
		_ = peer.Send(Message{Type: MsgChangeName, Payload: payload})
	} else {
		o.names[info.Name] = true
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.directory[addr] = info
	o.mu.Unlock()
	peer.ID = info.NodeID

	known := o.Directory()
	payload, err := json.Marshal(KnownPeersPayload{Peers: known})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgKnownPeers, Payload: payload})
}

func (o *Overlay) handleKnownPeers(msg Message) {
	var payload KnownPeersPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}
	o.LoadDirectory(payload.Peers)
}

func (o *Overlay) handleChangeName(msg Message) {
	var payload ChangeNamePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}
	o.mu.Lock()
	o.name = payload.NewName
	o.names[payload.NewName] = true
	o.mu.Unlock()
}

// RequestChain broadcasts a chain_request to every connected peer (for
// PoA, a network_details_request, whose reply triggers the
// chain_request). It is sent on receipt of known_peers at the end of a
// handshake and by the periodic broadcaster (spec §4.9).
func (o *Overlay) RequestChain() {
	if o.regime == core.RegimePoA {
		o.Broadcast(Message{Type: MsgNetworkDetailsRequest})
		return
	}
	o.Broadcast(Message{Type: MsgChainRequest})
}

// RunDiscovery periodically fills the outbound pool up to
// MaxConnections from known-but-unconnected directory entries (spec §5).
func (o *Overlay) RunDiscovery(stop <-chan struct{}) {
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.discoverOnce()
		}
	}
}

func (o *Overlay) discoverOnce() {
	addr, ok := o.randomUnconnectedCandidate()
	if !ok {
		return
	}
	if err := o.Dial(addr); err != nil {
		o.log.Debug().Err(err).Str("addr", addr).Msg("overlay: discovery dial failed")
	}
}

func (o *Overlay) randomUnconnectedCandidate() (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.outbound) >= MaxConnections {
		return "", false
	}
	candidates := make([]string, 0, len(o.directory))
	for addr := range o.directory {
		if _, connected := o.outbound[addr]; !connected {
			candidates = append(candidates, addr)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// RunSampler periodically drops one random outbound connection and
// replaces it with a random candidate, to diversify the gossip view
// (spec §5 "gossip sampler... drop-one/add-one").
func (o *Overlay) RunSampler(stop <-chan struct{}) {
	ticker := time.NewTicker(samplerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.sampleOnce()
		}
	}
}

func (o *Overlay) sampleOnce() {
	o.mu.Lock()
	if len(o.outbound) == 0 {
		o.mu.Unlock()
		return
	}
	addrs := make([]string, 0, len(o.outbound))
	for addr := range o.outbound {
		addrs = append(addrs, addr)
	}
	victim := addrs[rand.Intn(len(addrs))]
	peer := o.outbound[victim]
	delete(o.outbound, victim)
	o.mu.Unlock()
	peer.Close()
	o.discoverOnce()
}

func newMessageID() string {
	return uuid.NewString()
}
