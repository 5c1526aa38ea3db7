package consensus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
)

func poaFinality(length int) int {
	// PoA has no staking/VRF window of its own; it inherits the PoW
	// step function for how many trailing blocks stay non-final, since
	// both regimes finalize purely on chain depth (spec §3 gives an
	// explicit step function only for PoW/PoS; PoA reuses PoW's).
	return powFinality(length)
}

// RosterUpdate is an admin-signed `(miners_list, activation_height)`
// change to the PoA roster (spec §4.7).
type RosterUpdate struct {
	ID               string   `json:"id"`
	MinersList       []string `json:"miners_list"`
	ActivationHeight int      `json:"activation_height"`
	Signature        []byte   `json:"signature,omitempty"`
}

type rosterSignable struct {
	ID               string   `json:"id"`
	MinersList       []string `json:"miners_list"`
	ActivationHeight int      `json:"activation_height"`
}

func (r *RosterUpdate) canonicalBytes() ([]byte, error) {
	return json.Marshal(rosterSignable{ID: r.ID, MinersList: r.MinersList, ActivationHeight: r.ActivationHeight})
}

// NewRosterUpdate builds an unsigned roster update.
func NewRosterUpdate(minersList []string, activationHeight int) *RosterUpdate {
	return &RosterUpdate{ID: uuid.NewString(), MinersList: minersList, ActivationHeight: activationHeight}
}

// Sign signs the update with the admin's private key.
func (r *RosterUpdate) Sign(priv crypto.PrivateKey) error {
	body, err := r.canonicalBytes()
	if err != nil {
		return err
	}
	sig, err := priv.Sign(body)
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

// Verify checks the update's signature against the admin's public key.
func (r *RosterUpdate) Verify(suite crypto.Suite, adminPEM string) error {
	pub, err := suite.ImportPublicPEM(adminPEM)
	if err != nil {
		return fmt.Errorf("%w: admin pem: %v", core.ErrBadSignature, err)
	}
	body, err := r.canonicalBytes()
	if err != nil {
		return err
	}
	if err := pub.Verify(body, r.Signature); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBadSignature, err)
	}
	return nil
}

// Roster tracks the queue of roster updates and resolves the active
// miners list for a given chain length: the queued update with the
// largest activation_height <= len(chain). The Genesis list, queued at
// height 0, applies until a later update activates; the miners_list
// embedded in blocks is not consulted.
type Roster struct {
	mu      sync.Mutex
	AdminID string
	queue   []*RosterUpdate
}

// NewRoster creates a Roster seeded with the Genesis miners list.
func NewRoster(adminID string, initial []string) *Roster {
	return &Roster{
		AdminID: adminID,
		queue:   []*RosterUpdate{{ID: "genesis", MinersList: initial, ActivationHeight: 0}},
	}
}

// Enqueue adds an already-verified roster update to the queue.
func (r *Roster) Enqueue(u *RosterUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, u)
}

// Active returns the miners list in effect at chain length n.
func (r *Roster) Active(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := r.queue[0]
	for _, u := range r.queue {
		if u.ActivationHeight <= n && u.ActivationHeight >= best.ActivationHeight {
			best = u
		}
	}
	return best.MinersList
}

// PoARules implements Rules for the Proof-of-Authority regime.
type PoARules struct {
	Roster *Roster
}

func (PoARules) FinalityWindow(length int) int { return poaFinality(length) }

func (p PoARules) IsValidBlock(chain []*core.Block, block *core.Block) error {
	if block.Regime != core.RegimePoA || block.PoA == nil {
		return fmt.Errorf("%w: not a poa block", core.ErrUnexpectedProducer)
	}
	if err := validateShared(chain, crypto.Secp256k1Suite, poaFinality, block); err != nil {
		return err
	}

	expected := p.Roster.Active(len(chain))
	if !stringsContain(expected, block.PoA.MinerNodeID) {
		return fmt.Errorf("%w: producer %s not in active roster", core.ErrUnexpectedProducer, block.PoA.MinerNodeID)
	}

	pub, err := crypto.Secp256k1Suite.ImportPublicPEM(block.PoA.MinerPublicKey)
	if err != nil {
		return fmt.Errorf("%w: miner pem: %v", core.ErrBadSignature, err)
	}
	hashable, err := block.Hash()
	if err != nil {
		return err
	}
	if err := pub.Verify([]byte(hashable), block.PoA.Signature); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBadSignature, err)
	}
	return nil
}

func (p PoARules) IsValidChain(chain []*core.Block) error {
	for i := range chain {
		if err := p.IsValidBlock(chain[:i], chain[i]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

func stringsContain(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PoAProducer is the local miner's PoA engine: it tracks the roster,
// advances the round counter while idle, and mines when it is the
// expected producer for the current slot (spec §4.7).
type PoAProducer struct {
	nodeID  string
	chain   *core.Chain
	mempool *core.Mempool
	priv    crypto.PrivateKey
	roster  *Roster
	emitter *events.Emitter
	log     zerolog.Logger
	maxTxs  int

	mu          sync.Mutex
	round       int
	lastAdvance time.Time
}

// NewPoAProducer creates a PoA engine for nodeID.
func NewPoAProducer(nodeID string, chain *core.Chain, mempool *core.Mempool, priv crypto.PrivateKey, roster *Roster, emitter *events.Emitter, log zerolog.Logger, maxTxs int) *PoAProducer {
	if maxTxs <= 0 {
		maxTxs = 500
	}
	return &PoAProducer{nodeID: nodeID, chain: chain, mempool: mempool, priv: priv, roster: roster, emitter: emitter, log: log, maxTxs: maxTxs, lastAdvance: time.Now()}
}

// AdvanceRound steps the round counter once 90s have elapsed with a
// non-empty mempool since the last accepted block or round advance
// (spec §4.7: "advances by one every 90s as long as the mempool is
// non-empty").
func (p *PoAProducer) AdvanceRound() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mempool.Size() == 0 {
		return
	}
	if time.Since(p.lastAdvance) < 90*time.Second {
		return
	}
	p.round++
	p.lastAdvance = time.Now()
}

// ExpectedProducer returns the node id expected to mine the next slot.
func (p *PoAProducer) ExpectedProducer() string {
	p.mu.Lock()
	round := p.round
	p.mu.Unlock()
	active := p.roster.Active(p.chain.Len())
	if len(active) == 0 {
		return ""
	}
	idx := (p.chain.Len() + round) % len(active)
	return active[idx]
}

// IsMySlot reports whether this node is the expected producer now.
func (p *PoAProducer) IsMySlot() bool {
	return p.ExpectedProducer() == p.nodeID
}

// Produce mines, signs, and appends a block for the current slot.
func (p *PoAProducer) Produce() (*core.Block, error) {
	if !p.IsMySlot() {
		return nil, fmt.Errorf("%w: not this node's slot", core.ErrUnexpectedProducer)
	}
	txs := p.mempool.Iter()
	if len(txs) > p.maxTxs {
		txs = txs[:p.maxTxs]
	}

	var prevHash *string
	if tip := p.chain.Tip(); tip != nil {
		h, err := tip.Hash()
		if err != nil {
			return nil, err
		}
		prevHash = &h
	}

	active := p.roster.Active(p.chain.Len())
	pub := p.priv.Public()
	pem, err := pub.PEM()
	if err != nil {
		return nil, err
	}

	block := core.NewBlock(core.RegimePoA, prevHash, txs, time.Now().Unix())
	block.PoA = &core.PoAFields{MinerNodeID: p.nodeID, MinerPublicKey: pem, MinersList: active}

	hash, err := block.Hash()
	if err != nil {
		return nil, err
	}
	sig, err := p.priv.Sign([]byte(hash))
	if err != nil {
		return nil, err
	}
	block.PoA.Signature = sig

	if err := p.chain.Append(block); err != nil {
		return nil, err
	}
	p.mempool.RemoveAllIn(block)
	p.mu.Lock()
	p.round = 0
	p.lastAdvance = time.Now()
	p.mu.Unlock()

	p.emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: p.chain.Len() - 1, Data: map[string]any{"hash": hash, "txs": len(txs)}})
	return block, nil
}
