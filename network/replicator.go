package network

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
)

const chainRequestInterval = 60 * time.Second

// Replicator wires an Overlay's gossip traffic to the local chain and
// mempool: it validates and admits incoming transactions and blocks,
// answers chain_request with the local chain, and applies fork choice
// on full-chain replies (spec §4.9).
type Replicator struct {
	overlay *Overlay
	chain   *core.Chain
	mempool *core.Mempool
	rules   consensus.Rules
	regime  core.Regime
	emitter *events.Emitter
	log     zerolog.Logger

	// OnStakeSubmitted, when set, hands a decoded gossiped stake to the
	// PoS producer's epoch-local validation (core.Stake.Verify plus
	// balance/duplicate checks it alone can make). Unused for PoW/PoA.
	OnStakeSubmitted func(*core.Stake)
}

// NewReplicator wires overlay's hooks to chain/mempool/rules and returns
// the Replicator managing them.
func NewReplicator(overlay *Overlay, chain *core.Chain, mempool *core.Mempool, rules consensus.Rules, regime core.Regime, emitter *events.Emitter, log zerolog.Logger) *Replicator {
	r := &Replicator{overlay: overlay, chain: chain, mempool: mempool, rules: rules, regime: regime, emitter: emitter, log: log}
	overlay.OnNewTx = r.handleNewTx
	overlay.OnNewBlock = r.handleNewBlock
	overlay.OnChainRequest = r.handleChainRequest
	overlay.OnChain = r.handleChain
	overlay.OnStake = r.handleStake
	overlay.OnSlash = r.handleSlash
	return r
}

// Broadcast helpers used by the local node after accepting its own
// transaction/block/stake, so the rest of the network learns about it.

// BroadcastTx gossips a freshly admitted local transaction.
func (r *Replicator) BroadcastTx(tx *core.Transaction) {
	body, err := tx.CanonicalBytes()
	if err != nil {
		r.log.Warn().Err(err).Msg("replicator: canonical encode tx")
		return
	}
	payload, err := json.Marshal(NewTxPayload{Transaction: string(body), Sign: encodeSig(tx.Signature), SenderPEM: tx.Sender})
	if err != nil {
		return
	}
	r.overlay.Broadcast(Message{Type: MsgNewTx, Payload: payload})
}

// BroadcastBlock gossips a freshly mined/produced local block.
func (r *Replicator) BroadcastBlock(block *core.Block) {
	blockJSON, err := json.Marshal(block)
	if err != nil {
		r.log.Warn().Err(err).Msg("replicator: marshal block")
		return
	}
	payload, err := json.Marshal(NewBlockPayload{Block: blockJSON})
	if err != nil {
		return
	}
	r.overlay.Broadcast(Message{Type: MsgNewBlock, Payload: payload})
}

// BroadcastStake gossips a freshly submitted PoS stake.
func (r *Replicator) BroadcastStake(stake *core.Stake) {
	stakeJSON, err := json.Marshal(stake)
	if err != nil {
		return
	}
	payload, err := json.Marshal(StakeAnnouncementPayload{Stake: stakeJSON})
	if err != nil {
		return
	}
	r.overlay.Broadcast(Message{Type: MsgStakeAnnouncement, Payload: payload})
}

func (r *Replicator) handleNewTx(payload NewTxPayload) {
	var tx core.Transaction
	if err := json.Unmarshal([]byte(payload.Transaction), &tx); err != nil {
		r.log.Debug().Err(err).Msg("replicator: decode gossiped tx")
		return
	}
	if err := r.mempool.Insert(&tx, r.chain); err != nil {
		r.log.Debug().Err(err).Str("tx", tx.ID).Msg("replicator: reject gossiped tx")
	}
}

func (r *Replicator) handleNewBlock(payload NewBlockPayload) {
	var block core.Block
	if err := json.Unmarshal(payload.Block, &block); err != nil {
		r.log.Debug().Err(err).Msg("replicator: decode gossiped block")
		return
	}
	if err := r.rules.IsValidBlock(r.chain.Blocks(), &block); err != nil {
		r.log.Debug().Err(err).Msg("replicator: reject gossiped block")
		return
	}
	if err := r.chain.Append(&block); err != nil {
		r.log.Debug().Err(err).Msg("replicator: append gossiped block")
		return
	}
	r.mempool.RemoveAllIn(&block)
	hash, _ := block.Hash()
	r.emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: r.chain.Len() - 1, Data: map[string]any{"hash": hash, "source": "gossip"}})
}

func (r *Replicator) handleChainRequest(peer *Peer) {
	blocks := r.chain.Blocks()
	chainJSON, err := json.Marshal(blocks)
	if err != nil {
		return
	}
	payload, err := json.Marshal(ChainPayload{Chain: chainJSON})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgChain, Payload: payload})
}

func (r *Replicator) handleChain(_ *Peer, payload ChainPayload) {
	var remote []*core.Block
	if err := json.Unmarshal(payload.Chain, &remote); err != nil {
		r.log.Debug().Err(err).Msg("replicator: decode remote chain")
		return
	}
	if err := r.rules.IsValidChain(remote); err != nil {
		r.log.Debug().Err(err).Msg("replicator: reject remote chain")
		return
	}

	local := r.chain.Blocks()
	if len(local) == 0 {
		r.adopt(remote)
		return
	}

	switch r.regime {
	case core.RegimePoW, core.RegimePoA:
		if len(remote) > len(local) {
			r.adopt(remote)
		}
	case core.RegimePoS:
		r.reconcilePoS(local, remote)
	}
}

// reconcilePoS implements spec §4.8's fork-handling table: at the first
// divergent index, a creator mismatch is a non-malicious fork resolved
// by stake weight; a creator match with differing blocks is equivocation,
// resolved by signature verification and slashing.
func (r *Replicator) reconcilePoS(local, remote []*core.Block) {
	p, err := consensus.ForkDivergence(local, remote)
	if err != nil {
		r.log.Debug().Err(err).Msg("replicator: fork divergence")
		return
	}
	if p >= len(local) || p >= len(remote) {
		if core.Weight(remote) > core.Weight(local) {
			r.adopt(remote)
		}
		return
	}

	if consensus.IsEquivocation(local[p], remote[p]) {
		localOK := consensus.VerifyBlockSignature(local[p])
		remoteOK := consensus.VerifyBlockSignature(remote[p])
		switch {
		case localOK && remoteOK:
			consensus.ApplySlash(local[p])
			consensus.ApplySlash(remote[p])
			r.emitter.Emit(events.Event{Type: events.EventSlash, BlockHeight: p, Data: map[string]any{"creator": local[p].Producer()}})
		case remoteOK && !localOK:
			r.adopt(remote)
		}
		// localOK && !remoteOK: local stays canonical, nothing to do.
		return
	}

	if core.Weight(remote) > core.Weight(local) {
		r.adopt(remote)
	}
}

func (r *Replicator) adopt(blocks []*core.Block) {
	if err := r.chain.Replace(blocks); err != nil {
		r.log.Warn().Err(err).Msg("replicator: adopt remote chain")
		return
	}
	r.gc()
	r.emitter.Emit(events.Event{Type: events.EventChainAdopted, BlockHeight: r.chain.Len() - 1, Data: map[string]any{"length": len(blocks)}})
}

// gc drops mempool transactions that landed in the newly adopted chain.
// Only the mempool is collected; no file-CID set is kept.
func (r *Replicator) gc() {
	for _, tx := range r.mempool.Iter() {
		if r.chain.HasTransaction(tx.ID) {
			r.mempool.RemoveAllIn(&core.Block{Transactions: []*core.Transaction{tx}})
		}
	}
}

func (r *Replicator) handleStake(payload StakeAnnouncementPayload) {
	var stake core.Stake
	if err := json.Unmarshal(payload.Stake, &stake); err != nil {
		r.log.Debug().Err(err).Msg("replicator: decode gossiped stake")
		return
	}
	if r.OnStakeSubmitted != nil {
		r.OnStakeSubmitted(&stake)
	}
}

func (r *Replicator) handleSlash(payload SlashAnnouncementPayload) {
	var b1, b2 core.Block
	if err := json.Unmarshal(payload.Evidence1, &b1); err != nil {
		return
	}
	if err := json.Unmarshal(payload.Evidence2, &b2); err != nil {
		return
	}
	if !consensus.IsEquivocation(&b1, &b2) {
		return
	}
	if consensus.VerifyBlockSignature(&b1) && consensus.VerifyBlockSignature(&b2) {
		consensus.ApplySlash(&b1)
		consensus.ApplySlash(&b2)
		r.emitter.Emit(events.Event{Type: events.EventSlash, BlockHeight: payload.Position, Data: map[string]any{"creator": b1.Producer()}})
	}
}

// RunChainRequestBroadcaster periodically gossips a chain_request (spec
// §4.9: "Every 60s each node broadcasts a chain_request").
func (r *Replicator) RunChainRequestBroadcaster(stop <-chan struct{}) {
	ticker := time.NewTicker(chainRequestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.overlay.RequestChain()
		}
	}
}

func encodeSig(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(sig)
}
