package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/wallet"
)

// Handler is the status/control surface collaborator (spec §6): it
// exposes node identity, balance, chain, mempool, peers, and the current
// miner set, and accepts transaction/stake/miner-roster commands by
// calling the node's core operations directly.
type Handler struct {
	nodeID     string
	chain      *core.Chain
	mempool    *core.Mempool
	rules      consensus.Rules
	regime     core.Regime
	wallet     *wallet.Wallet
	overlay    *network.Overlay
	replicator *network.Replicator
	indexer    *indexer.Indexer

	// Roster and posProducer are non-nil only for the matching regime.
	roster      *consensus.Roster
	posProducer *consensus.PoSProducer

	stop func()
}

// NewHandler creates an RPC Handler. roster is used for PoA's
// add_miner/remove_miner and posProducer for PoS's
// send_stake_announcement; pass nil for the regime(s) that don't apply.
func NewHandler(nodeID string, chain *core.Chain, mempool *core.Mempool, rules consensus.Rules, regime core.Regime, w *wallet.Wallet, overlay *network.Overlay, replicator *network.Replicator, idx *indexer.Indexer, roster *consensus.Roster, posProducer *consensus.PoSProducer, stop func()) *Handler {
	return &Handler{
		nodeID: nodeID, chain: chain, mempool: mempool, rules: rules, regime: regime,
		wallet: w, overlay: overlay, replicator: replicator, indexer: idx,
		roster: roster, posProducer: posProducer, stop: stop,
	}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "get_identity":
		return okResponse(req.ID, map[string]any{"node_id": h.nodeID, "regime": h.regime, "public_key": h.wallet.PublicPEM()})

	case "get_chain":
		return okResponse(req.ID, h.chain.Blocks())

	case "get_balance":
		return h.getBalance(req)

	case "get_mempool":
		return okResponse(req.ID, h.mempool.Iter())

	case "get_peers":
		return okResponse(req.ID, h.overlay.Directory())

	case "get_miners":
		return h.getMiners(req)

	case "get_transaction_history":
		return h.getTransactionHistory(req)

	case "get_slashes":
		slashes, err := h.indexer.GetSlashedCreators()
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		return okResponse(req.ID, slashes)

	case "create_and_broadcast_tx":
		return h.createAndBroadcastTx(req)

	case "add_miner":
		return h.updateRoster(req, true)

	case "remove_miner":
		return h.updateRoster(req, false)

	case "send_stake_announcement":
		return h.sendStakeAnnouncement(req)

	case "stop":
		if h.stop != nil {
			go h.stop()
		}
		return okResponse(req.ID, map[string]string{"status": "stopping"})

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	chain := h.chain.Blocks()
	m := len(chain) - h.rules.FinalityWindow(len(chain))
	bal := core.Balance(chain, m, params.Address, h.mempool.Iter(), h.pendingStakes())
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": bal})
}

func (h *Handler) pendingStakes() []*core.Stake {
	if h.posProducer == nil {
		return nil
	}
	return h.posProducer.Stakes()
}

func (h *Handler) getTransactionHistory(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	ids, err := h.indexer.GetTransactionsByAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getMiners(req Request) Response {
	if h.roster == nil {
		return errResponse(req.ID, CodeInvalidRequest, "not a poa node")
	}
	return okResponse(req.ID, h.roster.Active(h.chain.Len()))
}

func (h *Handler) createAndBroadcastTx(req Request) Response {
	var params struct {
		Receiver   string          `json:"receiver"`
		Amount     float64         `json:"amount"`
		Kind       string          `json:"kind"` // "value" (default), "deploy", "invoke"
		Code       string          `json:"code,omitempty"`
		ContractID string          `json:"contract_id,omitempty"`
		Function   string          `json:"function,omitempty"`
		Args       []any           `json:"args,omitempty"`
		State      json.RawMessage `json:"state,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	var tx *core.Transaction
	var err error
	switch params.Kind {
	case "deploy":
		tx, err = h.wallet.NewDeployTransaction(params.Code, params.Amount)
	case "invoke":
		tx, err = h.wallet.NewInvokeTransaction(params.ContractID, params.Function, params.Args, params.State, params.Amount)
	default:
		if params.Receiver == "" {
			return errResponse(req.ID, CodeInvalidParams, "receiver is required")
		}
		tx, err = h.wallet.NewTransaction(params.Receiver, params.Amount)
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}

	if err := h.mempool.Insert(tx, h.chain); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	h.replicator.BroadcastTx(tx)
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

func (h *Handler) updateRoster(req Request, add bool) Response {
	if h.roster == nil {
		return errResponse(req.ID, CodeInvalidRequest, "not a poa node")
	}
	var params struct {
		MinerPublicKey  string `json:"miner_public_key"`
		ActivationBlock int    `json:"activation_block"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.MinerPublicKey == "" {
		return errResponse(req.ID, CodeInvalidParams, "miner_public_key is required")
	}

	current := h.roster.Active(h.chain.Len())
	var next []string
	if add {
		next = append(append([]string(nil), current...), params.MinerPublicKey)
	} else {
		for _, m := range current {
			if m != params.MinerPublicKey {
				next = append(next, m)
			}
		}
	}

	update := consensus.NewRosterUpdate(next, params.ActivationBlock)
	if err := update.Sign(h.wallet.PrivateKey()); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	h.roster.Enqueue(update)

	payload, err := json.Marshal(network.MinersListUpdatePayload{
		MinersList:      next,
		ActivationBlock: params.ActivationBlock,
		Signature:       fmt.Sprintf("%x", update.Signature),
	})
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	h.overlay.Broadcast(network.Message{Type: network.MsgMinersListUpdate, Payload: payload})
	return okResponse(req.ID, map[string]any{"miners_list": next, "activation_block": params.ActivationBlock})
}

func (h *Handler) sendStakeAnnouncement(req Request) Response {
	if h.posProducer == nil {
		return errResponse(req.ID, CodeInvalidRequest, "not a pos node")
	}
	var params struct {
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	stake, err := h.wallet.NewStake(params.Amount)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if err := h.posProducer.SubmitStake(stake); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	h.replicator.BroadcastStake(stake)
	return okResponse(req.ID, map[string]string{"stake_id": stake.ID})
}
