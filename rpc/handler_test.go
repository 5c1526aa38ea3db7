package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/rpc"
	"github.com/tolelom/tolchain/wallet"
)

// appendFillerBlocks appends n empty, validly-linked PoW blocks to chain,
// used to push an earlier block's credits into the finalized window.
func appendFillerBlocks(t *testing.T, chain *core.Chain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		tip := chain.Tip()
		hash, err := tip.Hash()
		if err != nil {
			t.Fatal(err)
		}
		block := core.NewBlock(core.RegimePoW, &hash, nil, int64(i+2))
		block.PoW = &core.PoWFields{}
		if err := chain.Append(block); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestHandler(t *testing.T) (*rpc.Handler, *wallet.Wallet) {
	t.Helper()
	w, err := wallet.Generate(crypto.RSAPSSSuite)
	if err != nil {
		t.Fatal(err)
	}

	chain := core.NewChain(testutil.NewMemBlockStore())
	genesis := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{
		core.NewTransaction(core.GenesisSender, w.PublicPEM(), core.Payload{Kind: core.PayloadValue, Amount: 100}, 1),
	}, 1)
	genesis.PoW = &core.PoWFields{}
	if err := chain.Append(genesis); err != nil {
		t.Fatal(err)
	}
	appendFillerBlocks(t, chain, 4) // push the genesis credit into the finalized window

	mempool := core.NewMempool()
	overlay := network.NewOverlay("node-1", "node-1", "127.0.0.1", 9001, w.PublicPEM(), core.RegimePoW, zerolog.Nop(), func() bool { return true })
	rules := consensus.PoWRules{}
	replicator := network.NewReplicator(overlay, chain, mempool, rules, core.RegimePoW, events.NewEmitter(), zerolog.Nop())
	idx := indexer.New(testutil.NewMemDB(), chain, events.NewEmitter())

	h := rpc.NewHandler("node-1", chain, mempool, rules, core.RegimePoW, w, overlay, replicator, idx, nil, nil, nil)
	return h, w
}

func TestHandlerGetIdentity(t *testing.T) {
	h, w := newTestHandler(t)
	resp := h.Dispatch(rpc.Request{ID: 1, Method: "get_identity"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	m, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	if m["public_key"] != w.PublicPEM() {
		t.Errorf("public_key mismatch: %+v", m)
	}
}

func TestHandlerGetBalance(t *testing.T) {
	h, w := newTestHandler(t)
	params, _ := json.Marshal(map[string]string{"address": w.PublicPEM()})
	resp := h.Dispatch(rpc.Request{ID: 2, Method: "get_balance", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	m := resp.Result.(map[string]any)
	if bal, _ := m["balance"].(float64); bal <= 0 {
		t.Errorf("expected positive balance from the genesis credit, got %v", m["balance"])
	}
}

func TestHandlerGetBalanceMissingAddress(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := h.Dispatch(rpc.Request{ID: 3, Method: "get_balance", Params: json.RawMessage(`{}`)})
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %+v", resp.Error)
	}
}

func TestHandlerCreateAndBroadcastTx(t *testing.T) {
	h, _ := newTestHandler(t)
	other, _ := crypto.RSAPSSSuite.Generate()
	otherPEM, _ := other.Public().PEM()

	params, _ := json.Marshal(map[string]any{"receiver": otherPEM, "amount": 10})
	resp := h.Dispatch(rpc.Request{ID: 4, Method: "create_and_broadcast_tx", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	m := resp.Result.(map[string]string)
	if m["tx_id"] == "" {
		t.Error("expected a non-empty tx_id")
	}
}

func TestHandlerMinerMethodsRejectedOffPoARegime(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := h.Dispatch(rpc.Request{ID: 5, Method: "get_miners"})
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest for a non-poa node, got %+v", resp.Error)
	}
}

func TestHandlerStakeAnnouncementRejectedOffPoSRegime(t *testing.T) {
	h, _ := newTestHandler(t)
	params, _ := json.Marshal(map[string]float64{"amount": 10})
	resp := h.Dispatch(rpc.Request{ID: 6, Method: "send_stake_announcement", Params: params})
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest for a non-pos node, got %+v", resp.Error)
	}
}

func TestHandlerUnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := h.Dispatch(rpc.Request{ID: 7, Method: "does_not_exist"})
	if resp.Error == nil || resp.Error.Code != rpc.CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
}

func TestHandlerStop(t *testing.T) {
	stopped := make(chan struct{})
	w, err := wallet.Generate(crypto.RSAPSSSuite)
	if err != nil {
		t.Fatal(err)
	}
	chain := core.NewChain(testutil.NewMemBlockStore())
	mempool := core.NewMempool()
	overlay := network.NewOverlay("node-1", "node-1", "127.0.0.1", 9001, w.PublicPEM(), core.RegimePoW, zerolog.Nop(), func() bool { return true })
	rules := consensus.PoWRules{}
	replicator := network.NewReplicator(overlay, chain, mempool, rules, core.RegimePoW, events.NewEmitter(), zerolog.Nop())
	idx := indexer.New(testutil.NewMemDB(), chain, events.NewEmitter())
	h := rpc.NewHandler("node-1", chain, mempool, rules, core.RegimePoW, w, overlay, replicator, idx, nil, nil, func() { close(stopped) })

	resp := h.Dispatch(rpc.Request{ID: 8, Method: "stop"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	<-stopped
}
