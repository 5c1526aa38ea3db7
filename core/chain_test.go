package core_test

import (
	"testing"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/internal/testutil"
)

func TestChainAppendRejectsBadLinkage(t *testing.T) {
	chain := core.NewChain(testutil.NewMemBlockStore())
	genesis := core.NewBlock(core.RegimePoW, nil, nil, 1)
	genesis.PoW = &core.PoWFields{}
	if err := chain.Append(genesis); err != nil {
		t.Fatalf("append genesis: %v", err)
	}

	bogus := core.NewBlock(core.RegimePoW, nil, nil, 2) // should chain off genesis, not nil
	bogus.PoW = &core.PoWFields{}
	if err := chain.Append(bogus); err == nil {
		t.Error("expected hash mismatch rejecting a block with wrong prev_hash")
	}

	tipHash, err := genesis.Hash()
	if err != nil {
		t.Fatal(err)
	}
	next := core.NewBlock(core.RegimePoW, &tipHash, nil, 3)
	next.PoW = &core.PoWFields{}
	if err := chain.Append(next); err != nil {
		t.Fatalf("append valid successor: %v", err)
	}
	if chain.Len() != 2 {
		t.Errorf("chain length: got %d want 2", chain.Len())
	}
}

func TestChainReplaceAndInit(t *testing.T) {
	store := testutil.NewMemBlockStore()
	chain := core.NewChain(store)
	genesis := core.NewBlock(core.RegimePoW, nil, nil, 1)
	genesis.PoW = &core.PoWFields{}
	if err := chain.Append(genesis); err != nil {
		t.Fatal(err)
	}

	reloaded := core.NewChain(store)
	if err := reloaded.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded length: got %d want 1", reloaded.Len())
	}

	replacement := []*core.Block{core.NewBlock(core.RegimePoW, nil, nil, 99)}
	replacement[0].PoW = &core.PoWFields{}
	if err := chain.Replace(replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if chain.Len() != 1 || chain.At(0).Timestamp != 99 {
		t.Error("replace did not swap in the new chain")
	}
}

func TestChainHasTransaction(t *testing.T) {
	store := testutil.NewMemBlockStore()
	chain := core.NewChain(store)
	tx := core.NewTransaction(core.GenesisSender, "r", core.Payload{Kind: core.PayloadValue, Amount: 1}, 1)
	genesis := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{tx}, 1)
	genesis.PoW = &core.PoWFields{}
	if err := chain.Append(genesis); err != nil {
		t.Fatal(err)
	}
	if !chain.HasTransaction(tx.ID) {
		t.Error("expected chain to report the genesis transaction as present")
	}
	if chain.HasTransaction("nonexistent") {
		t.Error("unexpected transaction reported present")
	}
}
