package indexer_test

import (
	"testing"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/internal/testutil"
)

type fakeChainReader struct {
	blocks []*core.Block
}

func (f *fakeChainReader) At(height int) *core.Block {
	if height < 0 || height >= len(f.blocks) {
		return nil
	}
	return f.blocks[height]
}

func TestIndexerTracksTransactionsOnBlockCommit(t *testing.T) {
	alice := "alice-pem"
	bob := "bob-pem"
	tx := core.NewTransaction(alice, bob, core.Payload{Kind: core.PayloadValue, Amount: 10}, 1)
	block := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{tx}, 1)

	chain := &fakeChainReader{blocks: []*core.Block{block}}
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), chain, emitter)

	emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: 0})

	aliceTxs, err := idx.GetTransactionsByAddress(alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceTxs) != 1 || aliceTxs[0] != tx.ID {
		t.Errorf("alice's transactions: got %v", aliceTxs)
	}
	bobTxs, err := idx.GetTransactionsByAddress(bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(bobTxs) != 1 || bobTxs[0] != tx.ID {
		t.Errorf("bob's transactions: got %v", bobTxs)
	}
}

func TestIndexerSkipsGenesisSenderAndContractReceivers(t *testing.T) {
	genesisTx := core.NewTransaction(core.GenesisSender, "receiver-pem", core.Payload{Kind: core.PayloadValue, Amount: 100}, 1)
	deployTx := core.NewTransaction("deployer-pem", core.ReceiverDeploy, core.Payload{Kind: core.PayloadDeploy, Code: "x", Amount: 0}, 2)
	block := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{genesisTx, deployTx}, 1)

	chain := &fakeChainReader{blocks: []*core.Block{block}}
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), chain, emitter)
	emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: 0})

	genesisIndexed, err := idx.GetTransactionsByAddress(core.GenesisSender)
	if err != nil {
		t.Fatal(err)
	}
	if len(genesisIndexed) != 0 {
		t.Errorf("expected the genesis sentinel sender not to be indexed, got %v", genesisIndexed)
	}
	deployerIndexed, err := idx.GetTransactionsByAddress("deployer-pem")
	if err != nil {
		t.Fatal(err)
	}
	if len(deployerIndexed) != 1 {
		t.Errorf("expected the deploying sender to be indexed, got %v", deployerIndexed)
	}
	contractIndexed, err := idx.GetTransactionsByAddress(core.ReceiverDeploy)
	if err != nil {
		t.Fatal(err)
	}
	if len(contractIndexed) != 0 {
		t.Errorf("expected the deploy sentinel receiver not to be indexed, got %v", contractIndexed)
	}
}

func TestIndexerReindexesOnChainAdopted(t *testing.T) {
	tx0 := core.NewTransaction("alice-pem", "bob-pem", core.Payload{Kind: core.PayloadValue, Amount: 1}, 1)
	tx1 := core.NewTransaction("carol-pem", "alice-pem", core.Payload{Kind: core.PayloadValue, Amount: 2}, 2)
	block0 := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{tx0}, 1)
	block1 := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{tx1}, 2)

	chain := &fakeChainReader{blocks: []*core.Block{block0, block1}}
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), chain, emitter)

	// Only block 0 was seen incrementally; a fork-choice adoption should
	// backfill block 1 too.
	emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: 0})
	emitter.Emit(events.Event{Type: events.EventChainAdopted, BlockHeight: 1})

	aliceTxs, err := idx.GetTransactionsByAddress("alice-pem")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceTxs) != 2 {
		t.Errorf("expected alice to appear in both blocks, got %v", aliceTxs)
	}
}

func TestIndexerRecordsSlashes(t *testing.T) {
	chain := &fakeChainReader{}
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), chain, emitter)

	slashes, err := idx.GetSlashedCreators()
	if err != nil {
		t.Fatal(err)
	}
	if len(slashes) != 0 {
		t.Fatalf("expected no slashes yet, got %v", slashes)
	}

	emitter.Emit(events.Event{Type: events.EventSlash, BlockHeight: 3, Data: map[string]any{"creator": "bad-actor-pem"}})

	slashes, err = idx.GetSlashedCreators()
	if err != nil {
		t.Fatal(err)
	}
	if slashes[3] != "bad-actor-pem" {
		t.Errorf("expected slash recorded at height 3, got %v", slashes)
	}
}
