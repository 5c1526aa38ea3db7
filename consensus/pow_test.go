package consensus_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/internal/testutil"
)

func TestPoWProducerMinesValidBlock(t *testing.T) {
	priv, err := crypto.RSAPSSSuite.Generate()
	if err != nil {
		t.Fatal(err)
	}
	pem, _ := priv.Public().PEM()

	chain := core.NewChain(testutil.NewMemBlockStore())
	mempool := core.NewMempool()
	emitter := events.NewEmitter()
	producer := consensus.NewPoWProducer(chain, mempool, priv, pem, emitter, zerolog.Nop(), 500)

	block, err := producer.Mine(context.Background())
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if err := producer.Commit(block); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rules := consensus.PoWRules{}
	if err := rules.IsValidBlock(nil, block); err != nil {
		t.Errorf("mined genesis block should validate: %v", err)
	}
}

func TestPoWProducerMineCancelable(t *testing.T) {
	priv, _ := crypto.RSAPSSSuite.Generate()
	pem, _ := priv.Public().PEM()
	chain := core.NewChain(testutil.NewMemBlockStore())
	mempool := core.NewMempool()
	producer := consensus.NewPoWProducer(chain, mempool, priv, pem, events.NewEmitter(), zerolog.Nop(), 500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := producer.Mine(ctx); err == nil {
		t.Error("expected Mine to return an error for an already-canceled context")
	}
}

func TestPoWRulesRejectsBadPrevHash(t *testing.T) {
	bogusPrev := "deadbeef"
	block := core.NewBlock(core.RegimePoW, &bogusPrev, nil, 1)
	block.PoW = &core.PoWFields{}
	rules := consensus.PoWRules{}
	if err := rules.IsValidBlock(nil, block); err == nil {
		t.Error("expected genesis-position block with non-nil prev_hash to be rejected")
	}
}
