package consensus_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/internal/testutil"
)

func TestRosterUpdateSignVerify(t *testing.T) {
	admin, err := crypto.Secp256k1Suite.Generate()
	if err != nil {
		t.Fatal(err)
	}
	adminPEM, _ := admin.Public().PEM()

	update := consensus.NewRosterUpdate([]string{"miner-a", "miner-b"}, 10)
	if err := update.Sign(admin); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := update.Verify(crypto.Secp256k1Suite, adminPEM); err != nil {
		t.Errorf("verify: %v", err)
	}

	other, _ := crypto.Secp256k1Suite.Generate()
	otherPEM, _ := other.Public().PEM()
	if err := update.Verify(crypto.Secp256k1Suite, otherPEM); err == nil {
		t.Error("expected verification against the wrong admin key to fail")
	}
}

func TestRosterActiveResolvesLargestApplicableActivation(t *testing.T) {
	roster := consensus.NewRoster("admin", []string{"genesis-miner"})
	roster.Enqueue(&consensus.RosterUpdate{ID: "u1", MinersList: []string{"miner-a"}, ActivationHeight: 5})
	roster.Enqueue(&consensus.RosterUpdate{ID: "u2", MinersList: []string{"miner-b"}, ActivationHeight: 10})

	if got := roster.Active(0); got[0] != "genesis-miner" {
		t.Errorf("height 0: got %v", got)
	}
	if got := roster.Active(7); got[0] != "miner-a" {
		t.Errorf("height 7: got %v", got)
	}
	if got := roster.Active(10); got[0] != "miner-b" {
		t.Errorf("height 10: got %v", got)
	}
	if got := roster.Active(100); got[0] != "miner-b" {
		t.Errorf("height 100: got %v", got)
	}
}

func TestPoAProducerSingleNodeIsAlwaysItsOwnSlot(t *testing.T) {
	priv, err := crypto.Secp256k1Suite.Generate()
	if err != nil {
		t.Fatal(err)
	}
	pem, _ := priv.Public().PEM()

	roster := consensus.NewRoster(pem, []string{pem})
	chain := core.NewChain(testutil.NewMemBlockStore())
	mempool := core.NewMempool()
	producer := consensus.NewPoAProducer(pem, chain, mempool, priv, roster, events.NewEmitter(), zerolog.Nop(), 500)

	if !producer.IsMySlot() {
		t.Fatal("sole roster member should always be the expected producer for height 0 round 0")
	}
	if producer.ExpectedProducer() != pem {
		t.Errorf("expected producer: got %s want %s", producer.ExpectedProducer(), pem)
	}

	block, err := producer.Produce()
	if err != nil {
		t.Fatalf("produce: %v", err)
	}

	rules := consensus.PoARules{Roster: roster}
	if err := rules.IsValidBlock(nil, block); err != nil {
		t.Errorf("produced block should validate: %v", err)
	}
}

func TestAdvanceRoundRequiresNonEmptyMempoolAndElapsedTime(t *testing.T) {
	priv, _ := crypto.Secp256k1Suite.Generate()
	pem, _ := priv.Public().PEM()
	roster := consensus.NewRoster(pem, []string{pem})
	chain := core.NewChain(testutil.NewMemBlockStore())
	mempool := core.NewMempool()
	producer := consensus.NewPoAProducer(pem, chain, mempool, priv, roster, events.NewEmitter(), zerolog.Nop(), 500)

	before := producer.ExpectedProducer()
	producer.AdvanceRound() // empty mempool: no-op
	if producer.ExpectedProducer() != before {
		t.Error("advancing the round with an empty mempool should be a no-op")
	}

	tx := core.NewTransaction(pem, "receiver", core.Payload{Kind: core.PayloadValue, Amount: 1}, time.Now().Unix())
	if err := mempool.Insert(tx, nil); err != nil {
		t.Fatal(err)
	}
	producer.AdvanceRound() // non-empty mempool, but 90s have not elapsed
	if producer.ExpectedProducer() != before {
		t.Error("advancing the round before 90s have elapsed should be a no-op")
	}
}
