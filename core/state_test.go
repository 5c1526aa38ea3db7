package core_test

import (
	"testing"

	"github.com/tolelom/tolchain/core"
)

func TestBalanceFinalizedCreditsAndDebits(t *testing.T) {
	alice, bob := "alice-pem", "bob-pem"
	genesis := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{
		core.NewTransaction(core.GenesisSender, alice, core.Payload{Kind: core.PayloadValue, Amount: 100}, 1),
	}, 1)
	genesis.PoW = &core.PoWFields{}

	transfer := core.NewTransaction(alice, bob, core.Payload{Kind: core.PayloadValue, Amount: 30}, 2)
	block1 := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{transfer}, 2)
	block1.PoW = &core.PoWFields{}

	chain := []*core.Block{genesis, block1}

	// m=2: both blocks finalized.
	if got := core.Balance(chain, 2, alice, nil, nil); got != 70 {
		t.Errorf("alice balance: got %v want 70", got)
	}
	if got := core.Balance(chain, 2, bob, nil, nil); got != 30 {
		t.Errorf("bob balance: got %v want 30", got)
	}
}

func TestBalanceNonFinalTailOnlyDebits(t *testing.T) {
	alice, bob := "alice-pem", "bob-pem"
	genesis := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{
		core.NewTransaction(core.GenesisSender, alice, core.Payload{Kind: core.PayloadValue, Amount: 100}, 1),
	}, 1)
	genesis.PoW = &core.PoWFields{}

	transfer := core.NewTransaction(alice, bob, core.Payload{Kind: core.PayloadValue, Amount: 30}, 2)
	block1 := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{transfer}, 2)
	block1.PoW = &core.PoWFields{}

	chain := []*core.Block{genesis, block1}

	// m=1: block1 is non-final, so bob's receipt hasn't landed yet but
	// alice's spend is already debited.
	if got := core.Balance(chain, 1, alice, nil, nil); got != 70 {
		t.Errorf("alice balance (non-final tail): got %v want 70", got)
	}
	if got := core.Balance(chain, 1, bob, nil, nil); got != 0 {
		t.Errorf("bob balance (non-final tail): got %v want 0", got)
	}
}

func TestBalancePendingMempoolAndStakes(t *testing.T) {
	alice := "alice-pem"
	genesis := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{
		core.NewTransaction(core.GenesisSender, alice, core.Payload{Kind: core.PayloadValue, Amount: 100}, 1),
	}, 1)
	genesis.PoW = &core.PoWFields{}
	chain := []*core.Block{genesis}

	pendingTx := core.NewTransaction(alice, "bob-pem", core.Payload{Kind: core.PayloadValue, Amount: 20}, 2)
	pendingStake := core.NewStake(alice, 15, 3)

	got := core.Balance(chain, 1, alice, []*core.Transaction{pendingTx}, []*core.Stake{pendingStake})
	if got != 65 {
		t.Errorf("balance with pending tx+stake: got %v want 65", got)
	}
}

func TestBalanceMinerReward(t *testing.T) {
	miner := "miner-pem"
	block := core.NewBlock(core.RegimePoA, nil, nil, 1)
	block.PoA = &core.PoAFields{MinerPublicKey: miner}
	chain := []*core.Block{block}

	if got := core.Balance(chain, 1, miner, nil, nil); got != core.MinerReward {
		t.Errorf("miner reward: got %v want %v", got, core.MinerReward)
	}
}

func TestBalanceSlashedPoSBlockExcludedAndDebited(t *testing.T) {
	creator := "creator-pem"
	block := core.NewBlock(core.RegimePoS, nil, []*core.Transaction{
		core.NewTransaction(core.GenesisSender, creator, core.Payload{Kind: core.PayloadValue, Amount: 50}, 1),
	}, 1)
	block.PoS = &core.PoSFields{Creator: creator, StakedAmt: 10, IsValid: false, SlashCreator: true}
	chain := []*core.Block{block}

	got := core.Balance(chain, 1, creator, nil, nil)
	if got != -10 {
		t.Errorf("slashed creator balance: got %v want -10 (stake forfeited, block transactions voided)", got)
	}
}

func TestWeightSumsPoSStakes(t *testing.T) {
	block := core.NewBlock(core.RegimePoS, nil, nil, 1)
	block.PoS = &core.PoSFields{
		Stakers: []*core.Stake{
			{Staker: "a", Amount: 10},
			{Staker: "b", Amount: 5},
		},
	}
	powBlock := core.NewBlock(core.RegimePoW, nil, nil, 2)
	powBlock.PoW = &core.PoWFields{}

	chain := []*core.Block{block, powBlock}
	if got := core.Weight(chain); got != 15 {
		t.Errorf("weight: got %v want 15", got)
	}
}
