package config

import (
	"github.com/tolelom/tolchain/core"
)

// GenesisAmount is the amount credited to the first node's own public
// key by the single Genesis transaction (spec §3).
const GenesisAmount = 50

// CreateGenesisBlock builds block 0: a single `Genesis -> publicKeyPEM,
// amount=50` transaction, with no signature and no prev_hash (spec §3).
func CreateGenesisBlock(regime core.Regime, publicKeyPEM string, timestamp int64) *core.Block {
	tx := &core.Transaction{
		ID:        "genesis-tx",
		Timestamp: timestamp,
		Sender:    core.GenesisSender,
		Receiver:  publicKeyPEM,
		Payload:   core.Payload{Kind: core.PayloadValue, Amount: GenesisAmount},
	}
	block := core.NewBlock(regime, nil, []*core.Transaction{tx}, timestamp)
	switch regime {
	case core.RegimePoW:
		block.PoW = &core.PoWFields{}
	case core.RegimePoS:
		block.PoS = &core.PoSFields{Creator: publicKeyPEM, IsValid: true}
	case core.RegimePoA:
		block.PoA = &core.PoAFields{MinerNodeID: publicKeyPEM, MinerPublicKey: publicKeyPEM, MinersList: []string{publicKeyPEM}}
	}
	return block
}
