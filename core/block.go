package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tolelom/tolchain/crypto"
)

// Regime identifies which consensus regime produced a block.
type Regime string

const (
	RegimePoW Regime = "pow"
	RegimePoS Regime = "pos"
	RegimePoA Regime = "poa"
)

// PoWFields carries the PoW-specific block attributes (spec §3).
type PoWFields struct {
	Nonce uint64 `json:"nonce"`
}

// PoSFields carries the PoS-specific block attributes (spec §3, §4.8).
// IsValid/SlashCreator are verdicts attached after the fact by the
// slashing protocol and, like the signature, are excluded from the hash
// material since they describe something done to the block rather than
// its content.
type PoSFields struct {
	Creator      string   `json:"creator"`
	StakedAmt    float64  `json:"staked_amt"`
	Stakers      []*Stake `json:"stakers"`
	Seed         string   `json:"seed"`
	VRFProof     []byte   `json:"vrf_proof,omitempty"`
	Signature    []byte   `json:"signature,omitempty"`
	IsValid      bool     `json:"is_valid"`
	SlashCreator bool     `json:"slash_creator"`
}

// PoAFields carries the PoA-specific block attributes (spec §3, §4.7).
type PoAFields struct {
	MinerNodeID    string   `json:"miner_node_id"`
	MinerPublicKey string   `json:"miner_public_key"`
	MinersList     []string `json:"miners_list"`
	Signature      []byte   `json:"signature,omitempty"`
}

// Block is the shared block shape across all three regimes; exactly one
// of PoW/PoS/PoA is populated, selected by Regime (spec §3).
type Block struct {
	ID           string            `json:"id"`
	PrevHash     *string           `json:"prev_hash"` // nil only for block 0
	Timestamp    int64             `json:"timestamp"`
	Transactions []*Transaction    `json:"transactions"`
	Files        map[string]string `json:"files,omitempty"`

	Regime Regime     `json:"regime"`
	PoW    *PoWFields `json:"pow,omitempty"`
	PoS    *PoSFields `json:"pos,omitempty"`
	PoA    *PoAFields `json:"poa,omitempty"`
}

// hashable mirrors Block's wire shape but with the regime signature
// zeroed, so the signature is computed over (and attached after) the
// hash (spec §3: "excluding the block signature so signatures can be
// attached after hashing").
type hashable struct {
	ID           string            `json:"id"`
	PrevHash     *string           `json:"prev_hash"`
	Timestamp    int64             `json:"timestamp"`
	Transactions []*Transaction    `json:"transactions"`
	Files        map[string]string `json:"files,omitempty"`
	Regime       Regime            `json:"regime"`
	PoW          *PoWFields        `json:"pow,omitempty"`
	PoS          *PoSFields        `json:"pos,omitempty"`
	PoA          *PoAFields        `json:"poa,omitempty"`
}

// Hash returns the SHA-256 hash of the block's canonical encoding,
// excluding the producer signature.
func (b *Block) Hash() (string, error) {
	h := hashable{
		ID:           b.ID,
		PrevHash:     b.PrevHash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
		Files:        b.Files,
		Regime:       b.Regime,
	}
	switch b.Regime {
	case RegimePoW:
		h.PoW = b.PoW
	case RegimePoS:
		if b.PoS != nil {
			stripped := *b.PoS
			stripped.Signature = nil
			stripped.IsValid = false
			stripped.SlashCreator = false
			h.PoS = &stripped
		}
	case RegimePoA:
		if b.PoA != nil {
			stripped := *b.PoA
			stripped.Signature = nil
			h.PoA = &stripped
		}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return crypto.Hash(data), nil
}

// Signature returns the producer signature bytes for the regimes that
// carry one (PoS, PoA); PoW blocks carry no block-level signature, only
// the nonce satisfying the difficulty target.
func (b *Block) Signature() []byte {
	switch b.Regime {
	case RegimePoS:
		if b.PoS != nil {
			return b.PoS.Signature
		}
	case RegimePoA:
		if b.PoA != nil {
			return b.PoA.Signature
		}
	}
	return nil
}

// Producer returns the PEM public key of the block's producer.
func (b *Block) Producer() string {
	switch b.Regime {
	case RegimePoS:
		if b.PoS != nil {
			return b.PoS.Creator
		}
	case RegimePoA:
		if b.PoA != nil {
			return b.PoA.MinerPublicKey
		}
	}
	return ""
}

// NewBlock creates an unsigned, unmined block shell for regime.
func NewBlock(regime Regime, prevHash *string, txs []*Transaction, timestamp int64) *Block {
	return &Block{
		ID:           uuid.NewString(),
		PrevHash:     prevHash,
		Timestamp:    timestamp,
		Transactions: txs,
		Files:        map[string]string{},
		Regime:       regime,
	}
}

// ContainsTransaction reports whether tx (by Equal) is already present.
func (b *Block) ContainsTransaction(tx *Transaction) bool {
	for _, t := range b.Transactions {
		if t.Equal(tx) {
			return true
		}
	}
	return false
}

// ContainsCID reports whether cid is already referenced by this block's
// file sidecar map.
func (b *Block) ContainsCID(cid string) bool {
	_, ok := b.Files[cid]
	return ok
}

func (b *Block) String() string {
	hash, _ := b.Hash()
	return fmt.Sprintf("Block{id=%s regime=%s hash=%s txs=%d}", b.ID, b.Regime, hash, len(b.Transactions))
}
