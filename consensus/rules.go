// Package consensus implements the validator and the three pluggable
// block-producer engines (PoW, PoS, PoA) described by the regime a node
// is configured for.
package consensus

import (
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

// Rules is the regime-specific validation/finality contract a producer
// and the replicator share (spec §4.5-§4.8).
type Rules interface {
	// IsValidBlock checks block against the chain it would extend.
	IsValidBlock(chain []*core.Block, block *core.Block) error
	// IsValidChain validates every block of chain against the prefix it
	// extends, including regime-specific chain-wide checks (PoS seed
	// and VRF threshold verification).
	IsValidChain(chain []*core.Block) error
	// FinalityWindow returns the non-final suffix length k for a chain
	// of the given length (spec §3 "Finality window").
	FinalityWindow(length int) int
}

// validateShared runs the regime-independent portion of is_valid_block
// (spec §4.5): prev_hash linkage, transaction non-duplication and
// signature verification, and the rolling in-block admission rule.
// Callers append their regime-specific predicate afterward.
func validateShared(chain []*core.Block, suite crypto.Suite, finality func(int) int, block *core.Block) error {
	tip := tipOf(chain)
	tipHash := ""
	if tip != nil {
		h, err := tip.Hash()
		if err != nil {
			return err
		}
		tipHash = h
	}
	if tip == nil {
		if block.PrevHash != nil {
			return fmt.Errorf("%w: genesis block must have nil prev_hash", core.ErrHashMismatch)
		}
	} else {
		if block.PrevHash == nil || *block.PrevHash != tipHash {
			return fmt.Errorf("%w: block prev_hash does not match tip", core.ErrHashMismatch)
		}
	}

	m := len(chain) - finality(len(chain))
	var pendingStakes []*core.Stake
	if block.Regime == core.RegimePoS && block.PoS != nil {
		pendingStakes = block.PoS.Stakers
	}

	seen := make(map[string]bool, len(block.Transactions))
	for i, tx := range block.Transactions {
		if seen[tx.ID] {
			return fmt.Errorf("%w: duplicate id within block", core.ErrDuplicateTransaction)
		}
		seen[tx.ID] = true
		if containsTransaction(chain, tx.ID) {
			return fmt.Errorf("%w: %s already in chain", core.ErrDuplicateTransaction, tx.ID)
		}
		if err := tx.Verify(suite); err != nil {
			return err
		}
		amt := tx.Payload.DeclaredAmount()
		if amt <= 0 {
			return fmt.Errorf("%w: tx %s", core.ErrNonPositiveAmount, tx.ID)
		}
		priorInBlock := block.Transactions[:i]
		bal := core.Balance(chain, m, tx.Sender, priorInBlock, pendingStakes)
		if amt > bal {
			return fmt.Errorf("%w: tx %s wants %.4f, balance %.4f", core.ErrInsufficientBalance, tx.ID, amt, bal)
		}
	}
	return nil
}

func tipOf(chain []*core.Block) *core.Block {
	if len(chain) == 0 {
		return nil
	}
	return chain[len(chain)-1]
}

func containsTransaction(chain []*core.Block, id string) bool {
	for _, b := range chain {
		for _, tx := range b.Transactions {
			if tx.ID == id {
				return true
			}
		}
	}
	return false
}
