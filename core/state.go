package core

// MinerReward is the constant block-production reward credited to a
// finalized block's miner/creator (spec §4.4).
const MinerReward = 6

// Balance computes the running total for pub over chain[0:len(chain)],
// given the regime's finality cutoff m for that chain length, plus any
// pending mempool transactions and (PoS) pending epoch stakes (spec
// §4.4). The tail behavior is intentionally asymmetric: non-final
// blocks only ever debit a sender's spends; receiver-side credit is
// withheld until the block finalizes. This is the documented
// anti-double-spend rule, not a bug to be smoothed over.
func Balance(chain []*Block, m int, pub string, pending []*Transaction, pendingStakes []*Stake) float64 {
	if m > len(chain) {
		m = len(chain)
	}
	if m < 0 {
		m = 0
	}

	var total float64

	// Step 2: finalized prefix [0..m).
	for _, b := range chain[:m] {
		if b.Regime == RegimePoS && b.PoS != nil {
			if b.PoS.SlashCreator && b.PoS.Creator == pub {
				total -= b.PoS.StakedAmt
			}
			if !b.PoS.IsValid {
				continue
			}
		}
		for _, tx := range b.Transactions {
			amt := tx.Payload.DeclaredAmount()
			switch {
			case tx.Sender == pub:
				total -= amt
			case tx.Receiver == pub:
				total += amt
			}
		}
		if b.Producer() == pub {
			total += MinerReward
		}
	}

	// Step 3: non-finalized tail [m..n) — sender-side spends only.
	for _, b := range chain[m:] {
		if b.Regime == RegimePoS && b.PoS != nil && !b.PoS.IsValid {
			continue
		}
		for _, tx := range b.Transactions {
			if tx.Sender == pub {
				total -= tx.Payload.DeclaredAmount()
			}
		}
	}

	// Step 4: pending mempool transactions — sender-side spends only.
	for _, tx := range pending {
		if tx.Sender == pub {
			total -= tx.Payload.DeclaredAmount()
		}
	}

	// Step 5: pending epoch stakes.
	for _, s := range pendingStakes {
		if s.Staker == pub {
			total -= s.Amount
		}
	}

	return total
}

// Weight returns the PoS fork-choice weight of chain: the sum of all
// stake amounts across all blocks (spec §4.8 fork handling).
func Weight(chain []*Block) float64 {
	var w float64
	for _, b := range chain {
		if b.Regime != RegimePoS || b.PoS == nil {
			continue
		}
		for _, s := range b.PoS.Stakers {
			w += s.Amount
		}
	}
	return w
}
