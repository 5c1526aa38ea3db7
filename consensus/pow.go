package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
)

// PoWDifficultyPrefix is the fixed hex prefix a block hash must begin
// with (spec §4.6: "Difficulty is fixed (five hex zeros)").
const PoWDifficultyPrefix = "00000"

func powFinality(length int) int {
	switch {
	case length < 5:
		return 0
	case length < 10:
		return 2
	case length < 25:
		return 3
	case length < 50:
		return 5
	default:
		return 10
	}
}

// PoWRules implements Rules for the Proof-of-Work regime.
type PoWRules struct{}

func (PoWRules) FinalityWindow(length int) int { return powFinality(length) }

func (PoWRules) IsValidBlock(chain []*core.Block, block *core.Block) error {
	if block.Regime != core.RegimePoW || block.PoW == nil {
		return fmt.Errorf("%w: not a pow block", core.ErrInvalidProofOfWork)
	}
	if err := validateShared(chain, crypto.RSAPSSSuite, powFinality, block); err != nil {
		return err
	}
	hash, err := block.Hash()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(hash, PoWDifficultyPrefix) {
		return fmt.Errorf("%w: hash %s lacks prefix %s", core.ErrInvalidProofOfWork, hash, PoWDifficultyPrefix)
	}
	return nil
}

func (r PoWRules) IsValidChain(chain []*core.Block) error {
	for i := range chain {
		if err := r.IsValidBlock(chain[:i], chain[i]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

// PoWProducer mines new blocks against the current mempool and chain
// tip. The nonce search is CPU-bound, runs on the caller's goroutine and
// stops when the caller's context is canceled.
type PoWProducer struct {
	chain   *core.Chain
	mempool *core.Mempool
	priv    crypto.PrivateKey
	emitter *events.Emitter
	log     zerolog.Logger
	maxTxs  int
}

// NewPoWProducer creates a miner for the given chain/mempool/wallet.
func NewPoWProducer(chain *core.Chain, mempool *core.Mempool, priv crypto.PrivateKey, pub string, emitter *events.Emitter, log zerolog.Logger, maxTxs int) *PoWProducer {
	if maxTxs <= 0 {
		maxTxs = 500
	}
	return &PoWProducer{
		chain:   chain,
		mempool: mempool,
		priv:    priv,
		emitter: emitter,
		log:     log,
		maxTxs:  maxTxs,
	}
}

// Mine assembles a candidate block and searches for a nonce satisfying
// the difficulty prefix. If ctx is canceled first it returns ctx.Err();
// a caller that wants to continue calls Mine again, which snapshots the
// current tip afresh.
func (p *PoWProducer) Mine(ctx context.Context) (*core.Block, error) {
	txs := p.mempool.Iter()
	if len(txs) > p.maxTxs {
		txs = txs[:p.maxTxs]
	}

	var prevHash *string
	if tip := p.chain.Tip(); tip != nil {
		h, err := tip.Hash()
		if err != nil {
			return nil, err
		}
		prevHash = &h
	}

	block := core.NewBlock(core.RegimePoW, prevHash, txs, time.Now().Unix())
	block.PoW = &core.PoWFields{Nonce: 0}

	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		block.PoW.Nonce = nonce
		hash, err := block.Hash()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(hash, PoWDifficultyPrefix) {
			p.log.Info().Str("hash", hash).Int("txs", len(txs)).Msg("mined block")
			return block, nil
		}
	}
}

// Commit appends a mined block to the chain, removes its transactions
// from the mempool, and emits a commit event.
func (p *PoWProducer) Commit(block *core.Block) error {
	if err := p.chain.Append(block); err != nil {
		return err
	}
	p.mempool.RemoveAllIn(block)
	hash, _ := block.Hash()
	p.emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: p.chain.Len() - 1, Data: map[string]any{"hash": hash, "txs": len(block.Transactions)}})
	return nil
}
