// Package indexer maintains secondary lookup tables over committed
// blocks so the status/control surface can answer per-address and
// per-creator queries without rescanning the whole chain (spec §6, §4.9).
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/storage"
)

const (
	prefixAddressTx = "idx:addr:tx:"
	prefixSlash     = "idx:slash:all"
)

// ChainReader is the subset of core.Chain the indexer needs to resolve a
// committed block's contents from a block_commit event's height.
type ChainReader interface {
	At(height int) *core.Block
}

// Indexer subscribes to chain events and updates secondary lookup
// tables. It never recomputes balances itself — balance still flows
// through core.Balance's finality-window walk, since that logic is
// inherently dependent on chain depth at query time and caching it
// incorrectly would silently diverge from the canonical evaluator.
type Indexer struct {
	db      storage.DB
	chain   ChainReader
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, chain ChainReader, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, chain: chain, emitter: emitter}
	emitter.Subscribe(events.EventBlockCommit, idx.onBlockCommit)
	emitter.Subscribe(events.EventChainAdopted, idx.onChainAdopted)
	emitter.Subscribe(events.EventSlash, idx.onSlash)
	return idx
}

// GetTransactionsByAddress returns every transaction id where address
// appears as sender or receiver.
func (idx *Indexer) GetTransactionsByAddress(address string) ([]string, error) {
	return idx.getList(prefixAddressTx + address)
}

// GetSlashedCreators returns the public keys slashed for equivocation,
// keyed by the block height at which the fork diverged.
func (idx *Indexer) GetSlashedCreators() (map[int]string, error) {
	data, err := idx.db.Get([]byte(prefixSlash))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return map[int]string{}, nil
		}
		return nil, err
	}
	out := make(map[int]string)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("indexer unmarshal slashes: %w", err)
	}
	return out, nil
}

func (idx *Indexer) onBlockCommit(ev events.Event) {
	block := idx.chain.At(ev.BlockHeight)
	if block == nil {
		return
	}
	idx.indexBlock(block)
}

// onChainAdopted re-indexes every block of a newly adopted chain, since
// a fork-choice replacement can introduce transactions the per-block
// handler never saw (spec §4.9).
func (idx *Indexer) onChainAdopted(ev events.Event) {
	for h := 0; h <= ev.BlockHeight; h++ {
		if block := idx.chain.At(h); block != nil {
			idx.indexBlock(block)
		}
	}
}

func (idx *Indexer) indexBlock(block *core.Block) {
	for _, tx := range block.Transactions {
		if tx.Sender != "" && tx.Sender != core.GenesisSender {
			if err := idx.addToList(prefixAddressTx+tx.Sender, tx.ID); err != nil {
				log.Printf("[indexer] index sender failed (tx=%s): %v", tx.ID, err)
			}
		}
		if tx.Receiver != "" && tx.Receiver != core.ReceiverDeploy && tx.Receiver != core.ReceiverInvoke {
			if err := idx.addToList(prefixAddressTx+tx.Receiver, tx.ID); err != nil {
				log.Printf("[indexer] index receiver failed (tx=%s): %v", tx.ID, err)
			}
		}
	}
}

func (idx *Indexer) onSlash(ev events.Event) {
	creator, _ := ev.Data["creator"].(string)
	if creator == "" {
		return
	}
	slashes, err := idx.GetSlashedCreators()
	if err != nil {
		log.Printf("[indexer] read slashes: %v", err)
		return
	}
	slashes[ev.BlockHeight] = creator
	data, err := json.Marshal(slashes)
	if err != nil {
		return
	}
	if err := idx.db.Set([]byte(prefixSlash), data); err != nil {
		log.Printf("[indexer] write slashes: %v", err)
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
