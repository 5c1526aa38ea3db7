package core

import (
	"fmt"
	"sync"
)

// BlockStore is the persistence interface backing Chain. Implementations
// live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	PutBlock(block *Block) error
	GetBlockByHeight(height int) (*Block, error)
	GetTip() (string, error)
	// CommitBlock atomically writes block at height and advances the tip.
	CommitBlock(block *Block, height int) error
	// Reset clears all persisted blocks, used when a heavier remote chain
	// replaces the local one wholesale (spec §4.9).
	Reset() error
}

// Chain is the node-owned, ordered sequence of accepted blocks (spec
// §3: "core.Chain... owned by the node, not a process singleton").
// Index 0 is always the Genesis block.
type Chain struct {
	mu     sync.RWMutex
	store  BlockStore
	blocks []*Block
}

// NewChain returns an empty Chain backed by store. Call Init to restore
// any previously persisted blocks.
func NewChain(store BlockStore) *Chain {
	return &Chain{store: store}
}

// Init reloads a persisted chain from store, if any.
func (c *Chain) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tipHash, err := c.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	var blocks []*Block
	hash := tipHash
	for hash != "" {
		b, err := c.store.GetBlock(hash)
		if err != nil {
			return fmt.Errorf("load block %s: %w", hash, err)
		}
		blocks = append(blocks, b)
		if b.PrevHash == nil {
			break
		}
		hash = *b.PrevHash
	}
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	c.blocks = blocks
	return nil
}

// Append validates I1 (prev_hash linkage against the current tip) and
// persists block. Callers are responsible for running the regime's
// full is_valid_block check (§4.5) before calling Append.
func (c *Chain) Append(block *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		if block.PrevHash != nil {
			return fmt.Errorf("%w: genesis block must have nil prev_hash", ErrHashMismatch)
		}
	} else {
		tipHash, err := c.blocks[len(c.blocks)-1].Hash()
		if err != nil {
			return err
		}
		if block.PrevHash == nil || *block.PrevHash != tipHash {
			return fmt.Errorf("%w: block prev_hash does not match tip", ErrHashMismatch)
		}
	}

	if err := c.store.CommitBlock(block, len(c.blocks)); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	c.blocks = append(c.blocks, block)
	return nil
}

// Replace swaps the whole chain for blocks, used when fork choice (§4.9)
// adopts a heavier or longer remote chain. Callers must have already run
// is_valid_chain against blocks.
func (c *Chain) Replace(blocks []*Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Reset(); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	for i, b := range blocks {
		if err := c.store.CommitBlock(b, i); err != nil {
			return fmt.Errorf("commit block %d: %w", i, err)
		}
	}
	c.blocks = append([]*Block(nil), blocks...)
	return nil
}

// Blocks returns a snapshot of the chain's blocks in order.
func (c *Chain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tip returns the last accepted block, or nil for an empty chain.
func (c *Chain) Tip() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// HasTransaction reports whether id already appears in some accepted
// block (spec §4.3, I2).
func (c *Chain) HasTransaction(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		for _, tx := range b.Transactions {
			if tx.ID == id {
				return true
			}
		}
	}
	return false
}

// At returns the block at height, or nil if out of range.
func (c *Chain) At(height int) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height >= len(c.blocks) {
		return nil
	}
	return c.blocks[height]
}
