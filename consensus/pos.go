package consensus

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
)

func posFinality(length int) int {
	k := length / 5
	if k > 250 {
		return 50
	}
	return k
}

// epochSeed returns chain[finality_cutoff(len(chain))-1].hash (spec §4.8).
func epochSeed(chain []*core.Block, finality func(int) int) (string, error) {
	if len(chain) == 0 {
		return "", nil
	}
	idx := len(chain) - finality(len(chain)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(chain) {
		idx = len(chain) - 1
	}
	return chain[idx].Hash()
}

var two256 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 256))

// vrfWins reports whether y = int(sha256(proof)) falls under
// threshold = stakedAmt/totalStake * 2^256 (spec §4.8 step 2).
func vrfWins(proof []byte, stakedAmt, totalStake float64) bool {
	if totalStake <= 0 || stakedAmt <= 0 {
		return false
	}
	digest := sha256.Sum256(proof)
	y := new(big.Float).SetInt(new(big.Int).SetBytes(digest[:]))
	threshold := new(big.Float).Mul(new(big.Float).Quo(big.NewFloat(stakedAmt), big.NewFloat(totalStake)), two256)
	return y.Cmp(threshold) < 0
}

// PoSRules implements Rules for the Proof-of-Stake regime.
type PoSRules struct{}

func (PoSRules) FinalityWindow(length int) int { return posFinality(length) }

func (PoSRules) IsValidBlock(chain []*core.Block, block *core.Block) error {
	if block.Regime != core.RegimePoS || block.PoS == nil {
		return fmt.Errorf("%w: not a pos block", core.ErrInvalidVRF)
	}
	if err := validateShared(chain, crypto.Secp256k1Suite, posFinality, block); err != nil {
		return err
	}

	wantSeed, err := epochSeed(chain, posFinality)
	if err != nil {
		return err
	}
	if block.PoS.Seed != wantSeed {
		return fmt.Errorf("%w: seed mismatch", core.ErrInvalidVRF)
	}

	var total float64
	var staked float64
	found := false
	for _, s := range block.PoS.Stakers {
		if err := s.Verify(crypto.Secp256k1Suite); err != nil {
			return fmt.Errorf("%w: stake %s: %v", core.ErrBadSignature, s.ID, err)
		}
		total += s.Amount
		if s.Staker == block.PoS.Creator {
			staked += s.Amount
			found = true
		}
	}
	if !found || staked != block.PoS.StakedAmt {
		return fmt.Errorf("%w: declared staked_amt does not match stakers list", core.ErrInvalidVRF)
	}

	creatorPub, err := crypto.Secp256k1Suite.ImportPublicPEM(block.PoS.Creator)
	if err != nil {
		return fmt.Errorf("%w: creator pem: %v", core.ErrBadSignature, err)
	}
	if err := creatorPub.Verify([]byte(block.PoS.Seed), block.PoS.VRFProof); err != nil {
		return fmt.Errorf("%w: vrf proof does not verify: %v", core.ErrInvalidVRF, err)
	}
	if !vrfWins(block.PoS.VRFProof, block.PoS.StakedAmt, total) {
		return fmt.Errorf("%w: vrf threshold not met", core.ErrInvalidVRF)
	}

	hash, err := block.Hash()
	if err != nil {
		return err
	}
	if err := creatorPub.Verify([]byte(hash), block.PoS.Signature); err != nil {
		return fmt.Errorf("%w: block signature: %v", core.ErrBadSignature, err)
	}
	return nil
}

func (r PoSRules) IsValidChain(chain []*core.Block) error {
	for i := range chain {
		if err := r.IsValidBlock(chain[:i], chain[i]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

// ForkDivergence returns the first index at which local and remote
// disagree, or the length of the shorter chain if one is a prefix of
// the other.
func ForkDivergence(local, remote []*core.Block) (int, error) {
	n := len(local)
	if len(remote) < n {
		n = len(remote)
	}
	for i := 0; i < n; i++ {
		lh, err := local[i].Hash()
		if err != nil {
			return 0, err
		}
		rh, err := remote[i].Hash()
		if err != nil {
			return 0, err
		}
		if lh != rh {
			return i, nil
		}
	}
	return n, nil
}

// IsEquivocation reports whether local and remote blocks at the same
// position were produced by the same creator (spec §4.8 fork handling).
func IsEquivocation(local, remote *core.Block) bool {
	return local.Regime == core.RegimePoS && remote.Regime == core.RegimePoS &&
		local.PoS != nil && remote.PoS != nil &&
		local.PoS.Creator == remote.PoS.Creator
}

// VerifyBlockSignature reports whether block's PoS signature verifies
// under its declared creator key.
func VerifyBlockSignature(block *core.Block) bool {
	if block.Regime != core.RegimePoS || block.PoS == nil {
		return false
	}
	pub, err := crypto.Secp256k1Suite.ImportPublicPEM(block.PoS.Creator)
	if err != nil {
		return false
	}
	hash, err := block.Hash()
	if err != nil {
		return false
	}
	return pub.Verify([]byte(hash), block.PoS.Signature) == nil
}

// ApplySlash marks block as the product of proven equivocation (spec
// §4.8): the creator forfeits their stake and the block's transactions
// become invalid for balance purposes.
func ApplySlash(block *core.Block) {
	if block.PoS == nil {
		return
	}
	block.PoS.IsValid = false
	block.PoS.SlashCreator = true
}

// PoSProducer runs the epoch-driven stake-collection and VRF-leader
// block production cycle (spec §4.8).
type PoSProducer struct {
	chain   *core.Chain
	mempool *core.Mempool
	priv    crypto.PrivateKey
	pub     string
	epoch   time.Duration
	emitter *events.Emitter
	log     zerolog.Logger
	maxTxs  int

	mu     sync.Mutex
	stakes map[string]*core.Stake // staker PEM -> stake, this epoch
}

// NewPoSProducer creates a PoS engine for the local staker.
func NewPoSProducer(chain *core.Chain, mempool *core.Mempool, priv crypto.PrivateKey, pub string, epoch time.Duration, emitter *events.Emitter, log zerolog.Logger, maxTxs int) *PoSProducer {
	if maxTxs <= 0 {
		maxTxs = 500
	}
	if epoch <= 0 {
		epoch = 60 * time.Second
	}
	return &PoSProducer{
		chain: chain, mempool: mempool, priv: priv, pub: pub, epoch: epoch,
		emitter: emitter, log: log, maxTxs: maxTxs,
		stakes: make(map[string]*core.Stake),
	}
}

// SubmitStake validates and records a stake for the current epoch
// (spec §4.8 step 1): signature must verify, the staker must not have
// already staked this epoch, and amount must be positive and within
// balance accounting for already-collected stakes and the mempool.
func (p *PoSProducer) SubmitStake(s *core.Stake) error {
	if err := s.Verify(crypto.Secp256k1Suite); err != nil {
		return err
	}
	if s.Amount <= 0 {
		return fmt.Errorf("%w: stake %s", core.ErrNonPositiveAmount, s.ID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.stakes[s.Staker]; exists {
		return fmt.Errorf("%w: duplicate stake for %s this epoch", core.ErrDuplicateTransaction, s.Staker)
	}
	pending := make([]*core.Stake, 0, len(p.stakes))
	for _, existing := range p.stakes {
		pending = append(pending, existing)
	}
	chain := p.chain.Blocks()
	m := len(chain) - posFinality(len(chain))
	bal := core.Balance(chain, m, s.Staker, p.mempool.Iter(), pending)
	if s.Amount > bal {
		return fmt.Errorf("%w: stake %s wants %.4f, balance %.4f", core.ErrInsufficientBalance, s.ID, s.Amount, bal)
	}
	p.stakes[s.Staker] = s
	return nil
}

// Stakes returns a snapshot of the current epoch's collected stakes.
func (p *PoSProducer) Stakes() []*core.Stake {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*core.Stake, 0, len(p.stakes))
	for _, s := range p.stakes {
		out = append(out, s)
	}
	return out
}

// ResetEpoch clears the collected stakes, starting a fresh epoch.
func (p *PoSProducer) ResetEpoch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stakes = make(map[string]*core.Stake)
}

// TryProduce runs the leader-election check for the node's own stake
// (spec §4.8 steps 2-3) and, on a win, assembles and returns a signed
// block. ok is false when this node did not stake this epoch or lost
// the VRF draw.
func (p *PoSProducer) TryProduce() (block *core.Block, ok bool, err error) {
	stakes := p.Stakes()
	var myStake float64
	staked := false
	var total float64
	for _, s := range stakes {
		total += s.Amount
		if s.Staker == p.pub {
			myStake = s.Amount
			staked = true
		}
	}
	if !staked {
		return nil, false, nil
	}

	chain := p.chain.Blocks()
	seed, err := epochSeed(chain, posFinality)
	if err != nil {
		return nil, false, err
	}
	proof, err := p.priv.Sign([]byte(seed))
	if err != nil {
		return nil, false, err
	}
	if !vrfWins(proof, myStake, total) {
		return nil, false, nil
	}

	txs := p.mempool.Iter()
	if len(txs) > p.maxTxs {
		txs = txs[:p.maxTxs]
	}
	var prevHash *string
	if tip := p.chain.Tip(); tip != nil {
		h, err := tip.Hash()
		if err != nil {
			return nil, false, err
		}
		prevHash = &h
	}

	b := core.NewBlock(core.RegimePoS, prevHash, txs, time.Now().Unix())
	b.PoS = &core.PoSFields{
		Creator:   p.pub,
		StakedAmt: myStake,
		Stakers:   stakes,
		Seed:      seed,
		VRFProof:  proof,
		IsValid:   true,
	}
	hash, err := b.Hash()
	if err != nil {
		return nil, false, err
	}
	sig, err := p.priv.Sign([]byte(hash))
	if err != nil {
		return nil, false, err
	}
	b.PoS.Signature = sig
	return b, true, nil
}

// Commit appends block, clears its transactions from the mempool, and
// starts a fresh epoch.
func (p *PoSProducer) Commit(block *core.Block) error {
	if err := p.chain.Append(block); err != nil {
		return err
	}
	p.mempool.RemoveAllIn(block)
	p.ResetEpoch()
	hash, _ := block.Hash()
	p.emitter.Emit(events.Event{Type: events.EventBlockCommit, BlockHeight: p.chain.Len() - 1, Data: map[string]any{"hash": hash, "txs": len(block.Transactions)}})
	return nil
}
