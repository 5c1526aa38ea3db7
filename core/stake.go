package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tolelom/tolchain/crypto"
)

// Stake is a PoS-only deposit submitted during an epoch's collection
// window (spec §3, §4.8).
type Stake struct {
	ID        string  `json:"id"`
	Staker    string  `json:"staker"` // PEM
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	Signature []byte  `json:"signature,omitempty"`
}

type stakeSignable struct {
	ID        string  `json:"id"`
	Staker    string  `json:"staker"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

// CanonicalBytes returns the deterministic signable encoding of s.
func (s *Stake) CanonicalBytes() ([]byte, error) {
	return json.Marshal(stakeSignable{ID: s.ID, Staker: s.Staker, Amount: s.Amount, Timestamp: s.Timestamp})
}

// NewStake builds an unsigned stake with a fresh id.
func NewStake(staker string, amount float64, timestamp int64) *Stake {
	return &Stake{ID: uuid.NewString(), Staker: staker, Amount: amount, Timestamp: timestamp}
}

// Sign signs s's canonical encoding with priv.
func (s *Stake) Sign(priv crypto.PrivateKey) error {
	body, err := s.CanonicalBytes()
	if err != nil {
		return err
	}
	sig, err := priv.Sign(body)
	if err != nil {
		return err
	}
	s.Signature = sig
	return nil
}

// Verify checks s's signature against its Staker using suite.
func (s *Stake) Verify(suite crypto.Suite) error {
	pub, err := suite.ImportPublicPEM(s.Staker)
	if err != nil {
		return fmt.Errorf("%w: staker pem: %v", ErrBadSignature, err)
	}
	body, err := s.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("%w: canonical encoding: %v", ErrBadSignature, err)
	}
	if err := pub.Verify(body, s.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}
