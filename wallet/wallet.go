package wallet

import (
	"time"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

// Wallet holds a key pair under one signature suite and provides
// transaction/stake-building helpers (spec §4.1 Design Notes: "Multiple
// signing suites" — the suite is fixed per wallet, chosen to match the
// node's consensus regime).
type Wallet struct {
	suite crypto.Suite
	priv  crypto.PrivateKey
	pub   crypto.PublicKey
}

// New wraps an existing private key under suite.
func New(suite crypto.Suite, priv crypto.PrivateKey) *Wallet {
	return &Wallet{suite: suite, priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair under suite.
func Generate(suite crypto.Suite) (*Wallet, error) {
	priv, err := suite.Generate()
	if err != nil {
		return nil, err
	}
	return New(suite, priv), nil
}

// PrivateKey returns the raw private key (handle with care).
func (w *Wallet) PrivateKey() crypto.PrivateKey {
	return w.priv
}

// PublicPEM returns the PEM-encoded public key used as sender/receiver
// addresses on the wire.
func (w *Wallet) PublicPEM() string {
	pem, _ := w.pub.PEM()
	return pem
}

// NewTransaction builds and signs a value-transfer transaction.
func (w *Wallet) NewTransaction(receiver string, amount float64) (*core.Transaction, error) {
	tx := core.NewTransaction(w.PublicPEM(), receiver, core.Payload{Kind: core.PayloadValue, Amount: amount}, time.Now().Unix())
	if err := tx.Sign(w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}

// NewDeployTransaction builds and signs a contract-deployment transaction.
func (w *Wallet) NewDeployTransaction(code string, amount float64) (*core.Transaction, error) {
	tx := core.NewTransaction(w.PublicPEM(), core.ReceiverDeploy, core.Payload{Kind: core.PayloadDeploy, Code: code, Amount: amount}, time.Now().Unix())
	if err := tx.Sign(w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}

// NewInvokeTransaction builds and signs a contract-invocation transaction.
// state is the pre-computed resulting state blob for this call (spec §3:
// the script executor is an out-of-scope black-box collaborator; callers
// run it themselves and embed the result in the transaction payload).
func (w *Wallet) NewInvokeTransaction(contractID, function string, args []any, state []byte, amount float64) (*core.Transaction, error) {
	tx := core.NewTransaction(w.PublicPEM(), core.ReceiverInvoke, core.Payload{
		Kind:       core.PayloadInvoke,
		ContractID: contractID,
		Function:   function,
		Args:       args,
		State:      state,
		Amount:     amount,
	}, time.Now().Unix())
	if err := tx.Sign(w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}

// NewStake builds and signs a PoS stake (spec §4.8).
func (w *Wallet) NewStake(amount float64) (*core.Stake, error) {
	s := core.NewStake(w.PublicPEM(), amount, time.Now().Unix())
	if err := s.Sign(w.priv); err != nil {
		return nil, err
	}
	return s, nil
}
