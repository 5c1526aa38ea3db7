package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tolelom/tolchain/crypto"
)

// GenesisSender is the sentinel sender permitted only in block 0.
const GenesisSender = "Genesis"

// Receiver sentinels for contract transactions (spec §3).
const (
	ReceiverDeploy = "deploy"
	ReceiverInvoke = "invoke"
)

// PayloadKind tags which shape Transaction.Payload carries.
type PayloadKind string

const (
	PayloadValue  PayloadKind = "value"
	PayloadDeploy PayloadKind = "deploy"
	PayloadInvoke PayloadKind = "invoke"
)

// Payload is a tagged sum of the three transaction payload shapes (Design
// Notes: "Dynamic payloads... model as a tagged sum"). It marshals to/from
// the heterogeneous-list wire form the original node produces rather than
// a struct, for wire compatibility.
type Payload struct {
	Kind PayloadKind

	// PayloadValue
	Amount float64

	// PayloadDeploy
	Code string

	// PayloadInvoke
	ContractID string
	Function   string
	Args       []any
	State      json.RawMessage
}

// DeclaredAmount returns the numeric amount carried by the payload: the
// value itself for a transfer, or payload[-1] for deploy/invoke (spec §4.4).
func (p Payload) DeclaredAmount() float64 {
	return p.Amount
}

// MarshalJSON encodes the payload in the wire's heterogeneous-list shape.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadDeploy:
		return json.Marshal([]any{p.Code, p.Amount})
	case PayloadInvoke:
		return json.Marshal([]any{p.ContractID, p.Function, p.Args, p.State, p.Amount})
	default:
		return json.Marshal(p.Amount)
	}
}

// UnmarshalJSON decodes either a bare number (value transfer) or a
// heterogeneous list (deploy: [code, amount]; invoke: [contractID, func,
// args, state, amount]).
func (p *Payload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty payload")
	}
	if trimmed[0] != '[' {
		var amt float64
		if err := json.Unmarshal(trimmed, &amt); err != nil {
			return fmt.Errorf("value payload: %w", err)
		}
		*p = Payload{Kind: PayloadValue, Amount: amt}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("list payload: %w", err)
	}
	switch len(raw) {
	case 2: // deploy: [code, amount]
		var code string
		var amt float64
		if err := json.Unmarshal(raw[0], &code); err != nil {
			return fmt.Errorf("deploy code: %w", err)
		}
		if err := json.Unmarshal(raw[1], &amt); err != nil {
			return fmt.Errorf("deploy amount: %w", err)
		}
		*p = Payload{Kind: PayloadDeploy, Code: code, Amount: amt}
		return nil
	case 5: // invoke: [contract_id, function_name, args, state, amount]
		var contractID, fn string
		var args []any
		var state json.RawMessage
		var amt float64
		if err := json.Unmarshal(raw[0], &contractID); err != nil {
			return fmt.Errorf("invoke contract_id: %w", err)
		}
		if err := json.Unmarshal(raw[1], &fn); err != nil {
			return fmt.Errorf("invoke function: %w", err)
		}
		if err := json.Unmarshal(raw[2], &args); err != nil {
			return fmt.Errorf("invoke args: %w", err)
		}
		state = raw[3]
		if err := json.Unmarshal(raw[4], &amt); err != nil {
			return fmt.Errorf("invoke amount: %w", err)
		}
		*p = Payload{Kind: PayloadInvoke, ContractID: contractID, Function: fn, Args: args, State: state, Amount: amt}
		return nil
	default:
		return fmt.Errorf("payload list has unexpected length %d", len(raw))
	}
}

// Transaction is the atomic, signed unit of value transfer or contract
// interaction (spec §3).
type Transaction struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Sender    string  `json:"sender"`   // PEM, or "Genesis" in block 0 only
	Receiver  string  `json:"receiver"` // PEM, "deploy", or "invoke"
	Payload   Payload `json:"payload"`
	Signature []byte  `json:"signature,omitempty"` // absent on Genesis
}

// signable mirrors the canonical signable fields in stable key order
// (spec §4.2: "a deterministic text encoding of {id, payload, sender,
// receiver, timestamp} with stable key order").
type signable struct {
	ID        string  `json:"id"`
	Payload   Payload `json:"payload"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Timestamp int64   `json:"timestamp"`
}

// CanonicalBytes returns the deterministic signable encoding of tx.
func (tx *Transaction) CanonicalBytes() ([]byte, error) {
	return json.Marshal(signable{
		ID:        tx.ID,
		Payload:   tx.Payload,
		Sender:    tx.Sender,
		Receiver:  tx.Receiver,
		Timestamp: tx.Timestamp,
	})
}

// Equal compares id, sender, receiver and timestamp (spec §3).
func (tx *Transaction) Equal(other *Transaction) bool {
	if other == nil {
		return false
	}
	return tx.ID == other.ID &&
		tx.Sender == other.Sender &&
		tx.Receiver == other.Receiver &&
		tx.Timestamp == other.Timestamp
}

// NewTransaction builds an unsigned transaction with a fresh id.
func NewTransaction(sender, receiver string, payload Payload, timestamp int64) *Transaction {
	return &Transaction{
		ID:        uuid.NewString(),
		Timestamp: timestamp,
		Sender:    sender,
		Receiver:  receiver,
		Payload:   payload,
	}
}

// Sign signs tx's canonical encoding with priv (spec §3: "canonical
// signable form").
func (tx *Transaction) Sign(priv crypto.PrivateKey) error {
	body, err := tx.CanonicalBytes()
	if err != nil {
		return err
	}
	sig, err := priv.Sign(body)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify checks tx's signature against its Sender using suite. Genesis
// transactions (Sender == GenesisSender) carry no signature and are only
// legitimate inside block 0; callers enforce that positional rule, not
// Verify.
func (tx *Transaction) Verify(suite crypto.Suite) error {
	if tx.Sender == GenesisSender {
		return nil
	}
	pub, err := suite.ImportPublicPEM(tx.Sender)
	if err != nil {
		return fmt.Errorf("%w: sender pem: %v", ErrBadSignature, err)
	}
	body, err := tx.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("%w: canonical encoding: %v", ErrBadSignature, err)
	}
	if err := pub.Verify(body, tx.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}
