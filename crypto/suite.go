package crypto

import "fmt"

// PrivateKey signs messages and derives the matching PublicKey. Concrete
// implementations come from a Suite (SECP256k1-ECDSA or RSA-PSS); callers
// that only need to sign/verify never need to know which.
type PrivateKey interface {
	Public() PublicKey
	Sign(msg []byte) ([]byte, error)
	PEM() (string, error)
}

// PublicKey verifies signatures and exports to PEM. The PEM form is what
// Transaction.Sender, Stake.Staker and block producer fields carry on the
// wire (spec: "sender (public key in PEM)").
type PublicKey interface {
	Verify(msg, sig []byte) error
	PEM() (string, error)
	Equal(other PublicKey) bool
}

// Suite is a signing-capability selected at node construction. PoS and PoA
// nodes use Secp256k1Suite; PoW nodes use RSAPSSSuite (Design Notes:
// "Multiple signing suites").
type Suite interface {
	Name() string
	Generate() (PrivateKey, error)
	ImportPrivatePEM(pemStr string) (PrivateKey, error)
	ImportPublicPEM(pemStr string) (PublicKey, error)
}

// ErrBadSignature is returned by Verify whenever a signature does not check
// out, including on malformed input — verification must fail closed.
type ErrBadSignature struct {
	Reason string
}

func (e *ErrBadSignature) Error() string {
	if e.Reason == "" {
		return "bad signature"
	}
	return fmt.Sprintf("bad signature: %s", e.Reason)
}

func badSig(reason string) error { return &ErrBadSignature{Reason: reason} }
