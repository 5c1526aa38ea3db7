package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	secp256k1PrivBlock = "SECP256K1 PRIVATE KEY"
	secp256k1PubBlock  = "SECP256K1 PUBLIC KEY"
)

// Secp256k1Suite is the ECDSA-over-SECP256k1 signature suite used by PoS
// (stakes, VRF proofs, blocks) and PoA (blocks, roster updates).
var Secp256k1Suite Suite = secp256k1Suite{}

type secp256k1Suite struct{}

func (secp256k1Suite) Name() string { return "secp256k1" }

func (secp256k1Suite) Generate() (PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return secp256k1PrivateKey{priv: priv}, nil
}

func (secp256k1Suite) ImportPrivatePEM(pemStr string) (PrivateKey, error) {
	raw, err := decodePEM(pemStr, secp256k1PrivBlock)
	if err != nil {
		return nil, err
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return secp256k1PrivateKey{priv: priv}, nil
}

func (secp256k1Suite) ImportPublicPEM(pemStr string) (PublicKey, error) {
	raw, err := decodePEM(pemStr, secp256k1PubBlock)
	if err != nil {
		return nil, err
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, badSig("invalid secp256k1 public key: " + err.Error())
	}
	return secp256k1PublicKey{pub: pub}, nil
}

type secp256k1PrivateKey struct {
	priv *secp256k1.PrivateKey
}

func (k secp256k1PrivateKey) Public() PublicKey {
	return secp256k1PublicKey{pub: k.priv.PubKey()}
}

func (k secp256k1PrivateKey) Sign(msg []byte) ([]byte, error) {
	digest := HashBytes(msg)
	sig := ecdsa.Sign(k.priv, digest)
	return sig.Serialize(), nil
}

func (k secp256k1PrivateKey) PEM() (string, error) {
	return encodePEM(secp256k1PrivBlock, k.priv.Serialize())
}

type secp256k1PublicKey struct {
	pub *secp256k1.PublicKey
}

func (k secp256k1PublicKey) Verify(msg, sig []byte) error {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return badSig("malformed secp256k1 signature: " + err.Error())
	}
	digest := HashBytes(msg)
	if !parsed.Verify(digest, k.pub) {
		return badSig("secp256k1 verification failed")
	}
	return nil
}

func (k secp256k1PublicKey) PEM() (string, error) {
	return encodePEM(secp256k1PubBlock, k.pub.SerializeCompressed())
}

func (k secp256k1PublicKey) Equal(other PublicKey) bool {
	o, ok := other.(secp256k1PublicKey)
	if !ok {
		return false
	}
	return k.pub.IsEqual(o.pub)
}
