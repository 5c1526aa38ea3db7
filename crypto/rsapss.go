package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
)

const (
	rsaPrivBlock = "RSA PRIVATE KEY"
	rsaPubBlock  = "PUBLIC KEY"
	rsaKeyBits   = 2048
)

// RSAPSSSuite is the RSA-2048 + PSS-SHA256 signature suite historically
// used by the PoW regime's wallet, mirroring the original prototype's
// `cryptography` RSA wallet.
var RSAPSSSuite Suite = rsaPSSSuite{}

type rsaPSSSuite struct{}

func (rsaPSSSuite) Name() string { return "rsa-pss" }

func (rsaPSSSuite) Generate() (PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}
	return rsaPrivateKey{priv: priv}, nil
}

func (rsaPSSSuite) ImportPrivatePEM(pemStr string) (PrivateKey, error) {
	raw, err := decodePEM(pemStr, rsaPrivBlock)
	if err != nil {
		return nil, err
	}
	priv, err := x509.ParsePKCS1PrivateKey(raw)
	if err != nil {
		return nil, badSig("invalid RSA private key: " + err.Error())
	}
	return rsaPrivateKey{priv: priv}, nil
}

func (rsaPSSSuite) ImportPublicPEM(pemStr string) (PublicKey, error) {
	raw, err := decodePEM(pemStr, rsaPubBlock)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, badSig("invalid RSA public key: " + err.Error())
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, badSig("PEM block is not an RSA public key")
	}
	return rsaPublicKey{pub: rsaPub}, nil
}

type rsaPrivateKey struct {
	priv *rsa.PrivateKey
}

func (k rsaPrivateKey) Public() PublicKey {
	return rsaPublicKey{pub: &k.priv.PublicKey}
}

func (k rsaPrivateKey) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return rsa.SignPSS(rand.Reader, k.priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
}

func (k rsaPrivateKey) PEM() (string, error) {
	return encodePEM(rsaPrivBlock, x509.MarshalPKCS1PrivateKey(k.priv))
}

type rsaPublicKey struct {
	pub *rsa.PublicKey
}

func (k rsaPublicKey) Verify(msg, sig []byte) error {
	digest := sha256.Sum256(msg)
	err := rsa.VerifyPSS(k.pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return badSig("rsa-pss verification failed: " + err.Error())
	}
	return nil
}

func (k rsaPublicKey) PEM() (string, error) {
	raw, err := x509.MarshalPKIXPublicKey(k.pub)
	if err != nil {
		return "", err
	}
	return encodePEM(rsaPubBlock, raw)
}

func (k rsaPublicKey) Equal(other PublicKey) bool {
	o, ok := other.(rsaPublicKey)
	if !ok {
		return false
	}
	return k.pub.Equal(o.pub)
}
