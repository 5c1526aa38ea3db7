package crypto

import (
	"encoding/pem"
	"fmt"
)

// encodePEM wraps raw bytes in a PEM block. secp256k1 has no x509 ASN.1
// encoding in the standard library (the curve isn't one of the NIST curves
// crypto/x509 knows how to marshal), so its keys use a raw-bytes PEM block
// under a suite-specific header, the way most non-NIST-curve chain code
// does outside of x509.
func encodePEM(blockType string, raw []byte) (string, error) {
	block := &pem.Block{Type: blockType, Bytes: raw}
	return string(pem.EncodeToMemory(block)), nil
}

func decodePEM(pemStr, wantType string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM data")
	}
	if block.Type != wantType {
		return nil, fmt.Errorf("unexpected PEM block type %q, want %q", block.Type, wantType)
	}
	return block.Bytes, nil
}
