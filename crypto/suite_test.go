package crypto_test

import (
	"testing"

	"github.com/tolelom/tolchain/crypto"
)

func testSuiteRoundTrip(t *testing.T, suite crypto.Suite) {
	t.Helper()
	priv, err := suite.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("message for " + suite.Name())
	sig, err := priv.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	pub := priv.Public()
	if err := pub.Verify(msg, sig); err != nil {
		t.Errorf("verify valid signature: %v", err)
	}
	if err := pub.Verify([]byte("tampered"), sig); err == nil {
		t.Error("expected verify to fail on tampered message")
	}

	pem, err := priv.PEM()
	if err != nil {
		t.Fatalf("private pem: %v", err)
	}
	imported, err := suite.ImportPrivatePEM(pem)
	if err != nil {
		t.Fatalf("import private pem: %v", err)
	}
	sig2, err := imported.Sign(msg)
	if err != nil {
		t.Fatalf("sign with imported key: %v", err)
	}
	if err := pub.Verify(msg, sig2); err != nil {
		t.Errorf("signature from re-imported key should verify: %v", err)
	}

	pubPEM, err := pub.PEM()
	if err != nil {
		t.Fatalf("public pem: %v", err)
	}
	importedPub, err := suite.ImportPublicPEM(pubPEM)
	if err != nil {
		t.Fatalf("import public pem: %v", err)
	}
	if !pub.Equal(importedPub) {
		t.Error("re-imported public key should equal the original")
	}
}

func TestSecp256k1Suite(t *testing.T) {
	testSuiteRoundTrip(t, crypto.Secp256k1Suite)
}

func TestRSAPSSSuite(t *testing.T) {
	testSuiteRoundTrip(t, crypto.RSAPSSSuite)
}

func TestSuiteForRegime(t *testing.T) {
	cases := map[string]crypto.Suite{
		"pow": crypto.RSAPSSSuite,
		"pos": crypto.Secp256k1Suite,
		"poa": crypto.Secp256k1Suite,
	}
	for regime, want := range cases {
		got, err := crypto.SuiteForRegime(regime)
		if err != nil {
			t.Fatalf("%s: %v", regime, err)
		}
		if got.Name() != want.Name() {
			t.Errorf("%s: got suite %s want %s", regime, got.Name(), want.Name())
		}
	}
	if _, err := crypto.SuiteForRegime("nonsense"); err == nil {
		t.Error("expected error for unknown regime")
	}
}
