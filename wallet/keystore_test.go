package wallet_test

import (
	"path/filepath"
	"testing"

	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/wallet"
)

func TestSaveKeyLoadKeyRoundTrip(t *testing.T) {
	priv, err := crypto.Secp256k1Suite.Generate()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "keystore.json")
	if err := wallet.SaveKey(path, "correct horse", crypto.Secp256k1Suite, priv); err != nil {
		t.Fatalf("save: %v", err)
	}

	suite, loaded, err := wallet.LoadKey(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if suite.Name() != crypto.Secp256k1Suite.Name() {
		t.Errorf("suite: got %s want %s", suite.Name(), crypto.Secp256k1Suite.Name())
	}

	wantPEM, _ := priv.PEM()
	gotPEM, _ := loaded.PEM()
	if wantPEM != gotPEM {
		t.Error("loaded key does not match saved key")
	}
}

func TestLoadKeyWrongPassword(t *testing.T) {
	priv, err := crypto.RSAPSSSuite.Generate()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "keystore.json")
	if err := wallet.SaveKey(path, "correct", crypto.RSAPSSSuite, priv); err != nil {
		t.Fatal(err)
	}
	if _, _, err := wallet.LoadKey(path, "wrong"); err == nil {
		t.Error("expected an error loading a keystore with the wrong password")
	}
}
