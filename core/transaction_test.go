package core_test

import (
	"testing"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

func TestTransactionSignVerify(t *testing.T) {
	priv, err := crypto.Secp256k1Suite.Generate()
	if err != nil {
		t.Fatal(err)
	}
	pem, err := priv.Public().PEM()
	if err != nil {
		t.Fatal(err)
	}

	tx := core.NewTransaction(pem, "receiver-pem", core.Payload{Kind: core.PayloadValue, Amount: 10}, 1700000000)
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := tx.Verify(crypto.Secp256k1Suite); err != nil {
		t.Errorf("verify valid tx: %v", err)
	}

	tx.Payload.Amount = 999
	if err := tx.Verify(crypto.Secp256k1Suite); err == nil {
		t.Error("tampered tx should fail verification")
	}
}

func TestTransactionGenesisSkipsVerify(t *testing.T) {
	tx := core.NewTransaction(core.GenesisSender, "receiver-pem", core.Payload{Kind: core.PayloadValue, Amount: 1}, 0)
	if err := tx.Verify(crypto.Secp256k1Suite); err != nil {
		t.Errorf("genesis tx should verify without a signature: %v", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	cases := []core.Payload{
		{Kind: core.PayloadValue, Amount: 42.5},
		{Kind: core.PayloadDeploy, Code: "function run(state){return state}", Amount: 3},
		{Kind: core.PayloadInvoke, ContractID: "c1", Function: "run", Args: []any{"a"}, State: []byte(`{"x":1}`), Amount: 2},
	}
	for _, p := range cases {
		data, err := p.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", p.Kind, err)
		}
		var out core.Payload
		if err := out.UnmarshalJSON(data); err != nil {
			t.Fatalf("unmarshal %v: %v", p.Kind, err)
		}
		if out.Kind != p.Kind || out.DeclaredAmount() != p.DeclaredAmount() {
			t.Errorf("round trip mismatch: got %+v want %+v", out, p)
		}
	}
}

func TestTransactionEqual(t *testing.T) {
	a := core.NewTransaction("s", "r", core.Payload{Kind: core.PayloadValue, Amount: 1}, 100)
	b := *a
	b.Payload.Amount = 2 // Equal ignores payload contents
	if !a.Equal(&b) {
		t.Error("transactions with same id/sender/receiver/timestamp should be equal")
	}
	b.ID = "different"
	if a.Equal(&b) {
		t.Error("transactions with different ids should not be equal")
	}
}
