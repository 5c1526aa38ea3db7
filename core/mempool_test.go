package core_test

import (
	"testing"

	"github.com/tolelom/tolchain/core"
)

type fakeChainMembership map[string]bool

func (f fakeChainMembership) HasTransaction(id string) bool { return f[id] }

func TestMempoolInsertAndDedup(t *testing.T) {
	mp := core.NewMempool()
	tx := core.NewTransaction("s", "r", core.Payload{Kind: core.PayloadValue, Amount: 1}, 1)
	if err := mp.Insert(tx, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mp.Insert(tx, nil); err == nil {
		t.Error("expected duplicate insert to fail")
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
}

func TestMempoolRejectsChainMember(t *testing.T) {
	mp := core.NewMempool()
	tx := core.NewTransaction("s", "r", core.Payload{Kind: core.PayloadValue, Amount: 1}, 1)
	if err := mp.Insert(tx, fakeChainMembership{tx.ID: true}); err == nil {
		t.Error("expected insert to reject a transaction already in the chain")
	}
}

func TestMempoolRemoveAllIn(t *testing.T) {
	mp := core.NewMempool()
	tx1 := core.NewTransaction("s", "r", core.Payload{Kind: core.PayloadValue, Amount: 1}, 1)
	tx2 := core.NewTransaction("s", "r", core.Payload{Kind: core.PayloadValue, Amount: 2}, 2)
	_ = mp.Insert(tx1, nil)
	_ = mp.Insert(tx2, nil)

	block := core.NewBlock(core.RegimePoW, nil, []*core.Transaction{tx1}, 3)
	mp.RemoveAllIn(block)

	if mp.Has(tx1.ID) {
		t.Error("tx1 should have been removed")
	}
	if !mp.Has(tx2.ID) {
		t.Error("tx2 should remain pending")
	}
	if len(mp.Iter()) != 1 {
		t.Errorf("iter length: got %d want 1", len(mp.Iter()))
	}
}
