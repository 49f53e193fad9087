package identity

import (
	"context"
	"math/big"
	"testing"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDeriveIdentitiesDeterministic(t *testing.T) {
	a, err := DeriveIdentities(testMnemonic, 3)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveIdentities(testMnemonic, 3)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 identities, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("identity %d not deterministic: %s != %s", i, a[i].ID, b[i].ID)
		}
	}
	if a[0].ID == a[1].ID {
		t.Fatal("distinct indices must derive distinct identities")
	}
}

func TestDeriveIdentitiesRejectsBadMnemonic(t *testing.T) {
	if _, err := DeriveIdentities("not a mnemonic", 1); err == nil {
		t.Fatal("expected an error for an invalid mnemonic")
	}
}

func TestManagerEnabledTracking(t *testing.T) {
	ids, err := DeriveIdentities(testMnemonic, 2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	m := NewManager(ids)

	if len(m.EnabledIdentities()) != 0 {
		t.Fatal("expected no identities enabled initially")
	}

	m.SetEnabled(ids[0].ID, true)
	if !m.IsEnabled(ids[0].ID) {
		t.Fatal("expected identity 0 to be enabled")
	}
	if len(m.EnabledIdentities()) != 1 {
		t.Fatalf("expected 1 enabled identity, got %d", len(m.EnabledIdentities()))
	}
}

type fakeBalanceClient struct {
	balances map[string]*big.Int
	sent     map[string]*big.Int
}

func (f *fakeBalanceClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return f.balances[address], nil
}

func (f *fakeBalanceClient) SendFunds(ctx context.Context, fromSignerIndex int, toAddress string, amount *big.Int) error {
	f.sent[toAddress] = amount
	f.balances[toAddress] = new(big.Int).Add(f.balances[toAddress], amount)
	return nil
}

func TestSubAccountFunderTopsUpBelowThreshold(t *testing.T) {
	client := &fakeBalanceClient{
		balances: map[string]*big.Int{
			"acct0": big.NewInt(100),
			"acct1": big.NewInt(1),
			"acct2": big.NewInt(50),
		},
		sent: map[string]*big.Int{},
	}
	funder := NewSubAccountFunder(client, []string{"acct0", "acct1", "acct2"}, big.NewInt(10))

	if err := funder.Topup(context.Background()); err != nil {
		t.Fatalf("topup: %v", err)
	}

	if client.sent["acct1"] == nil {
		t.Fatal("expected acct1 to be topped up")
	}
	if client.sent["acct2"] != nil {
		t.Fatal("acct2 already met the threshold and should not have been funded")
	}
}

func TestSubAccountFunderRefusesWhenFunderTooLow(t *testing.T) {
	client := &fakeBalanceClient{
		balances: map[string]*big.Int{
			"acct0": big.NewInt(5),
			"acct1": big.NewInt(0),
		},
		sent: map[string]*big.Int{},
	}
	funder := NewSubAccountFunder(client, []string{"acct0", "acct1"}, big.NewInt(10))

	if err := funder.Topup(context.Background()); err == nil {
		t.Fatal("expected an error when the funder account is below 2x the threshold")
	}
}
