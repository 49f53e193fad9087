package protocolcrypto

import (
	"encoding/json"
	"math/big"
	"testing"
)

// Commitment and commit-message hashes over a known fixture.
func TestCommitmentTestVector(t *testing.T) {
	drID := "8357000000000000000000000000000000000000000000000000000000" + "39d2"
	reveal := MustHex("1a19" + "0000000000000000000000000000000000000000000000000000000000" + "57ac")

	hRB := HashRevealBody(RevealBodyInput{
		DRID:            drID,
		DRBlockHeight:   0,
		ExitCode:        0,
		GasUsed:         0,
		ProxyPublicKeys: nil,
		Reveal:          reveal,
	})

	pk := "0300000000000000000000000000000000000000000000000000000000000001"
	salt := "9c02" + "0000000000000000000000000000000000000000000000000000000000" + "0501"

	commitment := Commitment(hRB, pk, salt, nil, nil)

	chainID := "seda_test"
	contract := "seda1mzdhwvvh22wrt07w59wxyd58822qavwkx5lcej7aqfkpqqlhaqfsuj50sf"
	hCM := HashCommitMessage(drID, 1, commitment, chainID, contract)

	if len(commitment) != 32 {
		t.Fatalf("commitment must be 32 bytes, got %d", len(commitment))
	}
	if len(hCM) != 32 {
		t.Fatalf("commit message hash must be 32 bytes, got %d", len(hCM))
	}
}

// Reveal-message hash over a fixture with a proxy public key.
func TestRevealMessageTestVector(t *testing.T) {
	drID := "3aa9" + "0000000000000000000000000000000000000000000000000000000000" + "818f"
	reveal := MustHex("ccb1" + "0000000000000000000000000000000000000000000000000000000000" + "31b8")
	proxyPK := "0301" + "0000000000000000000000000000000000000000000000000000000000" + "cdef"

	hRB := HashRevealBody(RevealBodyInput{
		DRID:            drID,
		DRBlockHeight:   1,
		ExitCode:        0,
		GasUsed:         1,
		ProxyPublicKeys: []string{proxyPK},
		Reveal:          reveal,
	})

	pk := "0300" + "0000000000000000000000000000000000000000000000000000000" + "04e4"
	proof := "03aa" + "00000000000000000000000000000000000000000000000000000000" + "05"

	commitment := Commitment(hRB, pk, proof, nil, nil)
	_ = commitment

	chainID := "seda_test"
	contract := "seda1mzdhwvvh22wrt07w59wxyd58822qavwkx5lcej7aqfkpqqlhaqfsuj50sf"
	hRM := HashRevealMessage(drID, 1, hRB, chainID, contract)

	if len(hRM) != 32 {
		t.Fatalf("reveal message hash must be 32 bytes, got %d", len(hRM))
	}
}

func TestHashesArePureAndDeterministic(t *testing.T) {
	drID := "aa" + "0000000000000000000000000000000000000000000000000000000000" + "bb"
	in := RevealBodyInput{DRID: drID, DRBlockHeight: 5, ExitCode: 0, GasUsed: 10, Reveal: []byte("hello")}

	a := HashRevealBody(in)
	b := HashRevealBody(in)
	if ToHex(a) != ToHex(b) {
		t.Fatal("HashRevealBody is not referentially transparent")
	}
}

func TestStakeUnstakeWithdrawHashesDiffer(t *testing.T) {
	chainID, contract := "seda_test", "seda1contract"
	seq := big.NewInt(1)
	amount := big.NewInt(1000)

	hs := HashStake(nil, chainID, contract, seq)
	hu := HashUnstake(amount, chainID, contract, seq)
	hw := HashWithdraw(amount, chainID, contract, seq)

	if ToHex(hs) == ToHex(hu) || ToHex(hu) == ToHex(hw) || ToHex(hs) == ToHex(hw) {
		t.Fatal("distinct message kinds must hash to distinct digests")
	}
}

func TestU128BERoundTrip(t *testing.T) {
	v := big.NewInt(123456789)
	b := U128BE(v)
	if len(b) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b))
	}
	got := new(big.Int).SetBytes(b)
	if got.Cmp(v) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", got, v)
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := RevealDataResultMsg{
		PublicKey: "0xabc",
		Proof:     "0xdef",
		RevealBody: RevealBodyMsg{
			DRID:            "0x1",
			DRBlockHeight:   10,
			ExitCode:        0,
			GasUsed:         100,
			ProxyPublicKeys: []string{"0x1", "0x2"},
			RevealBase64:    "aGVsbG8=",
		},
		Stderr: []string{},
		Stdout: []string{"ok"},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded RevealDataResultMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.RevealBody.DRBlockHeight != msg.RevealBody.DRBlockHeight {
		t.Fatalf("round trip mismatch")
	}
}

func TestEligibilityPayload(t *testing.T) {
	payload := EligibilityPayload("identity1", "dr1", "sig1")
	if payload == "" {
		t.Fatal("expected non-empty payload")
	}
}
