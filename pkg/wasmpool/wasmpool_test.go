package wasmpool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/sedaoverlay/node/pkg/drtypes"
)

var errBoom = errors.New("boom")

func TestClampedGasLimit(t *testing.T) {
	cases := []struct {
		exec, maxGas uint64
		rf           uint16
		want         uint64
	}{
		{exec: 900, rf: 3, maxGas: 1000, want: 300},
		{exec: 9000, rf: 3, maxGas: 1000, want: 1000},
		{exec: 100, rf: 0, maxGas: 1000, want: 100}, // rf=0 treated as 1
	}
	for _, c := range cases {
		got := ClampedGasLimit(c.exec, c.rf, c.maxGas)
		if got != c.want {
			t.Fatalf("ClampedGasLimit(%d,%d,%d) = %d, want %d", c.exec, c.rf, c.maxGas, got, c.want)
		}
	}
}

func TestEnvForDRIncludesRequiredKeys(t *testing.T) {
	dr := &drtypes.DataRequest{
		ID:                "dr1",
		Height:            42,
		ExecProgramID:     "prog1",
		ReplicationFactor: 3,
		PostedGasPrice:    big.NewInt(100),
		TallyGasLimit:     500,
		TallyProgramID:    "tally1",
		Memo:              []byte{0xaa},
		PaybackAddress:    []byte{0xbb},
		TallyInputs:       []byte{0xcc},
	}
	env := EnvForDR(dr, 42, 300)

	required := []string{
		"VM_MODE", "DR_ID", "DR_HEIGHT", "EXEC_PROGRAM_ID", "DR_REPLICATION_FACTOR",
		"DR_GAS_PRICE", "DR_EXEC_GAS_LIMIT", "DR_TALLY_GAS_LIMIT", "DR_MEMO",
		"DR_PAYBACK_ADDRESS", "TALLY_PROGRAM_ID", "TALLY_INPUTS",
	}
	for _, k := range required {
		if _, ok := env[k]; !ok {
			t.Fatalf("expected env to contain %s", k)
		}
	}
	if env["VM_MODE"] != "dr" {
		t.Fatalf("expected VM_MODE=dr, got %s", env["VM_MODE"])
	}
	if env["DR_EXEC_GAS_LIMIT"] != "300" {
		t.Fatalf("expected clamped gas limit 300, got %s", env["DR_EXEC_GAS_LIMIT"])
	}
}

func TestHostStateStashPacksStatusAndLength(t *testing.T) {
	st := &hostState{}

	packed := st.stash([]byte("payload"), nil)
	if packed>>32 != 0 {
		t.Fatalf("expected ok status, got %d", packed>>32)
	}
	if packed&0xffffffff != 7 {
		t.Fatalf("expected length 7, got %d", packed&0xffffffff)
	}
	if string(st.lastResult) != "payload" {
		t.Fatalf("expected payload stashed, got %q", st.lastResult)
	}

	packed = st.stash(nil, errBoom)
	if packed>>32 != 1 {
		t.Fatalf("expected error status, got %d", packed>>32)
	}
	if int(packed&0xffffffff) != len(errBoom.Error()) {
		t.Fatalf("expected error text length, got %d", packed&0xffffffff)
	}
	if string(st.lastResult) != errBoom.Error() {
		t.Fatalf("expected error text stashed, got %q", st.lastResult)
	}
}

func TestCappedBufferTruncates(t *testing.T) {
	buf := newCappedBuffer(5)
	n, err := buf.Write([]byte("hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected Write to report the full input length consumed, got %d", n)
	}
	if buf.buf.Len() != 5 {
		t.Fatalf("expected buffer capped at 5 bytes, got %d", buf.buf.Len())
	}
}

func TestCappedBufferLinesSplitsOnNewline(t *testing.T) {
	buf := newCappedBuffer(1024)
	buf.Write([]byte("line1\nline2\n"))
	lines := buf.lines()
	if len(lines) != 2 || lines[0] != "line1" || lines[1] != "line2" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}
