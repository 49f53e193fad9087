package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStripJSONCommentsPreservesStringContent(t *testing.T) {
	in := []byte(`{
  // a full line comment
  "rpc": "http://example.com", // trailing, has // inside a string below
  "memo": "not // a comment"
}`)
	out := stripJSONComments(in)

	var m map[string]interface{}
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("stripped output is not valid JSON: %v\n%s", err, out)
	}
	if m["rpc"] != "http://example.com" {
		t.Fatalf("expected rpc preserved, got %v", m["rpc"])
	}
	if m["memo"] != "not // a comment" {
		t.Fatalf("expected string content with // preserved, got %v", m["memo"])
	}
}

func TestLoadAppliesDefaultsAndNetworkRPC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	contents := `{
  // minimal override
  "sedaChain": { "mnemonic": "test mnemonic phrase" }
}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	t.Setenv("SEDA_HOME", dir)

	cfg, err := Load(path, NetworkTestnet)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SedaChain.RPC == "" || cfg.SedaChain.ChainID == "" {
		t.Fatal("expected network defaults to fill rpc/chainId")
	}
	if cfg.SedaChain.AccountAmounts != 10 {
		t.Fatalf("expected default accountAmounts=10, got %d", cfg.SedaChain.AccountAmounts)
	}
	if cfg.Node.MaxConcurrentRequests != 20 {
		t.Fatalf("expected default maxConcurrentRequests=20, got %d", cfg.Node.MaxConcurrentRequests)
	}
	if cfg.HomeDir == "" {
		t.Fatal("expected homeDir to be derived")
	}
}

func TestLoadFailsWithoutMnemonic(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SEDA_HOME", dir)
	t.Setenv("SEDA_MNEMONIC", "")

	_, err := Load("", NetworkDevnet)
	if err == nil {
		t.Fatal("expected an error when no mnemonic is configured")
	}
}
