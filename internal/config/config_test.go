package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var chainEnv = map[string]string{
	"PRIVATE_KEY":         "0x01",
	"MEME_MINTER_ADDRESS": "0x00000000000000000000000000000000000000aa",
	"MEME_SALE_ADDRESS":   "0x00000000000000000000000000000000000000bb",
	"RPC_URL":             "http://localhost:8545",
	"CHAIN_ID":            "1328",
	"PINATA_JWT":          "jwt",
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.FinalizeDelay != 15*time.Second {
		t.Errorf("FinalizeDelay = %s, want 15s", cfg.Pipeline.FinalizeDelay)
	}
	if cfg.Pipeline.InterAssetDelay != 8*time.Second {
		t.Errorf("InterAssetDelay = %s, want 8s", cfg.Pipeline.InterAssetDelay)
	}
	if cfg.Gas.MintLimit != 500000 || cfg.Gas.ApprovalLimit != 100000 || cfg.Gas.ListLimit != 300000 {
		t.Errorf("unexpected gas defaults: %+v", cfg.Gas)
	}
	if cfg.Pipeline.DefaultPrice != "0.01" || !cfg.Pipeline.AutoList {
		t.Errorf("unexpected listing defaults: %+v", cfg.Pipeline)
	}
}

func TestValidateReportsAllMissing(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	err = cfg.Validate()
	var me *MissingError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingError, got %v", err)
	}
	want := []string{
		"PRIVATE_KEY", "MEME_MINTER_ADDRESS", "MEME_SALE_ADDRESS", "RPC_URL", "CHAIN_ID",
		"PINATA_JWT", "PINATA_API_KEY", "PINATA_SECRET_API_KEY",
	}
	if !reflect.DeepEqual(me.Vars, want) {
		t.Errorf("missing = %v, want %v", me.Vars, want)
	}
}

func TestValidateComplete(t *testing.T) {
	setEnv(t, chainEnv)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Chain.ChainID != 1328 {
		t.Errorf("ChainID = %d", cfg.Chain.ChainID)
	}
}

func TestPinataKeyPairSatisfiesAuth(t *testing.T) {
	cfg := Default()
	cfg.AssetStore.PinataKey = "k"
	cfg.AssetStore.PinataSecret = "s"
	if err := cfg.RequireAssetStore(); err != nil {
		t.Errorf("key pair should satisfy auth: %v", err)
	}

	cfg.AssetStore.PinataSecret = ""
	var me *MissingError
	if err := cfg.RequireAssetStore(); !errors.As(err, &me) {
		t.Fatalf("expected MissingError, got %v", err)
	}
	if !reflect.DeepEqual(me.Vars, []string{"PINATA_JWT", "PINATA_SECRET_API_KEY"}) {
		t.Errorf("missing = %v", me.Vars)
	}
}

func TestSeiRPCAlias(t *testing.T) {
	t.Setenv("SEI_RPC", "https://evm-rpc.sei")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chain.RPCURL != "https://evm-rpc.sei" {
		t.Errorf("RPCURL = %q", cfg.Chain.RPCURL)
	}

	t.Setenv("RPC_URL", "http://primary")
	cfg, _ = Load("")
	if cfg.Chain.RPCURL != "http://primary" {
		t.Errorf("RPC_URL should win over alias, got %q", cfg.Chain.RPCURL)
	}
}

func TestFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
pipeline:
  finalize_delay: 30s
  max_assets: 7
  default_price: "0.5"
perf:
  upload_workers: 3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("MAX_NFT_IMAGES", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.FinalizeDelay != 30*time.Second {
		t.Errorf("FinalizeDelay = %s, want 30s", cfg.Pipeline.FinalizeDelay)
	}
	if cfg.Pipeline.MaxAssets != 2 {
		t.Errorf("env should override file: MaxAssets = %d", cfg.Pipeline.MaxAssets)
	}
	if cfg.Pipeline.DefaultPrice != "0.5" || cfg.Perf.UploadWorkers != 3 {
		t.Errorf("file values not applied: %+v %+v", cfg.Pipeline, cfg.Perf)
	}
	if cfg.Pipeline.VerifyMaxAttempts != 3 {
		t.Errorf("unset file keys should keep defaults, got %d", cfg.Pipeline.VerifyMaxAttempts)
	}
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("CHAIN_ID", "sei")
	t.Setenv("FINALIZE_DELAY", "soon")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"CHAIN_ID", "FINALIZE_DELAY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should mention %s", err, key)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	setEnv(t, chainEnv)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero verify attempts", func(c *Config) { c.Pipeline.VerifyMaxAttempts = 0 }},
		{"unknown backoff", func(c *Config) { c.Pipeline.VerifyBackoff = "linear" }},
		{"zero workers", func(c *Config) { c.Perf.UploadWorkers = 0 }},
		{"unknown session backend", func(c *Config) { c.Session.Backend = "etcd" }},
		{"unknown asset store", func(c *Config) { c.AssetStore.Backend = "arweave" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAuditEnv(t *testing.T) {
	setEnv(t, map[string]string{
		"AUDIT_ENABLED":  "true",
		"AUDIT_ENDPOINT": "https://audit.example/events",
	})
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := AuditConfig{Enabled: true, Endpoint: "https://audit.example/events", Dir: ".meme-minter/audit"}
	if cfg.Audit != want {
		t.Errorf("Audit = %+v, want %+v", cfg.Audit, want)
	}
}
