package sentinelconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/registry"
)

func TestLoadDefaults(t *testing.T) {
	loaded, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Sentinel.Registry.MaxAllowedDrift != registry.DriftMinor {
		t.Fatalf("expected default drift Minor, got %v", loaded.Sentinel.Registry.MaxAllowedDrift)
	}
	if loaded.Sentinel.Monitor.GasLimit != 10_000 {
		t.Fatalf("expected default gas limit 10000, got %d", loaded.Sentinel.Monitor.GasLimit)
	}
	if loaded.Server.ListenAddr != ":8443" {
		t.Fatalf("expected default listen addr :8443, got %q", loaded.Server.ListenAddr)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.toml")
	contents := `
[registry]
allow_unknown_tools = true
max_allowed_drift = "major"

[monitor]
gas_limit = 500

[server]
listen_addr = ":9443"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Sentinel.Registry.AllowUnknownTools {
		t.Fatal("expected allow_unknown_tools true")
	}
	if loaded.Sentinel.Registry.MaxAllowedDrift != registry.DriftMajor {
		t.Fatalf("expected drift Major, got %v", loaded.Sentinel.Registry.MaxAllowedDrift)
	}
	if loaded.Sentinel.Monitor.GasLimit != 500 {
		t.Fatalf("expected gas limit 500, got %d", loaded.Sentinel.Monitor.GasLimit)
	}
	if loaded.Server.ListenAddr != ":9443" {
		t.Fatalf("expected listen addr :9443, got %q", loaded.Server.ListenAddr)
	}
	// Untouched sections keep package defaults.
	if loaded.Sentinel.Council.MinVotesForApproval != 2 {
		t.Fatalf("expected default min votes 2, got %d", loaded.Sentinel.Council.MinVotesForApproval)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	contents := "council:\n  min_votes_for_approval: 3\n  waluigi_threshold: 0.5\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Sentinel.Council.MinVotesForApproval != 3 {
		t.Fatalf("expected min votes 3, got %d", loaded.Sentinel.Council.MinVotesForApproval)
	}
	if loaded.Sentinel.Council.WaluigiThreshold != 0.5 {
		t.Fatalf("expected waluigi threshold 0.5, got %v", loaded.Sentinel.Council.WaluigiThreshold)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.toml")
	contents := "[monitor]\ngas_limit = 500\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv("SENTINEL_MONITOR_GAS_LIMIT", "75")
	t.Setenv("SENTINEL_GLOBAL_FAIL_CLOSED", "false")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Sentinel.Monitor.GasLimit != 75 {
		t.Fatalf("expected env override gas limit 75, got %d", loaded.Sentinel.Monitor.GasLimit)
	}
	if loaded.Sentinel.Global.FailClosed {
		t.Fatal("expected env override to disable fail_closed")
	}
}

func TestParseDriftLevelRejectsUnknown(t *testing.T) {
	if _, err := parseDriftLevel("catastrophic"); err == nil {
		t.Fatal("expected error for unrecognized drift level")
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	loaded, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateAggregatesViolations(t *testing.T) {
	loaded, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.Sentinel.Monitor.GasLimit = 0
	loaded.Sentinel.Council.MinVotesForApproval = 0
	loaded.Server.ListenAddr = ""

	err = loaded.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"gas_limit", "min_votes_for_approval", "listen_addr"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %q, got: %s", want, msg)
		}
	}
}
