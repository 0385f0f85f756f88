package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != ModeFull {
		t.Errorf("expected mode %s, got %s", ModeFull, cfg.Mode)
	}
	if !cfg.AllowLaunch || !cfg.AllowAttach || !cfg.AllowKill {
		t.Error("expected every permission to be granted by default")
	}
	if cfg.MaxTargets != 10 {
		t.Errorf("expected MaxTargets 10, got %d", cfg.MaxTargets)
	}
	if cfg.PumpInterval.Std() != 20*time.Millisecond {
		t.Errorf("expected PumpInterval 20ms, got %v", cfg.PumpInterval)
	}
	if cfg.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("expected RequestTimeout 10s, got %v", cfg.RequestTimeout)
	}
	if cfg.OutputChunkSize != 256 {
		t.Errorf("expected OutputChunkSize 256, got %d", cfg.OutputChunkSize)
	}
	if cfg.Adapters.Go.Path != "dlv" {
		t.Errorf("expected Go adapter path 'dlv', got %s", cfg.Adapters.Go.Path)
	}
	if cfg.Adapters.GDB.Path != "gdb" {
		t.Errorf("expected GDB path 'gdb', got %s", cfg.Adapters.GDB.Path)
	}
	if cfg.Adapters.LLDB.Path == "" {
		t.Error("expected an lldb-dap path")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

// TestLoadConfig_EmptyPath verifies that empty path returns defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != ModeFull || cfg.MaxTargets != 10 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

// TestLoadConfig_FromJSON verifies loading configuration from a JSON file.
func TestLoadConfig_FromJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	configJSON := `{
		"mode": "readonly",
		"allowLaunch": false,
		"allowAttach": true,
		"maxTargets": 3,
		"pumpInterval": "50ms",
		"requestTimeout": "2s",
		"adapters": {
			"go": {"path": "/opt/go/bin/dlv", "buildFlags": "-tags=debug"}
		}
	}`
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Mode != ModeReadOnly {
		t.Errorf("expected readonly mode, got %s", cfg.Mode)
	}
	if cfg.AllowLaunch {
		t.Error("expected AllowLaunch false")
	}
	if cfg.MaxTargets != 3 {
		t.Errorf("expected MaxTargets 3, got %d", cfg.MaxTargets)
	}
	if cfg.PumpInterval.Std() != 50*time.Millisecond || cfg.RequestTimeout.Std() != 2*time.Second {
		t.Errorf("unexpected durations %s %s", cfg.PumpInterval, cfg.RequestTimeout)
	}
	if cfg.Adapters.Go.Path != "/opt/go/bin/dlv" || cfg.Adapters.Go.BuildFlags != "-tags=debug" {
		t.Errorf("unexpected delve config %+v", cfg.Adapters.Go)
	}
	// Missing fields keep defaults
	if cfg.OutputChunkSize != 256 || cfg.Adapters.GDB.Path != "gdb" {
		t.Error("expected unspecified fields to keep their defaults")
	}
}

// TestLoadConfig_FromYAML verifies YAML files and environment expansion.
func TestLoadConfig_FromYAML(t *testing.T) {
	t.Setenv("DEBUGIFY_TEST_GDB", "/opt/gdb/bin/gdb")
	configPath := filepath.Join(t.TempDir(), "debugify.yaml")
	configYAML := `mode: full
allowKill: false
outputChunkSize: 64
pumpInterval: 5ms
adapters:
  gdb:
    path: ${DEBUGIFY_TEST_GDB}
log:
  enabled: true
  layers: session,dap
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.AllowKill || cfg.CanKill() {
		t.Error("expected kill to be disallowed")
	}
	if cfg.OutputChunkSize != 64 || cfg.PumpInterval.Std() != 5*time.Millisecond {
		t.Errorf("unexpected values %d %s", cfg.OutputChunkSize, cfg.PumpInterval)
	}
	if cfg.Adapters.GDB.Path != "/opt/gdb/bin/gdb" {
		t.Errorf("expected expanded gdb path, got %s", cfg.Adapters.GDB.Path)
	}
	if !cfg.Log.Enabled || cfg.Log.Layers != "session,dap" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
}

// TestLoadConfig_FromTOML verifies TOML files, including duration strings.
func TestLoadConfig_FromTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "debugify.toml")
	configTOML := `mode = "readonly"
maxTargets = 3
requestTimeout = "2s"

[adapters.go]
path = "/usr/local/bin/dlv"
buildFlags = "-tags=integration"
`
	if err := os.WriteFile(configPath, []byte(configTOML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != ModeReadOnly || cfg.CanUseControlTools() {
		t.Errorf("expected readonly mode, got %s", cfg.Mode)
	}
	if cfg.MaxTargets != 3 || cfg.RequestTimeout.Std() != 2*time.Second {
		t.Errorf("unexpected values %d %s", cfg.MaxTargets, cfg.RequestTimeout)
	}
	if cfg.Adapters.Go.Path != "/usr/local/bin/dlv" || cfg.Adapters.Go.BuildFlags != "-tags=integration" {
		t.Errorf("unexpected delve config %+v", cfg.Adapters.Go)
	}
	if cfg.PumpInterval.Std() != 20*time.Millisecond {
		t.Errorf("expected default pump interval, got %s", cfg.PumpInterval)
	}
}

// TestLoadConfig_Invalid verifies parse and validation failures.
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "config.json", `{not json`},
		{"unknown mode", "config.json", `{"mode": "superuser"}`},
		{"bad duration", "config.json", `{"pumpInterval": "soon"}`},
		{"zero targets", "config.yml", "maxTargets: 0\n"},
		{"negative timeout", "config.yaml", "requestTimeout: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// TestLoadConfig_Missing verifies a missing file is an error.
func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

// TestPermissions verifies the permission helpers per mode.
func TestPermissions(t *testing.T) {
	tests := []struct {
		name        string
		mode        CapabilityMode
		allowKill   bool
		wantControl bool
		wantKill    bool
	}{
		{"full", ModeFull, true, true, true},
		{"full without kill", ModeFull, false, true, false},
		{"readonly", ModeReadOnly, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mode = tt.mode
			cfg.AllowKill = tt.allowKill
			if cfg.CanUseControlTools() != tt.wantControl {
				t.Errorf("CanUseControlTools: expected %v", tt.wantControl)
			}
			if cfg.CanKill() != tt.wantKill {
				t.Errorf("CanKill: expected %v", tt.wantKill)
			}
		})
	}
}

// TestDuration_JSONRoundTrip verifies durations are written as strings.
func TestDuration_JSONRoundTrip(t *testing.T) {
	data, err := Duration(1500 * time.Millisecond).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(data) != `"1.5s"` {
		t.Errorf("expected \"1.5s\", got %s", data)
	}
	var d Duration
	if err := d.UnmarshalJSON([]byte("1000")); err != nil || d.Std() != time.Microsecond {
		t.Errorf("expected nanoseconds to be accepted, got %v %v", d, err)
	}
}
