// Package config provides configuration management for debugify.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control launch, attach and kill operations
//   - Adapter settings: paths and flags for each debugger
//   - Limits and timing: maximum targets, event pump interval, request timeout
//
// Configuration is read from a JSON file, from YAML when the file ends in
// .yml or .yaml, or from TOML when it ends in .toml. Environment variables in
// the file are expanded first.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection tools only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Duration is a time.Duration written as a string ("20ms", "10s") in files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalText implements encoding.TextMarshaler, used by the TOML codec.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML codec.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode        CapabilityMode `json:"mode" yaml:"mode" toml:"mode"`
	AllowLaunch bool           `json:"allowLaunch" yaml:"allowLaunch" toml:"allowLaunch"`
	AllowAttach bool           `json:"allowAttach" yaml:"allowAttach" toml:"allowAttach"`
	AllowKill   bool           `json:"allowKill" yaml:"allowKill" toml:"allowKill"`

	// Adapter configs, keyed by debugger
	Adapters AdapterConfigs `json:"adapters" yaml:"adapters" toml:"adapters"`

	// Limits for safety
	MaxTargets int `json:"maxTargets" yaml:"maxTargets" toml:"maxTargets"`

	// PumpInterval is how often queued debugger events are processed.
	PumpInterval Duration `json:"pumpInterval" yaml:"pumpInterval" toml:"pumpInterval"`
	// RequestTimeout bounds every request to a debug adapter.
	RequestTimeout Duration `json:"requestTimeout" yaml:"requestTimeout" toml:"requestTimeout"`
	// OutputChunkSize is the buffer size used when draining process output.
	OutputChunkSize int `json:"outputChunkSize" yaml:"outputChunkSize" toml:"outputChunkSize"`

	Log LogConfig `json:"log" yaml:"log" toml:"log"`
}

// AdapterConfigs holds configuration for each debug adapter
type AdapterConfigs struct {
	Go   DelveConfig `json:"go" yaml:"go" toml:"go"`
	LLDB LLDBConfig  `json:"lldb" yaml:"lldb" toml:"lldb"`
	GDB  GDBConfig   `json:"gdb" yaml:"gdb" toml:"gdb"`
}

// DelveConfig holds Delve-specific configuration
type DelveConfig struct {
	Path       string `json:"path" yaml:"path" toml:"path"`
	BuildFlags string `json:"buildFlags" yaml:"buildFlags" toml:"buildFlags"`
}

// LLDBConfig holds LLDB-specific configuration
type LLDBConfig struct {
	Path string `json:"path" yaml:"path" toml:"path"` // Path to lldb-dap binary (formerly lldb-vscode)
}

// GDBConfig holds GDB-specific configuration
type GDBConfig struct {
	Path string `json:"path" yaml:"path" toml:"path"` // Requires GDB 14.1+ for DAP support
}

// LogConfig selects debug log layers, like the --log and --log-output flags.
type LogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Layers  string `json:"layers" yaml:"layers" toml:"layers"`
}

// findLLDBDap searches for lldb-dap in common locations across platforms
func findLLDBDap() string {
	if path, err := exec.LookPath("lldb-dap"); err == nil {
		return path
	}

	locations := []string{
		// macOS - Xcode Command Line Tools, Xcode.app and Homebrew
		"/Library/Developer/CommandLineTools/usr/bin/lldb-dap",
		"/Applications/Xcode.app/Contents/Developer/usr/bin/lldb-dap",
		"/opt/homebrew/bin/lldb-dap",
		"/usr/local/bin/lldb-dap",

		// Linux - LLVM packages, including versioned Debian/Ubuntu binaries
		"/usr/bin/lldb-dap",
		"/usr/bin/lldb-dap-18",
		"/usr/bin/lldb-dap-17",
		"/usr/lib/llvm-18/bin/lldb-dap",
		"/usr/lib/llvm-17/bin/lldb-dap",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Pre-LLVM 16 name
	if path, err := exec.LookPath("lldb-vscode"); err == nil {
		return path
	}
	return "lldb-dap"
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeFull,
		AllowLaunch:     true,
		AllowAttach:     true,
		AllowKill:       true,
		MaxTargets:      10,
		PumpInterval:    Duration(20 * time.Millisecond),
		RequestTimeout:  Duration(10 * time.Second),
		OutputChunkSize: 256,
		Adapters: AdapterConfigs{
			Go:   DelveConfig{Path: "dlv"},
			LLDB: LLDBConfig{Path: findLLDBDap()},
			GDB:  GDBConfig{Path: "gdb"},
		},
	}
}

// LoadConfig loads configuration from a JSON, YAML or TOML file. An empty path
// yields the defaults. Fields missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal([]byte(expanded), cfg)
	case ".toml":
		err = toml.Unmarshal([]byte(expanded), cfg)
	default:
		err = json.Unmarshal([]byte(expanded), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable interpretation.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("invalid mode %q: expected %q or %q", c.Mode, ModeReadOnly, ModeFull)
	}
	if c.MaxTargets < 1 {
		return fmt.Errorf("maxTargets must be at least 1, got %d", c.MaxTargets)
	}
	if c.PumpInterval <= 0 {
		return fmt.Errorf("pumpInterval must be positive, got %s", c.PumpInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive, got %s", c.RequestTimeout)
	}
	if c.OutputChunkSize < 1 {
		return fmt.Errorf("outputChunkSize must be at least 1, got %d", c.OutputChunkSize)
	}
	return nil
}

// CanUseControlTools returns true if execution control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanLaunch returns true if launching programs is allowed
func (c *Config) CanLaunch() bool {
	return c.AllowLaunch
}

// CanAttach returns true if attaching to running processes is allowed
func (c *Config) CanAttach() bool {
	return c.AllowAttach
}

// CanKill returns true if killing the debuggee is allowed
func (c *Config) CanKill() bool {
	return c.Mode == ModeFull && c.AllowKill
}
