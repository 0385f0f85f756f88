// Package launchconfig reads VS Code launch.json debug configurations and
// turns them into debug targets.
package launchconfig

import (
	"encoding/json"
)

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
}

// DebugConfiguration represents a single debug configuration in launch.json.
type DebugConfiguration struct {
	// Required fields
	Type    string `json:"type"`    // e.g. "go", "lldb", "gdb", "cppdbg"
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	// Common optional fields
	Program     string            `json:"program,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`

	// Attach-specific fields
	ProcessID int `json:"processId,omitempty"`

	// cppdbg picks its debugger with MIMode ("gdb" or "lldb")
	MIMode string `json:"MIMode,omitempty"`

	// Every other property (adapter-specific settings such as buildFlags,
	// initCommands or sourceMap), passed through to the adapter.
	Extra map[string]interface{} `json:"-"`
}

var knownFields = map[string]bool{
	"type": true, "request": true, "name": true,
	"program": true, "args": true, "cwd": true, "env": true,
	"stopOnEntry": true, "processId": true, "MIMode": true,
	// Editor-only settings that mean nothing to an adapter
	"preLaunchTask": true, "postDebugTask": true, "presentation": true,
	"console": true, "internalConsoleOptions": true,
}

// UnmarshalJSON implements custom unmarshaling to capture unknown fields.
func (c *DebugConfiguration) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type Alias DebugConfiguration
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*c = DebugConfiguration(alias)

	c.Extra = make(map[string]interface{})
	for key, value := range raw {
		if knownFields[key] {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		c.Extra[key] = v
	}
	return nil
}

// IsLaunchRequest returns true if this is a launch configuration (not attach).
func (c *DebugConfiguration) IsLaunchRequest() bool {
	return c.Request == "launch"
}

// IsAttachRequest returns true if this is an attach configuration.
func (c *DebugConfiguration) IsAttachRequest() bool {
	return c.Request == "attach"
}

// Adapter returns the debug adapter name for the configuration's type, or
// "" when the type is not one debugify can drive.
func (c *DebugConfiguration) Adapter() string {
	switch c.Type {
	case "go":
		return "delve"
	case "lldb", "lldb-dap", "codelldb", "c", "cpp", "rust":
		return "lldb"
	case "gdb":
		return "gdb"
	case "cppdbg":
		if c.MIMode == "lldb" {
			return "lldb"
		}
		return "gdb"
	}
	return ""
}
