// Package types defines the copied-out data shared across execution contexts.
//
// Session objects may only be touched on the debug context. Anything that
// needs to leave it (MCP tool results, console output, background scans of a
// module's file list) is first converted into one of these plain values:
//   - TargetInfo / ProcessInfo: target and process lifecycle
//   - ThreadInfo / FrameInfo: the thread roster at the last stop
//   - BreakpointInfo / LocationInfo: breakpoint definitions and resolutions
//   - ModuleInfo: loaded images and their source files
package types

import "strconv"

// ProcessInfo describes one live or finished debuggee.
type ProcessInfo struct {
	PID             int    `json:"pid"`
	State           string `json:"state"`
	ExitStatus      int    `json:"exitStatus,omitempty"`
	ExitDescription string `json:"exitDescription,omitempty"`
}

// IsLive reports whether the process has not yet exited, detached or gone away.
func (p ProcessInfo) IsLive() bool {
	switch p.State {
	case "", "invalid", "exited", "detached":
		return false
	}
	return true
}

// FrameInfo is one entry of a thread's call stack.
type FrameInfo struct {
	Index    int    `json:"index"`
	Function string `json:"function"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

// Location returns "file:line", or the function name when no line is known.
func (f FrameInfo) Location() string {
	if f.File == "" || f.Line <= 0 {
		return f.Function
	}
	return f.File + ":" + strconv.Itoa(f.Line)
}

// ThreadInfo describes one thread at the last stop.
type ThreadInfo struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Current bool        `json:"current,omitempty"`
	Frames  []FrameInfo `json:"frames,omitempty"`
}

// LocationInfo is one resolved instance of a breakpoint.
type LocationInfo struct {
	ID       int    `json:"id"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Resolved bool   `json:"resolved"`
}

// BreakpointInfo describes one breakpoint definition.
type BreakpointInfo struct {
	ID        int            `json:"id"`
	Enabled   bool           `json:"enabled"`
	Locations []LocationInfo `json:"locations"`
}

// Resolved reports whether at least one location resolved to code.
func (b BreakpointInfo) Resolved() bool {
	for _, loc := range b.Locations {
		if loc.Resolved {
			return true
		}
	}
	return false
}

// ModuleInfo describes one loaded binary image.
type ModuleInfo struct {
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	System bool     `json:"system,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// TargetInfo describes a loaded target and its current process, if any.
type TargetInfo struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	Adapter     string       `json:"adapter,omitempty"`
	Process     *ProcessInfo `json:"process,omitempty"`
	Breakpoints int          `json:"breakpoints"`
}

// OutputInfo carries drained stdout/stderr text.
type OutputInfo struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}
