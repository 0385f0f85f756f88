// Package errors provides the structured error type shared by the session
// layer, the DAP backend and the MCP surface. Every failure carries a code
// for programmatic handling and a hint describing how to recover.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeBackendRejected    ErrorCode = "BACKEND_REJECTED"
	CodeNoProcess          ErrorCode = "NO_PROCESS"
	CodeProcessAlreadyLive ErrorCode = "PROCESS_ALREADY_LIVE"
	CodeBreakpointFailed   ErrorCode = "BREAKPOINT_FAILED"
	CodeInvalidHandle      ErrorCode = "INVALID_HANDLE"

	// Registry errors
	CodeTargetNotFound     ErrorCode = "TARGET_NOT_FOUND"
	CodeTargetLimitReached ErrorCode = "TARGET_LIMIT_REACHED"

	// Adapter errors
	CodeAdapterNotSupported  ErrorCode = "ADAPTER_NOT_SUPPORTED"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// DAP protocol errors
	CodeDAPInitFailed    ErrorCode = "DAP_INIT_FAILED"
	CodeDAPLaunchFailed  ErrorCode = "DAP_LAUNCH_FAILED"
	CodeDAPAttachFailed  ErrorCode = "DAP_ATTACH_FAILED"
	CodeDAPTimeout       ErrorCode = "DAP_TIMEOUT"
	CodeDAPProtocolError ErrorCode = "DAP_PROTOCOL_ERROR"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Configuration errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	CodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Session Errors ---

// BackendRejected creates an error for a request the debugger refused
func BackendRejected(operation string, err error) *DebugError {
	msg := fmt.Sprintf("%s rejected by debugger", operation)
	if err != nil {
		msg = fmt.Sprintf("%s rejected by debugger: %v", operation, err)
	}
	return &DebugError{
		Code:    CodeBackendRejected,
		Message: msg,
		Hint:    "Check the process state first. Most control requests require a live process, and some require it to be stopped.",
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NoProcess creates an error for requests that need a live process
func NoProcess(operation string) *DebugError {
	return &DebugError{
		Code:    CodeNoProcess,
		Message: fmt.Sprintf("%s requires a live process", operation),
		Hint:    "Launch or attach to a process first.",
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// ProcessAlreadyLive creates an error for a second launch or attach on a target
func ProcessAlreadyLive(pid int) *DebugError {
	return &DebugError{
		Code:    CodeProcessAlreadyLive,
		Message: fmt.Sprintf("target already has a live process (pid %d)", pid),
		Hint:    "Kill the current process or wait for it to exit before starting another one.",
		Details: map[string]interface{}{
			"pid": pid,
		},
	}
}

// BreakpointFailed creates an error for breakpoint failures
func BreakpointFailed(path string, line int, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointFailed,
		Message: fmt.Sprintf("could not set breakpoint at %s:%d", path, line),
		Hint:    fmt.Sprintf("Reason: %s. Ensure the file path is correct and the line number contains executable code (not comments or blank lines).", reason),
		Details: map[string]interface{}{
			"path":   path,
			"line":   line,
			"reason": reason,
		},
	}
}

// InvalidHandle creates an error for operations on a zero or released handle
func InvalidHandle(kind string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidHandle,
		Message: fmt.Sprintf("invalid %s handle", kind),
		Hint:    fmt.Sprintf("Obtain the %s from its target again; the handle is empty or was released.", kind),
		Details: map[string]interface{}{
			"kind": kind,
		},
	}
}

// --- Registry Errors ---

// TargetNotFound creates an error for when a target ID doesn't exist
func TargetNotFound(targetID string) *DebugError {
	return &DebugError{
		Code:    CodeTargetNotFound,
		Message: fmt.Sprintf("target '%s' not found", targetID),
		Hint:    "Use debug_list_targets to see loaded targets, or debug_load_target to create one.",
		Details: map[string]interface{}{
			"targetId": targetID,
		},
	}
}

// TargetLimitReached creates an error when max targets is reached
func TargetLimitReached(maxTargets int) *DebugError {
	return &DebugError{
		Code:    CodeTargetLimitReached,
		Message: fmt.Sprintf("maximum number of targets (%d) reached", maxTargets),
		Hint:    "Use debug_close_target to release an existing target before loading a new one.",
		Details: map[string]interface{}{
			"maxTargets": maxTargets,
		},
	}
}

// --- Adapter Errors ---

// AdapterNotSupported creates an error for unknown adapters
func AdapterNotSupported(adapter string, supported []string) *DebugError {
	return &DebugError{
		Code:    CodeAdapterNotSupported,
		Message: fmt.Sprintf("no debug adapter available for: %s", adapter),
		Hint:    fmt.Sprintf("Supported adapters are: %s.", strings.Join(supported, ", ")),
		Details: map[string]interface{}{
			"requestedAdapter":  adapter,
			"supportedAdapters": supported,
		},
	}
}

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(adapter string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter %s: %v", adapter, err),
		Hint:    "Ensure the debugger is installed. For Go: go install github.com/go-delve/delve/cmd/dlv@latest. For C/C++/Rust: install lldb-dap (LLVM 18+) or GDB 14+.",
		Cause:   err,
		Details: map[string]interface{}{
			"adapter": adapter,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed. Check that the program path is correct and the file exists.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- DAP Protocol Errors ---

// DAPInitFailed creates an error for DAP initialization failures
func DAPInitFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPInitFailed,
		Message: fmt.Sprintf("debug adapter initialization failed: %v", err),
		Hint:    "The debug adapter may be incompatible or crashed during startup. Close the target and load it again.",
		Cause:   err,
	}
}

// DAPLaunchFailed creates an error for launch failures
func DAPLaunchFailed(program string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPLaunchFailed,
		Message: fmt.Sprintf("failed to launch program: %v", err),
		Hint:    "Check that the program path is correct and the file exists. For compiled languages, ensure the program was built with debug information.",
		Cause:   err,
		Details: map[string]interface{}{
			"program": program,
		},
	}
}

// DAPAttachFailed creates an error for attach failures
func DAPAttachFailed(pid int, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPAttachFailed,
		Message: fmt.Sprintf("failed to attach to process %d: %v", pid, err),
		Hint:    "Ensure the process is running and that you have permission to trace it (ptrace_scope on Linux, developer mode on macOS).",
		Cause:   err,
		Details: map[string]interface{}{
			"pid": pid,
		},
	}
}

// DAPTimeout creates an error for DAP timeouts
func DAPTimeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeDAPTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "The debugger took too long to answer. The program may be stuck or the adapter may have hung. Try debug_pause, or close the target.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// DAPProtocolError creates an error for malformed or unexpected messages
func DAPProtocolError(detail string) *DebugError {
	return &DebugError{
		Code:    CodeDAPProtocolError,
		Message: fmt.Sprintf("debug adapter protocol error: %s", detail),
		Hint:    "The adapter sent a message that could not be handled. Check the adapter version.",
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for operations disabled by configuration
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "launch":
		hint = "The server is configured to disallow launching programs. Enable 'allowLaunch' in the configuration."
	case "attach":
		hint = "The server is configured to disallow attaching to processes. Enable 'allowAttach' in the configuration."
	case "kill":
		hint = "The server is configured to disallow killing processes. Enable 'allowKill' in the configuration."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Configuration Errors ---

// ConfigNotFound creates an error for missing launch.json configurations
func ConfigNotFound(configName string, availableConfigs []string) *DebugError {
	var hint string
	if len(availableConfigs) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(availableConfigs, ", "))
	} else {
		hint = "No configurations found in launch.json. Create a launch configuration first."
	}

	return &DebugError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": availableConfigs,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(configName, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", configName, reason),
		Hint:    "Check the file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"configName": configName,
			"reason":     reason,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
