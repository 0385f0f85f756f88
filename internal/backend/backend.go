// Package backend declares the capability set the session layer consumes
// from a native debugging service.
//
// Implementations own the real debugger connection (see internal/dap). The
// session package wraps these handles and never lets them escape to
// consumers. Every method is called from the debug context only.
package backend

// State is the backend's native process state. Its ordering is owned by the
// backend and is translated into session.ProcessState by an explicit table.
type State int

const (
	StateUnknown State = iota
	StateIdle
	StateConnected
	StateAttaching
	StateLaunching
	StateRunning
	StateStepping
	StateStopped
	StateCrashed
	StateSuspended
	StateDetached
	StateExited
	StateGone
)

// AllStates lists every native state. The session layer checks its mapping
// table against this list once at startup.
func AllStates() []State {
	return []State{
		StateUnknown,
		StateIdle,
		StateConnected,
		StateAttaching,
		StateLaunching,
		StateRunning,
		StateStepping,
		StateStopped,
		StateCrashed,
		StateSuspended,
		StateDetached,
		StateExited,
		StateGone,
	}
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateAttaching:
		return "attaching"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateStepping:
		return "stepping"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	case StateSuspended:
		return "suspended"
	case StateDetached:
		return "detached"
	case StateExited:
		return "exited"
	case StateGone:
		return "gone"
	default:
		return "invalid"
	}
}

// EventKind classifies a queued backend event.
type EventKind int

const (
	// EventStateChanged carries a new process state.
	EventStateChanged EventKind = iota
	// EventStdout signals bytes are ready on the process's stdout.
	EventStdout
	// EventStderr signals bytes are ready on the process's stderr.
	EventStderr
	// EventModulesChanged signals a binary image was loaded or unloaded.
	EventModulesChanged
	// EventBreakpointChanged signals the backend added, moved, or removed a
	// breakpoint location.
	EventBreakpointChanged
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventModulesChanged:
		return "modules"
	case EventBreakpointChanged:
		return "breakpoint"
	default:
		return "unknown"
	}
}

// Event is one entry of the backend's event queue.
type Event struct {
	Kind EventKind
	// State is set for EventStateChanged.
	State State
	// BreakpointID is set for EventBreakpointChanged when the backend knows
	// which breakpoint changed.
	BreakpointID int
}

// OutputKind selects one of the debuggee's output streams.
type OutputKind int

const (
	OutputStdout OutputKind = iota
	OutputStderr
)

// String returns the stream name.
func (k OutputKind) String() string {
	if k == OutputStderr {
		return "stderr"
	}
	return "stdout"
}

// TargetConfig describes a debug target: an executable plus the adapter used
// to debug it.
type TargetConfig struct {
	Program string
	// Adapter names the debug adapter ("delve", "lldb", "gdb"). Backends
	// that only speak to one debugger ignore it.
	Adapter string
	Cwd     string
	// Extra is passed through to the adapter's launch or attach arguments.
	Extra map[string]interface{}
}

// LaunchOptions configure a launch.
type LaunchOptions struct {
	Args        []string
	Env         map[string]string
	Cwd         string
	StopOnEntry bool
}

// AttachOptions configure an attach.
type AttachOptions struct {
	PID int
}

// LocationInfo is the backend's view of one resolved breakpoint location.
type LocationInfo struct {
	ID       int
	File     string
	Line     int
	Resolved bool
}

// Backend creates targets.
type Backend interface {
	CreateTarget(cfg TargetConfig) (TargetHandle, error)
}

// TargetHandle is the backend's target object.
type TargetHandle interface {
	Path() string

	Launch(opts LaunchOptions) (ProcessHandle, error)
	Attach(opts AttachOptions) (ProcessHandle, error)

	NumModules() int
	ModuleAt(i int) ModuleHandle

	CreateBreakpoint(file string, line int) (BreakpointHandle, error)
	DeleteBreakpoint(bp BreakpointHandle) error

	Close() error
}

// ProcessHandle is the backend's live process object.
type ProcessHandle interface {
	ID() int
	State() State
	ExitStatus() int
	ExitDescription() string

	// ReadOutput copies up to len(p) pending bytes of the given stream into
	// p and returns how many were copied. It returns 0 when nothing is
	// pending. Reads may be partial.
	ReadOutput(kind OutputKind, p []byte) int

	Kill() error
	Stop() error
	Continue() error

	NumThreads() int
	ThreadAt(i int) ThreadHandle
	SelectedThread() ThreadHandle
	SetSelectedThread(t ThreadHandle) bool

	// NextEvent pops the oldest queued event. It never blocks.
	NextEvent() (Event, bool)

	// Close releases the connection to the process. It does not kill it.
	Close() error
}

// ThreadHandle is the backend's view of one thread at the last stop.
type ThreadHandle interface {
	ID() int
	Name() string

	NumFrames() int
	FrameAt(i int) FrameHandle
	SelectedFrame() FrameHandle
	SetSelectedFrame(f FrameHandle) bool

	StepInto() error
	StepOver() error
	StepOut() error
}

// FrameHandle is one entry of a thread's call stack.
type FrameHandle interface {
	Index() int
	FunctionName() string
	File() string
	Line() int
}

// ModuleHandle is one loaded binary image.
type ModuleHandle interface {
	Path() string
	SourceFiles() []string
}

// BreakpointHandle is one backend breakpoint definition.
type BreakpointHandle interface {
	ID() int
	Enabled() bool
	SetEnabled(enabled bool) error
	NumLocations() int
	LocationAt(i int) LocationInfo
}
