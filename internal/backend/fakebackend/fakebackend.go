// Package fakebackend is an in-memory backend.Backend for tests.
//
// Tests script it directly: push events onto a process's queue, write output
// that is handed back in bounded partial reads, populate thread rosters,
// modules, and the locations a breakpoint resolves to.
package fakebackend

import (
	"errors"
	"fmt"

	"github.com/ctagard/debugify/internal/backend"
)

// ErrRejected is a generic backend refusal.
var ErrRejected = errors.New("request rejected by backend")

// Backend creates fake targets.
type Backend struct {
	Targets   []*Target
	CreateErr error
}

// New returns an empty fake backend.
func New() *Backend {
	return &Backend{}
}

// CreateTarget implements backend.Backend.
func (b *Backend) CreateTarget(cfg backend.TargetConfig) (backend.TargetHandle, error) {
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	t := &Target{
		Config:       cfg,
		InitialState: backend.StateLaunching,
	}
	b.Targets = append(b.Targets, t)
	return t, nil
}

// Last returns the most recently created target.
func (b *Backend) Last() *Target {
	if len(b.Targets) == 0 {
		return nil
	}
	return b.Targets[len(b.Targets)-1]
}

// Target is a fake backend target.
type Target struct {
	Config       backend.TargetConfig
	Modules      []*Module
	Breakpoints  []*Breakpoint
	Processes    []*Process
	InitialState backend.State

	LaunchErr error
	AttachErr error
	BreakErr  error

	// Resolve decides which locations a new breakpoint gets. When nil every
	// breakpoint resolves to exactly the requested file and line.
	Resolve func(file string, line int) []backend.LocationInfo

	// ModuleQueries counts calls to NumModules.
	ModuleQueries int
	Closed        bool

	nextBreakpointID int
	nextLocationID   int
}

// Path implements backend.TargetHandle.
func (t *Target) Path() string {
	return t.Config.Program
}

// AddModule appends a loaded module.
func (t *Target) AddModule(path string, files ...string) *Module {
	m := &Module{ModulePath: path, Files: files}
	t.Modules = append(t.Modules, m)
	return m
}

// Launch implements backend.TargetHandle.
func (t *Target) Launch(opts backend.LaunchOptions) (backend.ProcessHandle, error) {
	if t.LaunchErr != nil {
		return nil, t.LaunchErr
	}
	p := t.newProcess(t.InitialState)
	p.Launch = opts
	return p, nil
}

// Attach implements backend.TargetHandle.
func (t *Target) Attach(opts backend.AttachOptions) (backend.ProcessHandle, error) {
	if t.AttachErr != nil {
		return nil, t.AttachErr
	}
	p := t.newProcess(backend.StateAttaching)
	p.PID = opts.PID
	return p, nil
}

func (t *Target) newProcess(state backend.State) *Process {
	p := &Process{
		PID:   1000 + len(t.Processes),
		state: state,
	}
	t.Processes = append(t.Processes, p)
	return p
}

// LastProcess returns the most recently launched or attached process.
func (t *Target) LastProcess() *Process {
	if len(t.Processes) == 0 {
		return nil
	}
	return t.Processes[len(t.Processes)-1]
}

// NumModules implements backend.TargetHandle.
func (t *Target) NumModules() int {
	t.ModuleQueries++
	return len(t.Modules)
}

// ModuleAt implements backend.TargetHandle.
func (t *Target) ModuleAt(i int) backend.ModuleHandle {
	return t.Modules[i]
}

// CreateBreakpoint implements backend.TargetHandle.
func (t *Target) CreateBreakpoint(file string, line int) (backend.BreakpointHandle, error) {
	if t.BreakErr != nil {
		return nil, t.BreakErr
	}
	t.nextBreakpointID++
	bp := &Breakpoint{BreakpointID: t.nextBreakpointID, IsEnabled: true}

	if t.Resolve != nil {
		bp.Locations = t.Resolve(file, line)
	} else {
		t.nextLocationID++
		bp.Locations = []backend.LocationInfo{{
			ID:       t.nextLocationID,
			File:     file,
			Line:     line,
			Resolved: true,
		}}
	}

	t.Breakpoints = append(t.Breakpoints, bp)
	return bp, nil
}

// DeleteBreakpoint implements backend.TargetHandle.
func (t *Target) DeleteBreakpoint(h backend.BreakpointHandle) error {
	for i, bp := range t.Breakpoints {
		if bp == h {
			t.Breakpoints = append(t.Breakpoints[:i], t.Breakpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("breakpoint %d not found", h.ID())
}

// Close implements backend.TargetHandle.
func (t *Target) Close() error {
	t.Closed = true
	return nil
}

// Process is a fake debuggee.
type Process struct {
	PID      int
	Exit     int
	ExitDesc string
	Launch   backend.LaunchOptions

	Threads  []*Thread
	Selected int

	// MaxRead bounds how many bytes a single ReadOutput call returns. Zero
	// means unbounded.
	MaxRead int

	KillErr     error
	StopErr     error
	ContinueErr error

	// Calls records the control requests received, in order.
	Calls  []string
	Closed bool

	state  backend.State
	events []backend.Event
	stdout []byte
	stderr []byte
}

// SetState changes the live backend state without queuing an event.
func (p *Process) SetState(s backend.State) {
	p.state = s
}

// PushState advances the live state and queues a state event for it.
func (p *Process) PushState(states ...backend.State) {
	for _, s := range states {
		p.state = s
		p.events = append(p.events, backend.Event{Kind: backend.EventStateChanged, State: s})
	}
}

// Push queues raw events.
func (p *Process) Push(events ...backend.Event) {
	p.events = append(p.events, events...)
}

// WriteStdout appends to the stdout buffer and queues an output event.
func (p *Process) WriteStdout(s string) {
	p.stdout = append(p.stdout, s...)
	p.events = append(p.events, backend.Event{Kind: backend.EventStdout})
}

// WriteStderr appends to the stderr buffer and queues an output event.
func (p *Process) WriteStderr(s string) {
	p.stderr = append(p.stderr, s...)
	p.events = append(p.events, backend.Event{Kind: backend.EventStderr})
}

// Pending returns the number of queued events.
func (p *Process) Pending() int {
	return len(p.events)
}

// AddThread appends a thread with the given frames.
func (p *Process) AddThread(id int, name string, frames ...*Frame) *Thread {
	for i, f := range frames {
		f.Idx = i
	}
	th := &Thread{ThreadID: id, ThreadName: name, Frames: frames, process: p}
	p.Threads = append(p.Threads, th)
	return th
}

// ID implements backend.ProcessHandle.
func (p *Process) ID() int { return p.PID }

// State implements backend.ProcessHandle.
func (p *Process) State() backend.State { return p.state }

// ExitStatus implements backend.ProcessHandle.
func (p *Process) ExitStatus() int { return p.Exit }

// ExitDescription implements backend.ProcessHandle.
func (p *Process) ExitDescription() string { return p.ExitDesc }

// ReadOutput implements backend.ProcessHandle.
func (p *Process) ReadOutput(kind backend.OutputKind, buf []byte) int {
	src := &p.stdout
	if kind == backend.OutputStderr {
		src = &p.stderr
	}

	n := len(buf)
	if p.MaxRead > 0 && n > p.MaxRead {
		n = p.MaxRead
	}
	n = copy(buf[:n], *src)
	*src = (*src)[n:]
	return n
}

// Kill implements backend.ProcessHandle.
func (p *Process) Kill() error {
	p.Calls = append(p.Calls, "kill")
	return p.KillErr
}

// Stop implements backend.ProcessHandle.
func (p *Process) Stop() error {
	p.Calls = append(p.Calls, "stop")
	return p.StopErr
}

// Continue implements backend.ProcessHandle.
func (p *Process) Continue() error {
	p.Calls = append(p.Calls, "continue")
	return p.ContinueErr
}

// NumThreads implements backend.ProcessHandle.
func (p *Process) NumThreads() int { return len(p.Threads) }

// ThreadAt implements backend.ProcessHandle.
func (p *Process) ThreadAt(i int) backend.ThreadHandle { return p.Threads[i] }

// SelectedThread implements backend.ProcessHandle.
func (p *Process) SelectedThread() backend.ThreadHandle {
	if p.Selected < 0 || p.Selected >= len(p.Threads) {
		return nil
	}
	return p.Threads[p.Selected]
}

// SetSelectedThread implements backend.ProcessHandle.
func (p *Process) SetSelectedThread(t backend.ThreadHandle) bool {
	for i, th := range p.Threads {
		if th.ThreadID == t.ID() {
			p.Selected = i
			return true
		}
	}
	return false
}

// NextEvent implements backend.ProcessHandle.
func (p *Process) NextEvent() (backend.Event, bool) {
	if len(p.events) == 0 {
		return backend.Event{}, false
	}
	ev := p.events[0]
	p.events = p.events[1:]
	return ev, true
}

// Close implements backend.ProcessHandle.
func (p *Process) Close() error {
	p.Closed = true
	return nil
}

// Thread is a fake thread.
type Thread struct {
	ThreadID   int
	ThreadName string
	Frames     []*Frame
	Selected   int
	StepErr    error

	process *Process
}

// ID implements backend.ThreadHandle.
func (t *Thread) ID() int { return t.ThreadID }

// Name implements backend.ThreadHandle.
func (t *Thread) Name() string { return t.ThreadName }

// NumFrames implements backend.ThreadHandle.
func (t *Thread) NumFrames() int { return len(t.Frames) }

// FrameAt implements backend.ThreadHandle.
func (t *Thread) FrameAt(i int) backend.FrameHandle { return t.Frames[i] }

// SelectedFrame implements backend.ThreadHandle.
func (t *Thread) SelectedFrame() backend.FrameHandle {
	if t.Selected < 0 || t.Selected >= len(t.Frames) {
		return nil
	}
	return t.Frames[t.Selected]
}

// SetSelectedFrame implements backend.ThreadHandle.
func (t *Thread) SetSelectedFrame(f backend.FrameHandle) bool {
	if f.Index() < 0 || f.Index() >= len(t.Frames) {
		return false
	}
	t.Selected = f.Index()
	return true
}

func (t *Thread) step(kind string) error {
	if t.process != nil {
		t.process.Calls = append(t.process.Calls, fmt.Sprintf("%s:%d", kind, t.ThreadID))
	}
	return t.StepErr
}

// StepInto implements backend.ThreadHandle.
func (t *Thread) StepInto() error { return t.step("stepInto") }

// StepOver implements backend.ThreadHandle.
func (t *Thread) StepOver() error { return t.step("stepOver") }

// StepOut implements backend.ThreadHandle.
func (t *Thread) StepOut() error { return t.step("stepOut") }

// Frame is a fake stack frame.
type Frame struct {
	Idx      int
	Function string
	Path     string
	LineNo   int
}

// Index implements backend.FrameHandle.
func (f *Frame) Index() int { return f.Idx }

// FunctionName implements backend.FrameHandle.
func (f *Frame) FunctionName() string { return f.Function }

// File implements backend.FrameHandle.
func (f *Frame) File() string { return f.Path }

// Line implements backend.FrameHandle.
func (f *Frame) Line() int { return f.LineNo }

// Module is a fake loaded image.
type Module struct {
	ModulePath string
	Files      []string
	// FileQueries counts calls to SourceFiles.
	FileQueries int
}

// Path implements backend.ModuleHandle.
func (m *Module) Path() string { return m.ModulePath }

// SourceFiles implements backend.ModuleHandle.
func (m *Module) SourceFiles() []string {
	m.FileQueries++
	return append([]string(nil), m.Files...)
}

// Breakpoint is a fake breakpoint.
type Breakpoint struct {
	BreakpointID int
	IsEnabled    bool
	Locations    []backend.LocationInfo
	EnableErr    error
}

// ID implements backend.BreakpointHandle.
func (b *Breakpoint) ID() int { return b.BreakpointID }

// Enabled implements backend.BreakpointHandle.
func (b *Breakpoint) Enabled() bool { return b.IsEnabled }

// SetEnabled implements backend.BreakpointHandle.
func (b *Breakpoint) SetEnabled(enabled bool) error {
	if b.EnableErr != nil {
		return b.EnableErr
	}
	b.IsEnabled = enabled
	return nil
}

// NumLocations implements backend.BreakpointHandle.
func (b *Breakpoint) NumLocations() int { return len(b.Locations) }

// LocationAt implements backend.BreakpointHandle.
func (b *Breakpoint) LocationAt(i int) backend.LocationInfo { return b.Locations[i] }
