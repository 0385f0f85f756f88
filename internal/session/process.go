package session

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/notify"
	"github.com/ctagard/debugify/pkg/types"
)

// OutputKind selects one of the debuggee's output streams.
type OutputKind int

const (
	Stdout OutputKind = iota
	Stderr
)

func (k OutputKind) native() backend.OutputKind {
	if k == Stderr {
		return backend.OutputStderr
	}
	return backend.OutputStdout
}

// Process is one live debuggee and its lifecycle state machine.
//
// State is only ever changed by ProcessEvents, from events the backend
// queued. Control requests such as ContinueExecution report whether the
// backend accepted them and leave the state alone.
type Process struct {
	target *Target
	handle backend.ProcessHandle
	pid    int
	state  ProcessState

	chunkSize int
	log       *logrus.Entry

	stateChanged       notify.Notifier[ProcessState]
	ended              notify.Notifier[struct{}]
	outputAvailable    notify.Notifier[struct{}]
	errorAvailable     notify.Notifier[struct{}]
	modulesChanged     notify.Notifier[struct{}]
	breakpointsChanged notify.Notifier[int]
}

func newProcess(t *Target, h backend.ProcessHandle) *Process {
	return &Process{
		target:    t,
		handle:    h,
		pid:       h.ID(),
		state:     mapState(h.State()),
		chunkSize: t.chunkSize,
		log:       t.log.WithField("pid", h.ID()),
	}
}

// Target returns the target that created the process.
func (p *Process) Target() *Target {
	return p.target
}

// ProcessID returns the operating system process id. Backends may learn the
// id after launch, so it is read from the backend until the process is closed.
func (p *Process) ProcessID() int {
	if p.handle != nil {
		p.pid = p.handle.ID()
	}
	return p.pid
}

// CurrentState returns the last observed state. It never calls the backend.
func (p *Process) CurrentState() ProcessState {
	return p.state
}

// StateChanged fires with the new state whenever a drained event changes it.
func (p *Process) StateChanged() *notify.Notifier[ProcessState] { return &p.stateChanged }

// Ended fires once the process reaches Invalid, right after StateChanged.
func (p *Process) Ended() *notify.Notifier[struct{}] { return &p.ended }

// OutputAvailable fires when stdout has bytes ready.
func (p *Process) OutputAvailable() *notify.Notifier[struct{}] { return &p.outputAvailable }

// ErrorAvailable fires when stderr has bytes ready.
func (p *Process) ErrorAvailable() *notify.Notifier[struct{}] { return &p.errorAvailable }

// ModulesChanged fires when a binary image is loaded or unloaded.
func (p *Process) ModulesChanged() *notify.Notifier[struct{}] { return &p.modulesChanged }

// BreakpointsChanged fires with the id of a breakpoint whose locations the
// backend changed, or 0 when it did not say which.
func (p *Process) BreakpointsChanged() *notify.Notifier[int] { return &p.breakpointsChanged }

// ProcessEvents drains every queued backend event in order and fires the
// matching notifiers. It never blocks; with an empty queue it does nothing.
func (p *Process) ProcessEvents() {
	for p.handle != nil {
		ev, ok := p.handle.NextEvent()
		if !ok {
			return
		}
		p.dispatch(ev)
	}
}

func (p *Process) dispatch(ev backend.Event) {
	switch ev.Kind {
	case backend.EventStdout:
		p.outputAvailable.Fire(struct{}{})
	case backend.EventStderr:
		p.errorAvailable.Fire(struct{}{})
	case backend.EventStateChanged:
		// The payload is authoritative. Re-reading the backend here could
		// report a later state and skip this one.
		next := mapState(ev.State)
		if next == p.state {
			return
		}
		p.log.Debugf("state %s -> %s", p.state, next)
		p.state = next
		p.stateChanged.Fire(next)
		if next == Invalid {
			p.ended.Fire(struct{}{})
		}
	case backend.EventModulesChanged:
		p.modulesChanged.Fire(struct{}{})
	case backend.EventBreakpointChanged:
		p.breakpointsChanged.Fire(ev.BreakpointID)
	default:
		p.log.Warnf("ignoring unknown backend event %s", ev.Kind)
	}
}

// Kill asks the backend to terminate the debuggee.
func (p *Process) Kill() Result {
	if p.handle == nil {
		return failed(errors.NoProcess("kill"))
	}
	return rejected("kill", p.handle.Kill())
}

// PauseExecution asks the backend to interrupt the debuggee.
func (p *Process) PauseExecution() Result {
	if p.handle == nil {
		return failed(errors.NoProcess("pause"))
	}
	return rejected("pause", p.handle.Stop())
}

// ContinueExecution asks the backend to resume the debuggee.
func (p *Process) ContinueExecution() Result {
	if p.handle == nil {
		return failed(errors.NoProcess("continue"))
	}
	return rejected("continue", p.handle.Continue())
}

// GetOutput fills buf from the given stream and returns the number of bytes
// copied. It keeps reading until buf is full or the backend has nothing more.
func (p *Process) GetOutput(kind OutputKind, buf []byte) int {
	if p.handle == nil {
		return 0
	}
	n := 0
	for n < len(buf) {
		m := p.handle.ReadOutput(kind.native(), buf[n:])
		if m <= 0 {
			break
		}
		n += m
	}
	return n
}

// ReadAll drains everything pending on one stream.
func (p *Process) ReadAll(kind OutputKind) string {
	if p.handle == nil {
		return ""
	}
	var sb strings.Builder
	chunk := make([]byte, p.chunkSize)
	for {
		n := p.handle.ReadOutput(kind.native(), chunk)
		if n <= 0 {
			break
		}
		sb.Write(chunk[:n])
	}
	return sb.String()
}

// GetOutputs drains both streams.
func (p *Process) GetOutputs() (stdout, stderr string) {
	return p.ReadAll(Stdout), p.ReadAll(Stderr)
}

// ExitStatus returns the exit code once the process has exited, else 0.
func (p *Process) ExitStatus() int {
	if p.state != Exited || p.handle == nil {
		return 0
	}
	return p.handle.ExitStatus()
}

// ExitDescription returns the backend's exit description once the process
// has exited, else "".
func (p *Process) ExitDescription() string {
	if p.state != Exited || p.handle == nil {
		return ""
	}
	return p.handle.ExitDescription()
}

// ThreadCount returns the size of the live thread roster.
func (p *Process) ThreadCount() int {
	if p.handle == nil {
		return 0
	}
	return p.handle.NumThreads()
}

// ThreadAt returns the thread at index i of the live roster. The returned
// Thread is only meaningful until the process resumes.
func (p *Process) ThreadAt(i int) *Thread {
	n := p.ThreadCount()
	if i < 0 || i >= n {
		panic(fmt.Sprintf("session: thread index %d out of range [0,%d)", i, n))
	}
	return newThread(p, p.handle.ThreadAt(i))
}

// Threads returns the live thread roster.
func (p *Process) Threads() []*Thread {
	n := p.ThreadCount()
	threads := make([]*Thread, 0, n)
	for i := 0; i < n; i++ {
		threads = append(threads, newThread(p, p.handle.ThreadAt(i)))
	}
	return threads
}

// SelectedThread returns the backend's current thread, or nil.
func (p *Process) SelectedThread() *Thread {
	if p.handle == nil {
		return nil
	}
	h := p.handle.SelectedThread()
	if h == nil {
		return nil
	}
	return newThread(p, h)
}

// SelectedThreadIndex returns the roster index of the selected thread, or -1.
func (p *Process) SelectedThreadIndex() int {
	if p.handle == nil {
		return -1
	}
	sel := p.handle.SelectedThread()
	if sel == nil {
		return -1
	}
	for i, n := 0, p.handle.NumThreads(); i < n; i++ {
		if p.handle.ThreadAt(i).ID() == sel.ID() {
			return i
		}
	}
	return -1
}

// SelectThread makes t the current thread.
func (p *Process) SelectThread(t *Thread) bool {
	if t == nil || t.process != p || p.handle == nil {
		return false
	}
	return p.handle.SetSelectedThread(t.handle)
}

// Snapshot copies the process state out for use off the debug context.
func (p *Process) Snapshot() types.ProcessInfo {
	return types.ProcessInfo{
		PID:             p.ProcessID(),
		State:           p.state.String(),
		ExitStatus:      p.ExitStatus(),
		ExitDescription: p.ExitDescription(),
	}
}

func (p *Process) clearNotifiers() {
	p.stateChanged.Clear()
	p.ended.Clear()
	p.outputAvailable.Clear()
	p.errorAvailable.Clear()
	p.modulesChanged.Clear()
	p.breakpointsChanged.Clear()
}

// Close releases the process. A debuggee that is still live is killed on a
// best-effort basis first. Notifiers are detached before the backend handle is
// released, so nothing fires afterwards.
func (p *Process) Close() {
	if p.handle == nil {
		return
	}
	if p.state.IsLive() {
		if err := p.handle.Kill(); err != nil {
			p.log.Warnf("kill during close failed: %v", err)
		}
	}
	p.clearNotifiers()
	if err := p.handle.Close(); err != nil {
		p.log.Warnf("releasing process failed: %v", err)
	}
	p.handle = nil
	if p.target != nil {
		p.target.processClosed(p)
	}
}

// IsClosed reports whether Close has been called.
func (p *Process) IsClosed() bool {
	return p.handle == nil
}
