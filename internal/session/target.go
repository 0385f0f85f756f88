// Package session is the debugger session object model: targets, processes,
// threads, frames, breakpoints and modules over an abstract backend.
//
// Everything in this package must be used from a single goroutine, the debug
// context (see internal/pump). No locks are taken. Data that has to cross to
// another goroutine is copied out with the Snapshot methods first.
package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/logflags"
	"github.com/ctagard/debugify/internal/notify"
)

// DefaultOutputChunkSize is the read size used when draining output.
const DefaultOutputChunkSize = 256

// Option configures a Target.
type Option func(*Target)

// WithOutputChunkSize sets the buffer size used by Process.GetOutputs.
func WithOutputChunkSize(n int) Option {
	return func(t *Target) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithLogger replaces the session layer logger.
func WithLogger(log *logrus.Entry) Option {
	return func(t *Target) {
		if log != nil {
			t.log = log
		}
	}
}

// Target is one debug target: an executable plus its launch parameters. It
// owns the module cache and the breakpoints, and creates processes.
type Target struct {
	handle backend.TargetHandle
	cfg    backend.TargetConfig

	process *Process
	subs    []notify.Subscription

	modules      []*Module
	modulesValid bool

	breakpoints []backend.BreakpointHandle

	modulesChanged     notify.Notifier[struct{}]
	breakpointsChanged notify.Notifier[int]
	processCreated     notify.Notifier[*Process]

	chunkSize int
	log       *logrus.Entry
}

// NewTarget creates a target on b. The first call also checks the backend
// state mapping and fails if it is inconsistent.
func NewTarget(b backend.Backend, cfg backend.TargetConfig, opts ...Option) (*Target, error) {
	if err := verifyStateMappingOnce(); err != nil {
		return nil, fmt.Errorf("state mapping: %w", err)
	}

	h, err := b.CreateTarget(cfg)
	if err != nil {
		return nil, err
	}

	t := &Target{
		handle:    h,
		cfg:       cfg,
		chunkSize: DefaultOutputChunkSize,
		log:       logflags.SessionLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithField("target", h.Path())
	return t, nil
}

// Path returns the executable path.
func (t *Target) Path() string {
	if t.handle == nil {
		return t.cfg.Program
	}
	return t.handle.Path()
}

// Config returns the configuration the target was created with.
func (t *Target) Config() backend.TargetConfig {
	return t.cfg
}

// Process returns the current process, or nil.
func (t *Target) Process() *Process {
	return t.process
}

// ModulesChanged fires after the module cache was invalidated by the live
// process loading or unloading an image.
func (t *Target) ModulesChanged() *notify.Notifier[struct{}] { return &t.modulesChanged }

// BreakpointsChanged fires with a breakpoint id when a breakpoint is added,
// removed, toggled, or re-resolved by the backend.
func (t *Target) BreakpointsChanged() *notify.Notifier[int] { return &t.breakpointsChanged }

// ProcessCreated fires after Launch or Attach produced a new process.
func (t *Target) ProcessCreated() *notify.Notifier[*Process] { return &t.processCreated }

func (t *Target) checkStart() (Result, bool) {
	if t.handle == nil {
		return failed(errors.InvalidHandle("target")), false
	}
	if t.process != nil {
		if t.process.CurrentState().IsLive() {
			return failed(errors.ProcessAlreadyLive(t.process.ProcessID())), false
		}
		t.process.Close()
	}
	return succeeded, true
}

// Launch starts the executable under the debugger.
func (t *Target) Launch(opts backend.LaunchOptions) (*Process, Result) {
	if res, ok := t.checkStart(); !ok {
		return nil, res
	}
	h, err := t.handle.Launch(opts)
	if err != nil {
		return nil, rejected("launch", err)
	}
	return t.adopt(h), succeeded
}

// Attach connects to a running process.
func (t *Target) Attach(opts backend.AttachOptions) (*Process, Result) {
	if res, ok := t.checkStart(); !ok {
		return nil, res
	}
	h, err := t.handle.Attach(opts)
	if err != nil {
		return nil, rejected("attach", err)
	}
	return t.adopt(h), succeeded
}

func (t *Target) adopt(h backend.ProcessHandle) *Process {
	p := newProcess(t, h)
	t.process = p
	t.subs = append(t.subs,
		p.ModulesChanged().ListenFunc(func() {
			t.InvalidateModules()
			t.modulesChanged.Fire(struct{}{})
		}),
		p.BreakpointsChanged().Listen(func(id int) {
			t.breakpointsChanged.Fire(id)
		}),
	)
	// A new process maps a new set of images.
	t.InvalidateModules()
	t.log.Debugf("process %d created in state %s", p.ProcessID(), p.CurrentState())
	t.processCreated.Fire(p)
	return p
}

func (t *Target) processClosed(p *Process) {
	if t.process != p {
		return
	}
	for _, s := range t.subs {
		s.Cancel()
	}
	t.subs = nil
	t.process = nil
}

// InvalidateModules marks the module cache stale. The next access rebuilds it.
func (t *Target) InvalidateModules() {
	t.modulesValid = false
}

func (t *Target) ensureModules() {
	if t.modulesValid {
		return
	}
	for _, m := range t.modules {
		m.stale = true
	}
	t.modules = nil
	if t.handle != nil {
		n := t.handle.NumModules()
		t.modules = make([]*Module, 0, n)
		for i := 0; i < n; i++ {
			t.modules = append(t.modules, newModule(t, t.handle.ModuleAt(i)))
		}
	}
	t.modulesValid = true
}

// ModuleCount returns the number of loaded modules.
func (t *Target) ModuleCount() int {
	t.ensureModules()
	return len(t.modules)
}

// ModuleAt returns the module at index i.
func (t *Target) ModuleAt(i int) *Module {
	t.ensureModules()
	if i < 0 || i >= len(t.modules) {
		panic(fmt.Sprintf("session: module index %d out of range [0,%d)", i, len(t.modules)))
	}
	return t.modules[i]
}

// Modules returns the cached module list.
func (t *Target) Modules() []*Module {
	t.ensureModules()
	return append([]*Module(nil), t.modules...)
}

// AddBreakpoint creates a breakpoint at file:line. A line with no code still
// yields a valid breakpoint, with zero locations.
func (t *Target) AddBreakpoint(file string, line int) (Breakpoint, Result) {
	if t.handle == nil {
		return Breakpoint{}, failed(errors.InvalidHandle("target"))
	}
	h, err := t.handle.CreateBreakpoint(file, line)
	if err != nil {
		return Breakpoint{}, failed(errors.BreakpointFailed(file, line, err.Error()).WithCause(err))
	}
	t.breakpoints = append(t.breakpoints, h)
	t.breakpointsChanged.Fire(h.ID())
	return newBreakpoint(t, h), succeeded
}

// RemoveBreakpoint deletes bp from the backend. Copies of bp become stale.
func (t *Target) RemoveBreakpoint(bp Breakpoint) Result {
	if !bp.IsValid() || bp.target != t || t.handle == nil {
		return failed(errors.InvalidHandle("breakpoint"))
	}
	for i, h := range t.breakpoints {
		if h != bp.handle {
			continue
		}
		if err := t.handle.DeleteBreakpoint(h); err != nil {
			return rejected("remove breakpoint", err)
		}
		t.breakpoints = append(t.breakpoints[:i], t.breakpoints[i+1:]...)
		t.breakpointsChanged.Fire(h.ID())
		return succeeded
	}
	return failed(errors.InvalidHandle("breakpoint"))
}

func (t *Target) owns(h backend.BreakpointHandle) bool {
	for _, cur := range t.breakpoints {
		if cur == h {
			return true
		}
	}
	return false
}

// BreakpointCount returns the number of breakpoints.
func (t *Target) BreakpointCount() int {
	return len(t.breakpoints)
}

// BreakpointAt returns the breakpoint at index i.
func (t *Target) BreakpointAt(i int) Breakpoint {
	if i < 0 || i >= len(t.breakpoints) {
		panic(fmt.Sprintf("session: breakpoint index %d out of range [0,%d)", i, len(t.breakpoints)))
	}
	return newBreakpoint(t, t.breakpoints[i])
}

// Breakpoints returns every breakpoint in creation order.
func (t *Target) Breakpoints() []Breakpoint {
	bps := make([]Breakpoint, len(t.breakpoints))
	for i, h := range t.breakpoints {
		bps[i] = newBreakpoint(t, h)
	}
	return bps
}

// BreakpointByID returns the breakpoint with the given id.
func (t *Target) BreakpointByID(id int) (Breakpoint, bool) {
	for _, h := range t.breakpoints {
		if h.ID() == id {
			return newBreakpoint(t, h), true
		}
	}
	return Breakpoint{}, false
}

// FindBreakpoint returns the first breakpoint with a location at file:line,
// together with that location.
func (t *Target) FindBreakpoint(file string, line int) (Breakpoint, BreakpointLocation, bool) {
	for _, h := range t.breakpoints {
		bp := newBreakpoint(t, h)
		if loc, ok := bp.FindLocation(file, line); ok {
			return bp, loc, true
		}
	}
	return Breakpoint{}, BreakpointLocation{}, false
}

// Close releases the process, the backend target and every notifier.
func (t *Target) Close() {
	if t.process != nil {
		t.process.Close()
	}
	t.modulesChanged.Clear()
	t.breakpointsChanged.Clear()
	t.processCreated.Clear()
	for _, m := range t.modules {
		m.stale = true
	}
	t.modules = nil
	t.modulesValid = false
	t.breakpoints = nil
	if t.handle != nil {
		if err := t.handle.Close(); err != nil {
			t.log.Warnf("closing target failed: %v", err)
		}
		t.handle = nil
	}
}

// IsClosed reports whether Close has been called.
func (t *Target) IsClosed() bool {
	return t.handle == nil
}
