package dap

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/backend"
)

// process is one adapter connection driving one debuggee.
//
// The client's reader goroutine only appends to queue. Everything else,
// including the state and output buffers, belongs to the debug context and
// changes when NextEvent translates a queued message.
type process struct {
	t      *target
	client *Client
	cmd    *exec.Cmd
	caps   dap.Capabilities
	log    *logrus.Entry

	mu    sync.Mutex
	queue []interface{}
	pid   int

	state    backend.State
	exitCode int
	exitDesc string
	stdout   bytes.Buffer
	stderr   bytes.Buffer

	selectedThread int
	selectedFrames map[int]int
	threads        []*thread
	threadsLoaded  bool

	disconnected bool
	closed       bool
}

func newProcess(t *target, client *Client, cmd *exec.Cmd, initial backend.State, pid int) *process {
	return &process{
		t:              t,
		client:         client,
		cmd:            cmd,
		log:            t.log,
		pid:            pid,
		state:          initial,
		selectedFrames: make(map[int]int),
	}
}

// handleMessage runs on the client's reader goroutine.
func (p *process) handleMessage(msg dap.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := msg.(*dap.ProcessEvent); ok && ev.Body.SystemProcessId != 0 {
		p.pid = ev.Body.SystemProcessId
	}
	p.queue = append(p.queue, msg)
}

// post queues an event produced on the debug context.
func (p *process) post(ev backend.Event) {
	p.mu.Lock()
	p.queue = append(p.queue, ev)
	p.mu.Unlock()
}

func (p *process) pop() (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	item := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return item, true
}

func (p *process) usable() bool {
	if p.closed || p.disconnected || p.state == backend.StateGone {
		return false
	}
	select {
	case <-p.client.Done():
		return false
	default:
		return true
	}
}

func (p *process) ID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *process) State() backend.State {
	return p.state
}

func (p *process) ExitStatus() int {
	return p.exitCode
}

func (p *process) ExitDescription() string {
	return p.exitDesc
}

func (p *process) ReadOutput(kind backend.OutputKind, buf []byte) int {
	src := &p.stdout
	if kind == backend.OutputStderr {
		src = &p.stderr
	}
	n, _ := src.Read(buf)
	return n
}

// NextEvent translates queued adapter messages until one yields an event.
// A dropped connection is reported once as StateGone.
func (p *process) NextEvent() (backend.Event, bool) {
	for {
		item, ok := p.pop()
		if !ok {
			break
		}
		if ev, ok := p.translate(item); ok {
			return ev, true
		}
	}

	if p.state != backend.StateGone && !p.closed {
		select {
		case <-p.client.Done():
			p.log.Debug("adapter connection lost")
			return p.setState(backend.StateGone)
		default:
		}
	}
	return backend.Event{}, false
}

func (p *process) setState(s backend.State) (backend.Event, bool) {
	p.state = s
	return backend.Event{Kind: backend.EventStateChanged, State: s}, true
}

// resumed forgets everything that is only valid while stopped.
func (p *process) resumed() {
	p.threads = nil
	p.threadsLoaded = false
	p.selectedFrames = make(map[int]int)
}

func succeeded(msg dap.Message) bool {
	resp, ok := msg.(dap.ResponseMessage)
	return ok && resp.GetResponse().Success
}

func (p *process) translate(item interface{}) (backend.Event, bool) {
	switch m := item.(type) {
	case backend.Event:
		return m, true

	case *dap.ConfigurationDoneResponse, *dap.ContinueResponse:
		if succeeded(m.(dap.Message)) {
			p.resumed()
			return p.setState(backend.StateRunning)
		}
	case *dap.NextResponse, *dap.StepInResponse, *dap.StepOutResponse:
		if succeeded(m.(dap.Message)) {
			p.resumed()
			return p.setState(backend.StateStepping)
		}

	case *dap.StoppedEvent:
		p.resumed()
		if m.Body.ThreadId != 0 {
			p.selectedThread = m.Body.ThreadId
		}
		if m.Body.Reason == "exception" {
			return p.setState(backend.StateCrashed)
		}
		return p.setState(backend.StateStopped)
	case *dap.ContinuedEvent:
		p.resumed()
		return p.setState(backend.StateRunning)
	case *dap.ExitedEvent:
		p.exitCode = m.Body.ExitCode
		p.exitDesc = fmt.Sprintf("exited with status %d", m.Body.ExitCode)
		return p.setState(backend.StateExited)
	case *dap.TerminatedEvent:
		return p.setState(backend.StateGone)

	case *dap.OutputEvent:
		switch m.Body.Category {
		case "", "console", "stdout":
			p.stdout.WriteString(m.Body.Output)
			return backend.Event{Kind: backend.EventStdout}, true
		case "stderr":
			p.stderr.WriteString(m.Body.Output)
			return backend.Event{Kind: backend.EventStderr}, true
		}

	case *dap.ModuleEvent, *dap.LoadedSourceEvent:
		return backend.Event{Kind: backend.EventModulesChanged}, true

	case *dap.BreakpointEvent:
		bp := p.t.breakpointByDAPID(m.Body.Breakpoint.Id)
		if bp == nil {
			return backend.Event{}, false
		}
		if m.Body.Reason == "removed" {
			bp.locations = nil
		} else {
			bp.apply(m.Body.Breakpoint)
		}
		return backend.Event{Kind: backend.EventBreakpointChanged, BreakpointID: bp.id}, true
	}
	return backend.Event{}, false
}

func (p *process) Kill() error {
	ctx := context.Background()
	if p.caps.SupportsTerminateRequest {
		return p.client.Terminate(ctx)
	}
	if err := p.client.Disconnect(ctx, true); err != nil {
		return err
	}
	p.disconnected = true
	return nil
}

func (p *process) Stop() error {
	return p.client.Pause(context.Background(), p.controlThread())
}

func (p *process) Continue() error {
	return p.client.Continue(context.Background(), p.controlThread())
}

// controlThread picks the thread id sent with pause and continue.
func (p *process) controlThread() int {
	if p.selectedThread != 0 {
		return p.selectedThread
	}
	if p.loadThreads(); len(p.threads) > 0 {
		return p.threads[0].id
	}
	return 1
}

func (p *process) loadThreads() {
	if p.threadsLoaded || !p.usable() {
		return
	}
	threads, err := p.client.Threads(context.Background())
	if err != nil {
		p.log.Debugf("threads request failed: %v", err)
		return
	}
	p.threadsLoaded = true
	p.threads = make([]*thread, len(threads))
	for i, th := range threads {
		p.threads[i] = &thread{p: p, id: th.Id, name: th.Name}
	}
}

func (p *process) NumThreads() int {
	p.loadThreads()
	return len(p.threads)
}

func (p *process) ThreadAt(i int) backend.ThreadHandle {
	p.loadThreads()
	return p.threads[i]
}

func (p *process) SelectedThread() backend.ThreadHandle {
	p.loadThreads()
	if len(p.threads) == 0 {
		return nil
	}
	for _, th := range p.threads {
		if th.id == p.selectedThread {
			return th
		}
	}
	return p.threads[0]
}

func (p *process) SetSelectedThread(h backend.ThreadHandle) bool {
	th, ok := h.(*thread)
	if !ok || th.p != p {
		return false
	}
	p.selectedThread = th.id
	return true
}

// shutdown drops the adapter without talking to it further.
func (p *process) shutdown() {
	p.closed = true
	if err := p.client.Close(); err != nil {
		p.log.Debugf("closing adapter connection: %v", err)
	}
	if p.cmd != nil {
		pid := 0
		if p.cmd.Process != nil {
			pid = p.cmd.Process.Pid
		}
		// Uses platform-specific implementation (process_unix.go / process_windows.go)
		if err := killProcessGroup(pid, p.cmd); err != nil {
			p.log.Warnf("failed to kill adapter process group %d: %v", pid, err)
		}
		go func(cmd *exec.Cmd) { _ = cmd.Wait() }(p.cmd)
	}
}

// Close detaches from the debuggee and stops the adapter. It does not kill
// the debuggee.
func (p *process) Close() error {
	if p.closed {
		return nil
	}
	if p.usable() {
		if err := p.client.Disconnect(context.Background(), false); err != nil {
			p.log.Warnf("failed to disconnect: %v (continuing cleanup)", err)
		}
		p.disconnected = true
		p.state = backend.StateDetached
	}
	p.shutdown()
	p.t.processClosed(p)
	return nil
}

type thread struct {
	p    *process
	id   int
	name string

	frames       []*frame
	framesLoaded bool
}

func (th *thread) ID() int      { return th.id }
func (th *thread) Name() string { return th.name }

func (th *thread) loadFrames() {
	if th.framesLoaded || !th.p.usable() {
		return
	}
	frames, err := th.p.client.StackTrace(context.Background(), th.id, 0, 0)
	if err != nil {
		th.p.log.Debugf("stackTrace for thread %d failed: %v", th.id, err)
		return
	}
	th.framesLoaded = true
	th.frames = make([]*frame, len(frames))
	for i, f := range frames {
		fr := &frame{th: th, index: i, function: f.Name, line: f.Line}
		if f.Source != nil {
			fr.file = f.Source.Path
		}
		th.frames[i] = fr
	}
}

func (th *thread) NumFrames() int {
	th.loadFrames()
	return len(th.frames)
}

func (th *thread) FrameAt(i int) backend.FrameHandle {
	th.loadFrames()
	return th.frames[i]
}

func (th *thread) SelectedFrame() backend.FrameHandle {
	th.loadFrames()
	if len(th.frames) == 0 {
		return nil
	}
	i := th.p.selectedFrames[th.id]
	if i >= len(th.frames) {
		i = 0
	}
	return th.frames[i]
}

func (th *thread) SetSelectedFrame(h backend.FrameHandle) bool {
	f, ok := h.(*frame)
	if !ok || f.th != th {
		return false
	}
	th.p.selectedFrames[th.id] = f.index
	return true
}

func (th *thread) StepInto() error {
	return th.p.client.StepIn(context.Background(), th.id)
}

func (th *thread) StepOver() error {
	return th.p.client.Next(context.Background(), th.id)
}

func (th *thread) StepOut() error {
	return th.p.client.StepOut(context.Background(), th.id)
}

type frame struct {
	th       *thread
	index    int
	function string
	file     string
	line     int
}

func (f *frame) Index() int           { return f.index }
func (f *frame) FunctionName() string { return f.function }
func (f *frame) File() string         { return f.file }
func (f *frame) Line() int            { return f.line }
