package dap

import (
	"bufio"
	"context"
	"net"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/debugify/internal/backend"
)

// fakeAdapter is a scripted debug adapter on the far end of a net.Pipe.
type fakeAdapter struct {
	t    *testing.T
	caps dap.Capabilities

	// launchFails makes the launch response unsuccessful.
	launchFails bool
	// silent lists commands that never get a response.
	silent map[string]bool

	threads []dap.Thread
	frames  map[int][]dap.StackFrame
	modules []dap.Module
	sources []dap.Source

	mu         sync.Mutex
	conn       net.Conn
	seq        int
	commands   []string
	bpLines    map[string][]int
	nextBpID   int
	disconnect *dap.DisconnectArguments
}

func newFakeAdapter(t *testing.T) *fakeAdapter {
	return &fakeAdapter{
		t:       t,
		silent:  make(map[string]bool),
		bpLines: make(map[string][]int),
		threads: []dap.Thread{{Id: 1, Name: "main"}, {Id: 2, Name: "worker"}},
		frames: map[int][]dap.StackFrame{
			1: {
				{Id: 1000, Name: "main.compute", Line: 21, Source: &dap.Source{Path: "/work/compute.go"}},
				{Id: 1001, Name: "main.main", Line: 9, Source: &dap.Source{Path: "/work/main.go"}},
				{Id: 1002, Name: "runtime.goexit"},
			},
		},
	}
}

func (a *fakeAdapter) serve(conn net.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	r := bufio.NewReader(conn)
	for {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		a.handle(msg, req.GetRequest())
	}
}

func (a *fakeAdapter) nextSeq() int {
	a.seq++
	return a.seq
}

func (a *fakeAdapter) send(msg dap.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return
	}
	_ = dap.WriteProtocolMessage(a.conn, msg)
}

func (a *fakeAdapter) sendRaw(body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = dap.WriteBaseMessage(a.conn, []byte(body))
}

func (a *fakeAdapter) response(req *dap.Request) dap.Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: a.nextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Command:         req.Command,
		Success:         true,
	}
}

func (a *fakeAdapter) event(name string) dap.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: a.nextSeq(), Type: "event"},
		Event:           name,
	}
}

func (a *fakeAdapter) closeConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
	}
}

func (a *fakeAdapter) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.commands...)
}

func (a *fakeAdapter) lines(path string) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bpLines[path]
}

func (a *fakeAdapter) handle(msg dap.Message, req *dap.Request) {
	a.mu.Lock()
	a.commands = append(a.commands, req.Command)
	silent := a.silent[req.Command]
	a.mu.Unlock()
	if silent {
		return
	}

	switch m := msg.(type) {
	case *dap.InitializeRequest:
		a.send(&dap.InitializeResponse{Response: a.response(req), Body: a.caps})
		a.send(&dap.InitializedEvent{Event: a.event("initialized")})
	case *dap.LaunchRequest:
		a.send(&dap.ProcessEvent{Event: a.event("process"), Body: dap.ProcessEventBody{Name: "app", SystemProcessId: 4242}})
		resp := a.response(req)
		if a.launchFails {
			a.send(&dap.ErrorResponse{Response: failed(resp, "could not launch process: not an executable file")})
			return
		}
		a.send(&dap.LaunchResponse{Response: resp})
	case *dap.AttachRequest:
		a.send(&dap.AttachResponse{Response: a.response(req)})
	case *dap.SetBreakpointsRequest:
		var lines []int
		var bps []dap.Breakpoint
		a.mu.Lock()
		for _, sb := range m.Arguments.Breakpoints {
			lines = append(lines, sb.Line)
			a.nextBpID++
			bps = append(bps, dap.Breakpoint{Id: a.nextBpID, Verified: sb.Line < 100, Line: sb.Line})
		}
		a.bpLines[m.Arguments.Source.Path] = lines
		a.mu.Unlock()
		resp := &dap.SetBreakpointsResponse{Response: a.response(req)}
		resp.Body.Breakpoints = bps
		a.send(resp)
	case *dap.ConfigurationDoneRequest:
		a.send(&dap.ConfigurationDoneResponse{Response: a.response(req)})
	case *dap.ThreadsRequest:
		resp := &dap.ThreadsResponse{Response: a.response(req)}
		resp.Body.Threads = a.threads
		a.send(resp)
	case *dap.StackTraceRequest:
		resp := &dap.StackTraceResponse{Response: a.response(req)}
		resp.Body.StackFrames = a.frames[m.Arguments.ThreadId]
		resp.Body.TotalFrames = len(resp.Body.StackFrames)
		a.send(resp)
	case *dap.ContinueRequest:
		a.send(&dap.ContinueResponse{Response: a.response(req)})
	case *dap.NextRequest:
		a.send(&dap.NextResponse{Response: a.response(req)})
	case *dap.StepInRequest:
		a.send(&dap.StepInResponse{Response: a.response(req)})
	case *dap.StepOutRequest:
		a.send(&dap.StepOutResponse{Response: a.response(req)})
	case *dap.PauseRequest:
		a.send(&dap.PauseResponse{Response: a.response(req)})
	case *dap.ModulesRequest:
		resp := &dap.ModulesResponse{Response: a.response(req)}
		resp.Body.Modules = a.modules
		a.send(resp)
	case *dap.LoadedSourcesRequest:
		resp := &dap.LoadedSourcesResponse{Response: a.response(req)}
		resp.Body.Sources = a.sources
		a.send(resp)
	case *dap.TerminateRequest:
		a.send(&dap.TerminateResponse{Response: a.response(req)})
		a.send(&dap.TerminatedEvent{Event: a.event("terminated")})
	case *dap.DisconnectRequest:
		a.mu.Lock()
		a.disconnect = m.Arguments
		a.mu.Unlock()
		a.send(&dap.DisconnectResponse{Response: a.response(req)})
	default:
		a.send(&dap.ErrorResponse{Response: failed(a.response(req), "unsupported")})
	}
}

func failed(resp dap.Response, message string) dap.Response {
	resp.Success = false
	resp.Message = message
	return resp
}

// pipeConnector hands out clients wired to a fakeAdapter.
type pipeConnector struct {
	adapter *fakeAdapter
	err     error
}

func (c *pipeConnector) Name() string { return "fake" }

func (c *pipeConnector) Connect(ctx context.Context, cfg backend.TargetConfig) (*Client, *exec.Cmd, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	clientSide, adapterSide := net.Pipe()
	go c.adapter.serve(adapterSide)
	return NewClient(NewConnTransport(clientSide)), nil, nil
}

func (c *pipeConnector) LaunchArgs(cfg backend.TargetConfig, opts backend.LaunchOptions) map[string]interface{} {
	return map[string]interface{}{"program": cfg.Program, "stopOnEntry": opts.StopOnEntry}
}

func (c *pipeConnector) AttachArgs(cfg backend.TargetConfig, opts backend.AttachOptions) map[string]interface{} {
	return map[string]interface{}{"processId": opts.PID}
}

func newPipeBackend(a *fakeAdapter) *Backend {
	conn := &pipeConnector{adapter: a}
	return NewBackend(func(string) (Connector, error) { return conn, nil }, time.Second)
}

// nextEvents polls the process until cond accepts an event, returning every
// event seen on the way.
func nextEvents(t *testing.T, p backend.ProcessHandle, cond func(backend.Event) bool) []backend.Event {
	t.Helper()
	var seen []backend.Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok := p.NextEvent()
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		seen = append(seen, ev)
		if cond(ev) {
			return seen
		}
	}
	t.Fatalf("timed out waiting for event, saw %v", seen)
	return nil
}

func isState(s backend.State) func(backend.Event) bool {
	return func(ev backend.Event) bool {
		return ev.Kind == backend.EventStateChanged && ev.State == s
	}
}

func sleepBriefly() {
	time.Sleep(5 * time.Millisecond)
}
