package dap

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/logflags"
)

// DefaultRequestTimeout bounds how long a request waits for its response.
const DefaultRequestTimeout = 10 * time.Second

// Client provides a high-level API for DAP operations
type Client struct {
	transport *Transport

	// Response handling
	pendingRequests map[int]chan dap.Message
	mu              sync.Mutex

	// handler sees every message after response routing, in wire order,
	// on the reader goroutine.
	handler func(dap.Message)

	// Capabilities from initialize response
	capabilities dap.Capabilities

	// Initialization synchronization
	initialized     chan struct{}
	initializedOnce sync.Once

	timeout time.Duration
	log     *logrus.Entry

	// Context for shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	readErr error
}

// NewClient creates a new DAP client with the given transport and starts
// reading from it.
func NewClient(transport *Transport) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:       transport,
		pendingRequests: make(map[int]chan dap.Message),
		initialized:     make(chan struct{}),
		timeout:         DefaultRequestTimeout,
		log:             logflags.DAPLogger(),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetMessageHandler sets the handler for incoming messages. Responses are
// passed to it as well, after the waiting request has been given its copy.
func (c *Client) SetMessageHandler(handler func(dap.Message)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Done is closed once the connection to the adapter is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			var decodeErr *dap.DecodeProtocolMessageFieldError
			if stderrors.As(err, &decodeErr) {
				// Custom commands and events are skipped; the frame was consumed.
				c.log.Debugf("skipping undecodable message: %v", err)
				continue
			}
			select {
			case <-c.ctx.Done():
			default:
				if !stderrors.Is(err, ErrClosed) {
					c.log.Warnf("DAP transport error, stopping read loop: %v", err)
				}
			}
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		if logflags.DAP() {
			c.log.Debugf("<- %T", msg)
		}
		c.handleMessage(msg)
	}
}

// handleMessage routes incoming messages to the appropriate handler
func (c *Client) handleMessage(msg dap.Message) {
	if _, ok := msg.(*dap.InitializedEvent); ok {
		c.initializedOnce.Do(func() {
			close(c.initialized)
		})
	}

	c.mu.Lock()
	if resp, ok := msg.(dap.ResponseMessage); ok {
		seq := resp.GetResponse().RequestSeq
		if ch, ok := c.pendingRequests[seq]; ok {
			ch <- msg
			delete(c.pendingRequests, seq)
		}
	}
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}

// Start assigns a sequence number to req, sends it and returns the channel its
// response will arrive on.
func (c *Client) Start(req dap.RequestMessage) (<-chan dap.Message, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	r := req.GetRequest()
	r.Seq = c.transport.NextSeq()
	r.Type = "request"

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[r.Seq] = respCh
	c.mu.Unlock()

	if logflags.DAP() {
		c.log.Debugf("-> %s (seq %d)", r.Command, r.Seq)
	}
	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pendingRequests, r.Seq)
		c.mu.Unlock()
		return nil, err
	}
	return respCh, nil
}

// Wait waits for a response started with Start and checks its success flag.
func (c *Client) Wait(ctx context.Context, command string, respCh <-chan dap.Message) (dap.Message, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return resp, checkResponse(command, resp)
	case <-timer.C:
		return nil, errors.DAPTimeout(command, int(c.timeout/time.Second))
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// The response may have been routed just before the connection dropped.
		select {
		case resp := <-respCh:
			return resp, checkResponse(command, resp)
		default:
		}
		return nil, ErrClosed
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// Call sends a request and waits for its response.
func (c *Client) Call(ctx context.Context, req dap.RequestMessage) (dap.Message, error) {
	command := req.GetRequest().Command
	respCh, err := c.Start(req)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, command, respCh)
}

func checkResponse(command string, msg dap.Message) error {
	resp, ok := msg.(dap.ResponseMessage)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", msg)
	}
	r := resp.GetResponse()
	if !r.Success {
		if r.Message == "" {
			return fmt.Errorf("%s failed", command)
		}
		return fmt.Errorf("%s failed: %s", command, r.Message)
	}
	return nil
}

func newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// Initialize sends the initialize request
func (c *Client) Initialize(ctx context.Context, clientID, adapterID string) (dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: newRequest("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:        clientID,
			ClientName:      clientID,
			AdapterID:       adapterID,
			Locale:          "en-US",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	}

	resp, err := c.Call(ctx, req)
	if err != nil {
		return dap.Capabilities{}, err
	}
	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return dap.Capabilities{}, fmt.Errorf("unexpected response type: %T", resp)
	}

	c.mu.Lock()
	c.capabilities = initResp.Body
	c.mu.Unlock()
	return initResp.Body, nil
}

// Capabilities returns the capabilities from the initialize response
func (c *Client) Capabilities() dap.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// Initialized is closed when the adapter sends the initialized event.
func (c *Client) Initialized() <-chan struct{} {
	return c.initialized
}

// LaunchAsync sends a launch request without waiting for the response, which
// some adapters only send after configurationDone.
func (c *Client) LaunchAsync(args map[string]interface{}) (<-chan dap.Message, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal launch args: %w", err)
	}
	return c.Start(&dap.LaunchRequest{Request: newRequest("launch"), Arguments: argsJSON})
}

// AttachAsync sends an attach request without waiting for the response.
func (c *Client) AttachAsync(args map[string]interface{}) (<-chan dap.Message, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach args: %w", err)
	}
	return c.Start(&dap.AttachRequest{Request: newRequest("attach"), Arguments: argsJSON})
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.Call(ctx, &dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})
	return err
}

// Disconnect ends the debug session
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request: newRequest("disconnect"),
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}
	_, err := c.Call(ctx, req)
	return err
}

// Terminate asks the adapter to end the debuggee gracefully
func (c *Client) Terminate(ctx context.Context) error {
	_, err := c.Call(ctx, &dap.TerminateRequest{Request: newRequest("terminate")})
	return err
}

// Threads gets all threads
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	resp, err := c.Call(ctx, &dap.ThreadsRequest{Request: newRequest("threads")})
	if err != nil {
		return nil, err
	}
	threadsResp, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return threadsResp.Body.Threads, nil
}

// StackTrace gets the stack trace for a thread. levels 0 means all frames.
func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request: newRequest("stackTrace"),
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	stackResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return stackResp.Body.StackFrames, nil
}

// SetBreakpoints replaces every breakpoint of a source file
func (c *Client) SetBreakpoints(ctx context.Context, path string, lines []int) ([]dap.Breakpoint, error) {
	bps := make([]dap.SourceBreakpoint, len(lines))
	for i, line := range lines {
		bps[i] = dap.SourceBreakpoint{Line: line}
	}
	req := &dap.SetBreakpointsRequest{
		Request: newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: path},
			Breakpoints: bps,
		},
	}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return bpResp.Body.Breakpoints, nil
}

// Continue continues execution
func (c *Client) Continue(ctx context.Context, threadID int) error {
	req := &dap.ContinueRequest{
		Request:   newRequest("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	_, err := c.Call(ctx, req)
	return err
}

// Next steps over
func (c *Client) Next(ctx context.Context, threadID int) error {
	req := &dap.NextRequest{
		Request:   newRequest("next"),
		Arguments: dap.NextArguments{ThreadId: threadID},
	}
	_, err := c.Call(ctx, req)
	return err
}

// StepIn steps into
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	req := &dap.StepInRequest{
		Request:   newRequest("stepIn"),
		Arguments: dap.StepInArguments{ThreadId: threadID},
	}
	_, err := c.Call(ctx, req)
	return err
}

// StepOut steps out
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	req := &dap.StepOutRequest{
		Request:   newRequest("stepOut"),
		Arguments: dap.StepOutArguments{ThreadId: threadID},
	}
	_, err := c.Call(ctx, req)
	return err
}

// Pause pauses execution
func (c *Client) Pause(ctx context.Context, threadID int) error {
	req := &dap.PauseRequest{
		Request:   newRequest("pause"),
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	_, err := c.Call(ctx, req)
	return err
}

// Modules gets loaded modules
func (c *Client) Modules(ctx context.Context) ([]dap.Module, error) {
	resp, err := c.Call(ctx, &dap.ModulesRequest{Request: newRequest("modules")})
	if err != nil {
		return nil, err
	}
	modulesResp, ok := resp.(*dap.ModulesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return modulesResp.Body.Modules, nil
}

// LoadedSources gets every source file the adapter knows about
func (c *Client) LoadedSources(ctx context.Context) ([]dap.Source, error) {
	resp, err := c.Call(ctx, &dap.LoadedSourcesRequest{Request: newRequest("loadedSources")})
	if err != nil {
		return nil, err
	}
	sourcesResp, ok := resp.(*dap.LoadedSourcesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return sourcesResp.Body.Sources, nil
}

// Close shuts down the client
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}
