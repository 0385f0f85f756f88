package dap

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/logflags"
)

// ClientID is reported to adapters in the initialize request.
const ClientID = "debugify"

// Connector starts or dials one kind of debug adapter and knows how to phrase
// its launch and attach arguments.
type Connector interface {
	// Name is the adapter id sent in the initialize request.
	Name() string

	// Connect returns a client speaking to a fresh adapter instance. cmd is
	// the spawned adapter process, or nil when nothing was spawned.
	Connect(ctx context.Context, cfg backend.TargetConfig) (client *Client, cmd *exec.Cmd, err error)

	LaunchArgs(cfg backend.TargetConfig, opts backend.LaunchOptions) map[string]interface{}
	AttachArgs(cfg backend.TargetConfig, opts backend.AttachOptions) map[string]interface{}
}

// Resolver looks up the Connector for an adapter name.
type Resolver func(adapter string) (Connector, error)

// Backend implements backend.Backend on top of debug adapters.
type Backend struct {
	resolve Resolver
	timeout time.Duration
	log     *logrus.Entry
}

// NewBackend creates a backend that finds adapters through resolve. timeout
// bounds every request; zero selects DefaultRequestTimeout.
func NewBackend(resolve Resolver, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Backend{
		resolve: resolve,
		timeout: timeout,
		log:     logflags.DAPLogger(),
	}
}

// CreateTarget implements backend.Backend. No adapter is started until the
// target is launched or attached.
func (b *Backend) CreateTarget(cfg backend.TargetConfig) (backend.TargetHandle, error) {
	if cfg.Program == "" {
		return nil, errors.MissingParameter("program", "Path to the executable to debug")
	}
	conn, err := b.resolve(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	return &target{
		backend:   b,
		cfg:       cfg,
		connector: conn,
		log:       b.log.WithField("program", cfg.Program),
	}, nil
}

type target struct {
	backend   *Backend
	cfg       backend.TargetConfig
	connector Connector
	process   *process
	log       *logrus.Entry

	breakpoints []*breakpoint
	nextID      int

	modules       []*module
	sources       []string
	sourcesLoaded bool
}

func (t *target) Path() string {
	return t.cfg.Program
}

// live returns the process requests can be sent to, or nil.
func (t *target) live() *process {
	if t.process == nil || !t.process.usable() {
		return nil
	}
	return t.process
}

func (t *target) Launch(opts backend.LaunchOptions) (backend.ProcessHandle, error) {
	args := t.connector.LaunchArgs(t.cfg, opts)
	p, err := t.start(backend.StateLaunching, 0, func(c *Client) (<-chan dap.Message, error) {
		return c.LaunchAsync(args)
	})
	if err != nil {
		return nil, errors.DAPLaunchFailed(t.cfg.Program, err)
	}
	return p, nil
}

func (t *target) Attach(opts backend.AttachOptions) (backend.ProcessHandle, error) {
	args := t.connector.AttachArgs(t.cfg, opts)
	p, err := t.start(backend.StateAttaching, opts.PID, func(c *Client) (<-chan dap.Message, error) {
		return c.AttachAsync(args)
	})
	if err != nil {
		return nil, errors.DAPAttachFailed(opts.PID, err)
	}
	return p, nil
}

// start runs the adapter handshake: initialize, launch or attach, wait for
// initialized, send breakpoints, configurationDone, then wait for the launch
// or attach response.
func (t *target) start(initial backend.State, pid int, send func(*Client) (<-chan dap.Message, error)) (*process, error) {
	ctx := context.Background()
	client, cmd, err := t.connector.Connect(ctx, t.cfg)
	if err != nil {
		return nil, err
	}
	client.SetTimeout(t.backend.timeout)

	p := newProcess(t, client, cmd, initial, pid)
	client.SetMessageHandler(p.handleMessage)
	fail := func(err error) (*process, error) {
		if t.process == p {
			t.process = nil
		}
		p.shutdown()
		return nil, err
	}

	caps, err := client.Initialize(ctx, ClientID, t.connector.Name())
	if err != nil {
		return fail(fmt.Errorf("initialize: %w", err))
	}
	p.caps = caps

	respCh, err := send(client)
	if err != nil {
		return fail(err)
	}
	command := "launch"
	if initial == backend.StateAttaching {
		command = "attach"
	}

	// Some adapters fail the launch before sending initialized.
	timer := time.NewTimer(t.backend.timeout)
	defer timer.Stop()
	var answered bool
	initialized := client.Initialized()
	for initialized != nil {
		select {
		case <-initialized:
			initialized = nil
		case resp := <-respCh:
			if err := checkResponse(command, resp); err != nil {
				return fail(err)
			}
			answered = true
			respCh = nil
		case <-timer.C:
			return fail(errors.DAPTimeout("initialized", int(t.backend.timeout/time.Second)))
		case <-client.Done():
			return fail(ErrClosed)
		}
	}

	t.process = p
	for _, file := range t.breakpointFiles() {
		if err := t.syncFile(file); err != nil {
			t.log.Warnf("failed to set breakpoints in %s: %v", file, err)
		}
	}

	if err := client.ConfigurationDone(ctx); err != nil {
		return fail(err)
	}
	if !answered {
		if _, err := client.Wait(ctx, command, respCh); err != nil {
			return fail(err)
		}
	}

	t.log.WithField("state", initial).Debugf("%s complete", command)
	return p, nil
}

func (t *target) processClosed(p *process) {
	if t.process == p {
		t.process = nil
	}
}

func (t *target) NumModules() int {
	t.refreshModules()
	return len(t.modules)
}

func (t *target) ModuleAt(i int) backend.ModuleHandle {
	return t.modules[i]
}

// refreshModules rebuilds the module list. Without modules support the
// program itself is the only module.
func (t *target) refreshModules() {
	t.sources = nil
	t.sourcesLoaded = false
	t.modules = t.modules[:0]

	if p := t.live(); p != nil && p.caps.SupportsModulesRequest {
		mods, err := p.client.Modules(context.Background())
		if err != nil {
			t.log.Warnf("modules request failed: %v", err)
		}
		for _, m := range mods {
			path := m.Path
			if path == "" {
				path = m.Name
			}
			t.modules = append(t.modules, &module{t: t, path: path})
		}
	}
	if len(t.modules) == 0 {
		t.modules = append(t.modules, &module{t: t, path: t.cfg.Program})
	}

	main := 0
	for i, m := range t.modules {
		if samePath(m.path, t.cfg.Program) {
			main = i
			break
		}
	}
	t.modules[main].main = true
}

// loadedSources returns every source file the adapter reported, fetched once
// per module refresh.
func (t *target) loadedSources() []string {
	if t.sourcesLoaded {
		return t.sources
	}
	t.sourcesLoaded = true

	p := t.live()
	if p == nil || !p.caps.SupportsLoadedSourcesRequest {
		return nil
	}
	sources, err := p.client.LoadedSources(context.Background())
	if err != nil {
		t.log.Warnf("loadedSources request failed: %v", err)
		return nil
	}
	for _, s := range sources {
		if s.Path != "" {
			t.sources = append(t.sources, s.Path)
		}
	}
	return t.sources
}

func (t *target) CreateBreakpoint(file string, line int) (backend.BreakpointHandle, error) {
	if file == "" {
		return nil, errors.MissingParameter("file", "Source file of the breakpoint")
	}
	if line <= 0 {
		return nil, errors.InvalidParameter("line", line, "a positive line number")
	}

	t.nextID++
	bp := &breakpoint{
		t:       t,
		id:      t.nextID,
		file:    filepath.Clean(file),
		line:    line,
		enabled: true,
	}
	t.breakpoints = append(t.breakpoints, bp)

	if err := t.syncFile(bp.file); err != nil {
		t.breakpoints = t.breakpoints[:len(t.breakpoints)-1]
		return nil, err
	}
	return bp, nil
}

func (t *target) DeleteBreakpoint(h backend.BreakpointHandle) error {
	bp, ok := h.(*breakpoint)
	if !ok || bp.t != t {
		return fmt.Errorf("breakpoint does not belong to this target")
	}
	for i, other := range t.breakpoints {
		if other != bp {
			continue
		}
		t.breakpoints = append(t.breakpoints[:i], t.breakpoints[i+1:]...)
		if err := t.syncFile(bp.file); err != nil {
			t.breakpoints = append(t.breakpoints[:i], append([]*breakpoint{bp}, t.breakpoints[i:]...)...)
			return err
		}
		bp.locations = nil
		return nil
	}
	return fmt.Errorf("breakpoint %d not found", bp.id)
}

func (t *target) breakpointFiles() []string {
	var files []string
	seen := make(map[string]bool)
	for _, bp := range t.breakpoints {
		if !seen[bp.file] {
			seen[bp.file] = true
			files = append(files, bp.file)
		}
	}
	return files
}

// syncFile sends the enabled breakpoints of one file. The adapter replaces
// every breakpoint of the file, and answers in request order.
func (t *target) syncFile(file string) error {
	var enabled []*breakpoint
	var lines []int
	for _, bp := range t.breakpoints {
		if bp.file != file {
			continue
		}
		if !bp.enabled {
			bp.dapID = 0
			bp.locations = nil
			continue
		}
		enabled = append(enabled, bp)
		lines = append(lines, bp.line)
	}

	p := t.live()
	if p == nil {
		return nil
	}
	results, err := p.client.SetBreakpoints(context.Background(), file, lines)
	if err != nil {
		return err
	}
	for i, bp := range enabled {
		if i < len(results) {
			bp.apply(results[i])
		} else {
			bp.dapID = 0
			bp.locations = nil
		}
	}
	return nil
}

func (t *target) breakpointByDAPID(id int) *breakpoint {
	if id == 0 {
		return nil
	}
	for _, bp := range t.breakpoints {
		if bp.dapID == id {
			return bp
		}
	}
	return nil
}

func (t *target) Close() error {
	if t.process != nil {
		t.process.Close()
	}
	t.breakpoints = nil
	t.modules = nil
	return nil
}

type breakpoint struct {
	t       *target
	id      int
	file    string
	line    int
	enabled bool

	dapID     int
	locations []backend.LocationInfo
}

func (bp *breakpoint) ID() int       { return bp.id }
func (bp *breakpoint) Enabled() bool { return bp.enabled }

func (bp *breakpoint) SetEnabled(enabled bool) error {
	if bp.enabled == enabled {
		return nil
	}
	bp.enabled = enabled
	if err := bp.t.syncFile(bp.file); err != nil {
		bp.enabled = !enabled
		return err
	}
	return nil
}

func (bp *breakpoint) NumLocations() int {
	return len(bp.locations)
}

func (bp *breakpoint) LocationAt(i int) backend.LocationInfo {
	return bp.locations[i]
}

// apply records the adapter's answer for this breakpoint. A verified
// breakpoint has exactly one location.
func (bp *breakpoint) apply(result dap.Breakpoint) {
	bp.dapID = result.Id
	if !result.Verified {
		bp.locations = nil
		return
	}
	line := result.Line
	if line == 0 {
		line = bp.line
	}
	bp.locations = []backend.LocationInfo{{
		ID:       result.Id,
		File:     bp.file,
		Line:     line,
		Resolved: true,
	}}
}

type module struct {
	t    *target
	path string
	main bool
}

func (m *module) Path() string {
	return m.path
}

// SourceFiles attributes loaded sources to modules. The main module owns every
// source; other modules own the sources under their directory.
func (m *module) SourceFiles() []string {
	all := m.t.loadedSources()
	if m.main {
		return append([]string(nil), all...)
	}
	dir := filepath.Dir(m.path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	prefix := dir + string(filepath.Separator)
	var files []string
	for _, f := range all {
		if strings.HasPrefix(f, prefix) {
			files = append(files, f)
		}
	}
	return files
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
