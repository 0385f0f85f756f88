// Package adapters provides the debug adapters the DAP backend can drive.
//
// Each adapter implements dap.Connector: it spawns its debugger, connects a
// DAP client to it and phrases launch and attach arguments the way that
// debugger expects. Supported adapters:
//   - delve: Go, via "dlv dap" over TCP
//   - lldb: C, C++, Rust and Swift, via lldb-dap over stdio
//   - gdb: C, C++ and Rust, via "gdb --interpreter=dap" over stdio
//
// The Registry looks adapters up by name or language alias.
package adapters

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/dap"
	"github.com/ctagard/debugify/internal/errors"
)

// DefaultAdapter is used when a target does not name one.
const DefaultAdapter = "delve"

// Registry holds all registered adapters
type Registry struct {
	connectors map[string]dap.Connector
	primary    map[string]bool
	fallback   string
}

// NewRegistry creates a registry with every supported adapter
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		connectors: make(map[string]dap.Connector),
		primary:    make(map[string]bool),
		fallback:   DefaultAdapter,
	}

	r.Register("delve", NewDelveAdapter(cfg.Adapters.Go), "go", "dlv")
	// LLDB is preferred for native languages; gdb is available by name.
	r.Register("lldb", NewLLDBAdapter(cfg.Adapters.LLDB), "lldb-dap", "c", "cpp", "rust", "swift")
	r.Register("gdb", NewGDBAdapter(cfg.Adapters.GDB))

	return r
}

// Register adds an adapter under a name and optional aliases, replacing any
// adapter already registered under them.
func (r *Registry) Register(name string, c dap.Connector, aliases ...string) {
	r.connectors[name] = c
	r.primary[name] = true
	for _, alias := range aliases {
		r.connectors[alias] = c
	}
}

// SetDefault selects the adapter used for targets that name none.
func (r *Registry) SetDefault(name string) {
	r.fallback = name
}

// Get returns the adapter registered under name. An empty name selects the
// default adapter.
func (r *Registry) Get(name string) (dap.Connector, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.fallback
	}
	c, ok := r.connectors[key]
	if !ok {
		return nil, errors.AdapterNotSupported(name, r.Names())
	}
	return c, nil
}

// Names lists the registered adapter names, without aliases.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.primary))
	for name := range r.primary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend returns a DAP backend resolving adapters through this registry.
func (r *Registry) Backend(requestTimeout time.Duration) *dap.Backend {
	return dap.NewBackend(r.Get, requestTimeout)
}

// Dial connects a DAP client to address, retrying while the adapter starts.
func Dial(ctx context.Context, address string, maxRetries int) (*dap.Client, error) {
	var transport *dap.Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = dap.NewTCPTransport(address)
		if err == nil {
			return dap.NewClient(transport), nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.AdapterConnectFailed(address, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return nil, errors.AdapterConnectFailed(address, err)
}

// spawnStdio starts an adapter speaking DAP on its stdin and stdout.
func spawnStdio(ctx context.Context, name, path string, args []string, dir string) (*dap.Client, *exec.Cmd, error) {
	//nolint:gosec // G204: spawning the configured debugger is the point
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = os.Environ()
	cmd.Dir = dir
	// stderr is free for the adapter's diagnostics; stdout carries DAP.
	cmd.Stderr = os.Stderr
	// Platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, errors.AdapterSpawnFailed(name, fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, errors.AdapterSpawnFailed(name, fmt.Errorf("stdout pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, errors.AdapterSpawnFailed(name, err)
	}

	return dap.NewClient(dap.NewStdioTransport(stdin, stdout)), cmd, nil
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

func workingDir(cfg backend.TargetConfig, cwd string) string {
	if cwd != "" {
		return cwd
	}
	return cfg.Cwd
}

// withExtra copies adapter-specific settings from the target configuration
// into args without overriding anything already set.
func withExtra(args map[string]interface{}, cfg backend.TargetConfig) map[string]interface{} {
	for k, v := range cfg.Extra {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}
	return args
}

func envMap(env map[string]string) map[string]string {
	m := make(map[string]string, len(env))
	for k, v := range env {
		m[k] = v
	}
	return m
}

// envList renders env as sorted KEY=VALUE entries.
func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

func launchCommon(cfg backend.TargetConfig, opts backend.LaunchOptions) map[string]interface{} {
	args := map[string]interface{}{
		"program":     cfg.Program,
		"stopOnEntry": opts.StopOnEntry,
	}
	if len(opts.Args) > 0 {
		args["args"] = append([]string(nil), opts.Args...)
	}
	if cwd := workingDir(cfg, opts.Cwd); cwd != "" {
		args["cwd"] = cwd
	}
	return args
}
