package adapters

import (
	"context"
	"os/exec"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/dap"
)

// LLDBAdapter drives native programs through lldb-dap (formerly lldb-vscode).
type LLDBAdapter struct {
	lldbDapPath string
}

// NewLLDBAdapter creates a new LLDB adapter
func NewLLDBAdapter(cfg config.LLDBConfig) *LLDBAdapter {
	path := cfg.Path
	if path == "" {
		path = "lldb-dap"
	}

	return &LLDBAdapter{
		lldbDapPath: path,
	}
}

// Name implements dap.Connector
func (l *LLDBAdapter) Name() string {
	return "lldb"
}

// Connect starts lldb-dap and talks to it over its stdio.
func (l *LLDBAdapter) Connect(ctx context.Context, cfg backend.TargetConfig) (*dap.Client, *exec.Cmd, error) {
	// Auto REPL mode tells commands and expressions apart by heuristics.
	return spawnStdio(ctx, "lldb", l.lldbDapPath, []string{"--repl-mode=auto"}, cfg.Cwd)
}

// LaunchArgs builds the launch arguments for lldb-dap. lldb-dap takes the
// environment as a list of KEY=VALUE strings.
func (l *LLDBAdapter) LaunchArgs(cfg backend.TargetConfig, opts backend.LaunchOptions) map[string]interface{} {
	args := launchCommon(cfg, opts)
	if len(opts.Env) > 0 {
		args["env"] = envList(opts.Env)
	}
	return withExtra(args, cfg)
}

// AttachArgs builds the attach arguments for lldb-dap. The program path is
// passed along for symbol resolution.
func (l *LLDBAdapter) AttachArgs(cfg backend.TargetConfig, opts backend.AttachOptions) map[string]interface{} {
	args := map[string]interface{}{
		"pid":     opts.PID,
		"program": cfg.Program,
	}
	return withExtra(args, cfg)
}
