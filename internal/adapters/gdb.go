package adapters

import (
	"context"
	"os/exec"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/dap"
)

// GDBAdapter drives native programs through GDB's built-in DAP interpreter.
// Requires GDB 14.1 or later.
type GDBAdapter struct {
	gdbPath string
}

// NewGDBAdapter creates a new GDB adapter
func NewGDBAdapter(cfg config.GDBConfig) *GDBAdapter {
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}

	return &GDBAdapter{
		gdbPath: path,
	}
}

// Name implements dap.Connector
func (g *GDBAdapter) Name() string {
	return "gdb"
}

// Connect starts gdb in DAP mode and talks to it over its stdio.
func (g *GDBAdapter) Connect(ctx context.Context, cfg backend.TargetConfig) (*dap.Client, *exec.Cmd, error) {
	gdbArgs := []string{
		"--interpreter=dap",
		"--eval-command", "set print pretty on",
		// Startup banners would corrupt the DAP stream
		"--quiet",
	}
	return spawnStdio(ctx, "gdb", g.gdbPath, gdbArgs, cfg.Cwd)
}

// LaunchArgs builds the launch arguments for GDB
func (g *GDBAdapter) LaunchArgs(cfg backend.TargetConfig, opts backend.LaunchOptions) map[string]interface{} {
	args := launchCommon(cfg, opts)
	if len(opts.Env) > 0 {
		args["env"] = envMap(opts.Env)
	}
	return withExtra(args, cfg)
}

// AttachArgs builds the attach arguments for GDB
func (g *GDBAdapter) AttachArgs(cfg backend.TargetConfig, opts backend.AttachOptions) map[string]interface{} {
	args := map[string]interface{}{
		"pid":     opts.PID,
		"program": cfg.Program,
	}
	return withExtra(args, cfg)
}
