package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/dap"
	"github.com/ctagard/debugify/internal/errors"
)

// DelveAdapter drives Go programs through "dlv dap".
type DelveAdapter struct {
	dlvPath    string
	buildFlags string
}

// NewDelveAdapter creates a new Delve adapter
func NewDelveAdapter(cfg config.DelveConfig) *DelveAdapter {
	dlvPath := cfg.Path
	if dlvPath == "" {
		dlvPath = "dlv"
	}

	return &DelveAdapter{
		dlvPath:    dlvPath,
		buildFlags: cfg.BuildFlags,
	}
}

// Name implements dap.Connector
func (d *DelveAdapter) Name() string {
	return "go"
}

// Connect starts a Delve DAP server on a free port and dials it.
func (d *DelveAdapter) Connect(ctx context.Context, cfg backend.TargetConfig) (*dap.Client, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return nil, nil, errors.AdapterSpawnFailed("delve", fmt.Errorf("failed to find available port: %w", err))
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)

	dlvArgs := []string{"dap", "--listen", address}
	if d.buildFlags != "" {
		dlvArgs = append(dlvArgs, "--build-flags", d.buildFlags)
	}

	//nolint:gosec // G204: spawning the configured debugger is the point
	cmd := exec.CommandContext(ctx, d.dlvPath, dlvArgs...)
	cmd.Env = os.Environ()
	// No stdin: the MCP server owns ours.
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	cmd.Dir = cfg.Cwd
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, nil, errors.AdapterSpawnFailed("delve", err)
	}

	// 20 retries * 200ms = 4 seconds for dlv to start listening
	client, err := Dial(ctx, address, 20)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, nil, err
	}
	return client, cmd, nil
}

// LaunchArgs builds the launch arguments for Delve. Go sources and package
// directories are built in "debug" mode; anything else runs in "exec" mode.
func (d *DelveAdapter) LaunchArgs(cfg backend.TargetConfig, opts backend.LaunchOptions) map[string]interface{} {
	args := launchCommon(cfg, opts)
	args["mode"] = delveMode(cfg.Program)
	if args["mode"] == "debug" && d.buildFlags != "" {
		args["buildFlags"] = d.buildFlags
	}
	if len(opts.Env) > 0 {
		args["env"] = envMap(opts.Env)
	}
	return withExtra(args, cfg)
}

// AttachArgs builds the attach arguments for Delve
func (d *DelveAdapter) AttachArgs(cfg backend.TargetConfig, opts backend.AttachOptions) map[string]interface{} {
	args := map[string]interface{}{
		"mode":      "local",
		"processId": opts.PID,
	}
	return withExtra(args, cfg)
}

func delveMode(program string) string {
	if filepath.Ext(program) == ".go" {
		return "debug"
	}
	if info, err := os.Stat(program); err == nil && info.IsDir() {
		return "debug"
	}
	return "exec"
}
