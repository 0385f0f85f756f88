package launchconfig

import (
	"fmt"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
)

// Resolved is a configuration with every variable substituted, split into
// the pieces the session layer takes.
type Resolved struct {
	Name   string
	Target backend.TargetConfig
	Launch backend.LaunchOptions
	Attach backend.AttachOptions
	// IsAttach selects Attach over Launch.
	IsAttach bool
}

// Resolve substitutes variables in cfg and maps it onto a debug target.
func Resolve(cfg *DebugConfiguration, ctx *ResolutionContext) (*Resolved, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if err := ValidateConfiguration(cfg); err != nil {
		return nil, errors.ConfigInvalid(cfg.Name, err.Error())
	}
	adapter := cfg.Adapter()
	if adapter == "" {
		return nil, errors.ConfigInvalid(cfg.Name, fmt.Sprintf("unsupported debug type %q", cfg.Type))
	}

	program, err := ResolveVariables(cfg.Program, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve program: %w", err)
	}
	if program == "" {
		return nil, errors.ConfigInvalid(cfg.Name, "program is required")
	}
	cwd, err := ResolveVariables(cfg.Cwd, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cwd: %w", err)
	}
	args, err := ResolveStringSlice(cfg.Args, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve args: %w", err)
	}
	env, err := ResolveStringMap(cfg.Env, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve env: %w", err)
	}

	var extra map[string]interface{}
	if len(cfg.Extra) > 0 {
		resolved, err := resolveValue(map[string]interface{}(cfg.Extra), ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve adapter settings: %w", err)
		}
		extra = resolved.(map[string]interface{})
	}

	r := &Resolved{
		Name: cfg.Name,
		Target: backend.TargetConfig{
			Program: program,
			Adapter: adapter,
			Cwd:     cwd,
			Extra:   extra,
		},
		Launch: backend.LaunchOptions{
			Args:        args,
			Env:         env,
			Cwd:         cwd,
			StopOnEntry: cfg.StopOnEntry,
		},
		IsAttach: cfg.IsAttachRequest(),
	}
	if r.IsAttach {
		if cfg.ProcessID <= 0 {
			return nil, errors.ConfigInvalid(cfg.Name, "attach configurations need a numeric processId")
		}
		r.Attach = backend.AttachOptions{PID: cfg.ProcessID}
	}
	return r, nil
}

// LoadResolved loads launch.json (discovered when path is empty), finds the
// named configuration and resolves it against the file's workspace folder.
func LoadResolved(path, name string) (*Resolved, error) {
	lj, found, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg, err := FindConfiguration(lj, name)
	if err != nil {
		return nil, err
	}
	return Resolve(cfg, &ResolutionContext{WorkspaceFolder: WorkspaceFolder(found)})
}
