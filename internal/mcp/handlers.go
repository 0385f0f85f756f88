package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/launchconfig"
	"github.com/ctagard/debugify/internal/session"
	"github.com/ctagard/debugify/pkg/types"
)

// defaultMaxFrames bounds the stack returned per thread by debug_threads.
const defaultMaxFrames = 20

type stateResult struct {
	Target types.TargetInfo `json:"target"`
	Output types.OutputInfo `json:"output"`
	Events []string         `json:"events,omitempty"`
}

type findResult struct {
	Found      bool                  `json:"found"`
	Breakpoint *types.BreakpointInfo `json:"breakpoint,omitempty"`
	Location   *types.LocationInfo   `json:"location,omitempty"`
}

// targetSpec reads a new target's description from the request. launch.json
// is loaded here, off the debug context.
func targetSpec(request mcp.CallToolRequest) (backend.TargetConfig, *launchconfig.Resolved, error) {
	if name := request.GetString("configName", ""); name != "" {
		resolved, err := launchconfig.LoadResolved(request.GetString("configPath", ""), name)
		if err != nil {
			return backend.TargetConfig{}, nil, err
		}
		return resolved.Target, resolved, nil
	}

	program := request.GetString("program", "")
	if program == "" {
		return backend.TargetConfig{}, nil, errors.MissingParameter("program",
			"Specify the executable or Go package to debug, or use configName to load a target from launch.json.")
	}
	return backend.TargetConfig{
		Program: program,
		Adapter: request.GetString("adapter", ""),
		Cwd:     request.GetString("cwd", ""),
	}, nil, nil
}

// launchOptions merges request parameters over the launch.json defaults.
func launchOptions(request mcp.CallToolRequest, resolved *launchconfig.Resolved) (backend.LaunchOptions, error) {
	var opts backend.LaunchOptions
	if resolved != nil && !resolved.IsAttach {
		opts = resolved.Launch
	}

	if line := request.GetString("args", ""); line != "" {
		args, err := launchconfig.SplitArgs(line)
		if err != nil {
			return opts, errors.InvalidParameter("args", line, "a shell-style argument string without pipes or backticks").WithCause(err)
		}
		opts.Args = args
	}

	if raw, ok := request.GetArguments()["env"]; ok && raw != nil {
		var env map[string]string
		if err := mapstructure.Decode(raw, &env); err != nil {
			return opts, errors.InvalidParameter("env", raw, "a JSON object of strings").WithCause(err)
		}
		merged := make(map[string]string, len(opts.Env)+len(env))
		for k, v := range opts.Env {
			merged[k] = v
		}
		for k, v := range env {
			merged[k] = v
		}
		opts.Env = merged
	}

	if cwd := request.GetString("cwd", ""); cwd != "" {
		opts.Cwd = cwd
	}
	if request.GetBool("stopOnEntry", false) {
		opts.StopOnEntry = true
	}
	return opts, nil
}

// targetFor returns the named target, or registers a new one from cfg.
func (s *Server) targetFor(id string, cfg backend.TargetConfig, resolved *launchconfig.Resolved) (*targetEntry, bool, error) {
	if id != "" {
		e, err := s.lookup(id)
		return e, false, err
	}
	e, err := s.addTarget(cfg, resolved)
	return e, err == nil, err
}

func (s *Server) discard(e *targetEntry, created bool) {
	if created {
		s.closeTarget(e.id)
	}
}

func (s *Server) denied(operation string) *mcp.CallToolResult {
	return toolError(errors.PermissionDenied(operation, string(s.config.Mode)))
}

// Target Handlers

func (s *Server) handleDebugLoadTarget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, resolved, err := targetSpec(request)
	if err != nil {
		return toolError(err), nil
	}
	return s.call(ctx, "debug_load_target", func() (interface{}, error) {
		e, err := s.addTarget(cfg, resolved)
		if err != nil {
			return nil, err
		}
		return e.info(), nil
	})
}

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanLaunch() {
		return s.denied("launch"), nil
	}

	targetID := request.GetString("targetId", "")
	var (
		cfg      backend.TargetConfig
		resolved *launchconfig.Resolved
	)
	if targetID == "" {
		var err error
		if cfg, resolved, err = targetSpec(request); err != nil {
			return toolError(err), nil
		}
		if resolved != nil && resolved.IsAttach {
			return toolError(errors.ConfigInvalid(resolved.Name, "this is an attach configuration; use debug_attach")), nil
		}
	}

	return s.call(ctx, "debug_launch", func() (interface{}, error) {
		e, created, err := s.targetFor(targetID, cfg, resolved)
		if err != nil {
			return nil, err
		}
		opts, err := launchOptions(request, e.resolved)
		if err != nil {
			s.discard(e, created)
			return nil, err
		}
		if _, res := e.target.Launch(opts); !res.Success() {
			s.discard(e, created)
			return nil, res.AsError()
		}
		return e.info(), nil
	})
}

func (s *Server) handleDebugAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanAttach() {
		return s.denied("attach"), nil
	}

	targetID := request.GetString("targetId", "")
	var (
		cfg      backend.TargetConfig
		resolved *launchconfig.Resolved
	)
	if targetID == "" {
		var err error
		if cfg, resolved, err = targetSpec(request); err != nil {
			return toolError(err), nil
		}
	}

	pid := 0
	if v, err := request.RequireFloat("pid"); err == nil {
		pid = int(v)
		if pid <= 0 {
			return toolError(errors.InvalidParameter("pid", v, "a positive process ID")), nil
		}
	}

	return s.call(ctx, "debug_attach", func() (interface{}, error) {
		e, created, err := s.targetFor(targetID, cfg, resolved)
		if err != nil {
			return nil, err
		}
		opts := backend.AttachOptions{PID: pid}
		if pid == 0 && e.resolved != nil && e.resolved.IsAttach {
			opts = e.resolved.Attach
		}
		if opts.PID == 0 {
			s.discard(e, created)
			return nil, errors.MissingParameter("pid", "Specify the process ID to attach to.")
		}
		if _, res := e.target.Attach(opts); !res.Success() {
			s.discard(e, created)
			return nil, res.AsError()
		}
		return e.info(), nil
	})
}

func (s *Server) handleDebugListTargets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "debug_list_targets", func() (interface{}, error) {
		infos := make([]types.TargetInfo, 0, len(s.order))
		for _, id := range s.order {
			infos = append(infos, s.targets[id].info())
		}
		return map[string]interface{}{
			"targets": infos,
			"count":   len(infos),
		}, nil
	})
}

func (s *Server) handleDebugCloseTarget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	return s.call(ctx, "debug_close_target", func() (interface{}, error) {
		if _, err := s.lookup(id); err != nil {
			return nil, err
		}
		s.closeTarget(id)
		return map[string]interface{}{
			"targetId": id,
			"closed":   true,
		}, nil
	})
}

// Inspection Handlers

func (s *Server) handleDebugState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	return s.call(ctx, "debug_state", func() (interface{}, error) {
		e, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		result := stateResult{Target: e.info()}
		if p := e.target.Process(); p != nil {
			result.Output.Stdout, result.Output.Stderr = p.GetOutputs()
		}
		result.Events = e.drainEvents()
		return result, nil
	})
}

func (s *Server) handleDebugThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	maxFrames := defaultMaxFrames
	if v, err := request.RequireFloat("maxFrames"); err == nil {
		maxFrames = int(v)
	}

	return s.call(ctx, "debug_threads", func() (interface{}, error) {
		_, p, err := s.liveProcess(id, "list threads")
		if err != nil {
			return nil, err
		}
		threads := p.Threads()
		infos := make([]types.ThreadInfo, 0, len(threads))
		for _, th := range threads {
			infos = append(infos, th.Snapshot(maxFrames))
		}
		result := map[string]interface{}{
			"state":   p.CurrentState().String(),
			"threads": infos,
		}
		if sel := p.SelectedThread(); sel != nil {
			result["selectedThreadId"] = sel.ID()
		}
		return result, nil
	})
}

func findThread(p *session.Process, id int) *session.Thread {
	for _, th := range p.Threads() {
		if th.ID() == id {
			return th
		}
	}
	return nil
}

func (s *Server) handleDebugSelectThread(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	tid, err := request.RequireFloat("threadId")
	if err != nil {
		return toolError(errors.MissingParameter("threadId", "Pass a thread ID from debug_threads.")), nil
	}
	frameIndex := -1
	if v, err := request.RequireFloat("frameIndex"); err == nil {
		frameIndex = int(v)
	}

	return s.call(ctx, "debug_select_thread", func() (interface{}, error) {
		_, p, err := s.liveProcess(id, "select thread")
		if err != nil {
			return nil, err
		}
		th := findThread(p, int(tid))
		if th == nil {
			return nil, errors.InvalidParameter("threadId", int(tid), "a thread ID from debug_threads")
		}
		if frameIndex >= th.FrameCount() {
			return nil, errors.InvalidParameter("frameIndex", frameIndex, fmt.Sprintf("an index below %d", th.FrameCount()))
		}
		if !p.SelectThread(th) {
			return nil, errors.BackendRejected("select thread", fmt.Errorf("thread %d cannot be selected", th.ID()))
		}
		if frameIndex >= 0 {
			if !th.SelectFrame(th.FrameAt(frameIndex)) {
				return nil, errors.BackendRejected("select frame", fmt.Errorf("frame %d cannot be selected", frameIndex))
			}
		}
		return th.Snapshot(defaultMaxFrames), nil
	})
}

func (s *Server) handleDebugModules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	includeFiles := request.GetBool("includeFiles", false)
	includeSystem := request.GetBool("includeSystem", true)

	return s.call(ctx, "debug_modules", func() (interface{}, error) {
		e, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		infos := []types.ModuleInfo{}
		for _, m := range e.target.Modules() {
			if !includeSystem && m.IsSystem() {
				continue
			}
			if includeFiles {
				infos = append(infos, m.Snapshot())
				continue
			}
			infos = append(infos, types.ModuleInfo{Path: m.Path(), Name: m.Name(), System: m.IsSystem()})
		}
		return map[string]interface{}{"modules": infos}, nil
	})
}

func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	action, err := request.RequireString("action")
	if err != nil {
		return toolError(errors.MissingParameter("action", "One of: list, add, remove, enable, disable, find.")), nil
	}

	var (
		file string
		line int
		bpID int
	)
	switch action {
	case "list":
	case "add", "find":
		file = request.GetString("file", "")
		if file == "" {
			return toolError(errors.MissingParameter("file", "Specify the source file.")), nil
		}
		v, err := request.RequireFloat("line")
		if err != nil {
			return toolError(errors.MissingParameter("line", "Specify a 1-based line number.")), nil
		}
		line = int(v)
	case "remove", "enable", "disable":
		v, err := request.RequireFloat("id")
		if err != nil {
			return toolError(errors.MissingParameter("id", "Pass a breakpoint ID from the list action.")), nil
		}
		bpID = int(v)
	default:
		return toolError(errors.InvalidParameter("action", action, "list, add, remove, enable, disable or find")), nil
	}
	if action != "list" && action != "find" && !s.config.CanUseControlTools() {
		return s.denied("modify breakpoints"), nil
	}

	return s.call(ctx, "debug_breakpoints", func() (interface{}, error) {
		e, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		t := e.target

		switch action {
		case "add":
			bp, res := t.AddBreakpoint(file, line)
			if !res.Success() {
				return nil, res.AsError()
			}
			return bp.Snapshot(), nil

		case "find":
			bp, loc, found := t.FindBreakpoint(file, line)
			if !found {
				return findResult{}, nil
			}
			info, locInfo := bp.Snapshot(), loc.Snapshot()
			return findResult{Found: true, Breakpoint: &info, Location: &locInfo}, nil

		case "remove", "enable", "disable":
			bp, ok := t.BreakpointByID(bpID)
			if !ok {
				return nil, errors.InvalidParameter("id", bpID, "an existing breakpoint ID")
			}
			if action == "remove" {
				if res := t.RemoveBreakpoint(bp); !res.Success() {
					return nil, res.AsError()
				}
				return map[string]interface{}{"removed": bpID}, nil
			}
			if res := bp.SetEnabled(action == "enable"); !res.Success() {
				return nil, res.AsError()
			}
			return bp.Snapshot(), nil
		}

		infos := []types.BreakpointInfo{}
		for _, bp := range t.Breakpoints() {
			infos = append(infos, bp.Snapshot())
		}
		return map[string]interface{}{"breakpoints": infos}, nil
	})
}

// Control Handlers

// control runs a process request and reports the state it left behind. The
// state moves once the backend's event arrives, not here.
func (s *Server) control(ctx context.Context, request mcp.CallToolRequest, tool, operation string, fn func(*session.Process) session.Result) (*mcp.CallToolResult, error) {
	id := request.GetString("targetId", "")
	return s.call(ctx, tool, func() (interface{}, error) {
		_, p, err := s.liveProcess(id, operation)
		if err != nil {
			return nil, err
		}
		if res := fn(p); !res.Success() {
			return nil, res.AsError()
		}
		return p.Snapshot(), nil
	})
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.control(ctx, request, "debug_continue", "continue", (*session.Process).ContinueExecution)
}

func (s *Server) handleDebugPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.control(ctx, request, "debug_pause", "pause", (*session.Process).PauseExecution)
}

func (s *Server) handleDebugKill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanKill() {
		return s.denied("kill"), nil
	}
	return s.control(ctx, request, "debug_kill", "kill", (*session.Process).Kill)
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return toolError(errors.MissingParameter("action", "One of: over, into, out.")), nil
	}
	if action != "over" && action != "into" && action != "out" {
		return toolError(errors.InvalidParameter("action", action, "over, into or out")), nil
	}
	threadID := -1
	if v, err := request.RequireFloat("threadId"); err == nil {
		threadID = int(v)
	}

	return s.control(ctx, request, "debug_step", "step", func(p *session.Process) session.Result {
		th := p.SelectedThread()
		if threadID >= 0 {
			th = findThread(p, threadID)
		}
		if th == nil {
			return session.Failed(errors.InvalidParameter("threadId", threadID, "a thread of the stopped process"))
		}
		switch action {
		case "into":
			return th.StepInto()
		case "out":
			return th.StepOut()
		default:
			return th.StepOver()
		}
	})
}
