package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug tool set. Control tools are only added
// in full mode.
func (s *Server) registerTools() {
	// Targets
	s.registerDebugLoadTarget()
	s.registerDebugLaunch()
	s.registerDebugAttach()
	s.registerDebugListTargets()
	s.registerDebugCloseTarget()

	// Inspection
	s.registerDebugState()
	s.registerDebugThreads()
	s.registerDebugSelectThread()
	s.registerDebugModules()
	s.registerDebugBreakpoints()

	// Control
	if s.config.CanUseControlTools() {
		s.registerDebugContinue()
		s.registerDebugPause()
		s.registerDebugStep()
		s.registerDebugKill()
	}
}

func targetIDParam() mcp.ToolOption {
	return mcp.WithString("targetId",
		mcp.Required(),
		mcp.Description("The target ID returned by debug_load_target or debug_launch"),
	)
}

// targetParams are the parameters that describe a new target.
func targetParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("program",
			mcp.Description("Path to the executable (or Go package) to debug. Not required if configName is provided."),
		),
		mcp.WithString("adapter",
			mcp.Description("Debug adapter: delve (go), lldb (c, cpp, rust, swift) or gdb. Defaults to delve."),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithString("configName",
			mcp.Description("Name of a configuration in .vscode/launch.json to take the target from"),
		),
		mcp.WithString("configPath",
			mcp.Description("Path to launch.json. Discovered from the server's working directory if not provided."),
		),
	}
}

// Target Tools

func (s *Server) registerDebugLoadTarget() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Create a debug target without starting it. Breakpoints added before debug_launch are resolved when the process starts. Returns targetId."),
	}
	opts = append(opts, targetParams()...)
	s.addTool(mcp.NewTool("debug_load_target", opts...), s.handleDebugLoadTarget)
}

func (s *Server) registerDebugLaunch() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Launch a program under the debugger. Pass targetId to launch a loaded target, or describe a new target with program/adapter or configName. Returns targetId and the process state."),
		mcp.WithString("targetId",
			mcp.Description("A target created by debug_load_target"),
		),
		mcp.WithString("args",
			mcp.Description("Program arguments as a shell-style string, e.g. \"-v 'input file.txt'\""),
		),
		mcp.WithObject("env",
			mcp.Description("Environment variables for the program, as a JSON object of strings"),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Stop on entry point (default: false)"),
		),
	}
	opts = append(opts, targetParams()...)
	s.addTool(mcp.NewTool("debug_launch", opts...), s.handleDebugLaunch)
}

func (s *Server) registerDebugAttach() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Attach the debugger to a running process. Pass targetId or describe a new target. Returns targetId and the process state."),
		mcp.WithString("targetId",
			mcp.Description("A target created by debug_load_target"),
		),
		mcp.WithNumber("pid",
			mcp.Description("Process ID to attach to. Not required if the launch.json configuration has processId."),
		),
	}
	opts = append(opts, targetParams()...)
	s.addTool(mcp.NewTool("debug_attach", opts...), s.handleDebugAttach)
}

func (s *Server) registerDebugListTargets() {
	tool := mcp.NewTool("debug_list_targets",
		mcp.WithDescription("List loaded targets with their process state"),
	)
	s.addTool(tool, s.handleDebugListTargets)
}

func (s *Server) registerDebugCloseTarget() {
	tool := mcp.NewTool("debug_close_target",
		mcp.WithDescription("Close a target. A live process is killed first."),
		targetIDParam(),
	)
	s.addTool(tool, s.handleDebugCloseTarget)
}

// Inspection Tools

func (s *Server) registerDebugState() {
	tool := mcp.NewTool("debug_state",
		mcp.WithDescription("Get the process state, pid, exit status, and the output and events produced since the last call"),
		targetIDParam(),
	)
	s.addTool(tool, s.handleDebugState)
}

func (s *Server) registerDebugThreads() {
	tool := mcp.NewTool("debug_threads",
		mcp.WithDescription("List threads and their call stacks at the last stop"),
		targetIDParam(),
		mcp.WithNumber("maxFrames",
			mcp.Description("Maximum frames per thread (default: 20, -1 for all)"),
		),
	)
	s.addTool(tool, s.handleDebugThreads)
}

func (s *Server) registerDebugSelectThread() {
	tool := mcp.NewTool("debug_select_thread",
		mcp.WithDescription("Make a thread, and optionally one of its frames, current. Stepping acts on the current thread."),
		targetIDParam(),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("Thread ID from debug_threads"),
		),
		mcp.WithNumber("frameIndex",
			mcp.Description("Frame index to select within the thread"),
		),
	)
	s.addTool(tool, s.handleDebugSelectThread)
}

func (s *Server) registerDebugModules() {
	tool := mcp.NewTool("debug_modules",
		mcp.WithDescription("List the images loaded by the target"),
		targetIDParam(),
		mcp.WithBoolean("includeFiles",
			mcp.Description("Include each module's source files (default: false)"),
		),
		mcp.WithBoolean("includeSystem",
			mcp.Description("Include system libraries (default: true)"),
		),
	)
	s.addTool(tool, s.handleDebugModules)
}

func (s *Server) registerDebugBreakpoints() {
	tool := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Manage source breakpoints. Actions: list, add (file+line), remove/enable/disable (id), find (file+line). A line with no code yields a breakpoint with no locations."),
		targetIDParam(),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum("list", "add", "remove", "enable", "disable", "find"),
			mcp.Description("What to do"),
		),
		mcp.WithString("file",
			mcp.Description("Source file path (add, find)"),
		),
		mcp.WithNumber("line",
			mcp.Description("1-based line number (add, find)"),
		),
		mcp.WithNumber("id",
			mcp.Description("Breakpoint ID (remove, enable, disable)"),
		),
	)
	s.addTool(tool, s.handleDebugBreakpoints)
}

// Control Tools

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Resume execution. The state changes once the debugger reports it; poll debug_state."),
		targetIDParam(),
	)
	s.addTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugPause() {
	tool := mcp.NewTool("debug_pause",
		mcp.WithDescription("Pause execution"),
		targetIDParam(),
	)
	s.addTool(tool, s.handleDebugPause)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Step the current (or given) thread"),
		targetIDParam(),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum("over", "into", "out"),
			mcp.Description("Step over, into or out"),
		),
		mcp.WithNumber("threadId",
			mcp.Description("Thread to step (default: current thread)"),
		),
	)
	s.addTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugKill() {
	tool := mcp.NewTool("debug_kill",
		mcp.WithDescription("Terminate the debuggee. The target stays loaded and can be launched again."),
		targetIDParam(),
	)
	s.addTool(tool, s.handleDebugKill)
}
