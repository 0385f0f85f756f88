package cmds

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/launchconfig"
	"github.com/ctagard/debugify/internal/logflags"
	"github.com/ctagard/debugify/internal/pump"
	"github.com/ctagard/debugify/internal/session"
)

// maxStopFrames bounds the stack printed at each stop.
const maxStopFrames = 10

// crashStatus is returned for a program that crashed and had to be killed.
const crashStatus = 1

type runOptions struct {
	program      string
	adapter      string
	args         string
	breakpoints  []string
	stopOnEntry  bool
	launchConfig string
	launchJSON   string
	cwd          string
}

type location struct {
	file string
	line int
}

// parseBreakpoint parses "file:line". Relative files are made absolute.
func parseBreakpoint(spec string) (location, error) {
	i := strings.LastIndex(spec, ":")
	if i <= 0 || i == len(spec)-1 {
		return location{}, fmt.Errorf("invalid breakpoint %q: expected file:line", spec)
	}
	line, err := strconv.Atoi(spec[i+1:])
	if err != nil || line <= 0 {
		return location{}, fmt.Errorf("invalid breakpoint %q: line must be a positive number", spec)
	}
	file, err := filepath.Abs(spec[:i])
	if err != nil {
		return location{}, fmt.Errorf("invalid breakpoint %q: %w", spec, err)
	}
	return location{file: file, line: line}, nil
}

// runner launches one program and narrates its life on out and errOut.
type runner struct {
	backend backend.Backend
	cfg     *config.Config
	out     io.Writer
	errOut  io.Writer
	log     *logrus.Entry

	// status is the exit code seen in the exited state, or crashStatus.
	// Debug context only.
	status  int
	crashed bool
}

func newRunner(b backend.Backend, cfg *config.Config, out, errOut io.Writer) *runner {
	return &runner{
		backend: b,
		cfg:     cfg,
		out:     out,
		errOut:  errOut,
		log:     logflags.SessionLogger(),
	}
}

// targetFor builds the target and launch options from flags, on top of a
// launch.json configuration when one is named.
func targetFor(opts runOptions) (backend.TargetConfig, backend.LaunchOptions, error) {
	var (
		cfg    backend.TargetConfig
		launch backend.LaunchOptions
	)
	if opts.launchConfig != "" {
		resolved, err := launchconfig.LoadResolved(opts.launchJSON, opts.launchConfig)
		if err != nil {
			return cfg, launch, err
		}
		if resolved.IsAttach {
			return cfg, launch, fmt.Errorf("%q is an attach configuration; run only launches", opts.launchConfig)
		}
		cfg, launch = resolved.Target, resolved.Launch
	}

	if opts.program != "" {
		cfg.Program = opts.program
	}
	if cfg.Program == "" {
		return cfg, launch, fmt.Errorf("a program or --launch-config is required")
	}
	if opts.adapter != "" {
		cfg.Adapter = opts.adapter
	}
	if opts.cwd != "" {
		cfg.Cwd = opts.cwd
		launch.Cwd = opts.cwd
	}
	if opts.args != "" {
		args, err := launchconfig.SplitArgs(opts.args)
		if err != nil {
			return cfg, launch, err
		}
		launch.Args = args
	}
	if opts.stopOnEntry {
		launch.StopOnEntry = true
	}
	return cfg, launch, nil
}

// run launches the program and blocks until it is gone or ctx is cancelled.
// It returns the program's exit status.
func (r *runner) run(ctx context.Context, opts runOptions) (int, error) {
	tcfg, launch, err := targetFor(opts)
	if err != nil {
		return 0, err
	}
	locs := make([]location, 0, len(opts.breakpoints))
	for _, spec := range opts.breakpoints {
		loc, err := parseBreakpoint(spec)
		if err != nil {
			return 0, err
		}
		locs = append(locs, loc)
	}

	pm := pump.New(r.cfg.PumpInterval.Std())
	defer pm.Close()

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	var (
		t        *session.Target
		proc     *session.Process
		startErr error
	)
	err = pm.Do(ctx, func() {
		t, startErr = session.NewTarget(r.backend, tcfg, session.WithOutputChunkSize(r.cfg.OutputChunkSize))
		if startErr != nil {
			return
		}
		for _, loc := range locs {
			bp, res := t.AddBreakpoint(loc.file, loc.line)
			if !res.Success() {
				startErr = res.AsError()
				return
			}
			fmt.Fprintf(r.out, "breakpoint %d at %s:%d (%d locations)\n", bp.ID(), loc.file, loc.line, bp.LocationCount())
		}

		var res session.Result
		if proc, res = t.Launch(launch); !res.Success() {
			startErr = res.AsError()
			return
		}
		fmt.Fprintf(r.out, "process %d launched\n", proc.ProcessID())
		r.log.Debugf("launched %s with %d breakpoints", t.Path(), t.BreakpointCount())
		r.follow(pm, t, proc, finish)
	})
	if err == nil {
		err = startErr
	}
	if err != nil {
		_ = pm.Do(context.Background(), func() {
			if t != nil {
				t.Close()
			}
		})
		return 0, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(r.errOut, "interrupted, killing the program")
	}

	status := 0
	_ = pm.Do(context.Background(), func() {
		stdout, stderr := proc.GetOutputs()
		io.WriteString(r.out, stdout)
		io.WriteString(r.errOut, stderr)
		status = r.status
		t.Close()
	})
	if ctx.Err() != nil {
		return status, ctx.Err()
	}
	return status, nil
}

// follow wires the process notifiers to the console. Debug context only.
func (r *runner) follow(pm *pump.Pump, t *session.Target, proc *session.Process, finish func()) {
	proc.OutputAvailable().ListenFunc(func() {
		io.WriteString(r.out, proc.ReadAll(session.Stdout))
	})
	proc.ErrorAvailable().ListenFunc(func() {
		io.WriteString(r.errOut, proc.ReadAll(session.Stderr))
	})
	proc.StateChanged().Listen(func(st session.ProcessState) {
		fmt.Fprintf(r.out, "state: %s\n", st)
		switch st {
		case session.Stopped:
			r.reportStop(t, proc)
			if res := proc.ContinueExecution(); !res.Success() {
				fmt.Fprintf(r.errOut, "continue failed: %s\n", res)
			}
		case session.Crashed:
			r.crashed = true
			r.status = crashStatus
			r.reportStop(t, proc)
			if res := proc.Kill(); !res.Success() {
				fmt.Fprintf(r.errOut, "kill failed: %s\n", res)
				finish()
			}
		case session.Exited:
			// A killed crash may still report a clean exit.
			if status := proc.ExitStatus(); status != 0 || !r.crashed {
				r.status = status
			}
			fmt.Fprintf(r.out, "exit status %d: %s\n", proc.ExitStatus(), proc.ExitDescription())
			finish()
		case session.Detached:
			finish()
		}
	})
	proc.Ended().ListenFunc(func() {
		pm.Unwatch(proc)
		finish()
	})
	pm.Watch(proc)
}

// reportStop prints the selected thread's stack and any breakpoint it hit.
func (r *runner) reportStop(t *session.Target, proc *session.Process) {
	th := proc.SelectedThread()
	if th == nil {
		fmt.Fprintln(r.out, "  no thread selected")
		return
	}
	fmt.Fprintf(r.out, "  thread %d %s\n", th.ID(), th.Name())

	frames := th.Frames()
	for i, f := range frames {
		if i == maxStopFrames {
			fmt.Fprintf(r.out, "    ... %d more frames\n", len(frames)-i)
			break
		}
		if f.HasLineNumber() {
			fmt.Fprintf(r.out, "    #%d %s at %s:%d\n", f.Index(), f.FunctionName(), f.Filename(), f.LineNumber())
		} else {
			fmt.Fprintf(r.out, "    #%d %s\n", f.Index(), f.FunctionName())
		}
	}
	if len(frames) == 0 {
		return
	}
	if bp, _, ok := t.FindBreakpoint(frames[0].Filename(), frames[0].LineNumber()); ok {
		fmt.Fprintf(r.out, "  hit breakpoint %d\n", bp.ID())
	}
}
