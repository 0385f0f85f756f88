package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/backend/fakebackend"
	"github.com/ctagard/debugify/internal/config"
)

// scriptedBackend hands every launched fake process to script before the
// runner sees it. Scripts queue the whole run up front and reset the live
// state so the session starts from launching.
type scriptedBackend struct {
	*fakebackend.Backend
	script func(*fakebackend.Process)
}

func (b *scriptedBackend) CreateTarget(cfg backend.TargetConfig) (backend.TargetHandle, error) {
	h, err := b.Backend.CreateTarget(cfg)
	if err != nil {
		return nil, err
	}
	return &scriptedTarget{Target: h.(*fakebackend.Target), script: b.script}, nil
}

type scriptedTarget struct {
	*fakebackend.Target
	script func(*fakebackend.Process)
}

func (t *scriptedTarget) Launch(opts backend.LaunchOptions) (backend.ProcessHandle, error) {
	h, err := t.Target.Launch(opts)
	if err == nil && t.script != nil {
		t.script(h.(*fakebackend.Process))
	}
	return h, err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PumpInterval = config.Duration(time.Millisecond)
	return cfg
}

// TestRunner_BreakpointStopAndExit verifies the narrated run of a program that stops once and exits.
func TestRunner_BreakpointStopAndExit(t *testing.T) {
	var fp *fakebackend.Process
	b := &scriptedBackend{Backend: fakebackend.New()}
	b.script = func(p *fakebackend.Process) {
		fp = p
		p.AddThread(1, "main",
			&fakebackend.Frame{Function: "main.main", Path: "/work/main.go", LineNo: 9},
			&fakebackend.Frame{Function: "runtime.goexit"},
		)
		p.PushState(backend.StateRunning)
		p.WriteStdout("hello\n")
		p.PushState(backend.StateStopped, backend.StateRunning)
		p.WriteStderr("oops\n")
		p.Exit = 3
		p.ExitDesc = "exited with status 3"
		p.PushState(backend.StateExited, backend.StateGone)
		p.SetState(backend.StateLaunching)
	}

	var out, errOut bytes.Buffer
	r := newRunner(b, testConfig(), &out, &errOut)
	status, err := r.run(context.Background(), runOptions{
		program:     "/work/bin/app",
		args:        `-v "two words"`,
		breakpoints: []string{"/work/main.go:9"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != 3 {
		t.Errorf("expected status 3, got %d", status)
	}

	text := out.String()
	for _, want := range []string{
		"breakpoint 1 at /work/main.go:9 (1 locations)",
		"process 1000 launched",
		"state: running",
		"hello\n",
		"state: stopped",
		"  thread 1 main",
		"    #0 main.main at /work/main.go:9",
		"    #1 runtime.goexit\n",
		"  hit breakpoint 1",
		"state: exited",
		"exit status 3: exited with status 3",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
	if strings.Index(text, "state: stopped") > strings.Index(text, "hit breakpoint 1") {
		t.Error("expected the stop report after the state change")
	}
	if errOut.String() != "oops\n" {
		t.Errorf("unexpected stderr %q", errOut.String())
	}
	if !reflect.DeepEqual(fp.Launch.Args, []string{"-v", "two words"}) {
		t.Errorf("unexpected program args %q", fp.Launch.Args)
	}
	if !reflect.DeepEqual(fp.Calls, []string{"continue"}) {
		t.Errorf("expected one continue, got %v", fp.Calls)
	}
	if !fp.Closed {
		t.Error("expected the process to be released")
	}
}

// TestRunner_CrashKills verifies a crash is reported and the program killed.
func TestRunner_CrashKills(t *testing.T) {
	var fp *fakebackend.Process
	b := &scriptedBackend{Backend: fakebackend.New()}
	b.script = func(p *fakebackend.Process) {
		fp = p
		p.AddThread(7, "worker", &fakebackend.Frame{Function: "main.divide", Path: "/work/math.go", LineNo: 4})
		p.PushState(backend.StateRunning, backend.StateCrashed, backend.StateGone)
		p.SetState(backend.StateLaunching)
	}

	var out bytes.Buffer
	r := newRunner(b, testConfig(), &out, &bytes.Buffer{})
	status, err := r.run(context.Background(), runOptions{program: "/work/bin/app"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != crashStatus {
		t.Errorf("expected status %d, got %d", crashStatus, status)
	}
	if !strings.Contains(out.String(), "#0 main.divide at /work/math.go:4") {
		t.Errorf("expected the crash stack, got:\n%s", out.String())
	}
	if len(fp.Calls) == 0 || fp.Calls[0] != "kill" {
		t.Errorf("expected a kill, got %v", fp.Calls)
	}
}

// TestRunner_CrashThenCleanExit verifies a crash is not reported as success
// when the killed program exits with status 0.
func TestRunner_CrashThenCleanExit(t *testing.T) {
	b := &scriptedBackend{Backend: fakebackend.New()}
	b.script = func(p *fakebackend.Process) {
		p.PushState(backend.StateRunning, backend.StateCrashed, backend.StateExited, backend.StateGone)
		p.SetState(backend.StateLaunching)
	}

	r := newRunner(b, testConfig(), &bytes.Buffer{}, &bytes.Buffer{})
	status, err := r.run(context.Background(), runOptions{program: "/work/bin/app"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != crashStatus {
		t.Errorf("expected status %d, got %d", crashStatus, status)
	}
}

// TestRunner_Interrupted verifies cancelling the context ends the run.
func TestRunner_Interrupted(t *testing.T) {
	b := &scriptedBackend{Backend: fakebackend.New(), script: func(p *fakebackend.Process) {
		p.PushState(backend.StateRunning)
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var errOut bytes.Buffer
	r := newRunner(b, testConfig(), &bytes.Buffer{}, &errOut)
	if _, err := r.run(ctx, runOptions{program: "/work/bin/app"}); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if !strings.Contains(errOut.String(), "interrupted") {
		t.Errorf("expected an interruption notice, got %q", errOut.String())
	}
}

// TestRunner_LaunchFailure verifies launch errors are returned and the target released.
func TestRunner_LaunchFailure(t *testing.T) {
	fb := fakebackend.New()
	b := &scriptedBackend{Backend: fb}

	r := newRunner(b, testConfig(), &bytes.Buffer{}, &bytes.Buffer{})
	if _, err := r.run(context.Background(), runOptions{program: "/work/bin/app", breakpoints: []string{"main.go"}}); err == nil {
		t.Error("expected an invalid breakpoint error")
	}

	fb.CreateErr = fakebackend.ErrRejected
	if _, err := r.run(context.Background(), runOptions{program: "/work/bin/app"}); err == nil {
		t.Error("expected the backend error")
	}
}

// TestParseBreakpoint verifies file:line parsing.
func TestParseBreakpoint(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}

	tests := []struct {
		spec    string
		want    location
		wantErr bool
	}{
		{"/work/main.go:9", location{"/work/main.go", 9}, false},
		{"main.go:12", location{filepath.Join(cwd, "main.go"), 12}, false},
		{"main.go", location{}, true},
		{"main.go:", location{}, true},
		{":3", location{}, true},
		{"main.go:zero", location{}, true},
		{"main.go:0", location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseBreakpoint(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

// TestTargetFor verifies flags layered over a launch.json configuration.
func TestTargetFor(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".vscode"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	path := filepath.Join(root, ".vscode", "launch.json")
	content := `{"configurations": [
		{"name": "server", "type": "go", "request": "launch", "program": "${workspaceFolder}/cmd/server", "args": ["--port", "80"]},
		{"name": "attach", "type": "go", "request": "attach", "processId": 5, "program": "x"}
	]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, launch, err := targetFor(runOptions{launchConfig: "server", launchJSON: path, adapter: "dlv", stopOnEntry: true})
	if err != nil {
		t.Fatalf("targetFor failed: %v", err)
	}
	if cfg.Program != root+"/cmd/server" || cfg.Adapter != "dlv" {
		t.Errorf("unexpected target %+v", cfg)
	}
	if !reflect.DeepEqual(launch.Args, []string{"--port", "80"}) || !launch.StopOnEntry {
		t.Errorf("unexpected launch options %+v", launch)
	}

	_, launch, err = targetFor(runOptions{launchConfig: "server", launchJSON: path, args: "--port 81"})
	if err != nil || !reflect.DeepEqual(launch.Args, []string{"--port", "81"}) {
		t.Errorf("expected --args to override, got %v %v", launch.Args, err)
	}

	if _, _, err := targetFor(runOptions{launchConfig: "attach", launchJSON: path}); err == nil {
		t.Error("expected attach configurations to be refused")
	}
	if _, _, err := targetFor(runOptions{}); err == nil {
		t.Error("expected an error without a program")
	}
}
