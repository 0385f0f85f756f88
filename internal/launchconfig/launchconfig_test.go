package launchconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctagard/debugify/internal/errors"
)

const sampleLaunchJSON = `{
	"version": "0.2.0",
	"configurations": [
		{
			"name": "Debug server",
			"type": "go",
			"request": "launch",
			"program": "${workspaceFolder}/cmd/server",
			"args": ["--port", "${env:DEBUGIFY_TEST_PORT}"],
			"env": {"DATA_DIR": "${workspaceFolder}/data"},
			"cwd": "${workspaceFolder}",
			"stopOnEntry": true,
			"buildFlags": "-tags=dev",
			"preLaunchTask": "build"
		},
		{
			"name": "Attach native",
			"type": "cppdbg",
			"MIMode": "lldb",
			"request": "attach",
			"program": "${workspaceFolder}/build/app",
			"processId": 4242,
			"sourceMap": {"/build": "${workspaceFolder}"}
		}
	]
}`

func writeWorkspace(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, VSCodeDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	path := filepath.Join(dir, LaunchJSONFileName)
	if err := os.WriteFile(path, []byte(sampleLaunchJSON), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return root, path
}

// TestLoadFromPath verifies known fields parse and unknown ones land in Extra.
func TestLoadFromPath(t *testing.T) {
	_, path := writeWorkspace(t)

	lj, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if len(lj.Configurations) != 2 {
		t.Fatalf("expected 2 configurations, got %d", len(lj.Configurations))
	}

	cfg := lj.Configurations[0]
	if !cfg.IsLaunchRequest() || cfg.IsAttachRequest() {
		t.Error("expected a launch request")
	}
	if cfg.Extra["buildFlags"] != "-tags=dev" {
		t.Errorf("expected buildFlags in Extra, got %v", cfg.Extra)
	}
	if _, ok := cfg.Extra["preLaunchTask"]; ok {
		t.Error("expected editor-only settings to be dropped")
	}
	if _, ok := cfg.Extra["program"]; ok {
		t.Error("expected known fields to stay out of Extra")
	}
}

// TestDiscover verifies launch.json is found from a nested directory.
func TestDiscover(t *testing.T) {
	root, path := writeWorkspace(t)
	nested := filepath.Join(root, "internal", "store")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	found, err := Discover(nested)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if found != path {
		t.Errorf("expected %s, got %s", path, found)
	}
	if WorkspaceFolder(found) != root {
		t.Errorf("expected workspace %s, got %s", root, WorkspaceFolder(found))
	}

	if _, err := Discover(t.TempDir()); err == nil {
		t.Error("expected an error when no launch.json exists")
	}
}

// TestFindConfiguration verifies lookups and the not-found error.
func TestFindConfiguration(t *testing.T) {
	_, path := writeWorkspace(t)
	lj, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := FindConfiguration(lj, "Attach native"); err != nil {
		t.Errorf("expected to find configuration: %v", err)
	}

	_, err = FindConfiguration(lj, "Debug tests")
	de := errors.FromError(err)
	if de.Code != errors.CodeConfigNotFound {
		t.Fatalf("expected %s, got %v", errors.CodeConfigNotFound, err)
	}
	want := []string{"Debug server", "Attach native"}
	if !reflect.DeepEqual(de.Details["availableConfigs"], want) {
		t.Errorf("expected available configs %v, got %v", want, de.Details["availableConfigs"])
	}
}

// TestResolveVariables verifies the supported variables.
func TestResolveVariables(t *testing.T) {
	t.Setenv("DEBUGIFY_TEST_VAR", "from-env")
	ctx := &ResolutionContext{
		WorkspaceFolder: "/work/project",
		EnvOverrides:    map[string]string{"OVERRIDDEN": "yes"},
	}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"${workspaceFolder}/main.go", "/work/project/main.go", false},
		{"${workspaceFolderBasename}", "project", false},
		{"${env:DEBUGIFY_TEST_VAR}", "from-env", false},
		{"${env:OVERRIDDEN}", "yes", false},
		{"a${pathSeparator}b", "a" + string(os.PathSeparator) + "b", false},
		{"plain", "plain", false},
		{"${command:pickProcess}", "${command:pickProcess}", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ResolveVariables(tt.input, ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestResolve_Launch verifies a launch configuration maps onto target and launch options.
func TestResolve_Launch(t *testing.T) {
	t.Setenv("DEBUGIFY_TEST_PORT", "8080")
	root, path := writeWorkspace(t)

	r, err := LoadResolved(path, "Debug server")
	if err != nil {
		t.Fatalf("LoadResolved failed: %v", err)
	}
	if r.IsAttach {
		t.Error("expected a launch")
	}
	if r.Target.Adapter != "delve" {
		t.Errorf("expected delve, got %s", r.Target.Adapter)
	}
	if r.Target.Program != root+"/cmd/server" {
		t.Errorf("unexpected program %s", r.Target.Program)
	}
	if !reflect.DeepEqual(r.Launch.Args, []string{"--port", "8080"}) {
		t.Errorf("unexpected args %v", r.Launch.Args)
	}
	if r.Launch.Env["DATA_DIR"] != root+"/data" || r.Launch.Cwd != root || !r.Launch.StopOnEntry {
		t.Errorf("unexpected launch options %+v", r.Launch)
	}
	if r.Target.Extra["buildFlags"] != "-tags=dev" {
		t.Errorf("expected adapter settings to pass through, got %v", r.Target.Extra)
	}
}

// TestResolve_Attach verifies attach configurations and nested variables in Extra.
func TestResolve_Attach(t *testing.T) {
	root, path := writeWorkspace(t)

	r, err := LoadResolved(path, "Attach native")
	if err != nil {
		t.Fatalf("LoadResolved failed: %v", err)
	}
	if !r.IsAttach || r.Attach.PID != 4242 {
		t.Errorf("expected attach to 4242, got %+v", r.Attach)
	}
	if r.Target.Adapter != "lldb" {
		t.Errorf("expected cppdbg with MIMode lldb to pick lldb, got %s", r.Target.Adapter)
	}
	sourceMap, ok := r.Target.Extra["sourceMap"].(map[string]interface{})
	if !ok || sourceMap["/build"] != root {
		t.Errorf("expected resolved sourceMap, got %v", r.Target.Extra["sourceMap"])
	}
}

// TestResolve_Invalid verifies configurations debugify cannot use.
func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  DebugConfiguration
	}{
		{"python", DebugConfiguration{Name: "py", Type: "debugpy", Request: "launch", Program: "app.py"}},
		{"bad request", DebugConfiguration{Name: "x", Type: "go", Request: "run", Program: "."}},
		{"no program", DebugConfiguration{Name: "x", Type: "gdb", Request: "launch"}},
		{"attach without pid", DebugConfiguration{Name: "x", Type: "gdb", Request: "attach", Program: "/bin/app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(&tt.cfg, &ResolutionContext{})
			if de := errors.FromError(err); err == nil || de.Code != errors.CodeConfigInvalid {
				t.Errorf("expected %s, got %v", errors.CodeConfigInvalid, err)
			}
		})
	}
}

// TestDebugConfiguration_Adapter verifies debug types map to adapters.
func TestDebugConfiguration_Adapter(t *testing.T) {
	tests := []struct {
		typ, miMode, want string
	}{
		{"go", "", "delve"},
		{"lldb", "", "lldb"},
		{"codelldb", "", "lldb"},
		{"gdb", "", "gdb"},
		{"cppdbg", "", "gdb"},
		{"cppdbg", "lldb", "lldb"},
		{"node", "", ""},
	}
	for _, tt := range tests {
		c := DebugConfiguration{Type: tt.typ, MIMode: tt.miMode}
		if got := c.Adapter(); got != tt.want {
			t.Errorf("%s/%s: expected %q, got %q", tt.typ, tt.miMode, tt.want, got)
		}
	}
}

// TestSplitArgs verifies shell-style splitting of program arguments.
func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"-v input.txt", []string{"-v", "input.txt"}, false},
		{`--name "two words" 'single quoted'`, []string{"--name", "two words", "single quoted"}, false},
		{"a | b", nil, true},
		{"echo `date`", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := SplitArgs(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
