package test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// serverPath is the debugify binary built by TestMain, or "" when the build
// was not possible.
var serverPath string

type MCPClient struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	reader    *bufio.Reader
	requestID int
}

func NewMCPClient(t *testing.T, args ...string) *MCPClient {
	t.Helper()
	if serverPath == "" {
		t.Skip("debugify binary not available")
	}

	cmd := exec.Command(serverPath, append([]string{"serve"}, args...)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting server: %v", err)
	}

	c := &MCPClient{cmd: cmd, stdin: stdin, reader: bufio.NewReader(stdout)}
	t.Cleanup(c.Close)

	resp, err := c.SendRequest("initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "test",
			"version": "1.0.0",
		},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if resp["error"] != nil {
		t.Fatalf("Initialize returned error: %v", resp["error"])
	}
	return c
}

func (c *MCPClient) Close() {
	_ = c.stdin.Close()
	_ = c.cmd.Process.Kill()
	_ = c.cmd.Wait()
}

func (c *MCPClient) SendRequest(method string, params interface{}) (map[string]interface{}, error) {
	c.requestID++

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.requestID,
		"method":  method,
	}
	if params != nil {
		request["params"] = params
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	// mcp-go uses newline-delimited JSON
	if _, err := c.stdin.Write(append(body, '\n')); err != nil {
		return nil, err
	}
	return c.readResponse()
}

func (c *MCPClient) readResponse() (map[string]interface{}, error) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var result map[string]interface{}
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			continue
		}
		// Notifications carry no id.
		if result["id"] == nil {
			continue
		}
		return result, nil
	}
}

// CallTool calls a tool and decodes its JSON text result into out. A tool
// level error is returned as an error carrying the error text.
func (c *MCPClient) CallTool(name string, args map[string]interface{}, out interface{}) error {
	resp, err := c.SendRequest("tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return err
	}
	if resp["error"] != nil {
		return fmt.Errorf("%s: protocol error %v", name, resp["error"])
	}

	result := resp["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	if len(content) == 0 {
		return fmt.Errorf("%s: no content", name)
	}
	text := content[0].(map[string]interface{})["text"].(string)
	if isErr, _ := result["isError"].(bool); isErr {
		return fmt.Errorf("%s", text)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(text), out)
}

type targetState struct {
	Target struct {
		ID      string `json:"id"`
		Process *struct {
			PID             int    `json:"pid"`
			State           string `json:"state"`
			ExitStatus      int    `json:"exitStatus"`
			ExitDescription string `json:"exitDescription"`
		} `json:"process"`
	} `json:"target"`
	Output struct {
		Stdout string `json:"stdout"`
	} `json:"output"`
	Events []string `json:"events"`
}

// waitForState polls debug_state until the process reaches one of states. It
// returns the stdout and the events collected while polling.
func waitForState(t *testing.T, c *MCPClient, targetID string, states ...string) (string, []string) {
	t.Helper()
	var (
		stdout strings.Builder
		events []string
	)
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		var st targetState
		if err := c.CallTool("debug_state", map[string]interface{}{"targetId": targetID}, &st); err != nil {
			t.Fatalf("debug_state failed: %v", err)
		}
		stdout.WriteString(st.Output.Stdout)
		events = append(events, st.Events...)
		if st.Target.Process != nil {
			for _, s := range states {
				if st.Target.Process.State == s {
					return stdout.String(), events
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", states)
	return "", nil
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "debugify-test")
	if err == nil {
		bin := filepath.Join(dir, "debugify")
		build := exec.Command("go", "build", "-o", bin, "../cmd/debugify")
		build.Stderr = os.Stderr
		if build.Run() == nil {
			serverPath = bin
		}
	}
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestMCPServer(t *testing.T) {
	client := NewMCPClient(t, "--mode", "full")

	t.Run("ListTools", func(t *testing.T) {
		resp, err := client.SendRequest("tools/list", nil)
		if err != nil {
			t.Fatalf("List tools failed: %v", err)
		}
		if resp["error"] != nil {
			t.Fatalf("List tools returned error: %v", resp["error"])
		}

		toolNames := make(map[string]bool)
		for _, tool := range resp["result"].(map[string]interface{})["tools"].([]interface{}) {
			toolNames[tool.(map[string]interface{})["name"].(string)] = true
		}
		for _, name := range []string{
			"debug_load_target",
			"debug_launch",
			"debug_attach",
			"debug_list_targets",
			"debug_state",
			"debug_breakpoints",
			"debug_step",
			"debug_continue",
		} {
			if !toolNames[name] {
				t.Errorf("Missing expected tool: %s", name)
			}
		}
	})

	t.Run("ListTargets_Empty", func(t *testing.T) {
		var targets struct {
			Count int `json:"count"`
		}
		if err := client.CallTool("debug_list_targets", map[string]interface{}{}, &targets); err != nil {
			t.Fatalf("List targets failed: %v", err)
		}
		if targets.Count != 0 {
			t.Errorf("Expected no targets, got %d", targets.Count)
		}
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		err := client.CallTool("debug_state", map[string]interface{}{"targetId": "nope"}, nil)
		if err == nil || !strings.HasPrefix(err.Error(), "TARGET_NOT_FOUND") {
			t.Errorf("Expected TARGET_NOT_FOUND, got %v", err)
		}
	})
}

func TestReadOnlyMode(t *testing.T) {
	client := NewMCPClient(t, "--mode", "readonly")

	resp, err := client.SendRequest("tools/list", nil)
	if err != nil {
		t.Fatalf("List tools failed: %v", err)
	}
	for _, tool := range resp["result"].(map[string]interface{})["tools"].([]interface{}) {
		if name := tool.(map[string]interface{})["name"].(string); name == "debug_continue" || name == "debug_kill" {
			t.Errorf("Control tool %s registered in readonly mode", name)
		}
	}
}

func TestGoDebugSession(t *testing.T) {
	if _, err := exec.LookPath("dlv"); err != nil {
		t.Skip("dlv not found in PATH")
	}
	client := NewMCPClient(t, "--mode", "full")

	program, _ := filepath.Abs("go_project")
	source := filepath.Join(program, "calculator.go")

	var target struct {
		ID string `json:"id"`
	}
	if err := client.CallTool("debug_load_target", map[string]interface{}{
		"program": program,
		"adapter": "delve",
	}, &target); err != nil {
		t.Fatalf("Load target failed: %v", err)
	}

	// Line 9 is the body of add.
	if err := client.CallTool("debug_breakpoints", map[string]interface{}{
		"targetId": target.ID,
		"action":   "add",
		"file":     source,
		"line":     9,
	}, nil); err != nil {
		t.Fatalf("Add breakpoint failed: %v", err)
	}

	if err := client.CallTool("debug_launch", map[string]interface{}{"targetId": target.ID}, nil); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	waitForState(t, client, target.ID, "stopped")

	var threads struct {
		Threads []struct {
			Frames []struct {
				Function string `json:"function"`
				Line     int    `json:"line"`
			} `json:"frames"`
		} `json:"threads"`
	}
	if err := client.CallTool("debug_threads", map[string]interface{}{"targetId": target.ID, "maxFrames": 5}, &threads); err != nil {
		t.Fatalf("Threads failed: %v", err)
	}
	found := false
	for _, th := range threads.Threads {
		if len(th.Frames) > 0 && th.Frames[0].Function == "main.add" && th.Frames[0].Line == 9 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a thread stopped in main.add: %+v", threads.Threads)
	}

	var bps struct {
		Found bool `json:"found"`
	}
	if err := client.CallTool("debug_breakpoints", map[string]interface{}{
		"targetId": target.ID,
		"action":   "find",
		"file":     source,
		"line":     9,
	}, &bps); err != nil || !bps.Found {
		t.Errorf("Expected the breakpoint to be found, got %v %v", bps.Found, err)
	}

	// Drop the breakpoint so the run completes.
	if err := client.CallTool("debug_breakpoints", map[string]interface{}{
		"targetId": target.ID,
		"action":   "disable",
		"id":       1,
	}, nil); err != nil {
		t.Fatalf("Disable breakpoint failed: %v", err)
	}
	if err := client.CallTool("debug_continue", map[string]interface{}{"targetId": target.ID}, nil); err != nil {
		t.Fatalf("Continue failed: %v", err)
	}

	stdout, events := waitForState(t, client, target.ID, "exited", "invalid")
	if !strings.Contains(stdout, "5 + 3 = 8") {
		t.Logf("program output: %q", stdout)
	}
	exited := false
	for _, e := range events {
		if strings.HasPrefix(e, "state exited") && strings.Contains(e, "status 3") {
			exited = true
		}
	}
	if !exited {
		t.Errorf("expected an exit with status 3 in the events, got %q", events)
	}

	if err := client.CallTool("debug_close_target", map[string]interface{}{"targetId": target.ID}, nil); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
