// Package mcp exposes debugify's session layer as Model Context Protocol
// tools.
//
// Every tool call is marshalled onto the debug context (internal/pump) and
// answers with JSON built from pkg/types. Targets are addressed by uuid.
//
// Targets (always available):
//   - debug_load_target, debug_launch, debug_attach
//   - debug_list_targets, debug_close_target
//
// Inspection (always available):
//   - debug_state, debug_threads, debug_select_thread, debug_modules
//   - debug_breakpoints
//
// Control (full mode only):
//   - debug_continue, debug_pause, debug_step, debug_kill
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/adapters"
	"github.com/ctagard/debugify/internal/backend"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/errors"
	"github.com/ctagard/debugify/internal/logflags"
	"github.com/ctagard/debugify/internal/pump"
	"github.com/ctagard/debugify/internal/version"
)

// Option configures a Server.
type Option func(*Server)

// WithBackend replaces the DAP backend built from the adapter registry.
func WithBackend(b backend.Backend) Option {
	return func(s *Server) {
		s.backend = b
	}
}

// WithPump runs tool calls on an existing debug context. The server will not
// close it.
func WithPump(p *pump.Pump) Option {
	return func(s *Server) {
		s.pump = p
		s.ownsPump = false
	}
}

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer *server.MCPServer
	config    *config.Config
	backend   backend.Backend
	pump      *pump.Pump
	ownsPump  bool
	log       *logrus.Entry

	tools []string

	// Debug context only.
	targets map[string]*targetEntry
	order   []string
}

// NewServer creates a new debugify MCP server
func NewServer(cfg *config.Config, opts ...Option) *Server {
	mcpServer := server.NewMCPServer(
		"debugify",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		config:    cfg,
		ownsPump:  true,
		log:       logflags.MCPLogger(),
		targets:   make(map[string]*targetEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = adapters.NewRegistry(cfg).Backend(cfg.RequestTimeout.Std())
	}
	if s.pump == nil {
		s.pump = pump.New(cfg.PumpInterval.Std())
	}

	s.registerTools()
	return s
}

// addTool registers a tool with the MCP server.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// ToolNames lists the registered tools in registration order.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Close releases every target and stops the debug context.
func (s *Server) Close() {
	err := s.pump.Do(context.Background(), func() {
		for _, id := range append([]string(nil), s.order...) {
			s.closeTarget(id)
		}
	})
	if err != nil {
		s.log.Warnf("closing targets failed: %v", err)
	}
	if s.ownsPump {
		s.pump.Close()
	}
}

// call runs fn on the debug context and turns its outcome into a tool result.
func (s *Server) call(ctx context.Context, tool string, fn func() (interface{}, error)) (*mcp.CallToolResult, error) {
	var (
		result interface{}
		err    error
	)
	if perr := s.pump.Do(ctx, func() { result, err = fn() }); perr != nil {
		err = perr
	}
	if err != nil {
		s.log.Debugf("%s failed: %v", tool, err)
		return toolError(err), nil
	}
	return jsonResult(result)
}

// toolError reports err as "CODE: message | Hint: ...".
func toolError(err error) *mcp.CallToolResult {
	de := errors.FromError(err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", de.Code, de.Error()))
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
