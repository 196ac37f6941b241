// Package mcp exposes the session engine as an MCP server, so an outer
// assistant can drive device automation as a tool.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/roam/pkg/domain"
)

// Engine is the session surface the MCP tools call.
type Engine interface {
	Run(ctx context.Context, goal string) (*domain.State, error)
	Session(ctx context.Context, sessionID string) (*domain.State, error)
	Sessions(ctx context.Context) ([]string, error)
}

// GoalResult is the structured output of the run_goal tool.
type GoalResult struct {
	SessionID string   `json:"session_id" jsonschema_description:"Identifier of the finished session"`
	Done      bool     `json:"done" jsonschema_description:"Whether the goal completed"`
	Plan      string   `json:"plan" jsonschema_description:"Final plan rendering, one subgoal per line"`
	Thoughts  []string `json:"thoughts" jsonschema_description:"Recorded reasoning, most recent last"`
	Error     string   `json:"error,omitempty" jsonschema_description:"Error message when the run failed"`
}

// SessionResult is the structured output of the get_session tool.
type SessionResult struct {
	SessionID string        `json:"session_id"`
	Goal      string        `json:"goal"`
	Done      bool          `json:"done"`
	Cycle     int           `json:"cycle"`
	Plan      string        `json:"plan"`
	State     *domain.State `json:"state,omitempty" jsonschema_description:"The full session state"`
}

// Server wraps the engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine Engine, version string) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("roam-mcp", version),
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	errs := make(chan error, 1)
	go func() { errs <- httpServer.ListenAndServe() }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	runTool := mcp.NewTool("run_goal",
		mcp.WithDescription("Run an automation goal on the connected mobile device and wait for the result."),
		mcp.WithString("goal", mcp.Required(), mcp.Description("Natural-language goal to accomplish on the device")),
		mcp.WithOutputSchema[GoalResult](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRunGoal))

	sessionTool := mcp.NewTool("get_session",
		mcp.WithDescription("Inspect a finished or running session by id."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The session identifier")),
		mcp.WithBoolean("full", mcp.Description("Include the full state, not just the summary")),
		mcp.WithOutputSchema[SessionResult](),
	)
	s.mcpServer.AddTool(sessionTool, mcp.NewStructuredToolHandler(s.handleGetSession))

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the ids of persisted sessions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessions, err := s.engine.Sessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing sessions failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%v", sessions)), nil
	})
}

func (s *Server) handleRunGoal(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (GoalResult, error) {
	goal, _ := args["goal"].(string)
	if goal == "" {
		return GoalResult{}, fmt.Errorf("goal is required")
	}

	state, err := s.engine.Run(ctx, goal)
	result := GoalResult{}
	if state != nil {
		result.SessionID = state.SessionID
		result.Done = state.Done
		result.Plan = state.Plan.String()
		result.Thoughts = state.Thoughts
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionResult, error) {
	id, _ := args["session_id"].(string)
	state, err := s.engine.Session(ctx, id)
	if err != nil {
		return SessionResult{}, fmt.Errorf("loading session: %w", err)
	}

	result := SessionResult{
		SessionID: state.SessionID,
		Goal:      state.Goal,
		Done:      state.Done,
		Cycle:     state.Cycle,
		Plan:      state.Plan.String(),
	}
	if full, _ := args["full"].(bool); full {
		result.State = state
	}
	return result, nil
}
