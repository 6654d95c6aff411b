package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultWait bounds how long start_run and resume_run wait for the run to rest.
const DefaultWait = 60 * time.Second

// Driver is the run lifecycle the tools operate on.
type Driver interface {
	Start(ctx context.Context, prompt any) error
	SetInputField(key string, value any) error
	Resume(ctx context.Context) error
	Wait(ctx context.Context, states ...domain.RunState) (domain.Snapshot, error)
	Snapshot() domain.Snapshot
}

// RunView is the structured result returned by every tool.
type RunView struct {
	State     domain.RunState         `json:"state" jsonschema_description:"Lifecycle state of the run"`
	RunID     string                  `json:"run_id,omitempty" jsonschema_description:"Identifier assigned by the backend"`
	Events    []any                   `json:"events" jsonschema_description:"Payloads received so far, in arrival order"`
	Interrupt domain.InterruptRequest `json:"interrupt,omitempty" jsonschema_description:"Fields requested by the paused run, with their prompts"`
	Pending   domain.PendingInput     `json:"pending,omitempty" jsonschema_description:"Input collected for the next resume"`
	Missing   []string                `json:"missing,omitempty" jsonschema_description:"Requested fields with no pending value yet"`
	Result    any                     `json:"result,omitempty" jsonschema_description:"Final result of a completed run"`
	Error     string                  `json:"error,omitempty" jsonschema_description:"Failure reason of a failed run"`
}

// NewRunView projects a snapshot for tool output.
func NewRunView(snap domain.Snapshot) RunView {
	v := RunView{
		State:     snap.State,
		RunID:     string(snap.RunID),
		Events:    snap.Events,
		Interrupt: snap.Interrupt,
		Pending:   snap.Pending,
		Result:    snap.Result,
		Error:     snap.Error,
	}
	if v.Events == nil {
		v.Events = []any{}
	}
	if snap.Interrupt != nil {
		v.Missing = snap.Interrupt.Missing(snap.Pending)
	}
	return v
}

type startArgs struct {
	Prompt      string  `json:"prompt"`
	WaitSeconds float64 `json:"wait_seconds"`
}

type setInputArgs struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type resumeArgs struct {
	WaitSeconds float64 `json:"wait_seconds"`
}

type getArgs struct{}

// Server exposes a Driver as MCP tools.
type Server struct {
	driver    Driver
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(driver Driver, version string, opts ...Option) *Server {
	s := &Server{
		driver:    driver,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("tether-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Listen serves MCP over the given streams until ctx ends or in is closed.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	waitOpt := mcp.WithNumber("wait_seconds",
		mcp.Description("How long to wait for the run to pause or finish (default 60)"),
	)

	s.mcpServer.AddTool(mcp.NewTool("start_run",
		mcp.WithDescription("Start a workflow run and wait until it needs input or finishes."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What the workflow should do")),
		waitOpt,
		mcp.WithOutputSchema[RunView](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("set_input",
		mcp.WithDescription("Set a value for one of the fields requested by the paused run."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Field key from the run's interrupt")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value for the field")),
		mcp.WithOutputSchema[RunView](),
	), mcp.NewStructuredToolHandler(s.handleSetInput))

	s.mcpServer.AddTool(mcp.NewTool("resume_run",
		mcp.WithDescription("Submit the collected input and wait until the run needs input again or finishes."),
		waitOpt,
		mcp.WithOutputSchema[RunView](),
	), mcp.NewStructuredToolHandler(s.handleResume))

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Return the current run without changing it."),
		mcp.WithOutputSchema[RunView](),
	), mcp.NewStructuredToolHandler(s.handleGet))
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args startArgs) (RunView, error) {
	if args.Prompt == "" {
		return RunView{}, errors.New("prompt is required")
	}
	s.logger.Info("mcp: start_run")
	if err := s.driver.Start(ctx, args.Prompt); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return RunView{}, err
		}
		// The failure is part of the run; report it as a view.
		return NewRunView(s.driver.Snapshot()), nil
	}
	return s.waitForRest(ctx, args.WaitSeconds)
}

func (s *Server) handleSetInput(ctx context.Context, request mcp.CallToolRequest, args setInputArgs) (RunView, error) {
	if err := s.driver.SetInputField(args.Key, args.Value); err != nil {
		return RunView{}, err
	}
	return NewRunView(s.driver.Snapshot()), nil
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest, args resumeArgs) (RunView, error) {
	s.logger.Info("mcp: resume_run")
	if err := s.driver.Resume(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return RunView{}, err
		}
		return NewRunView(s.driver.Snapshot()), nil
	}
	return s.waitForRest(ctx, args.WaitSeconds)
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest, args getArgs) (RunView, error) {
	return NewRunView(s.driver.Snapshot()), nil
}

func (s *Server) waitForRest(ctx context.Context, seconds float64) (RunView, error) {
	wait := DefaultWait
	if seconds > 0 {
		wait = time.Duration(seconds * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	snap, err := s.driver.Wait(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return RunView{}, fmt.Errorf("wait for run: %w", err)
	}
	// On timeout the run is still streaming; the caller polls with get_run.
	return NewRunView(snap), nil
}
