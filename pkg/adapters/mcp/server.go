// Package mcp exposes call flow sessions as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/aretw0/callflow/pkg/syncer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// LeadsURI is the resource exposing the lead index.
const LeadsURI = "callflow://leads"

// SessionResult is the structured output of every session tool.
type SessionResult struct {
	SessionID string `json:"session_id" jsonschema_description:"Id to pass to the other tools"`
	session.View
}

// Server exposes a session.Manager as an MCP server.
type Server struct {
	client    *callflow.Client
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(client *callflow.Client, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		client:    client,
		sessions:  sessions,
		mcpServer: server.NewMCPServer("callflow-mcp", strings.TrimSpace(callflow.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
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

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type openArgs struct {
	Location string `json:"location"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type navigateArgs struct {
	SessionID string `json:"session_id"`
	Node      string `json:"node"`
	Choice    *int   `json:"choice"`
}

type discardArgs struct {
	SessionID string `json:"session_id"`
	Discard   bool   `json:"discard"`
}

type editNodeArgs struct {
	SessionID string  `json:"session_id"`
	Label     *string `json:"label"`
	Say       *string `json:"say"`
	Note      *string `json:"note"`
}

type contextArgs struct {
	SessionID string `json:"session_id"`
	Context   string `json:"context"`
}

type branchArgs struct {
	SessionID string  `json:"session_id"`
	Index     int     `json:"index"`
	To        string  `json:"to"`
	Label     *string `json:"label"`
}

type nodeArgs struct {
	SessionID string `json:"session_id"`
	ID        string `json:"id"`
}

type saveArgs struct {
	SessionID  string `json:"session_id"`
	Credential string `json:"credential"`
}

func sessionID() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id returned by open_flow"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("open_flow",
		mcp.WithDescription("Open a lead's call flow. Returns a session id and the current view."),
		mcp.WithString("location", mcp.Required(), mcp.Description(`Location token, e.g. "lead/acme" or "lead/acme/pitch"`)),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleOpenFlow))

	s.mcpServer.AddTool(mcp.NewTool("view",
		mcp.WithDescription("Show the current node, breadcrumb trail and save state."),
		sessionID(),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleView))

	s.mcpServer.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Follow a branch of the current node by index, or jump to a node id."),
		sessionID(),
		mcp.WithNumber("choice", mcp.Description("Branch index of the current node")),
		mcp.WithString("node", mcp.Description("Node id to jump to when choice is omitted")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleNavigate))

	s.mcpServer.AddTool(mcp.NewTool("start_over",
		mcp.WithDescription("Return to the start node with a fresh trail."),
		sessionID(),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleStartOver))

	s.mcpServer.AddTool(mcp.NewTool("enter_edit",
		mcp.WithDescription("Enter edit mode."),
		sessionID(),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleEnterEdit))

	s.mcpServer.AddTool(mcp.NewTool("exit_edit",
		mcp.WithDescription("Leave edit mode. Unsaved edits are only discarded when discard is true."),
		sessionID(),
		mcp.WithBoolean("discard", mcp.Description("Confirm discarding unsaved edits")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleExitEdit))

	s.mcpServer.AddTool(mcp.NewTool("edit_node",
		mcp.WithDescription("Change the label, say or note of the current node. Omitted fields are kept."),
		sessionID(),
		mcp.WithString("label", mcp.Description("New label")),
		mcp.WithString("say", mcp.Description("New utterance")),
		mcp.WithString("note", mcp.Description("New coaching note")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleEditNode))

	s.mcpServer.AddTool(mcp.NewTool("set_context",
		mcp.WithDescription("Replace the briefing text of the flow."),
		sessionID(),
		mcp.WithString("context", mcp.Required(), mcp.Description("Briefing text")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleSetContext))

	s.mcpServer.AddTool(mcp.NewTool("add_branch",
		mcp.WithDescription("Append a placeholder branch looping back to the current node."),
		sessionID(),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleAddBranch))

	s.mcpServer.AddTool(mcp.NewTool("delete_branch",
		mcp.WithDescription("Remove a branch of the current node."),
		sessionID(),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Branch index")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleDeleteBranch))

	s.mcpServer.AddTool(mcp.NewTool("retarget_branch",
		mcp.WithDescription("Point a branch of the current node to another node, optionally renaming it."),
		sessionID(),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Branch index")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target node id")),
		mcp.WithString("label", mcp.Description("New branch label")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleRetargetBranch))

	s.mcpServer.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Create a node and navigate to it."),
		sessionID(),
		mcp.WithString("id", mcp.Required(), mcp.Description("New node id")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleAddNode))

	s.mcpServer.AddTool(mcp.NewTool("save",
		mcp.WithDescription("Save the edits. Fails with a conflict when the flow changed elsewhere since it was loaded."),
		sessionID(),
		mcp.WithString("credential", mcp.Description("Write credential; the configured one is used when omitted")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleSave))

	s.mcpServer.AddTool(mcp.NewTool("close_flow",
		mcp.WithDescription("Close a session. Unsaved edits are only discarded when discard is true."),
		sessionID(),
		mcp.WithBoolean("discard", mcp.Description("Confirm discarding unsaved edits")),
	), s.handleCloseFlow)
}

func (s *Server) handleOpenFlow(ctx context.Context, _ mcp.CallToolRequest, args openArgs) (SessionResult, error) {
	id, fs, err := s.sessions.Open(ctx, args.Location)
	if err != nil {
		return SessionResult{}, describe(err)
	}
	return SessionResult{SessionID: id, View: fs.View()}, nil
}

func (s *Server) handleView(_ context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(*session.FlowSession) error { return nil })
}

func (s *Server) handleNavigate(_ context.Context, _ mcp.CallToolRequest, args navigateArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		if args.Choice != nil {
			_, err := fs.Choose(*args.Choice)
			return err
		}
		if !fs.Navigate(args.Node) {
			return fmt.Errorf("%w: %q", domain.ErrNodeNotFound, args.Node)
		}
		return nil
	})
}

func (s *Server) handleStartOver(_ context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		fs.StartOver()
		return nil
	})
}

func (s *Server) handleEnterEdit(_ context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		fs.EnterEdit()
		return nil
	})
}

func (s *Server) handleExitEdit(ctx context.Context, _ mcp.CallToolRequest, args discardArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		return fs.ExitEdit(ctx, confirmer(args.Discard))
	})
}

func (s *Server) handleEditNode(_ context.Context, _ mcp.CallToolRequest, args editNodeArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		if args.Label != nil {
			if err := fs.SetLabel(*args.Label); err != nil {
				return err
			}
		}
		if args.Say != nil {
			if err := fs.SetSay(*args.Say); err != nil {
				return err
			}
		}
		if args.Note != nil {
			return fs.SetNote(*args.Note)
		}
		return nil
	})
}

func (s *Server) handleSetContext(_ context.Context, _ mcp.CallToolRequest, args contextArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		return fs.SetContext(args.Context)
	})
}

func (s *Server) handleAddBranch(_ context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		return fs.AddBranch()
	})
}

func (s *Server) handleDeleteBranch(_ context.Context, _ mcp.CallToolRequest, args branchArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		return fs.DeleteBranch(args.Index)
	})
}

func (s *Server) handleRetargetBranch(_ context.Context, _ mcp.CallToolRequest, args branchArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		if err := fs.RetargetBranch(args.Index, args.To); err != nil {
			return err
		}
		if args.Label != nil {
			return fs.SetBranchLabel(args.Index, *args.Label)
		}
		return nil
	})
}

func (s *Server) handleAddNode(_ context.Context, _ mcp.CallToolRequest, args nodeArgs) (SessionResult, error) {
	return s.with(args.SessionID, func(fs *session.FlowSession) error {
		return fs.AddNode(args.ID)
	})
}

func (s *Server) handleSave(ctx context.Context, _ mcp.CallToolRequest, args saveArgs) (SessionResult, error) {
	var creds ports.CredentialStore
	if args.Credential != "" {
		creds = syncer.NewStaticCredential(args.Credential)
	}
	if _, err := s.sessions.Save(ctx, args.SessionID, creds); err != nil {
		return SessionResult{}, describe(err)
	}
	return s.handleView(ctx, mcp.CallToolRequest{}, sessionArgs{SessionID: args.SessionID})
}

func (s *Server) handleCloseFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "session_id", "")
	discard := mcp.ParseBoolean(request, "discard", false)
	if err := s.sessions.Close(ctx, id, confirmer(discard)); err != nil {
		return mcp.NewToolResultError(domain.Describe(err)), nil
	}
	return mcp.NewToolResultText("closed " + id), nil
}

func (s *Server) with(id string, fn func(*session.FlowSession) error) (SessionResult, error) {
	fs, err := s.sessions.Get(id)
	if err != nil {
		return SessionResult{}, describe(err)
	}
	if err := fn(fs); err != nil {
		s.logger.Debug("MCP tool rejected", "session_id", id, "err", err)
		return SessionResult{}, describe(err)
	}
	return SessionResult{SessionID: id, View: fs.View()}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(LeadsURI, "Lead index",
		mcp.WithResourceDescription("Subjects of the collection, for open_flow locations"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadLeads)
}

func (s *Server) handleReadLeads(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	leads, err := s.client.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead index: %w", err)
	}
	jsonBytes, err := json.Marshal(leads)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

// describe keeps the error chain and prefixes the user-facing text.
func describe(err error) error {
	msg := domain.Describe(err)
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func confirmer(discard bool) ports.Confirmer {
	if discard {
		return ports.AlwaysConfirm
	}
	return ports.NeverConfirm
}
