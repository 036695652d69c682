package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tsantana84/codex-http/internal/config"
)

const (
	// Tool names
	toolSessionCreate  = "session_create"
	toolSessionList    = "session_list"
	toolSessionGet     = "session_get"
	toolSessionSend    = "session_send"
	toolSessionHistory = "session_history"
	toolSessionCancel  = "session_cancel"
	toolSessionDelete  = "session_delete"

	argSessionID = "session_id"
)

// MCPServer exposes session operations as MCP tools
type MCPServer struct {
	server         *server.MCPServer
	sessionManager *SessionManager
	logger         *slog.Logger
	basePath       string
}

// NewMCPServer creates and configures a new MCP server
func NewMCPServer(cfg config.MCPConfig, sessionMgr *SessionManager, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	ms := &MCPServer{
		server:         mcpServer,
		sessionManager: sessionMgr,
		logger:         logger,
		basePath:       cfg.BasePath,
	}
	ms.registerTools()
	return ms
}

// registerTools registers all MCP tools with handlers
func (ms *MCPServer) registerTools() {
	ms.server.AddTool(mcp.NewTool(toolSessionCreate,
		mcp.WithDescription("Create a new agent session"),
		mcp.WithString("model", mcp.Description("Model name; defaults to the server configuration")),
		mcp.WithString("provider", mcp.Description("Model provider")),
		mcp.WithString("approval_mode", mcp.Description("suggest, auto-edit or full-auto")),
		mcp.WithString("instructions", mcp.Description("Additional instructions for the agent")),
	), ms.handleSessionCreate)

	ms.server.AddTool(mcp.NewTool(toolSessionList,
		mcp.WithDescription("List live agent sessions"),
	), ms.handleSessionList)

	ms.server.AddTool(mcp.NewTool(toolSessionGet,
		mcp.WithDescription("Describe an agent session"),
		mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Session ID")),
	), ms.handleSessionGet)

	ms.server.AddTool(mcp.NewTool(toolSessionSend,
		mcp.WithDescription("Send a message to an agent session and return the new items"),
		mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message text")),
	), ms.handleSessionSend)

	ms.server.AddTool(mcp.NewTool(toolSessionHistory,
		mcp.WithDescription("Read a page of a session's message history"),
		mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Session ID")),
		mcp.WithNumber("offset", mcp.Description("First item index (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum items (default 100, max 1000)")),
	), ms.handleSessionHistory)

	ms.server.AddTool(mcp.NewTool(toolSessionCancel,
		mcp.WithDescription("Cancel the in-flight turn of a session"),
		mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Session ID")),
	), ms.handleSessionCancel)

	ms.server.AddTool(mcp.NewTool(toolSessionDelete,
		mcp.WithDescription("Terminate and remove a session"),
		mcp.WithString(argSessionID, mcp.Required(), mcp.Description("Session ID")),
	), ms.handleSessionDelete)
}

func (ms *MCPServer) handleSessionCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := ms.sessionManager.CreateSession(ctx, CreateSessionRequest{
		Model:        request.GetString("model", ""),
		Provider:     request.GetString("provider", ""),
		ApprovalMode: request.GetString("approval_mode", ""),
		Instructions: request.GetString("instructions", ""),
	})
	if err != nil {
		return ms.toolError(toolSessionCreate, err), nil
	}
	return jsonResult(session.Info())
}

func (ms *MCPServer) handleSessionList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := ms.sessionManager.ListSessions(ctx)
	return jsonResult(map[string]any{
		"sessions":   sessions,
		"totalCount": len(sessions),
	})
}

func (ms *MCPServer) handleSessionGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString(argSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, ok := ms.sessionManager.GetSession(ctx, sessionID)
	if !ok {
		return ms.toolError(toolSessionGet, ErrSessionNotFound), nil
	}
	session.Touch()
	return jsonResult(session.Info())
}

func (ms *MCPServer) handleSessionSend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString(argSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := ms.sessionManager.SendMessage(ctx, sessionID, message, nil)
	if err != nil {
		return ms.toolError(toolSessionSend, err), nil
	}
	return jsonResult(result)
}

func (ms *MCPServer) handleSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString(argSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := ms.sessionManager.History(ctx, sessionID,
		request.GetInt("offset", 0),
		request.GetInt("limit", config.DefaultHistoryLimit))
	if err != nil {
		return ms.toolError(toolSessionHistory, err), nil
	}
	return jsonResult(page)
}

func (ms *MCPServer) handleSessionCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString(argSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := ms.sessionManager.CancelTurn(ctx, sessionID); err != nil {
		return ms.toolError(toolSessionCancel, err), nil
	}
	return jsonResult(map[string]any{"sessionId": sessionID, "status": "cancelled"})
}

func (ms *MCPServer) handleSessionDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString(argSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := ms.sessionManager.DeleteSession(ctx, sessionID); err != nil {
		return ms.toolError(toolSessionDelete, err), nil
	}
	return jsonResult(map[string]any{"sessionId": sessionID, "status": "deleted"})
}

// toolError converts a domain error into an MCP tool error result
func (ms *MCPServer) toolError(tool string, err error) *mcp.CallToolResult {
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionBusy) {
		ms.logger.Warn("mcp tool failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// SSEHandler returns the MCP SSE transport rooted at the configured base
// path. baseURL is the externally visible server URL used in the endpoint
// announcement.
func (ms *MCPServer) SSEHandler(baseURL string) *server.SSEServer {
	return server.NewSSEServer(ms.server,
		server.WithBaseURL(baseURL),
		server.WithStaticBasePath(ms.basePath),
	)
}

// BasePath returns the path prefix the SSE transport serves under
func (ms *MCPServer) BasePath() string {
	return ms.basePath
}
