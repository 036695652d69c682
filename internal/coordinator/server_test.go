package coordinator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tsantana84/codex-http/internal/config"
)

func newTestMCPServer(t *testing.T) (*MCPServer, *testHarness) {
	t.Helper()
	h := newHarness(t, 1)
	cfg := config.Default().MCP
	return NewMCPServer(cfg, h.manager, testLogger()), h
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestMCPSessionLifecycle(t *testing.T) {
	ms, h := newTestMCPServer(t)
	ctx := context.Background()

	result, err := ms.handleSessionCreate(ctx, callTool(toolSessionCreate, map[string]any{"model": "gpt-4.1"}))
	if err != nil || result.IsError {
		t.Fatalf("session_create failed: %v %v", err, result)
	}
	var info SessionInfo
	if err := json.Unmarshal([]byte(resultText(t, result)), &info); err != nil {
		t.Fatalf("Invalid session_create payload: %v", err)
	}
	if info.ID == "" || info.Config.Model != "gpt-4.1" {
		t.Errorf("Unexpected session info %+v", info)
	}

	result, _ = ms.handleSessionSend(ctx, callTool(toolSessionSend, map[string]any{
		"session_id": info.ID,
		"message":    "hello",
	}))
	if result.IsError {
		t.Fatalf("session_send failed: %s", resultText(t, result))
	}
	var turn TurnResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &turn); err != nil {
		t.Fatal(err)
	}
	if len(turn.Items) != 1 || turn.TotalMessageCount != 1 {
		t.Errorf("Unexpected turn result %+v", turn)
	}

	result, _ = ms.handleSessionHistory(ctx, callTool(toolSessionHistory, map[string]any{
		"session_id": info.ID,
		"limit":      float64(10),
	}))
	if !strings.Contains(resultText(t, result), `"totalCount":1`) {
		t.Errorf("Unexpected history %s", resultText(t, result))
	}

	result, _ = ms.handleSessionList(ctx, callTool(toolSessionList, nil))
	if !strings.Contains(resultText(t, result), info.ID) {
		t.Errorf("session_list should include the session: %s", resultText(t, result))
	}

	result, _ = ms.handleSessionCancel(ctx, callTool(toolSessionCancel, map[string]any{"session_id": info.ID}))
	if result.IsError {
		t.Errorf("session_cancel on idle session should succeed: %s", resultText(t, result))
	}

	result, _ = ms.handleSessionDelete(ctx, callTool(toolSessionDelete, map[string]any{"session_id": info.ID}))
	if result.IsError {
		t.Errorf("session_delete failed: %s", resultText(t, result))
	}
	if h.manager.SessionCount(ctx) != 0 {
		t.Error("Session should be gone after session_delete")
	}
}

func TestMCPErrors(t *testing.T) {
	ms, _ := newTestMCPServer(t)
	ctx := context.Background()

	result, err := ms.handleSessionGet(ctx, callTool(toolSessionGet, map[string]any{"session_id": "missing"}))
	if err != nil {
		t.Fatalf("Handlers report failures as tool errors, got %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "session not found") {
		t.Errorf("Expected not found tool error, got %s", resultText(t, result))
	}

	result, _ = ms.handleSessionSend(ctx, callTool(toolSessionSend, map[string]any{"message": "hi"}))
	if !result.IsError {
		t.Error("Missing session_id should be a tool error")
	}

	result, _ = ms.handleSessionCreate(ctx, callTool(toolSessionCreate, map[string]any{"approval_mode": "sometimes"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "invalid approval mode") {
		t.Errorf("Expected approval mode error, got %s", resultText(t, result))
	}
}
