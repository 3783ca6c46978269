package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/omnicore/assistant/internal/assistant"
	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/provider"
	"github.com/omnicore/assistant/internal/storage"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a := assistant.New(store)
	a.SetGeneratorFactory(func(chat.Config) provider.Generator { return provider.NewMock(0) })
	return MCPDeps{Assistant: a}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPChat(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpChat(deps)(context.Background(), makeCallToolRequest("chat", map[string]interface{}{
		"message": "你好",
	}))
	if err != nil {
		t.Fatalf("chat tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("chat tool errored: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "OmniCore 智能助手") {
		t.Errorf("chat reply missing greeting template:\n%s", toolText(t, result))
	}

	if got := deps.Assistant.Messages(); len(got) != 2 {
		t.Errorf("conversation has %d messages, want 2", len(got))
	}
}

func TestMCPChat_MissingMessage(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpChat(deps)(context.Background(), makeCallToolRequest("chat", nil))
	if err != nil {
		t.Fatalf("chat tool: %v", err)
	}
	if !result.IsError {
		t.Error("missing message did not produce a tool error")
	}
}

func TestMCPRememberAndRecall(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpRemember(deps)(context.Background(), makeCallToolRequest("remember", map[string]interface{}{
		"key":   "常用地址",
		"value": "0xabc123def0",
		"type":  "contact",
	}))
	if err != nil {
		t.Fatalf("remember tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("remember tool errored: %s", toolText(t, result))
	}

	recall, err := mcpRecall(deps)(context.Background(), makeCallToolRequest("recall", nil))
	if err != nil {
		t.Fatalf("recall tool: %v", err)
	}
	var items []chat.MemoryItem
	if err := json.Unmarshal([]byte(toolText(t, recall)), &items); err != nil {
		t.Fatalf("recall output is not a memory list: %v", err)
	}
	if len(items) != 1 || items[0].Type != chat.MemoryContact || items[0].Value != "0xabc123def0" {
		t.Errorf("recalled %+v, want the stored contact", items)
	}
}

func TestMCPRemember_UnknownType(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpRemember(deps)(context.Background(), makeCallToolRequest("remember", map[string]interface{}{
		"key":   "k",
		"value": "v",
		"type":  "telepathy",
	}))
	if err != nil {
		t.Fatalf("remember tool: %v", err)
	}
	if !result.IsError {
		t.Error("unknown memory type did not produce a tool error")
	}
}

func TestMCPRecall_Empty(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpRecall(deps)(context.Background(), makeCallToolRequest("recall", nil))
	if err != nil {
		t.Fatalf("recall tool: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("empty recall = %q, want []", got)
	}
}

func TestMCPForget(t *testing.T) {
	deps := newTestMCPDeps(t)

	item, err := deps.Assistant.AddMemory(chat.MemoryDraft{
		Type: chat.MemoryInsight, Key: "k", Value: "v", Confidence: 1.0,
	})
	if err != nil {
		t.Fatalf("seeding memory: %v", err)
	}

	result, err := mcpForget(deps)(context.Background(), makeCallToolRequest("forget", map[string]interface{}{
		"id": item.ID,
	}))
	if err != nil {
		t.Fatalf("forget tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("forget tool errored: %s", toolText(t, result))
	}
	if got := deps.Assistant.Memories(); len(got) != 0 {
		t.Errorf("%d memories after forget, want 0", len(got))
	}
}

func TestMCPClearConversation(t *testing.T) {
	deps := newTestMCPDeps(t)

	deps.Assistant.SendMessage(context.Background(), "你好", nil)
	result, err := mcpClearConversation(deps)(context.Background(), makeCallToolRequest("clear_conversation", nil))
	if err != nil {
		t.Fatalf("clear_conversation tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("clear_conversation errored: %s", toolText(t, result))
	}
	if got := deps.Assistant.Messages(); len(got) != 0 {
		t.Errorf("conversation has %d messages after clear", len(got))
	}
}

func TestMCPResourceConversation(t *testing.T) {
	deps := newTestMCPDeps(t)

	deps.Assistant.SendMessage(context.Background(), "你好", nil)

	contents, err := mcpResourceConversation(deps)(context.Background(), makeReadResourceRequest("assistant://conversation"))
	if err != nil {
		t.Fatalf("conversation resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text

	var msgs []chat.Message
	if err := json.Unmarshal([]byte(text), &msgs); err != nil {
		t.Fatalf("resource is not a message list: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("resource has %d messages, want 2", len(msgs))
	}
}

func TestMCPResourceConfig(t *testing.T) {
	deps := newTestMCPDeps(t)

	contents, err := mcpResourceConfig(deps)(context.Background(), makeReadResourceRequest("assistant://config"))
	if err != nil {
		t.Fatalf("config resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text

	var cfg chat.Config
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		t.Fatalf("resource is not a config: %v", err)
	}
	if cfg != chat.DefaultConfig() {
		t.Errorf("resource config = %+v, want defaults", cfg)
	}
}
