package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/omnicore/assistant/internal/assistant"
	"github.com/omnicore/assistant/internal/chat"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant *assistant.Assistant
}

// NewMCPServer creates an MCP server exposing the assistant as tools and
// resources, so editor and agent clients can converse and manage memories
// over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"omnicore-assistant",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("OmniCore assistant: conversational crypto-asset management with persistent user memories."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message to the assistant and return the full reply."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("remember",
			mcp.WithDescription("Store a fact about the user in long-term memory."),
			mcp.WithString("key", mcp.Description("Short label for the fact"), mcp.Required()),
			mcp.WithString("value", mcp.Description("The fact to remember"), mcp.Required()),
			mcp.WithString("type", mcp.Description("Memory type: preference, transaction_pattern, contact, or insight (default insight)")),
		),
		mcpRemember(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("List everything the assistant has remembered about the user."),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("forget",
			mcp.WithDescription("Delete one memory item by id."),
			mcp.WithString("id", mcp.Description("Memory item id"), mcp.Required()),
		),
		mcpForget(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_conversation",
			mcp.WithDescription("Clear the conversation history. Memories and configuration are kept."),
		),
		mcpClearConversation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"assistant://conversation",
			"Conversation",
			mcp.WithResourceDescription("Current conversation messages as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConversation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"assistant://config",
			"Configuration",
			mcp.WithResourceDescription("Active assistant configuration as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConfig(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		// MCP clients get the finalized reply; fragments are not forwarded.
		msg, err := deps.Assistant.SendMessage(ctx, message, nil)
		if errors.Is(err, assistant.ErrBusy) {
			return mcpError("assistant is busy generating another reply"), nil
		}
		if msg == nil {
			return mcpError("the message was empty or generation was cancelled"), nil
		}
		return mcpText(msg.Content), nil
	}
}

func mcpRemember(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		memType := chat.MemoryType(req.GetString("type", string(chat.MemoryInsight)))
		switch memType {
		case chat.MemoryPreference, chat.MemoryTransactionPattern, chat.MemoryContact, chat.MemoryInsight:
		default:
			return mcpError(fmt.Sprintf("unknown memory type %q", memType)), nil
		}

		item, err := deps.Assistant.AddMemory(chat.MemoryDraft{
			Type:       memType,
			Key:        key,
			Value:      value,
			Confidence: 1.0,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save memory: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Remembered %s (%s)", item.Key, item.ID)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mems := deps.Assistant.Memories()
		if len(mems) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(mems)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal memories: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpForget(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if strings.TrimSpace(id) == "" {
			return mcpError("id is required"), nil
		}

		deps.Assistant.DeleteMemory(id)
		return mcpText(fmt.Sprintf("Deleted memory %s", id)), nil
	}
}

func mcpClearConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Assistant.ClearConversation()
		return mcpText("Conversation cleared"), nil
	}
}

func mcpResourceConversation(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		msgs := deps.Assistant.Messages()
		if msgs == nil {
			msgs = []chat.Message{}
		}
		b, err := json.Marshal(msgs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversation: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceConfig(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Assistant.Config())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
