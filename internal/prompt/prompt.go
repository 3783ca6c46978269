// Package prompt assembles the single text prompt sent to HTTP-backed
// inference endpoints from the system instruction, high-signal memories, and
// a window of recent conversation.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/omnicore/assistant/internal/chat"
)

const (
	// maxContextMemories caps how many memory items are injected.
	maxContextMemories = 10
	// minMemoryConfidence filters out low-confidence memories.
	minMemoryConfidence = 0.5
	// historyWindow is how many recent turns are included.
	historyWindow = 10
)

// SelectMemories returns the memories worth injecting as context: confidence
// above the threshold, ordered by usage count descending (stable), capped at
// maxContextMemories.
func SelectMemories(items []chat.MemoryItem) []chat.MemoryItem {
	var eligible []chat.MemoryItem
	for _, m := range items {
		if m.Confidence > minMemoryConfidence {
			eligible = append(eligible, m)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].UsageCount > eligible[j].UsageCount
	})
	if len(eligible) > maxContextMemories {
		eligible = eligible[:maxContextMemories]
	}
	return eligible
}

// Build constructs the full generation prompt for one user turn.
func Build(systemPrompt string, memories []chat.MemoryItem, history []chat.Message, userMessage string) string {
	var sb strings.Builder

	if systemPrompt != "" {
		sb.WriteString(systemPrompt)
		sb.WriteString("\n\n")
	}

	if selected := SelectMemories(memories); len(selected) > 0 {
		sb.WriteString("[已知用户信息]\n")
		for _, m := range selected {
			fmt.Fprintf(&sb, "- (%s) %s: %s\n", m.Type, m.Key, m.Value)
		}
		sb.WriteString("\n")
	}

	if window := tail(history, historyWindow); len(window) > 0 {
		sb.WriteString("[近期对话]\n")
		for _, msg := range window {
			fmt.Fprintf(&sb, "%s: %s\n", roleLabel(msg.Role), msg.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "用户: %s\n助手:", userMessage)
	return sb.String()
}

// tail returns the last n entries of msgs; the most recent entries are
// dropped last.
func tail(msgs []chat.Message, n int) []chat.Message {
	if len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}

func roleLabel(r chat.Role) string {
	switch r {
	case chat.RoleUser:
		return "用户"
	case chat.RoleAssistant:
		return "助手"
	default:
		return string(r)
	}
}
