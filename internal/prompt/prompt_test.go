package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/omnicore/assistant/internal/chat"
)

func mem(id string, usage int, confidence float64) chat.MemoryItem {
	return chat.MemoryItem{
		ID:         id,
		Type:       chat.MemoryPreference,
		Key:        "k-" + id,
		Value:      "v-" + id,
		Confidence: confidence,
		UsageCount: usage,
	}
}

func TestSelectMemories_FiltersLowConfidence(t *testing.T) {
	items := []chat.MemoryItem{
		mem("a", 5, 0.9),
		mem("b", 9, 0.5), // exactly at threshold, excluded
		mem("c", 1, 0.51),
	}

	got := SelectMemories(items)
	if len(got) != 2 {
		t.Fatalf("got %d memories, want 2", len(got))
	}
	for _, m := range got {
		if m.ID == "b" {
			t.Error("memory with confidence 0.5 selected, want excluded")
		}
	}
}

func TestSelectMemories_OrdersByUsageDescStable(t *testing.T) {
	items := []chat.MemoryItem{
		mem("a", 2, 0.9),
		mem("b", 7, 0.9),
		mem("c", 2, 0.9), // ties with "a"; original order must hold
	}

	got := SelectMemories(items)
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("selected[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestSelectMemories_CapsAtTen(t *testing.T) {
	var items []chat.MemoryItem
	for i := 0; i < 15; i++ {
		items = append(items, mem(fmt.Sprintf("m%02d", i), i, 0.8))
	}

	got := SelectMemories(items)
	if len(got) != 10 {
		t.Fatalf("got %d memories, want 10", len(got))
	}
	// Highest-usage first.
	if got[0].UsageCount != 14 {
		t.Errorf("selected[0].UsageCount = %d, want 14", got[0].UsageCount)
	}
}

func TestBuild_SectionsAndOrder(t *testing.T) {
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "查一下余额"},
		{Role: chat.RoleAssistant, Content: "好的"},
	}
	memories := []chat.MemoryItem{mem("a", 3, 0.9)}

	p := Build("系统指令", memories, history, "帮我转账")

	wantOrder := []string{"系统指令", "[已知用户信息]", "v-a", "[近期对话]", "查一下余额", "用户: 帮我转账", "助手:"}
	pos := -1
	for _, frag := range wantOrder {
		i := strings.Index(p, frag)
		if i < 0 {
			t.Fatalf("prompt missing %q:\n%s", frag, p)
		}
		if i < pos {
			t.Errorf("%q appears out of order", frag)
		}
		pos = i
	}
}

func TestBuild_HistoryWindowIsTail(t *testing.T) {
	var history []chat.Message
	for i := 0; i < 14; i++ {
		history = append(history, chat.Message{Role: chat.RoleUser, Content: fmt.Sprintf("turn-%02d", i)})
	}

	p := Build("", nil, history, "current")

	if strings.Contains(p, "turn-03") {
		t.Error("prompt contains turn outside the 10-entry window")
	}
	if !strings.Contains(p, "turn-04") || !strings.Contains(p, "turn-13") {
		t.Error("prompt missing entries from the 10-entry tail")
	}
}

func TestBuild_EmptyContext(t *testing.T) {
	p := Build("", nil, nil, "你好")
	if strings.Contains(p, "[已知用户信息]") || strings.Contains(p, "[近期对话]") {
		t.Errorf("empty context rendered section headers:\n%s", p)
	}
	if !strings.HasSuffix(p, "助手:") {
		t.Errorf("prompt does not end with the assistant cue:\n%s", p)
	}
}
