package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/omnicore/assistant/internal/chat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func corrupt(t *testing.T, s *Store, key string) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO app_state (key, value, updated_at) VALUES (?, 'not json{', '')
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key)
	if err != nil {
		t.Fatalf("corrupting %s: %v", key, err)
	}
}

func TestLoadConfig_Empty(t *testing.T) {
	s := openTestStore(t)

	got := s.LoadConfig()
	want := chat.DefaultConfig()
	if got != want {
		t.Errorf("LoadConfig() = %+v, want defaults %+v", got, want)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)

	provider := chat.ProviderOllama
	model := "qwen2.5:7b"
	temp := 0.3
	if err := s.SaveConfig(chat.ConfigPatch{Provider: &provider, Model: &model, Temperature: &temp}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got := s.LoadConfig()
	want := chat.DefaultConfig().Apply(chat.ConfigPatch{Provider: &provider, Model: &model, Temperature: &temp})
	if got != want {
		t.Errorf("LoadConfig() = %+v, want %+v", got, want)
	}
}

func TestSaveConfig_MergesOverStored(t *testing.T) {
	s := openTestStore(t)

	model := "phi3.5"
	if err := s.SaveConfig(chat.ConfigPatch{Model: &model}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	endpoint := "http://10.0.0.5:11434"
	if err := s.SaveConfig(chat.ConfigPatch{Endpoint: &endpoint}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got := s.LoadConfig()
	if got.Model != "phi3.5" {
		t.Errorf("model = %q, want earlier patch preserved", got.Model)
	}
	if got.Endpoint != endpoint {
		t.Errorf("endpoint = %q, want %q", got.Endpoint, endpoint)
	}
}

func TestLoadConfig_Corrupt(t *testing.T) {
	s := openTestStore(t)
	corrupt(t, s, keyConfig)

	if got := s.LoadConfig(); got != chat.DefaultConfig() {
		t.Errorf("LoadConfig() after corruption = %+v, want defaults", got)
	}
}

func makeMessages(n int) []chat.Message {
	msgs := make([]chat.Message, n)
	for i := range msgs {
		msgs[i] = chat.Message{
			ID:        chat.NewID(),
			Role:      chat.RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: time.Now().UTC(),
		}
	}
	return msgs
}

func TestMessagesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	msgs := makeMessages(3)
	if err := s.SaveMessages(msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got := s.LoadMessages()
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i := range got {
		if got[i].ID != msgs[i].ID || got[i].Content != msgs[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, got[i], msgs[i])
		}
	}
}

func TestSaveMessages_TrimsToLast100(t *testing.T) {
	s := openTestStore(t)

	msgs := makeMessages(130)
	if err := s.SaveMessages(msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got := s.LoadMessages()
	if len(got) != 100 {
		t.Fatalf("got %d messages, want 100", len(got))
	}
	// Oldest discarded first; relative order preserved.
	if got[0].Content != "message 30" {
		t.Errorf("first kept message = %q, want %q", got[0].Content, "message 30")
	}
	if got[99].Content != "message 129" {
		t.Errorf("last kept message = %q, want %q", got[99].Content, "message 129")
	}
}

func TestLoadMessages_Corrupt(t *testing.T) {
	s := openTestStore(t)
	corrupt(t, s, keyMessages)

	if got := s.LoadMessages(); len(got) != 0 {
		t.Errorf("LoadMessages() after corruption returned %d entries, want 0", len(got))
	}
}

func TestAddMemory(t *testing.T) {
	s := openTestStore(t)

	item, err := s.AddMemory(chat.MemoryDraft{
		Type:       chat.MemoryPreference,
		Key:        "用户偏好",
		Value:      "我喜欢低风险策略",
		Confidence: 0.8,
	})
	if err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	if item.ID == "" {
		t.Error("AddMemory assigned no ID")
	}
	if item.LearnedAt.IsZero() {
		t.Error("AddMemory assigned no learned-at timestamp")
	}
	if item.UsageCount != 0 {
		t.Errorf("usage count = %d, want 0", item.UsageCount)
	}

	got := s.LoadMemories()
	if len(got) != 1 || got[0].ID != item.ID {
		t.Errorf("LoadMemories() = %+v, want the added item", got)
	}
}

func TestCorruptionIsolation(t *testing.T) {
	s := openTestStore(t)

	model := "phi3.5"
	if err := s.SaveConfig(chat.ConfigPatch{Model: &model}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if err := s.SaveMessages(makeMessages(2)); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	corrupt(t, s, keyMemories)

	if got := s.LoadConfig(); got.Model != "phi3.5" {
		t.Errorf("LoadConfig affected by memories corruption: %+v", got)
	}
	if got := s.LoadMessages(); len(got) != 2 {
		t.Errorf("LoadMessages affected by memories corruption: %d entries", len(got))
	}
	if got := s.LoadMemories(); len(got) != 0 {
		t.Errorf("LoadMemories() = %d entries, want 0", len(got))
	}
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)

	model := "phi3.5"
	s.SaveConfig(chat.ConfigPatch{Model: &model})
	s.SaveMessages(makeMessages(5))
	s.AddMemory(chat.MemoryDraft{Type: chat.MemoryContact, Key: "常用地址", Value: "0xabc123def456", Confidence: 0.7})

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	if got := s.LoadConfig(); got != chat.DefaultConfig() {
		t.Errorf("LoadConfig() after ClearAll = %+v, want defaults", got)
	}
	if got := s.LoadMessages(); len(got) != 0 {
		t.Errorf("LoadMessages() after ClearAll = %d entries, want 0", len(got))
	}
	if got := s.LoadMemories(); len(got) != 0 {
		t.Errorf("LoadMemories() after ClearAll = %d entries, want 0", len(got))
	}
}
