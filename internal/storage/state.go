package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnicore/assistant/internal/chat"
)

// Logical storage keys. Each key holds one independently serialized JSON
// document; corrupting one never affects the others.
const (
	keyConfig   = "llm_config"
	keyMessages = "ai_messages"
	keyMemories = "ai_memories"
)

// maxStoredMessages bounds the persisted conversation. Trimming applies only
// to what is written; the in-memory active session is never cut.
const maxStoredMessages = 100

// get returns the raw JSON document for key, or ok=false when absent.
// Read errors are logged and treated as absence.
func (s *Store) get(key string) ([]byte, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Warn("reading stored state", "key", key, "error", err)
		return nil, false
	}
	return []byte(value), true
}

// put upserts the JSON encoding of v under key.
func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.db.Exec(`INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// LoadConfig returns the stored configuration merged over the hard-coded
// defaults. Stored fields take precedence field by field. Absence or
// corruption degrades to pure defaults; the caller never sees an error.
func (s *Store) LoadConfig() chat.Config {
	cfg := chat.DefaultConfig()
	data, ok := s.get(keyConfig)
	if !ok {
		return cfg
	}
	// Unmarshal over the defaults: only keys present in the document replace
	// default values.
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("stored configuration unreadable, using defaults", "error", err)
		return chat.DefaultConfig()
	}
	return cfg
}

// HasConfig reports whether a configuration document has ever been stored.
// Used to decide whether bootstrap defaults should seed the store.
func (s *Store) HasConfig() bool {
	_, ok := s.get(keyConfig)
	return ok
}

// SaveConfig merges the patch over the currently stored configuration and
// writes the result.
func (s *Store) SaveConfig(p chat.ConfigPatch) error {
	return s.put(keyConfig, s.LoadConfig().Apply(p))
}

// LoadMessages returns the stored conversation, or an empty slice on absence
// or corruption.
func (s *Store) LoadMessages() []chat.Message {
	data, ok := s.get(keyMessages)
	if !ok {
		return nil
	}
	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		slog.Warn("stored messages unreadable, starting empty", "error", err)
		return nil
	}
	return msgs
}

// SaveMessages stores at most the most recent maxStoredMessages entries,
// discarding the oldest first.
func (s *Store) SaveMessages(msgs []chat.Message) error {
	if len(msgs) > maxStoredMessages {
		msgs = msgs[len(msgs)-maxStoredMessages:]
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return s.put(keyMessages, msgs)
}

// LoadMemories returns the stored memory items, or an empty slice on absence
// or corruption.
func (s *Store) LoadMemories() []chat.MemoryItem {
	data, ok := s.get(keyMemories)
	if !ok {
		return nil
	}
	var items []chat.MemoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("stored memories unreadable, starting empty", "error", err)
		return nil
	}
	return items
}

// SaveMemories stores the full memory collection. No trimming applies.
func (s *Store) SaveMemories(items []chat.MemoryItem) error {
	if items == nil {
		items = []chat.MemoryItem{}
	}
	return s.put(keyMemories, items)
}

// AddMemory finalizes a draft (identifier, learned-at timestamp, zero usage
// count), appends it to the persisted collection, and returns the record.
func (s *Store) AddMemory(d chat.MemoryDraft) (chat.MemoryItem, error) {
	item := chat.MemoryItem{
		ID:         chat.NewID(),
		Type:       d.Type,
		Key:        d.Key,
		Value:      d.Value,
		Confidence: d.Confidence,
		LearnedAt:  time.Now().UTC(),
		UsageCount: 0,
	}
	items := append(s.LoadMemories(), item)
	if err := s.SaveMemories(items); err != nil {
		return chat.MemoryItem{}, err
	}
	return item, nil
}

// ClearAll removes all three state documents. Each key is cleared
// independently; a failure on one does not prevent attempting the others.
func (s *Store) ClearAll() error {
	var errs []error
	for _, key := range []string{keyConfig, keyMessages, keyMemories} {
		if _, err := s.db.Exec(`DELETE FROM app_state WHERE key = ?`, key); err != nil {
			errs = append(errs, fmt.Errorf("clearing %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
