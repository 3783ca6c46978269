// Package chat defines the core data model shared by the assistant
// orchestrator, the persistence layer, and the inference providers.
package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Provider identifies the backend used to generate assistant replies.
type Provider string

const (
	// ProviderMock produces deterministic canned replies without any network I/O.
	ProviderMock Provider = "mock"
	// ProviderOllama talks to an Ollama server over its native HTTP API.
	ProviderOllama Provider = "ollama"
	// ProviderCustom talks to any Ollama-compatible endpoint.
	ProviderCustom Provider = "custom"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderMock, ProviderOllama, ProviderCustom:
		return true
	}
	return false
}

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ActionKind enumerates the wallet operations a reply may carry.
type ActionKind string

const (
	ActionCheckBalance      ActionKind = "check_balance"
	ActionCreateTransaction ActionKind = "create_transaction"
	ActionRiskScan          ActionKind = "risk_scan"
	ActionConfigureStrategy ActionKind = "configure_strategy"
)

// ActionStatus tracks the lifecycle of an attached action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Action is an operation attached to an assistant message.
type Action struct {
	Kind   ActionKind   `json:"kind"`
	Status ActionStatus `json:"status"`
	Result string       `json:"result,omitempty"`
}

// Message is one entry in a conversation. Messages are append-only; the
// persisted conversation is trimmed to the most recent entries on save.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Action    *Action   `json:"action,omitempty"`
}

// MemoryType classifies a learned memory item.
type MemoryType string

const (
	MemoryPreference         MemoryType = "preference"
	MemoryTransactionPattern MemoryType = "transaction_pattern"
	MemoryContact            MemoryType = "contact"
	MemoryInsight            MemoryType = "insight"
)

// MemoryItem is a durable inferred fact about the user. Items are immutable
// after creation except for the usage counter.
type MemoryItem struct {
	ID         string     `json:"id"`
	Type       MemoryType `json:"type"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	LearnedAt  time.Time  `json:"learned_at"`
	UsageCount int        `json:"usage_count"`
}

// MemoryDraft is a candidate memory before the store assigns identity.
type MemoryDraft struct {
	Type       MemoryType `json:"type"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}

// ConnectionStatus is a point-in-time snapshot of endpoint reachability.
// It is recomputed on demand and never persisted.
type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	Provider  Provider  `json:"provider"`
	Model     string    `json:"model,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// ModelInfo describes one model reported by the inference endpoint.
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

// Capability is a toggleable assistant feature descriptor. Toggles live in
// memory only and reset to defaults on restart.
type Capability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"` // "memory", "language", or "control"
	Enabled     bool   `json:"enabled"`
}

// NewID returns a lexicographically sortable unique identifier.
func NewID() string {
	return ulid.Make().String()
}
