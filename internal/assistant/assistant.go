// Package assistant implements the stateful conversation orchestrator: it
// owns the active configuration, conversation, memories, and capability
// toggles, keeps them synchronized with durable storage, and sequences the
// generation pipeline for each turn.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/memory"
	"github.com/omnicore/assistant/internal/prompt"
	"github.com/omnicore/assistant/internal/provider"
	"github.com/omnicore/assistant/internal/storage"
)

// apologyReply is shown when generation fails in a way the providers could
// not mask. The user never sees a raw error.
const apologyReply = "抱歉，生成回复时出现错误。请检查本地模型服务是否正常运行。"

// ErrBusy is returned by SendMessage when another generation is in flight.
var ErrBusy = errors.New("a reply is already being generated")

// Assistant is the façade used by the HTTP, MCP, and CLI surfaces. At most
// one generation is in flight per instance; SendMessage while generating
// returns ErrBusy.
type Assistant struct {
	store  *storage.Store
	logger *slog.Logger

	// newGenerator builds the provider for a turn; replaced in tests.
	newGenerator func(chat.Config) provider.Generator

	mu           sync.Mutex
	cfg          chat.Config
	messages     []chat.Message
	memories     []chat.MemoryItem
	capabilities []chat.Capability
	status       *chat.ConnectionStatus
	models       []chat.ModelInfo
	generating   bool
	streaming    strings.Builder
	cancel       context.CancelFunc
}

// New creates an Assistant seeded from the store. Missing or corrupt stored
// state degrades to defaults; construction never fails.
func New(store *storage.Store) *Assistant {
	return &Assistant{
		store:        store,
		logger:       slog.Default(),
		newGenerator: provider.New,
		cfg:          store.LoadConfig(),
		messages:     store.LoadMessages(),
		memories:     store.LoadMemories(),
		capabilities: chat.DefaultCapabilities(),
	}
}

// SetGeneratorFactory replaces how the per-turn generator is constructed.
// Tests use it to remove streaming delays or inject failing providers.
func (a *Assistant) SetGeneratorFactory(f func(chat.Config) provider.Generator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.newGenerator = f
}

// SendMessage runs one conversation turn: append the user message, stream
// the generated reply (forwarding fragments to emit when non-nil), then
// finalize and persist the assistant message and any extracted memory.
//
// Empty or whitespace-only content is a no-op returning (nil, nil). A call
// while a generation is already in flight returns ErrBusy. A cancelled turn
// discards the partial reply and returns (nil, nil).
func (a *Assistant) SendMessage(ctx context.Context, content string, emit func(fragment string)) (*chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	a.mu.Lock()
	if a.generating {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	a.generating = true
	a.streaming.Reset()
	genCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// The user message is visible immediately; the generation context is the
	// conversation as it stood before this turn.
	history := slices.Clone(a.messages)
	memories := slices.Clone(a.memories)
	cfg := a.cfg
	newGen := a.newGenerator
	userMsg := chat.Message{
		ID:        chat.NewID(),
		Role:      chat.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	a.messages = append(a.messages, userMsg)
	a.mu.Unlock()

	a.persistMessages()

	defer func() {
		cancel()
		a.mu.Lock()
		a.generating = false
		a.cancel = nil
		a.streaming.Reset()
		a.mu.Unlock()
	}()

	gen := newGen(cfg)
	err := gen.Generate(genCtx, provider.Request{
		UserMessage: content,
		History:     history,
		Memories:    memories,
	}, func(frag string) {
		a.mu.Lock()
		a.streaming.WriteString(frag)
		a.mu.Unlock()
		if emit != nil {
			emit(frag)
		}
	})

	if err != nil && genCtx.Err() != nil {
		// Cancelled mid-stream: drop the partial reply, keep the user message.
		a.logger.Info("generation cancelled", "user_message", userMsg.ID)
		return nil, nil
	}

	a.mu.Lock()
	reply := a.streaming.String()
	a.mu.Unlock()
	failed := err != nil
	if failed {
		a.logger.Error("generation failed", "error", err)
		reply = apologyReply
	}

	assistantMsg := chat.Message{
		ID:        chat.NewID(),
		Role:      chat.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UTC(),
	}
	a.mu.Lock()
	a.messages = append(a.messages, assistantMsg)
	a.mu.Unlock()
	a.persistMessages()

	if !failed {
		a.learnFromTurn(content, reply)
		if cfg.Provider != chat.ProviderMock {
			a.touchContextMemories(memories)
		}
	}

	return &assistantMsg, nil
}

// learnFromTurn runs the memory extractor on a completed turn and adopts any
// resulting draft.
func (a *Assistant) learnFromTurn(userMessage, reply string) {
	draft := memory.Extract(userMessage, reply)
	if draft == nil {
		return
	}
	item, err := a.store.AddMemory(*draft)
	if err != nil {
		a.logger.Warn("persisting extracted memory", "error", err)
		return
	}
	a.mu.Lock()
	a.memories = append(a.memories, item)
	a.mu.Unlock()
}

// touchContextMemories bumps the usage counter of the memories that were
// injected into the generation prompt.
func (a *Assistant) touchContextMemories(candidates []chat.MemoryItem) {
	used := prompt.SelectMemories(candidates)
	if len(used) == 0 {
		return
	}
	usedIDs := make(map[string]bool, len(used))
	for _, m := range used {
		usedIDs[m.ID] = true
	}

	a.mu.Lock()
	for i := range a.memories {
		if usedIDs[a.memories[i].ID] {
			a.memories[i].UsageCount++
		}
	}
	items := slices.Clone(a.memories)
	a.mu.Unlock()

	if err := a.store.SaveMemories(items); err != nil {
		a.logger.Warn("persisting memory usage counters", "error", err)
	}
}

// CancelGeneration aborts the in-flight generation, if any. The partial
// reply is discarded and the assistant returns to idle.
func (a *Assistant) CancelGeneration() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ClearConversation empties the in-memory and persisted conversation and the
// live accumulator. Memories and configuration are untouched. Allowed in any
// state.
func (a *Assistant) ClearConversation() {
	a.mu.Lock()
	a.messages = nil
	a.streaming.Reset()
	a.mu.Unlock()
	if err := a.store.SaveMessages(nil); err != nil {
		a.logger.Warn("persisting cleared conversation", "error", err)
	}
}

// ClearAllStoredData empties every persisted collection and resets in-memory
// state to hard-coded defaults.
func (a *Assistant) ClearAllStoredData() {
	if err := a.store.ClearAll(); err != nil {
		a.logger.Warn("clearing stored data", "error", err)
	}
	a.mu.Lock()
	a.cfg = chat.DefaultConfig()
	a.messages = nil
	a.memories = nil
	a.streaming.Reset()
	a.mu.Unlock()
}

// UpdateConfig merges the patch into the in-memory and persisted
// configuration. It does not probe the endpoint: callers change
// connectivity-relevant fields and then invoke RefreshConnection explicitly.
func (a *Assistant) UpdateConfig(p chat.ConfigPatch) chat.Config {
	a.mu.Lock()
	a.cfg = a.cfg.Apply(p)
	updated := a.cfg
	a.mu.Unlock()
	if err := a.store.SaveConfig(p); err != nil {
		a.logger.Warn("persisting configuration", "error", err)
	}
	return updated
}

// RefreshConnection probes the configured endpoint and refreshes the model
// list, concurrently. When the configured model is absent from a non-empty
// list, the first available model is adopted into the configuration.
func (a *Assistant) RefreshConnection(ctx context.Context) chat.ConnectionStatus {
	cfg := a.Config()

	var (
		status chat.ConnectionStatus
		models []chat.ModelInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status = provider.Probe(gctx, cfg)
		return nil
	})
	g.Go(func() error {
		models = provider.ListModels(gctx, cfg)
		return nil
	})
	g.Wait()

	a.mu.Lock()
	a.status = &status
	a.models = models
	a.mu.Unlock()

	if status.Connected && len(models) > 0 && !hasModel(models, cfg.Model) {
		name := models[0].Name
		a.UpdateConfig(chat.ConfigPatch{Model: &name})
	}
	return status
}

func hasModel(models []chat.ModelInfo, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}

// AddMemory finalizes and persists a user-supplied memory draft.
func (a *Assistant) AddMemory(d chat.MemoryDraft) (chat.MemoryItem, error) {
	item, err := a.store.AddMemory(d)
	if err != nil {
		return chat.MemoryItem{}, err
	}
	a.mu.Lock()
	a.memories = append(a.memories, item)
	a.mu.Unlock()
	return item, nil
}

// DeleteMemory removes one memory item by id.
func (a *Assistant) DeleteMemory(id string) {
	a.mu.Lock()
	a.memories = slices.DeleteFunc(slices.Clone(a.memories), func(m chat.MemoryItem) bool {
		return m.ID == id
	})
	items := slices.Clone(a.memories)
	a.mu.Unlock()
	if err := a.store.SaveMemories(items); err != nil {
		a.logger.Warn("persisting memories after delete", "error", err)
	}
}

// ToggleCapability flips the enabled flag of one capability descriptor.
// Toggles are in-memory only and reset on restart.
func (a *Assistant) ToggleCapability(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.capabilities {
		if a.capabilities[i].ID == id {
			a.capabilities[i].Enabled = !a.capabilities[i].Enabled
			return
		}
	}
}

// persistMessages writes the current conversation, best-effort.
func (a *Assistant) persistMessages() {
	a.mu.Lock()
	msgs := slices.Clone(a.messages)
	a.mu.Unlock()
	if err := a.store.SaveMessages(msgs); err != nil {
		a.logger.Warn("persisting conversation", "error", err)
	}
}

// Config returns the active configuration.
func (a *Assistant) Config() chat.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Messages returns a copy of the in-memory conversation.
func (a *Assistant) Messages() []chat.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.messages)
}

// Memories returns a copy of the in-memory memory collection.
func (a *Assistant) Memories() []chat.MemoryItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.memories)
}

// Capabilities returns a copy of the capability descriptors.
func (a *Assistant) Capabilities() []chat.Capability {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.capabilities)
}

// Status returns the latest connection snapshot, or nil before any probe.
func (a *Assistant) Status() *chat.ConnectionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == nil {
		return nil
	}
	s := *a.status
	return &s
}

// Models returns the model list from the latest refresh.
func (a *Assistant) Models() []chat.ModelInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.models)
}

// Generating reports whether a generation is in flight.
func (a *Assistant) Generating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generating
}

// StreamingContent returns the partial reply accumulated so far for the
// in-flight turn, or "" when idle.
func (a *Assistant) StreamingContent() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streaming.String()
}
