// Package provider selects and drives the backend that produces assistant
// replies: a deterministic simulated provider, or an Ollama-compatible HTTP
// endpoint with the simulated provider as fallback.
package provider

import (
	"context"
	"time"

	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/ollama"
)

// Request carries everything one generation pass may consult.
type Request struct {
	UserMessage string
	History     []chat.Message
	Memories    []chat.MemoryItem
}

// Generator produces one assistant reply per call, delivered incrementally
// through emit. A call is a single finite forward pass; it is not
// restartable. The only error a Generator returns is context cancellation;
// every other failure degrades to a usable reply.
type Generator interface {
	Generate(ctx context.Context, req Request, emit func(fragment string)) error
}

// New returns the Generator for the configured provider.
func New(cfg chat.Config) Generator {
	if cfg.Provider == chat.ProviderMock {
		return NewMock(DefaultFragmentDelay)
	}
	return NewRemote(cfg)
}

// Probe reports whether the configured endpoint is reachable and which model
// it will serve. It never returns an error: failures are folded into a
// disconnected status so callers can render a stable state.
func Probe(ctx context.Context, cfg chat.Config) chat.ConnectionStatus {
	status := chat.ConnectionStatus{
		Provider:  cfg.Provider,
		CheckedAt: time.Now().UTC(),
	}

	if cfg.Provider == chat.ProviderMock {
		status.Connected = true
		status.Model = chat.MockModelName
		return status
	}

	models, err := ollama.New(cfg.Endpoint).ListModels(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	status.Model = resolveModel(cfg.Model, models)
	return status
}

// ListModels returns the models served by the configured endpoint, or an
// empty list when the provider is simulated or the endpoint is unreachable.
func ListModels(ctx context.Context, cfg chat.Config) []chat.ModelInfo {
	if cfg.Provider == chat.ProviderMock {
		return nil
	}
	models, err := ollama.New(cfg.Endpoint).ListModels(ctx)
	if err != nil {
		return nil
	}
	infos := make([]chat.ModelInfo, len(models))
	for i, m := range models {
		infos[i] = chat.ModelInfo{Name: m.Name, ModifiedAt: m.ModifiedAt, Size: m.Size, Digest: m.Digest}
	}
	return infos
}

// resolveModel picks the model a generation call will actually use: the
// configured name when the endpoint lists it, else the first listed model,
// else the configured name unchanged.
func resolveModel(configured string, models []ollama.Model) string {
	for _, m := range models {
		if m.Name == configured {
			return configured
		}
	}
	if len(models) > 0 {
		return models[0].Name
	}
	return configured
}
