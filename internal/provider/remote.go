package provider

import (
	"context"
	"log/slog"

	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/ollama"
	"github.com/omnicore/assistant/internal/prompt"
)

// Remote generates replies through an Ollama-compatible HTTP endpoint. Any
// transport or decoding failure degrades to the simulated provider's canned
// reply, emitted as one final fragment, so the caller always gets a response.
type Remote struct {
	client   *ollama.Client
	cfg      chat.Config
	fallback *Mock
}

// NewRemote creates a Remote for the endpoint and model in cfg.
func NewRemote(cfg chat.Config) *Remote {
	return &Remote{
		client:   ollama.New(cfg.Endpoint),
		cfg:      cfg,
		fallback: NewMock(0),
	}
}

func (r *Remote) Generate(ctx context.Context, req Request, emit func(fragment string)) error {
	p := prompt.Build(r.cfg.SystemPrompt, req.Memories, req.History, req.UserMessage)

	err := r.client.Generate(ctx, ollama.GenerateRequest{
		Model:  r.cfg.Model,
		Prompt: p,
		Options: ollama.Options{
			Temperature: r.cfg.Temperature,
			NumPredict:  r.cfg.MaxTokens,
		},
	}, emit)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// The caller cancelled; no fallback.
		return ctx.Err()
	}

	slog.Warn("remote generation failed, using simulated reply", "model", r.cfg.Model, "error", err)
	emit(r.fallback.Respond(req.UserMessage, req.Memories))
	return nil
}
