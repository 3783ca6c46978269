// Package api exposes the assistant over HTTP and MCP. The HTTP surface is a
// small JSON API with an NDJSON streaming chat endpoint; every /v1 route is
// bearer-token protected.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnicore/assistant/internal/assistant"
	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/ingest"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the handlers need.
type Deps struct {
	Assistant *assistant.Assistant
	Token     string
}

// NewHandler returns the assistant HTTP API. /health is unauthenticated;
// everything under /v1 requires the bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleStatus(deps))
		r.Post("/status/refresh", handleRefreshStatus(deps))
		r.Get("/models", handleListModels(deps))

		r.Get("/config", handleGetConfig(deps))
		r.Patch("/config", handlePatchConfig(deps))

		r.Post("/chat", handleChat(deps))
		r.Post("/chat/cancel", handleCancelChat(deps))
		r.Get("/messages", handleListMessages(deps))
		r.Delete("/messages", handleClearMessages(deps))

		r.Get("/memories", handleListMemories(deps))
		r.Post("/memories", handleAddMemory(deps))
		r.Post("/memories/import", handleImportMemories(deps))
		r.Delete("/memories/{id}", handleDeleteMemory(deps))

		r.Get("/capabilities", handleListCapabilities(deps))
		r.Post("/capabilities/{id}/toggle", handleToggleCapability(deps))

		r.Delete("/data", handleClearData(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := deps.Assistant.Status()
		body := map[string]any{
			"probed":     status != nil,
			"generating": deps.Assistant.Generating(),
		}
		if status != nil {
			body["status"] = status
		}
		if partial := deps.Assistant.StreamingContent(); partial != "" {
			body["streaming_content"] = partial
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

func handleRefreshStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := deps.Assistant.RefreshConnection(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := deps.Assistant.Models()
		if models == nil {
			models = []chat.ModelInfo{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}
}

func handleGetConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Assistant.Config())
	}
}

func handlePatchConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var patch chat.ConfigPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if patch.Provider != nil && !patch.Provider.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown provider %q", *patch.Provider)
			return
		}

		updated := deps.Assistant.UpdateConfig(patch)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(updated)
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// chatEvent is one NDJSON line of the streaming chat response. Fragment lines
// carry reply text as it is generated; the closing line has done=true and the
// finalized message, or cancelled=true when the turn was aborted.
type chatEvent struct {
	Fragment  string        `json:"fragment,omitempty"`
	Done      bool          `json:"done,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")

		// SendMessage is the authoritative busy gate: nothing is written to
		// the stream before it rejects a concurrent turn, so the conflict can
		// still go out as a plain error response.
		enc := json.NewEncoder(w)
		msg, err := deps.Assistant.SendMessage(r.Context(), req.Message, func(frag string) {
			enc.Encode(chatEvent{Fragment: frag})
			flusher.Flush()
		})
		if errors.Is(err, assistant.ErrBusy) {
			httpError(w, http.StatusConflict, "busy_error", "a generation is already in progress")
			return
		}
		if msg == nil {
			enc.Encode(chatEvent{Done: true, Cancelled: true})
		} else {
			enc.Encode(chatEvent{Done: true, Message: msg})
		}
		flusher.Flush()
	}
}

func handleCancelChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.CancelGeneration()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs := deps.Assistant.Messages()
		if msgs == nil {
			msgs = []chat.Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
	}
}

func handleClearMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.ClearConversation()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

func handleListMemories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mems := deps.Assistant.Memories()
		if mems == nil {
			mems = []chat.MemoryItem{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"memories": mems})
	}
}

func handleAddMemory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var draft chat.MemoryDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if draft.Key == "" || draft.Value == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "key and value are required")
			return
		}
		if draft.Type == "" {
			draft.Type = chat.MemoryInsight
		}
		if draft.Confidence == 0 {
			draft.Confidence = 1.0 // user-supplied memories are authoritative
		}

		item, err := deps.Assistant.AddMemory(draft)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save memory: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(item)
	}
}

type importRequest struct {
	Text string `json:"text"`
}

func handleImportMemories(deps Deps) http.HandlerFunc {
	importer := ingest.NewImporter(deps.Assistant)
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		items, err := importer.ImportText(req.Text)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "import failed: %v", err)
			return
		}
		if items == nil {
			items = []chat.MemoryItem{}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"memories": items})
	}
}

func handleDeleteMemory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.DeleteMemory(chi.URLParam(r, "id"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListCapabilities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"capabilities": deps.Assistant.Capabilities()})
	}
}

func handleToggleCapability(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.ToggleCapability(chi.URLParam(r, "id"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"capabilities": deps.Assistant.Capabilities()})
	}
}

func handleClearData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.ClearAllStoredData()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
