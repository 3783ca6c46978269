// Package memory derives durable memory drafts from completed conversation
// turns. Extraction is a pure function; persistence belongs to the caller.
package memory

import (
	"regexp"
	"strings"

	"github.com/omnicore/assistant/internal/chat"
)

// addressPattern matches hexadecimal address-like tokens.
var addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{6,}`)

// Marker phrases, Chinese and English. Matching is case-insensitive.
var (
	preferenceMarkers = []string{"我喜欢", "我偏好", "我的偏好", "i prefer", "i like", "my preference"}
	addressMarkers    = []string{"地址", "address"}
	rememberMarkers   = []string{"记住", "remember this"}
)

// Extract inspects one completed turn and returns at most one memory draft,
// or nil when nothing durable was said. Rules are evaluated in a fixed
// priority order and the first match wins:
//
//  1. an explicit preference declaration yields a preference draft
//     (value: the full user message, confidence 0.8);
//  2. an address mention alongside a hex token yields a contact draft
//     (value: the first matched token, confidence 0.7);
//  3. an explicit "remember this" request yields a preference draft
//     (value: the full user message, confidence 0.9).
func Extract(userMessage, assistantResponse string) *chat.MemoryDraft {
	_ = assistantResponse // reserved for reply-informed extraction

	lower := strings.ToLower(userMessage)

	if containsAny(lower, preferenceMarkers) {
		return &chat.MemoryDraft{
			Type:       chat.MemoryPreference,
			Key:        "用户偏好",
			Value:      userMessage,
			Confidence: 0.8,
		}
	}

	if containsAny(lower, addressMarkers) {
		if token := addressPattern.FindString(userMessage); token != "" {
			return &chat.MemoryDraft{
				Type:       chat.MemoryContact,
				Key:        "常用地址",
				Value:      token,
				Confidence: 0.7,
			}
		}
	}

	if containsAny(lower, rememberMarkers) {
		return &chat.MemoryDraft{
			Type:       chat.MemoryPreference,
			Key:        "重要事项",
			Value:      userMessage,
			Confidence: 0.9,
		}
	}

	return nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
