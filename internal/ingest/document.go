// Package ingest imports documents into the assistant's long-term memory.
// Each line of text runs through the same extraction rules used for live
// conversation, so a notes file full of "我喜欢 ..." declarations becomes
// stored preferences in one pass.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/memory"
)

const maxDocumentSize = 10 << 20 // 10MB

// MemoryStore persists finalized memory items.
type MemoryStore interface {
	AddMemory(chat.MemoryDraft) (chat.MemoryItem, error)
}

// Importer scans document text and learns memories from it.
type Importer struct {
	store  MemoryStore
	logger *slog.Logger
}

// NewImporter creates an Importer writing into store.
func NewImporter(store MemoryStore) *Importer {
	return &Importer{store: store, logger: slog.Default()}
}

// ImportText runs the memory extractor over every non-empty line of text and
// persists the results. Lines that match no extraction rule are skipped
// silently.
func (im *Importer) ImportText(text string) ([]chat.MemoryItem, error) {
	var items []chat.MemoryItem
	for _, draft := range ScanText(text) {
		item, err := im.store.AddMemory(draft)
		if err != nil {
			return items, fmt.Errorf("saving memory: %w", err)
		}
		items = append(items, item)
	}

	im.logger.Info("document imported", "memories", len(items))
	return items, nil
}

// ScanText runs the memory extractor over every non-empty line of text.
func ScanText(text string) []chat.MemoryDraft {
	var drafts []chat.MemoryDraft

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if draft := memory.Extract(line, ""); draft != nil {
			drafts = append(drafts, *draft)
		}
	}
	return drafts
}

// ExtractFile returns the text content of the document at path. PDF files are
// read through their text layer; everything else is treated as plain text.
func ExtractFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDFText(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxDocumentSize {
		return "", fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return sb.String(), nil
}
