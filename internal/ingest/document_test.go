package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/storage"
)

func newTestImporter(t *testing.T) (*Importer, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewImporter(store), store
}

func TestImportText(t *testing.T) {
	im, store := newTestImporter(t)

	text := "项目备忘\n" +
		"我喜欢低风险策略\n" +
		"\n" +
		"常用地址 0xabc123def456\n" +
		"今天天气不错\n" +
		"记住每周五出报表\n"

	items, err := im.ImportText(text)
	if err != nil {
		t.Fatalf("ImportText: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("imported %d memories, want 3", len(items))
	}

	types := map[chat.MemoryType]int{}
	for _, it := range items {
		types[it.Type]++
	}
	if types[chat.MemoryPreference] != 2 {
		t.Errorf("imported %d preferences, want 2", types[chat.MemoryPreference])
	}
	if types[chat.MemoryContact] != 1 {
		t.Errorf("imported %d contacts, want 1", types[chat.MemoryContact])
	}

	if persisted := store.LoadMemories(); len(persisted) != 3 {
		t.Errorf("persisted %d memories, want 3", len(persisted))
	}
}

func TestImportText_NoMatches(t *testing.T) {
	im, _ := newTestImporter(t)

	items, err := im.ImportText("普通的一行\nanother plain line\n")
	if err != nil {
		t.Fatalf("ImportText: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("imported %d memories from plain text, want 0", len(items))
	}
}

func TestExtractFile_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("i prefer weekly summaries\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if text != "i prefer weekly summaries\n" {
		t.Errorf("extracted %q", text)
	}

	drafts := ScanText(text)
	if len(drafts) != 1 || drafts[0].Type != chat.MemoryPreference {
		t.Errorf("scanned %+v, want one preference", drafts)
	}
}

func TestExtractFile_Missing(t *testing.T) {
	if _, err := ExtractFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("extracting a missing file did not error")
	}
}
