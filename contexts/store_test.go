package contexts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderhaven/llmcore/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := NewContextID()
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi"},
	}
	s.Save(id, messages)

	got := s.Load(id)
	if len(got) != 3 {
		t.Fatalf("Load returned %d messages, want 3", len(got))
	}
	for i := range messages {
		if got[i] != messages[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], messages[i])
		}
	}
}

func TestLoadMissingContextIsEmpty(t *testing.T) {
	s := newTestStore(t)
	if got := s.Load("never-saved"); len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
}

func TestLoadCorruptContextIsEmpty(t *testing.T) {
	s := newTestStore(t)
	id := NewContextID()
	s.Save(id, []llm.Message{{Role: llm.RoleUser, Content: "x"}})

	entries, err := os.ReadDir(s.Dir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir: %v, %d entries", err, len(entries))
	}
	path := filepath.Join(s.Dir(), entries[0].Name())
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if got := s.Load(id); len(got) != 0 {
		t.Errorf("corrupt context should load empty, got %v", got)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	id := NewContextID()
	s.Save(id, []llm.Message{{Role: llm.RoleUser, Content: "x"}})

	if err := s.Clear(id); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := s.Load(id); len(got) != 0 {
		t.Errorf("Load after Clear = %v, want empty", got)
	}
	if err := s.Clear(id); err != nil {
		t.Errorf("Clear of an absent context should not error: %v", err)
	}
}

func TestDistinctContextsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	s.Save("ctx-1", []llm.Message{{Role: llm.RoleUser, Content: "one"}})
	s.Save("ctx-2", []llm.Message{{Role: llm.RoleUser, Content: "two"}})

	if got := s.Load("ctx-1"); len(got) != 1 || got[0].Content != "one" {
		t.Errorf("ctx-1 = %v", got)
	}
	if got := s.Load("ctx-2"); len(got) != 1 || got[0].Content != "two" {
		t.Errorf("ctx-2 = %v", got)
	}
}

func TestSweepRemovesIdleContexts(t *testing.T) {
	s := newTestStore(t)
	s.Save("idle", []llm.Message{{Role: llm.RoleUser, Content: "old"}})
	s.Save("busy", []llm.Message{{Role: llm.RoleUser, Content: "new"}})

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(s.path("idle"), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if removed := s.Sweep(24 * time.Hour); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if got := s.Load("busy"); len(got) != 1 {
		t.Error("recently written context should survive the sweep")
	}
	if got := s.Load("idle"); len(got) != 0 {
		t.Error("idle context should be removed by the sweep")
	}
}
