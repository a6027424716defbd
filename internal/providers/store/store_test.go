package store

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), &logging.Logger{Logger: zap.NewNop()})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	doc := []byte(`{"prompts":[{"text":"make build","count":3}]}`)
	if !s.Save("prompts.json", doc) {
		t.Fatal("Save failed")
	}

	got, ok := s.Load("prompts.json")
	if !ok {
		t.Fatal("Load reported no data")
	}
	if string(got) != string(doc) {
		t.Errorf("Load = %s, want %s", got, doc)
	}
}

func TestLoadMissingDocument(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.Load("never-saved.json"); ok {
		t.Error("Load resolved a document that was never saved")
	}
}

func TestLoadCorruptDocument(t *testing.T) {
	s := newTestStore(t)

	if err := os.WriteFile(filepath.Join(s.dir, "broken.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Load("broken.json"); ok {
		t.Error("Load accepted a corrupt document")
	}
}

func TestSaveRejectsInvalidJSON(t *testing.T) {
	s := newTestStore(t)

	if s.Save("doc.json", []byte("not json")) {
		t.Error("Save accepted invalid JSON")
	}
	if _, ok := s.Load("doc.json"); ok {
		t.Error("invalid save left a readable document behind")
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)

	if !s.Save("doc.json", []byte(`{"v":1}`)) {
		t.Fatal("first Save failed")
	}
	if !s.Save("doc.json", []byte(`{"v":2}`)) {
		t.Fatal("second Save failed")
	}

	got, ok := s.Load("doc.json")
	if !ok || string(got) != `{"v":2}` {
		t.Errorf("Load = %s, %v; want {\"v\":2}", got, ok)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in data dir, found %d", len(entries))
	}
}

func TestNameSanitization(t *testing.T) {
	s := newTestStore(t)

	bad := []string{
		"",
		"../escape.json",
		"/etc/passwd",
		"nested/doc.json",
		".hidden",
		"space name.json",
	}
	for _, name := range bad {
		if s.Save(name, []byte("{}")) {
			t.Errorf("Save accepted unsafe name %q", name)
		}
		if _, ok := s.Load(name); ok {
			t.Errorf("Load accepted unsafe name %q", name)
		}
	}

	if !s.Save("ok-name_1.json", []byte("{}")) {
		t.Error("Save rejected a safe name")
	}
}
