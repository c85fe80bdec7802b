package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndOverwrite(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.Save("spec.md", "version one")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(path) != w.Dir() {
		t.Errorf("artifact written outside artifact dir: %s", path)
	}

	if _, err := w.Save("spec.md", "version two"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "version two" {
		t.Errorf("content = %q, want latest version", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(w.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "spec.md" {
			t.Errorf("unexpected file %s", e.Name())
		}
	}
}

func TestSaveSummary(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.SaveSummary(Summary{
		RunID:     "run-1",
		Pipeline:  "default",
		Succeeded: true,
		Phases:    []string{"spec-0", "decompose-1", "implement-2"},
		Streams: []StreamResult{
			{TaskID: 1, Description: "auth endpoints", Status: "done"},
			{TaskID: 2, Description: "billing hooks", Status: "failed", Error: "session timeout"},
		},
	})
	if err != nil {
		t.Fatalf("save summary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != "run-1" || !got.Succeeded || len(got.Streams) != 2 {
		t.Errorf("summary = %+v", got)
	}
	if got.CompletedAt.IsZero() {
		t.Error("CompletedAt not stamped")
	}
}
