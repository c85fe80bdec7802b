// Package artifact persists phase outputs as files under a run's artifact
// directory, plus a machine-readable summary of the finished run.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Writer saves artifacts under <runDir>/artifacts.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at the run directory.
func NewWriter(runDir string) *Writer {
	return &Writer{dir: filepath.Join(runDir, "artifacts")}
}

// Dir returns the artifact directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Save writes a named text artifact, creating the directory if needed. The
// write is atomic so a crash never leaves a half-written artifact.
func (w *Writer) Save(name, content string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, name)

	tmp, err := os.CreateTemp(w.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return path, nil
}

// StreamResult summarizes one implementation stream in the run summary.
type StreamResult struct {
	TaskID      int    `json:"taskId"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Summary is the machine-readable record of a finished run.
type Summary struct {
	RunID       string         `json:"runId"`
	Pipeline    string         `json:"pipeline"`
	Succeeded   bool           `json:"succeeded"`
	Phases      []string       `json:"phases"`
	Streams     []StreamResult `json:"streams,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	CompletedAt time.Time      `json:"completedAt"`
}

// SaveSummary writes the run summary as summary.json in the artifact
// directory.
func (w *Writer) SaveSummary(s Summary) (string, error) {
	s.CompletedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return w.Save("summary.json", string(data)+"\n")
}
