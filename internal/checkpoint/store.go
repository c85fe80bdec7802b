package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	checkpointFile = "checkpoint.json"
	latestFile     = "latest"
)

// Store manages checkpoint files on disk, one directory per run id, plus a
// "latest" pointer file naming the run to resume when no id is given.
type Store struct {
	baseDir string // defaults to ~/.conveyor/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.conveyor/runs, creating the directory
// if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".conveyor", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// RunDir returns the directory holding a run's checkpoint and artifacts.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) checkpointPath(runID string) string {
	return filepath.Join(s.RunDir(runID), checkpointFile)
}

func (s *Store) latestPath() string {
	return filepath.Join(s.baseDir, latestFile)
}

// Save writes the checkpoint atomically, replacing any prior snapshot, and
// advances the latest pointer to this run. Safe to call repeatedly.
func (s *Store) Save(cp *Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("save checkpoint: empty run id")
	}
	cp.UpdatedAt = time.Now().UTC()
	if err := writeJSON(s.checkpointPath(cp.RunID), cp); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := writeAtomic(s.latestPath(), []byte(cp.RunID+"\n")); err != nil {
		return fmt.Errorf("write latest pointer: %w", err)
	}
	return nil
}

// Load reads the checkpoint for runID. A missing checkpoint returns
// (nil, nil): resume falls back to a fresh run rather than aborting.
// A corrupt checkpoint returns an error for the caller to log and discard.
func (s *Store) Load(runID string) (*Checkpoint, error) {
	var cp Checkpoint
	if err := readJSON(s.checkpointPath(runID), &cp); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	return &cp, nil
}

// LoadLatest reads the checkpoint named by the latest pointer. A missing
// pointer or checkpoint returns (nil, nil).
func (s *Store) LoadLatest() (*Checkpoint, error) {
	runID, err := s.LatestRunID()
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, nil
	}
	return s.Load(runID)
}

// LatestRunID reads the latest pointer; "" if none exists.
func (s *Store) LatestRunID() (string, error) {
	data, err := os.ReadFile(s.latestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read latest pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Clear removes the checkpoint for runID. Artifacts in the run directory
// are kept. Called only after a fully successful run.
func (s *Store) Clear(runID string) error {
	err := os.Remove(s.checkpointPath(runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// List returns the run ids that have a run directory, newest first by
// checkpoint or directory modification time.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	type runInfo struct {
		id  string
		mod time.Time
	}
	var runs []runInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if st, err := os.Stat(s.checkpointPath(entry.Name())); err == nil {
			mod = st.ModTime()
		}
		runs = append(runs, runInfo{id: entry.Name(), mod: mod})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].mod.After(runs[j].mod)
	})

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	return ids, nil
}
