package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/conveyordev/conveyor/internal/checkpoint"
	"github.com/conveyordev/conveyor/internal/task"
)

// RunState owns the in-memory checkpoint for a run and is the single entry
// point for persisting it. Concurrent task streams mutate it under one
// mutex; every mutation that marks durable progress saves the whole
// checkpoint before returning.
type RunState struct {
	mu    sync.Mutex
	cp    *checkpoint.Checkpoint
	store *checkpoint.Store
}

// NewRunState wraps a checkpoint with its backing store.
func NewRunState(store *checkpoint.Store, cp *checkpoint.Checkpoint) *RunState {
	if cp.IterationProgress == nil {
		cp.IterationProgress = make(map[string]checkpoint.IterationState)
	}
	return &RunState{cp: cp, store: store}
}

// RunID returns the run identifier.
func (s *RunState) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp.RunID
}

// Persist saves the current checkpoint.
func (s *RunState) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *RunState) persistLocked() error {
	if err := s.store.Save(s.cp); err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}
	return nil
}

// PhaseCompleted reports whether a phase key is already checkpointed as done.
func (s *RunState) PhaseCompleted(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.cp.CompletedPhases {
		if k == key {
			return true
		}
	}
	return false
}

// SetActive marks a phase as the one currently executing. Iteration
// progress and drafts belonging to any other phase are stale at this point
// and are discarded before the phase runs.
func (s *RunState) SetActive(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cp.ActivePhase != key {
		s.cp.PhaseDraft = ""
	}
	s.cp.ActivePhase = key
	for k := range s.cp.IterationProgress {
		if !strings.HasPrefix(k, key) {
			delete(s.cp.IterationProgress, k)
		}
	}
	return s.persistLocked()
}

// MarkCompleted records a phase as done and clears the active marker.
func (s *RunState) MarkCompleted(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.cp.CompletedPhases {
		if k == key {
			return nil
		}
	}
	s.cp.CompletedPhases = append(s.cp.CompletedPhases, key)
	if s.cp.ActivePhase == key {
		s.cp.ActivePhase = ""
		s.cp.PhaseDraft = ""
	}
	return s.persistLocked()
}

// CompletedPhases returns a copy of the completed phase keys in order.
func (s *RunState) CompletedPhases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cp.CompletedPhases...)
}

// Draft returns the checkpointed pre-review draft, if any.
func (s *RunState) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp.PhaseDraft
}

// SetDraft persists the pre-review draft so a crash between drafting and
// the first review does not re-run the draft call.
func (s *RunState) SetDraft(draft string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.PhaseDraft = draft
	return s.persistLocked()
}

// IterationState implements review.Progress.
func (s *RunState) IterationState(key string) (checkpoint.IterationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.cp.IterationProgress[key]
	return st, ok
}

// SaveIteration implements review.Progress; every review iteration lands on
// disk before the next one starts.
func (s *RunState) SaveIteration(key string, st checkpoint.IterationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.IterationProgress[key] = st
	return s.persistLocked()
}

// Context returns a snapshot of the pipeline context. Tasks and stream
// results are copied so callers can iterate without holding the lock.
func (s *RunState) Context() checkpoint.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.cp.Context
	ctx.Tasks = append([]task.Task(nil), s.cp.Context.Tasks...)
	ctx.StreamResults = append([]string(nil), s.cp.Context.StreamResults...)
	return ctx
}

// SetRepoContext stores the repository context text.
func (s *RunState) SetRepoContext(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Context.RepoContext = text
}

// SetSpec stores the specification text.
func (s *RunState) SetSpec(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Context.Spec = text
}

// SetDesign stores the design text.
func (s *RunState) SetDesign(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Context.Design = text
}

// SetTasks stores the decomposed task list and sizes the stream-result
// slice to align with it by index.
func (s *RunState) SetTasks(tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Context.Tasks = tasks
	if len(s.cp.Context.StreamResults) != len(tasks) {
		results := make([]string, len(tasks))
		copy(results, s.cp.Context.StreamResults)
		s.cp.Context.StreamResults = results
	}
}

// StreamResult returns the stored result for a task index, "" if none.
func (s *RunState) StreamResult(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.cp.Context.StreamResults) {
		return ""
	}
	return s.cp.Context.StreamResults[i]
}

// SetStreamResult stores one stream's final result and persists. This is
// the unit of resumability for the implement phase: a stream with a stored
// result is never re-executed.
func (s *RunState) SetStreamResult(i int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.cp.Context.StreamResults) {
		return fmt.Errorf("stream index %d out of range", i)
	}
	s.cp.Context.StreamResults[i] = text
	return s.persistLocked()
}

// LogAgentCall appends an agent call record to the checkpoint's session
// log. Not persisted on its own; the next savepoint carries it.
func (s *RunState) LogAgentCall(entry checkpoint.AgentLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.AgentLog = append(s.cp.AgentLog, entry)
}
