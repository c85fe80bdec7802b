// Package checkpoint persists run state so an interrupted pipeline resumes
// exactly where it left off.
package checkpoint

import (
	"time"

	"github.com/conveyordev/conveyor/internal/task"
)

// Context is the single mutable aggregate threaded through every phase.
// StreamResults aligns by index with Tasks.
type Context struct {
	RepoContext   string      `json:"repo_context,omitempty"`
	Spec          string      `json:"spec,omitempty"`
	Tasks         []task.Task `json:"tasks,omitempty"`
	Design        string      `json:"design,omitempty"`
	StreamResults []string    `json:"stream_results,omitempty"`
}

// IterationState records review-loop progress under a stable iteration key.
type IterationState struct {
	Content             string `json:"content"`
	CompletedIterations int    `json:"completed_iterations"`
}

// AgentLogEntry records one agent call for observability replay.
type AgentLogEntry struct {
	Phase         string    `json:"phase"`
	Agent         string    `json:"agent"`
	Attempt       int       `json:"attempt"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// Checkpoint is the full durable snapshot of a run. Every save replaces the
// file wholesale; there is never a partial merge on disk.
type Checkpoint struct {
	Version           string                    `json:"version"`
	RunID             string                    `json:"run_id"`
	ConfigFingerprint string                    `json:"config_fingerprint,omitempty"`
	CompletedPhases   []string                  `json:"completed_phases"`
	ActivePhase       string                    `json:"active_phase,omitempty"`
	PhaseDraft        string                    `json:"phase_draft,omitempty"`
	Context           Context                   `json:"context"`
	IterationProgress map[string]IterationState `json:"iteration_progress,omitempty"`
	AgentLog          []AgentLogEntry           `json:"agent_log,omitempty"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}
