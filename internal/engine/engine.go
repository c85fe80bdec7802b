// Package engine drives the phase state machine: it loads or creates the
// checkpoint, executes configured phases in order through their handlers,
// persists after every durable step, and clears the checkpoint only once
// the final artifacts are written.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conveyordev/conveyor/internal/agent"
	"github.com/conveyordev/conveyor/internal/artifact"
	"github.com/conveyordev/conveyor/internal/checkpoint"
	"github.com/conveyordev/conveyor/internal/config"
	"github.com/conveyordev/conveyor/internal/db"
	"github.com/conveyordev/conveyor/internal/progress"
	"github.com/conveyordev/conveyor/internal/verify"
)

const checkpointVersion = "1"

// Engine executes one pipeline run.
type Engine struct {
	Config   *config.PipelineConfig
	Client   agent.Client
	Store    *checkpoint.Store
	Reporter progress.Reporter
	Events   *db.DB               // optional run event log
	Commands verify.CommandRunner // optional; defaults to ExecRunner
	WorkDir  string
}

// Options configures a single Execute call.
type Options struct {
	// Resume loads the checkpoint for RunID (or the latest run) instead of
	// starting fresh. The engine never decides to resume on its own.
	Resume bool
	// RunID names the run; empty means a new id (or the latest on resume).
	RunID string
	// Intent is the user's request driving the spec phase.
	Intent string
	// RepoContext describes the project; it seeds fresh runs only.
	RepoContext string
	// Plan is an externally supplied specification; phases conditioned on
	// "unless_plan_provided" are skipped and the plan forwarded instead.
	Plan string
	// Feedback switches on the review variant: context is pre-seeded from
	// FromRun's artifacts, every phase before implement is pre-completed,
	// and the feedback text is appended to implement prompts.
	Feedback string
	// FromRun names the prior run the review variant seeds from.
	FromRun string
	// VerifyCommands overrides both configured and detected verify commands.
	VerifyCommands []string
}

// PartialFailureError reports that some implement streams failed terminally
// while the rest of their wave completed and was checkpointed.
type PartialFailureError struct {
	Phase  string
	Failed int
	Total  int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("phase %s: %d of %d streams failed", e.Phase, e.Failed, e.Total)
}

// Execute runs every configured phase exactly once across the lifetime of a
// logical run. On success it writes the run summary and clears the
// checkpoint; clearing is the last action so a crash anywhere earlier
// remains resumable.
func (e *Engine) Execute(ctx context.Context, opts Options) error {
	cp, resumed, err := e.resolveCheckpoint(opts)
	if err != nil {
		return err
	}
	state := NewRunState(e.Store, cp)

	if !resumed && opts.RepoContext != "" {
		state.SetRepoContext(opts.RepoContext)
	}
	if opts.Feedback != "" && !resumed {
		if err := e.seedReviewRun(state, opts); err != nil {
			return err
		}
	}

	if err := state.Persist(); err != nil {
		return err
	}
	if resumed {
		e.logEvent(state.RunID(), "run_resumed", "", fmt.Sprintf("%d phases already complete", len(state.CompletedPhases())))
	} else {
		e.logEvent(state.RunID(), "run_started", "", e.Config.Pipeline.Name)
	}

	for i, phase := range e.Config.Pipeline.Phases {
		key := phaseKey(phase.Kind, i)

		if state.PhaseCompleted(key) {
			progress.PhaseSkipped(e.Reporter, key, "already completed")
			e.logEvent(state.RunID(), "phase_skipped", key, "already completed")
			continue
		}

		if run, reason := e.evaluateCondition(phase, state, opts); !run {
			if err := state.MarkCompleted(key); err != nil {
				return err
			}
			progress.PhaseSkipped(e.Reporter, key, reason)
			e.logEvent(state.RunID(), "phase_skipped", key, reason)
			continue
		}

		if err := state.SetActive(key); err != nil {
			return err
		}
		progress.PhaseActivated(e.Reporter, key)
		e.logEvent(state.RunID(), "phase_started", key, "")

		if err := e.runPhase(ctx, i, phase, key, state, opts); err != nil {
			e.logEvent(state.RunID(), "run_failed", key, err.Error())
			return fmt.Errorf("phase %s: %w", key, err)
		}

		if err := state.MarkCompleted(key); err != nil {
			return err
		}
		progress.PhaseCompleted(e.Reporter, key)
		e.logEvent(state.RunID(), "phase_completed", key, "")
	}

	if err := e.finish(state); err != nil {
		return err
	}
	e.logEvent(state.RunID(), "run_completed", "", "")

	// Clearing the checkpoint is last: everything before this point is
	// safely resumable.
	if err := e.Store.Clear(state.RunID()); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// resolveCheckpoint loads the checkpoint on resume or creates a fresh one.
// Missing or corrupt checkpoints and config-fingerprint mismatches fall
// back to a fresh run with a warning, never an abort.
func (e *Engine) resolveCheckpoint(opts Options) (*checkpoint.Checkpoint, bool, error) {
	if opts.Resume {
		var cp *checkpoint.Checkpoint
		var err error
		if opts.RunID != "" {
			cp, err = e.Store.Load(opts.RunID)
		} else {
			cp, err = e.Store.LoadLatest()
		}
		switch {
		case err != nil:
			progress.Logf(e.Reporter, progress.LevelWarn, "checkpoint unreadable, starting fresh: %v", err)
		case cp == nil:
			progress.Logf(e.Reporter, progress.LevelWarn, "no checkpoint found, starting fresh")
		case cp.ConfigFingerprint != "" && cp.ConfigFingerprint != e.Config.Fingerprint:
			progress.Logf(e.Reporter, progress.LevelWarn,
				"pipeline config changed since run %s was checkpointed, starting fresh", cp.RunID)
		default:
			return cp, true, nil
		}
	}

	runID := opts.RunID
	if runID == "" {
		runID = time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	}
	return &checkpoint.Checkpoint{
		Version:           checkpointVersion,
		RunID:             runID,
		ConfigFingerprint: e.Config.Fingerprint,
		IterationProgress: make(map[string]checkpoint.IterationState),
	}, false, nil
}

// seedReviewRun pre-seeds context from a prior run's saved artifacts and
// marks every phase before implement as completed, so execution starts
// mid-pipeline with the feedback applied to implement prompts.
func (e *Engine) seedReviewRun(state *RunState, opts Options) error {
	if opts.FromRun == "" {
		return fmt.Errorf("review run requires a prior run id")
	}
	seeded, err := loadContextArtifact(e.Store.RunDir(opts.FromRun))
	if err != nil {
		return fmt.Errorf("seed from run %s: %w", opts.FromRun, err)
	}

	state.SetRepoContext(seeded.RepoContext)
	state.SetSpec(seeded.Spec)
	state.SetDesign(seeded.Design)
	state.SetTasks(seeded.Tasks)
	// Stream results are redone with the feedback applied.

	for i, phase := range e.Config.Pipeline.Phases {
		if phase.Kind == config.KindImplement {
			break
		}
		if err := state.MarkCompleted(phaseKey(phase.Kind, i)); err != nil {
			return err
		}
	}
	return nil
}

// evaluateCondition reports whether a phase should run. A false result
// marks the phase completed as a pass-through, forwarding any externally
// supplied values into the context.
func (e *Engine) evaluateCondition(phase config.Phase, state *RunState, opts Options) (bool, string) {
	switch phase.Condition {
	case config.CondUnlessPlanGiven:
		if opts.Plan != "" {
			if state.Context().Spec == "" {
				state.SetSpec(opts.Plan)
			}
			return false, "plan provided externally"
		}
	case config.CondIfFrontendTasks:
		for _, t := range state.Context().Tasks {
			if strings.Contains(strings.ToLower(t.Description), "frontend") {
				return true, ""
			}
		}
		return false, "no frontend tasks"
	}
	return true, ""
}

// runPhase dispatches to the handler for the phase kind.
func (e *Engine) runPhase(ctx context.Context, index int, phase config.Phase, key string, state *RunState, opts Options) error {
	switch phase.Kind {
	case config.KindSpec:
		return e.runSpec(ctx, phase, key, state, opts)
	case config.KindDecompose:
		return e.runDecompose(ctx, phase, key, state)
	case config.KindDesign:
		return e.runDesign(ctx, phase, key, state)
	case config.KindImplement:
		return e.runImplement(ctx, phase, key, state, opts)
	case config.KindCrossReview:
		return e.runCrossReview(ctx, phase, key, state)
	case config.KindVerify:
		return e.runVerify(ctx, key, state, opts)
	default:
		return fmt.Errorf("unknown phase kind %q", phase.Kind)
	}
}

// callAgent performs one isolated agent call with the configured retry
// budget, recording it in the session log and the event database.
func (e *Engine) callAgent(ctx context.Context, state *RunState, phaseKey, agentID, prompt string) (string, error) {
	progress.AgentLabel(e.Reporter, agentID)
	defer progress.AgentLabel(e.Reporter, "")

	start := time.Now()
	res, err := agent.CallIsolated(ctx, e.Client, agentID, prompt, e.Config.Pipeline.Defaults.MaxCallAttempts)

	entry := checkpoint.AgentLogEntry{
		Phase:         phaseKey,
		Agent:         agentID,
		Attempt:       res.Attempts,
		PromptChars:   len(prompt),
		ResponseChars: len(res.Text),
		At:            time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	state.LogAgentCall(entry)

	if e.Events != nil {
		errText := ""
		if err != nil {
			errText = err.Error()
		}
		if logErr := e.Events.LogAgentCall(state.RunID(), phaseKey, agentID, res.Attempts,
			len(prompt), len(res.Text), int(time.Since(start).Milliseconds()), errText); logErr != nil {
			progress.Logf(e.Reporter, progress.LevelWarn, "log agent call: %v", logErr)
		}
	}
	return res.Text, err
}

// finish writes the run artifacts and summary.
func (e *Engine) finish(state *RunState) error {
	w := artifact.NewWriter(e.Store.RunDir(state.RunID()))
	pctx := state.Context()

	var saved []string
	save := func(name, content string) error {
		if content == "" {
			return nil
		}
		if _, err := w.Save(name, content); err != nil {
			return err
		}
		saved = append(saved, name)
		return nil
	}

	if err := save("spec.md", pctx.Spec); err != nil {
		return err
	}
	if err := save("design.md", pctx.Design); err != nil {
		return err
	}
	if len(pctx.Tasks) > 0 {
		data, err := json.MarshalIndent(pctx.Tasks, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal tasks: %w", err)
		}
		if err := save("tasks.json", string(data)+"\n"); err != nil {
			return err
		}
	}
	for i, result := range pctx.StreamResults {
		if i < len(pctx.Tasks) {
			if err := save(fmt.Sprintf("task-%d.md", pctx.Tasks[i].ID), result); err != nil {
				return err
			}
		}
	}
	if err := saveContextArtifact(w, pctx); err != nil {
		return err
	}

	streams := make([]artifact.StreamResult, 0, len(pctx.Tasks))
	for i, t := range pctx.Tasks {
		status := "done"
		if i >= len(pctx.StreamResults) || pctx.StreamResults[i] == "" {
			status = "skipped"
		}
		streams = append(streams, artifact.StreamResult{
			TaskID:      t.ID,
			Description: t.Description,
			Status:      status,
		})
	}
	_, err := w.SaveSummary(artifact.Summary{
		RunID:     state.RunID(),
		Pipeline:  e.Config.Pipeline.Name,
		Succeeded: true,
		Phases:    state.CompletedPhases(),
		Streams:   streams,
		Artifacts: saved,
	})
	return err
}

const contextArtifact = "context.json"

func saveContextArtifact(w *artifact.Writer, pctx checkpoint.Context) error {
	data, err := json.MarshalIndent(pctx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = w.Save(contextArtifact, string(data)+"\n")
	return err
}

func loadContextArtifact(runDir string) (checkpoint.Context, error) {
	var pctx checkpoint.Context
	data, err := os.ReadFile(filepath.Join(runDir, "artifacts", contextArtifact))
	if err != nil {
		return pctx, err
	}
	if err := json.Unmarshal(data, &pctx); err != nil {
		return pctx, fmt.Errorf("unmarshal context artifact: %w", err)
	}
	return pctx, nil
}

// logEvent records a run event, tolerating a missing or failing event log.
func (e *Engine) logEvent(runID, event, phase, detail string) {
	if e.Events == nil {
		return
	}
	if err := e.Events.LogRunEvent(runID, event, phase, detail); err != nil {
		progress.Logf(e.Reporter, progress.LevelWarn, "log run event: %v", err)
	}
}

func phaseKey(kind string, index int) string {
	return fmt.Sprintf("%s-%d", kind, index)
}
