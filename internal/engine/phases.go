package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/conveyordev/conveyor/internal/config"
	"github.com/conveyordev/conveyor/internal/progress"
	"github.com/conveyordev/conveyor/internal/review"
	"github.com/conveyordev/conveyor/internal/task"
	"github.com/conveyordev/conveyor/internal/verify"
)

// loopFor builds a review loop bound to this run's state and call path.
func (e *Engine) loopFor(state *RunState, phaseKey string) *review.Loop {
	return &review.Loop{
		Call: func(ctx context.Context, agentID, prompt string) (string, error) {
			return e.callAgent(ctx, state, phaseKey, agentID, prompt)
		},
		Store:    state,
		Reporter: e.Reporter,
	}
}

func guardFor(phase config.Phase) *review.Guard {
	if phase.MinLengthRatio <= 0 && len(phase.RequiredSections) == 0 {
		return nil
	}
	return &review.Guard{
		MinLengthRatio:   phase.MinLengthRatio,
		RequiredSections: phase.RequiredSections,
	}
}

// runSpec drafts the specification and refines it through the configured
// review steps. The draft is checkpointed before the first review so a
// crash never repeats the draft call.
func (e *Engine) runSpec(ctx context.Context, phase config.Phase, key string, state *RunState, opts Options) error {
	content := state.Draft()
	if content == "" {
		draft, err := e.callAgent(ctx, state, key, phase.Agent, specPrompt(opts.Intent, state.Context().RepoContext))
		if err != nil {
			return fmt.Errorf("draft spec: %w", err)
		}
		if err := state.SetDraft(draft); err != nil {
			return err
		}
		content = draft
	}

	loop := e.loopFor(state, key)
	for ri, step := range phase.Reviews {
		refined, err := loop.Run(ctx, review.Opts{
			Author:       phase.Agent,
			Step:         step,
			Key:          fmt.Sprintf("%s-review-%d", key, ri),
			Content:      content,
			ReviewPrompt: specReviewPrompt,
			RevisePrompt: revisePrompt,
			Guard:        guardFor(phase),
		})
		if err != nil {
			return err
		}
		content = refined
	}

	state.SetSpec(content)
	return nil
}

// runDecompose asks the agent for a task breakdown and parses it. A parse
// failure means the agent ignored the output format, which is fatal rather
// than retried.
func (e *Engine) runDecompose(ctx context.Context, phase config.Phase, key string, state *RunState) error {
	text, err := e.callAgent(ctx, state, key, phase.Agent, decomposePrompt(state.Context().Spec))
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}
	tasks, err := task.Parse(text)
	if err != nil {
		return fmt.Errorf("decompose output: %w", err)
	}
	state.SetTasks(tasks)
	progress.Logf(e.Reporter, progress.LevelInfo, "decomposed into %d tasks", len(tasks))
	return nil
}

// runDesign drafts the technical design and refines it through reviews.
func (e *Engine) runDesign(ctx context.Context, phase config.Phase, key string, state *RunState) error {
	content := state.Draft()
	if content == "" {
		pctx := state.Context()
		draft, err := e.callAgent(ctx, state, key, phase.Agent, designPrompt(pctx.Spec, pctx.Tasks))
		if err != nil {
			return fmt.Errorf("draft design: %w", err)
		}
		if err := state.SetDraft(draft); err != nil {
			return err
		}
		content = draft
	}

	loop := e.loopFor(state, key)
	for ri, step := range phase.Reviews {
		refined, err := loop.Run(ctx, review.Opts{
			Author:       phase.Agent,
			Step:         step,
			Key:          fmt.Sprintf("%s-review-%d", key, ri),
			Content:      content,
			ReviewPrompt: designReviewPrompt,
			RevisePrompt: revisePrompt,
			Guard:        guardFor(phase),
		})
		if err != nil {
			return err
		}
		content = refined
	}

	state.SetDesign(content)
	return nil
}

// runImplement executes one stream per task in dependency-wave order.
// Streams with a checkpointed result are skipped; within a wave, failures
// let sibling streams finish and are reported together afterwards.
func (e *Engine) runImplement(ctx context.Context, phase config.Phase, key string, state *RunState, opts Options) error {
	pctx := state.Context()
	tasks := pctx.Tasks
	if len(tasks) == 0 {
		progress.Logf(e.Reporter, progress.LevelWarn, "%s: no tasks to implement", key)
		return nil
	}

	maxParallel := e.Config.Pipeline.Defaults.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	waves := task.ComputeWaves(tasks)
	for _, wave := range waves {
		errs := make([]error, len(wave))

		if phase.Parallel && len(wave) > 1 {
			sem := semaphore.NewWeighted(int64(maxParallel))
			var wg sync.WaitGroup
			for wi, ti := range wave {
				if err := sem.Acquire(ctx, 1); err != nil {
					errs[wi] = err
					continue
				}
				wg.Add(1)
				go func(wi, ti int) {
					defer wg.Done()
					defer sem.Release(1)
					errs[wi] = e.runStream(ctx, phase, key, state, ti, opts)
				}(wi, ti)
			}
			wg.Wait()
		} else {
			for wi, ti := range wave {
				errs[wi] = e.runStream(ctx, phase, key, state, ti, opts)
			}
		}

		failed := 0
		for wi, err := range errs {
			if err != nil {
				failed++
				progress.Logf(e.Reporter, progress.LevelError, "task %d failed: %v", tasks[wave[wi]].ID, err)
			}
		}
		if failed > 0 {
			return &PartialFailureError{Phase: key, Failed: failed, Total: len(tasks)}
		}
	}
	return nil
}

// runStream runs one task through draft, code reviews, and optional QA.
func (e *Engine) runStream(ctx context.Context, phase config.Phase, key string, state *RunState, ti int, opts Options) error {
	t := state.Context().Tasks[ti]

	if state.StreamResult(ti) != "" {
		progress.Stream(e.Reporter, key, t.ID, progress.StreamSkipped)
		return nil
	}
	progress.Stream(e.Reporter, key, t.ID, progress.StreamEngineering)
	e.logEvent(state.RunID(), "stream_started", key, fmt.Sprintf("task %d", t.ID))

	pctx := state.Context()
	content, err := e.callAgent(ctx, state, key, phase.Agent,
		implementPrompt(t, pctx.Spec, pctx.Design, e.depSummaries(state, t), opts.Feedback))
	if err != nil {
		return e.failStream(state, key, t.ID, fmt.Errorf("implement task %d: %w", t.ID, err))
	}

	loop := e.loopFor(state, key)
	if len(phase.Reviews) > 0 {
		progress.Stream(e.Reporter, key, t.ID, progress.StreamReviewing)
	}
	for ri, step := range phase.Reviews {
		content, err = loop.Run(ctx, review.Opts{
			Author:       phase.Agent,
			Step:         step,
			Key:          fmt.Sprintf("%s-task-%d-review-%d", key, t.ID, ri),
			Content:      content,
			ReviewPrompt: func(c string) string { return codeReviewPrompt(t, c) },
			RevisePrompt: revisePrompt,
		})
		if err != nil {
			return e.failStream(state, key, t.ID, err)
		}
	}

	if phase.QA != nil {
		progress.Stream(e.Reporter, key, t.ID, progress.StreamTesting)
		content, err = loop.Run(ctx, review.Opts{
			Author:       phase.Agent,
			Step:         *phase.QA,
			Key:          fmt.Sprintf("%s-task-%d-qa", key, t.ID),
			Content:      content,
			ReviewPrompt: func(c string) string { return qaPrompt(t, c) },
			RevisePrompt: revisePrompt,
		})
		if err != nil {
			return e.failStream(state, key, t.ID, err)
		}
	}

	if err := state.SetStreamResult(ti, content); err != nil {
		return e.failStream(state, key, t.ID, err)
	}
	progress.Stream(e.Reporter, key, t.ID, progress.StreamDone)
	e.logEvent(state.RunID(), "stream_completed", key, fmt.Sprintf("task %d", t.ID))
	return nil
}

func (e *Engine) failStream(state *RunState, key string, taskID int, err error) error {
	progress.Stream(e.Reporter, key, taskID, progress.StreamFailed)
	e.logEvent(state.RunID(), "stream_failed", key, err.Error())
	return err
}

const depSummaryLimit = 600

// depSummaries collects truncated results of a task's completed
// dependencies for inclusion in its prompt.
func (e *Engine) depSummaries(state *RunState, t task.Task) map[int]string {
	pctx := state.Context()
	byID := make(map[int]int, len(pctx.Tasks))
	for i, other := range pctx.Tasks {
		byID[other.ID] = i
	}

	summaries := make(map[int]string)
	for _, dep := range t.DependsOn {
		i, ok := byID[dep]
		if !ok || i >= len(pctx.StreamResults) {
			continue
		}
		result := pctx.StreamResults[i]
		if result == "" {
			continue
		}
		if len(result) > depSummaryLimit {
			result = result[:depSummaryLimit] + "..."
		}
		summaries[dep] = result
	}
	return summaries
}

// runCrossReview re-reviews every stream result with a different model, in
// wave order so dependents are reviewed after their dependencies.
func (e *Engine) runCrossReview(ctx context.Context, phase config.Phase, key string, state *RunState) error {
	pctx := state.Context()
	if len(pctx.Tasks) == 0 {
		return nil
	}

	loop := e.loopFor(state, key)
	for _, wave := range task.ComputeWaves(pctx.Tasks) {
		for _, ti := range wave {
			t := pctx.Tasks[ti]
			content := state.StreamResult(ti)
			if content == "" {
				continue
			}
			for ri, step := range phase.Reviews {
				refined, err := loop.Run(ctx, review.Opts{
					Author:       phase.Agent,
					Step:         step,
					Key:          fmt.Sprintf("%s-task-%d-review-%d", key, t.ID, ri),
					Content:      content,
					ReviewPrompt: func(c string) string { return codeReviewPrompt(t, c) },
					RevisePrompt: revisePrompt,
				})
				if err != nil {
					return fmt.Errorf("cross review task %d: %w", t.ID, err)
				}
				content = refined
			}
			if err := state.SetStreamResult(ti, content); err != nil {
				return err
			}
		}
	}
	return nil
}

// runVerify resolves the project's verify commands, runs them, and on
// failure feeds the output to the fix agent for up to the configured
// number of fix rounds.
func (e *Engine) runVerify(ctx context.Context, key string, state *RunState, opts Options) error {
	vcfg := e.Config.Pipeline.Verify
	commands := verify.Resolve(e.WorkDir, opts.VerifyCommands, vcfg.Commands)
	if len(commands) == 0 {
		progress.Logf(e.Reporter, progress.LevelWarn, "%s: no verify commands resolved, skipping", key)
		return nil
	}

	cmdRunner := e.Commands
	if cmdRunner == nil {
		cmdRunner = &verify.ExecRunner{}
	}
	var timeout time.Duration
	if vcfg.CommandTimeout != "" {
		timeout, _ = time.ParseDuration(vcfg.CommandTimeout)
	}
	runner := verify.NewRunner(cmdRunner, timeout)

	for round := 0; ; round++ {
		results, err := runner.RunAll(ctx, e.WorkDir, commands)
		if err != nil {
			return fmt.Errorf("verify round %d: %w", round, err)
		}
		for _, r := range results {
			if e.Events != nil {
				if logErr := e.Events.LogVerifyRun(state.RunID(), round, r.Command, r.Passed,
					r.ExitCode, r.DurationMs, r.Output); logErr != nil {
					progress.Logf(e.Reporter, progress.LevelWarn, "log verify run: %v", logErr)
				}
			}
		}

		failed := verify.Failures(results)
		if len(failed) == 0 {
			return nil
		}
		if round >= vcfg.MaxFixRounds || vcfg.FixAgent == "" {
			return fmt.Errorf("verification failed: %d command(s) failing after %d fix round(s)", len(failed), round)
		}

		progress.Logf(e.Reporter, progress.LevelWarn,
			"%s: %d command(s) failed, fix round %d/%d", key, len(failed), round+1, vcfg.MaxFixRounds)
		if _, err := e.callAgent(ctx, state, key, vcfg.FixAgent, fixPrompt(failed)); err != nil {
			return fmt.Errorf("fix round %d: %w", round+1, err)
		}
	}
}
