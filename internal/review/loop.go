// Package review implements the generic author→reviewer→revise iteration
// used by every phase that refines agent output.
package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/conveyordev/conveyor/internal/checkpoint"
	"github.com/conveyordev/conveyor/internal/config"
	"github.com/conveyordev/conveyor/internal/progress"
)

// CallFunc performs one isolated agent call.
type CallFunc func(ctx context.Context, agentID, prompt string) (string, error)

// Progress persists and restores per-iteration loop state. Implemented by
// the engine's run state so every completed iteration lands in the
// checkpoint before the next one starts.
type Progress interface {
	IterationState(key string) (checkpoint.IterationState, bool)
	SaveIteration(key string, st checkpoint.IterationState) error
}

// Guard rejects revisions that look truncated or structurally broken. A
// rejected revision keeps the previous content.
type Guard struct {
	MinLengthRatio   float64
	RequiredSections []string
}

// Check reports whether the revision is acceptable relative to the prior
// content; reason is set when it is not.
func (g *Guard) Check(prior, revision string) (bool, string) {
	if g.MinLengthRatio > 0 && len(prior) > 0 {
		ratio := float64(len(revision)) / float64(len(prior))
		if ratio < g.MinLengthRatio {
			return false, fmt.Sprintf("revision is %.0f%% of the original length", ratio*100)
		}
	}
	for _, section := range g.RequiredSections {
		if !strings.Contains(revision, section) {
			return false, fmt.Sprintf("revision is missing section %q", section)
		}
	}
	return true, ""
}

// Opts configures one review loop run.
type Opts struct {
	// Author is the agent revised content is requested from.
	Author string
	// Step is the reviewer configuration.
	Step config.ReviewStep
	// Key is the stable iteration identifier for checkpointing.
	Key string
	// Content is the starting content (the author's draft).
	Content string
	// ReviewPrompt renders the reviewer's prompt for the current content.
	ReviewPrompt func(content string) string
	// RevisePrompt renders the author's revision prompt.
	RevisePrompt func(content, feedback string) string
	// Guard optionally protects structural content from broken rewrites.
	Guard *Guard
}

// Loop runs review iterations using the given call and persistence hooks.
type Loop struct {
	Call     CallFunc
	Store    Progress
	Reporter progress.Reporter
}

// Run executes the loop: review the content, stop on the approval keyword,
// otherwise revise and persist. It resumes from checkpointed progress under
// opts.Key and never errors on an exhausted iteration budget: the last
// content stands, approved or not.
func (l *Loop) Run(ctx context.Context, opts Opts) (string, error) {
	content := opts.Content
	start := 1

	if st, ok := l.Store.IterationState(opts.Key); ok {
		content = st.Content
		start = st.CompletedIterations + 1
	}

	for i := start; i <= opts.Step.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return content, err
		}

		feedback, err := l.Call(ctx, opts.Step.Agent, opts.ReviewPrompt(content))
		if err != nil {
			return content, fmt.Errorf("review iteration %d (%s): %w", i, opts.Key, err)
		}

		if Approved(feedback, opts.Step.ApprovalKeyword) {
			progress.Logf(l.Reporter, progress.LevelInfo, "%s approved after %d iteration(s)", opts.Key, i-1)
			return content, nil
		}

		feedback, err = l.clarify(ctx, opts, content, feedback)
		if err != nil {
			return content, err
		}

		revision, err := l.Call(ctx, opts.Author, opts.RevisePrompt(content, feedback))
		if err != nil {
			return content, fmt.Errorf("revision iteration %d (%s): %w", i, opts.Key, err)
		}

		if opts.Guard != nil {
			if ok, reason := opts.Guard.Check(content, revision); !ok {
				progress.Logf(l.Reporter, progress.LevelWarn,
					"%s iteration %d: revision discarded (%s), keeping previous content", opts.Key, i, reason)
				revision = content
			}
		}
		content = revision

		if err := l.Store.SaveIteration(opts.Key, checkpoint.IterationState{
			Content:             content,
			CompletedIterations: i,
		}); err != nil {
			return content, fmt.Errorf("persist iteration %d (%s): %w", i, opts.Key, err)
		}
	}

	progress.Logf(l.Reporter, progress.LevelWarn,
		"%s: iteration budget (%d) exhausted, proceeding with last revision", opts.Key, opts.Step.MaxIterations)
	return content, nil
}

// clarify routes reviewer questions to the clarification agent when the
// step configures one and the feedback contains the clarification keyword.
// The clarified feedback replaces the raw feedback for the revision call.
func (l *Loop) clarify(ctx context.Context, opts Opts, content, feedback string) (string, error) {
	step := opts.Step
	if step.ClarificationAgent == "" || step.ClarificationKeyword == "" {
		return feedback, nil
	}
	if !containsFold(feedback, step.ClarificationKeyword) {
		return feedback, nil
	}

	prompt := fmt.Sprintf(
		"A reviewer raised questions about the content below. Answer them so the author can revise.\n\nContent:\n%s\n\nReviewer feedback:\n%s",
		content, feedback)
	answer, err := l.Call(ctx, step.ClarificationAgent, prompt)
	if err != nil {
		return feedback, fmt.Errorf("clarification (%s): %w", opts.Key, err)
	}
	return feedback + "\n\nClarifications:\n" + answer, nil
}

// Approved reports whether the feedback contains the approval keyword,
// matched as a case-insensitive substring.
func Approved(feedback, keyword string) bool {
	if keyword == "" {
		return false
	}
	return containsFold(feedback, keyword)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
