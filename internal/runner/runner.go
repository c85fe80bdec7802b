// Package runner supervises pipeline execution: it retries a failed run
// from its checkpoint a bounded number of times. This is the only place
// that flips resume intent between attempts; the engine itself never
// decides to resume.
package runner

import (
	"context"
	"fmt"

	"github.com/conveyordev/conveyor/internal/progress"
)

// Attempt executes the pipeline once. resume is true for every attempt
// after the first (and for the first when the caller itself is resuming).
type Attempt func(ctx context.Context, resume bool) error

// Run executes attempt, resuming from the checkpoint on failure, up to
// maxAttempts total executions. The last error is returned once the budget
// is exhausted; the checkpoint stays on disk for a manual resume.
func Run(ctx context.Context, attempt Attempt, resume bool, maxAttempts int, r progress.Reporter) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 1; i <= maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt(ctx, resume)
		if err == nil {
			return nil
		}
		lastErr = err

		if i < maxAttempts {
			progress.Logf(r, progress.LevelWarn,
				"run failed (%v), auto-resuming from checkpoint (attempt %d of %d)", err, i+1, maxAttempts)
			resume = true
			continue
		}
	}
	return fmt.Errorf("run failed after %d attempt(s): %w", maxAttempts, lastErr)
}
