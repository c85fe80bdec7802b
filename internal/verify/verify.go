// Package verify runs the project's build and test commands after
// implementation finishes, reporting structured results the engine feeds
// back into fix rounds.
package verify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result holds the outcome of one verify command.
type Result struct {
	Command    string `json:"command"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (output string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var buf strings.Builder
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return buf.String(), exitErr.ExitCode(), nil
		}
		if ctx.Err() != nil {
			return buf.String(), -1, fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return buf.String(), -1, fmt.Errorf("exec: %w", err)
	}
	return buf.String(), 0, nil
}

// Runner executes verify commands.
type Runner struct {
	cmd     CommandRunner
	timeout time.Duration
}

// NewRunner creates a Runner. A zero timeout defaults to 5 minutes per command.
func NewRunner(cmd CommandRunner, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{cmd: cmd, timeout: timeout}
}

const maxOutputBytes = 16 * 1024

// RunAll executes the commands in order in dir, collecting a Result per
// command. It does not stop on failure so fix prompts can see every broken
// command at once. The returned error covers execution problems only, not
// command failures.
func (r *Runner) RunAll(ctx context.Context, dir string, commands []string) ([]Result, error) {
	results := make([]Result, 0, len(commands))
	for _, command := range commands {
		res, err := r.runOne(ctx, dir, command)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, dir, command string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	output, exitCode, err := r.cmd.Run(ctx, dir, command)
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil {
		// A timed-out command is a failed command, not an engine error.
		if ctx.Err() != nil {
			return Result{
				Command:    command,
				Passed:     false,
				ExitCode:   -1,
				DurationMs: elapsed,
				Output:     truncate(output) + "\n(command timed out)",
			}, nil
		}
		return Result{}, fmt.Errorf("run %q: %w", command, err)
	}

	return Result{
		Command:    command,
		Passed:     exitCode == 0,
		ExitCode:   exitCode,
		DurationMs: elapsed,
		Output:     truncate(output),
	}, nil
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failures returns the failed results.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n... (output truncated)"
}
