package agent

import (
	"context"
	"strings"
)

// CallResult reports what one CallIsolated invocation actually did, for the
// agent-session log.
type CallResult struct {
	Text     string
	Attempts int
}

// CallIsolated creates a fresh session per attempt, sends the prompt, and
// returns the response text. An empty response counts as a retryable
// failure; on the final attempt an empty string is returned as-is. Errors
// are retried up to maxAttempts total; the last one is returned. Every
// attempt disposes its session regardless of outcome.
func CallIsolated(ctx context.Context, client Client, agentID, prompt string, maxAttempts int) (CallResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return CallResult{Attempts: attempt - 1}, err
		}

		text, err := callOnce(ctx, client, agentID, prompt)
		if err != nil {
			lastErr = err
			if attempt == maxAttempts {
				return CallResult{Attempts: attempt}, err
			}
			continue
		}

		if strings.TrimSpace(text) == "" {
			if attempt == maxAttempts {
				return CallResult{Text: "", Attempts: attempt}, nil
			}
			continue
		}

		return CallResult{Text: text, Attempts: attempt}, nil
	}
	return CallResult{Attempts: maxAttempts}, lastErr
}

// callOnce runs one attempt with guaranteed session disposal.
func callOnce(ctx context.Context, client Client, agentID, prompt string) (string, error) {
	session, err := client.CreateSession(ctx, agentID)
	if err != nil {
		return "", err
	}
	defer session.Destroy()

	return session.Send(ctx, prompt)
}
