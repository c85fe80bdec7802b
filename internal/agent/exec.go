package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecClient runs each agent as a one-shot subprocess: the configured
// command receives instructions plus prompt on stdin and prints its answer
// to stdout. The command string may reference {model} which is substituted
// from the agent spec.
type ExecClient struct {
	agents         map[string]Spec
	defaultTimeout time.Duration
	workDir        string
}

// NewExecClient creates an ExecClient for the given agent specs.
func NewExecClient(agents map[string]Spec, defaultTimeout time.Duration, workDir string) *ExecClient {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Minute
	}
	return &ExecClient{agents: agents, defaultTimeout: defaultTimeout, workDir: workDir}
}

// CreateSession resolves the agent spec and returns a session bound to it.
func (c *ExecClient) CreateSession(ctx context.Context, agentID string) (Session, error) {
	spec, ok := c.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", agentID)
	}

	timeout := c.defaultTimeout
	if spec.Timeout != "" {
		if d, err := time.ParseDuration(spec.Timeout); err == nil {
			timeout = d
		}
	}

	return &execSession{spec: spec, timeout: timeout, workDir: c.workDir}, nil
}

type execSession struct {
	spec    Spec
	timeout time.Duration
	workDir string
	closed  bool
}

// Send runs the agent command once with the prompt on stdin. The session
// timeout bounds the whole call; expiry surfaces as an error for the retry
// policy to handle.
func (s *execSession) Send(ctx context.Context, prompt string) (string, error) {
	if s.closed {
		return "", fmt.Errorf("session already destroyed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	command := strings.ReplaceAll(s.spec.Command, "{model}", s.spec.Model)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if s.workDir != "" {
		cmd.Dir = s.workDir
	}

	input := prompt
	if s.spec.Instructions != "" {
		input = s.spec.Instructions + "\n\n" + prompt
	}
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("agent %s: session timeout after %s", s.spec.ID, s.timeout)
		}
		return "", fmt.Errorf("agent %s: %w (stderr: %s)", s.spec.ID, err, truncate(stderr.String(), 500))
	}
	return stdout.String(), nil
}

// Destroy marks the session unusable. One-shot subprocesses hold no
// residual state, so there is nothing else to release.
func (s *execSession) Destroy() error {
	s.closed = true
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
