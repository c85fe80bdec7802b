// Package agent abstracts the external text-generating collaborator. Any
// provider that can open a session, answer a prompt, and tear the session
// down satisfies the contract; no wire protocol is mandated.
package agent

import "context"

// Session is one conversation with a collaborator. Send may suspend for up
// to the configured session timeout.
type Session interface {
	Send(ctx context.Context, prompt string) (string, error)
	Destroy() error
}

// Client opens collaborator sessions.
type Client interface {
	CreateSession(ctx context.Context, agentID string) (Session, error)
}

// Spec describes one configured agent identity.
type Spec struct {
	ID           string
	Command      string // shell command; the prompt is fed on stdin
	Model        string
	Instructions string
	Timeout      string // per-call session timeout, e.g. "10m"
}
