// Package progress carries execution events from the engine to whatever
// front-end consumes them. The engine only emits; it never blocks on a
// consumer.
package progress

import "time"

// Kind identifies the kind of progress event.
type Kind int

const (
	KindPhaseActivated Kind = iota
	KindPhaseCompleted
	KindPhaseSkipped
	KindAgentLabel
	KindStreamStatus
	KindLog
)

// Level is the severity of a log-line event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// StreamStatus is the lifecycle state of one implement-phase task stream.
type StreamStatus string

const (
	StreamQueued      StreamStatus = "queued"
	StreamEngineering StreamStatus = "engineering"
	StreamReviewing   StreamStatus = "reviewing"
	StreamTesting     StreamStatus = "testing"
	StreamDone        StreamStatus = "done"
	StreamFailed      StreamStatus = "failed"
	StreamSkipped     StreamStatus = "skipped"
)

// Event is a single progress notification. Fields beyond Kind and At are
// populated per kind: Phase for phase events, Agent for agent-label events,
// Stream/Status for stream transitions, Level/Message for log lines.
type Event struct {
	Kind    Kind
	At      time.Time
	Phase   string
	Agent   string
	Stream  int
	Status  StreamStatus
	Level   Level
	Message string
}

// Reporter receives progress events. Implementations must not block the
// caller; slow consumers drop events rather than stall the pipeline.
type Reporter interface {
	Event(Event)
	Close()
}

// PhaseActivated reports that a phase handler is about to run.
func PhaseActivated(r Reporter, phase string) {
	emit(r, Event{Kind: KindPhaseActivated, Phase: phase})
}

// PhaseCompleted reports that a phase handler finished successfully.
func PhaseCompleted(r Reporter, phase string) {
	emit(r, Event{Kind: KindPhaseCompleted, Phase: phase})
}

// PhaseSkipped reports that a phase was skipped (already checkpointed or
// its condition did not hold).
func PhaseSkipped(r Reporter, phase, reason string) {
	emit(r, Event{Kind: KindPhaseSkipped, Phase: phase, Message: reason})
}

// AgentLabel sets (non-empty) or clears (empty) the active-agent label.
func AgentLabel(r Reporter, agent string) {
	emit(r, Event{Kind: KindAgentLabel, Agent: agent})
}

// Stream reports a per-stream status transition.
func Stream(r Reporter, phase string, stream int, status StreamStatus) {
	emit(r, Event{Kind: KindStreamStatus, Phase: phase, Stream: stream, Status: status})
}

// Logf emits a free-text log line with a severity level.
func Logf(r Reporter, level Level, format string, args ...interface{}) {
	emit(r, Event{Kind: KindLog, Level: level, Message: sprintf(format, args...)})
}

func emit(r Reporter, e Event) {
	if r == nil {
		return
	}
	e.At = time.Now()
	r.Event(e)
}
