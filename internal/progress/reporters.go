package progress

import (
	"fmt"
	"io"
	"sync"
)

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// ConsoleReporter writes human-readable progress lines to a writer.
type ConsoleReporter struct {
	mu       sync.Mutex
	w        io.Writer
	minLevel Level
}

// NewConsoleReporter creates a ConsoleReporter. Log events below minLevel
// are suppressed; structural events are always printed.
func NewConsoleReporter(w io.Writer, minLevel Level) *ConsoleReporter {
	return &ConsoleReporter{w: w, minLevel: minLevel}
}

// Event writes one line per event.
func (c *ConsoleReporter) Event(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case KindPhaseActivated:
		fmt.Fprintf(c.w, "==> phase %s\n", e.Phase)
	case KindPhaseCompleted:
		fmt.Fprintf(c.w, "==> phase %s done\n", e.Phase)
	case KindPhaseSkipped:
		fmt.Fprintf(c.w, "==> phase %s skipped (%s)\n", e.Phase, e.Message)
	case KindAgentLabel:
		if e.Agent != "" {
			fmt.Fprintf(c.w, "  → agent %s\n", e.Agent)
		}
	case KindStreamStatus:
		fmt.Fprintf(c.w, "  → %s stream %d: %s\n", e.Phase, e.Stream, e.Status)
	case KindLog:
		if e.Level < c.minLevel {
			return
		}
		fmt.Fprintf(c.w, "  %s %s\n", levelTag(e.Level), e.Message)
	}
}

// Close is a no-op for the console reporter.
func (c *ConsoleReporter) Close() {}

func levelTag(l Level) string {
	switch l {
	case LevelDebug:
		return "[debug]"
	case LevelWarn:
		return "[warn]"
	case LevelError:
		return "[error]"
	default:
		return "[info]"
	}
}

// ChannelReporter queues events on a buffered channel for an external
// renderer. When the buffer is full the event is dropped: the pipeline
// never waits for a consumer.
type ChannelReporter struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewChannelReporter creates a ChannelReporter with the given buffer size.
func NewChannelReporter(buffer int) *ChannelReporter {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelReporter{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the queue. The channel is closed by
// Close once no more events will arrive.
func (c *ChannelReporter) Events() <-chan Event {
	return c.ch
}

// Event enqueues without blocking; a full buffer drops the event.
func (c *ChannelReporter) Event(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- e:
	default:
	}
}

// Close stops accepting events and closes the queue.
func (c *ChannelReporter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Multi fans one event stream out to several reporters.
type Multi struct {
	reporters []Reporter
}

// NewMulti creates a reporter that forwards to all given reporters,
// skipping nils.
func NewMulti(reporters ...Reporter) *Multi {
	var rs []Reporter
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &Multi{reporters: rs}
}

// Event forwards to every reporter.
func (m *Multi) Event(e Event) {
	for _, r := range m.reporters {
		r.Event(e)
	}
}

// Close closes every reporter.
func (m *Multi) Close() {
	for _, r := range m.reporters {
		r.Close()
	}
}
