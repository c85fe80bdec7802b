package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/conveyordev/conveyor/internal/checkpoint"
	"github.com/conveyordev/conveyor/internal/config"
)

// memProgress is an in-memory Progress for tests.
type memProgress struct {
	states map[string]checkpoint.IterationState
	saves  int
}

func newMemProgress() *memProgress {
	return &memProgress{states: make(map[string]checkpoint.IterationState)}
}

func (m *memProgress) IterationState(key string) (checkpoint.IterationState, bool) {
	st, ok := m.states[key]
	return st, ok
}

func (m *memProgress) SaveIteration(key string, st checkpoint.IterationState) error {
	m.states[key] = st
	m.saves++
	return nil
}

// callRecorder scripts responses per agent and records call order.
type callRecorder struct {
	responses map[string][]string
	calls     []string
}

func (c *callRecorder) call(ctx context.Context, agentID, prompt string) (string, error) {
	c.calls = append(c.calls, agentID)
	queue := c.responses[agentID]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted response for %s", agentID)
	}
	resp := queue[0]
	c.responses[agentID] = queue[1:]
	return resp, nil
}

func step(maxIter int) config.ReviewStep {
	return config.ReviewStep{Agent: "reviewer", MaxIterations: maxIter, ApprovalKeyword: "APPROVED"}
}

func opts(content string, st config.ReviewStep) Opts {
	return Opts{
		Author:       "author",
		Step:         st,
		Key:          "phase-0-review-0",
		Content:      content,
		ReviewPrompt: func(c string) string { return "review:\n" + c },
		RevisePrompt: func(c, f string) string { return "revise:\n" + c + "\n" + f },
	}
}

func TestApprovalShortCircuit(t *testing.T) {
	rec := &callRecorder{responses: map[string][]string{
		"reviewer": {"Looks great. approved!"},
	}}
	store := newMemProgress()
	loop := &Loop{Call: rec.call, Store: store}

	got, err := loop.Run(context.Background(), opts("original", step(3)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "original" {
		t.Errorf("content = %q, want unchanged original", got)
	}
	// The author must never have been invoked.
	for _, agent := range rec.calls {
		if agent == "author" {
			t.Error("author called despite immediate approval")
		}
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0", store.saves)
	}
}

func TestReviseThenApprove(t *testing.T) {
	rec := &callRecorder{responses: map[string][]string{
		"reviewer": {"needs work: tighten section 2", "APPROVED"},
		"author":   {"revised content"},
	}}
	store := newMemProgress()
	loop := &Loop{Call: rec.call, Store: store}

	got, err := loop.Run(context.Background(), opts("original", step(3)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "revised content" {
		t.Errorf("content = %q, want revised content", got)
	}
	if st := store.states["phase-0-review-0"]; st.CompletedIterations != 1 {
		t.Errorf("CompletedIterations = %d, want 1", st.CompletedIterations)
	}
}

func TestBudgetExhaustedIsNotError(t *testing.T) {
	rec := &callRecorder{responses: map[string][]string{
		"reviewer": {"no", "still no"},
		"author":   {"rev 1", "rev 2"},
	}}
	loop := &Loop{Call: rec.call, Store: newMemProgress()}

	got, err := loop.Run(context.Background(), opts("original", step(2)))
	if err != nil {
		t.Fatalf("exhausted budget must not error: %v", err)
	}
	if got != "rev 2" {
		t.Errorf("content = %q, want last revision", got)
	}
}

func TestResumeSkipsCompletedIterations(t *testing.T) {
	store := newMemProgress()
	store.states["phase-0-review-0"] = checkpoint.IterationState{
		Content:             "checkpointed content",
		CompletedIterations: 2,
	}

	// Only one more reviewer call (iteration 3 of 3) may happen.
	rec := &callRecorder{responses: map[string][]string{
		"reviewer": {"no"},
		"author":   {"final revision"},
	}}
	loop := &Loop{Call: rec.call, Store: store}

	got, err := loop.Run(context.Background(), opts("ignored original", step(3)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "final revision" {
		t.Errorf("content = %q, want final revision", got)
	}

	reviewerCalls := 0
	for _, agent := range rec.calls {
		if agent == "reviewer" {
			reviewerCalls++
		}
	}
	if reviewerCalls != 1 {
		t.Errorf("reviewer called %d times, want exactly 1 (resume at iteration 3)", reviewerCalls)
	}
	if st := store.states["phase-0-review-0"]; st.CompletedIterations != 3 {
		t.Errorf("CompletedIterations = %d, want 3", st.CompletedIterations)
	}
}

func TestResumeAlreadyExhausted(t *testing.T) {
	store := newMemProgress()
	store.states["phase-0-review-0"] = checkpoint.IterationState{
		Content:             "done content",
		CompletedIterations: 3,
	}
	rec := &callRecorder{responses: map[string][]string{}}
	loop := &Loop{Call: rec.call, Store: store}

	got, err := loop.Run(context.Background(), opts("ignored", step(3)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "done content" {
		t.Errorf("content = %q, want checkpointed content", got)
	}
	if len(rec.calls) != 0 {
		t.Errorf("calls = %v, want none", rec.calls)
	}
}

func TestGuardRejectsShortRevision(t *testing.T) {
	long := strings.Repeat("substantial content. ", 50)
	rec := &callRecorder{responses: map[string][]string{
		"reviewer": {"needs work", "APPROVED"},
		"author":   {"oops"},
	}}
	store := newMemProgress()
	loop := &Loop{Call: rec.call, Store: store}

	o := opts(long, step(3))
	o.Guard = &Guard{MinLengthRatio: 0.5}

	got, err := loop.Run(context.Background(), o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != long {
		t.Errorf("content replaced by truncated revision")
	}
	// The discarded revision still counts as a completed iteration.
	if st := store.states["phase-0-review-0"]; st.CompletedIterations != 1 {
		t.Errorf("CompletedIterations = %d, want 1", st.CompletedIterations)
	}
}

func TestGuardRejectsMissingSection(t *testing.T) {
	prior := "## Overview\nstuff\n## Tasks\nmore stuff"
	rec := &callRecorder{responses: map[string][]string{
		"reviewer": {"needs work", "APPROVED"},
		"author":   {"## Overview\nrewritten without the task section and quite long enough"},
	}}
	loop := &Loop{Call: rec.call, Store: newMemProgress()}

	o := opts(prior, step(3))
	o.Guard = &Guard{RequiredSections: []string{"## Overview", "## Tasks"}}

	got, err := loop.Run(context.Background(), o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != prior {
		t.Errorf("content = %q, want prior content kept", got)
	}
}

func TestClarificationRouting(t *testing.T) {
	st := step(3)
	st.ClarificationAgent = "architect"
	st.ClarificationKeyword = "QUESTION"

	rec := &callRecorder{responses: map[string][]string{
		"reviewer":  {"QUESTION: what does section 2 mean?", "APPROVED"},
		"architect": {"section 2 means X"},
		"author":    {"revised with answer"},
	}}
	loop := &Loop{Call: rec.call, Store: newMemProgress()}

	o := opts("original", st)
	got, err := loop.Run(context.Background(), o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "revised with answer" {
		t.Errorf("content = %q", got)
	}

	want := []string{"reviewer", "architect", "author", "reviewer"}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, rec.calls[i], want[i])
		}
	}
}

func TestReviewerErrorPropagates(t *testing.T) {
	loop := &Loop{
		Call: func(ctx context.Context, agentID, prompt string) (string, error) {
			return "", errors.New("session timeout")
		},
		Store: newMemProgress(),
	}

	_, err := loop.Run(context.Background(), opts("original", step(3)))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "review iteration 1") {
		t.Errorf("err = %v", err)
	}
}

func TestApprovedMatching(t *testing.T) {
	cases := []struct {
		feedback string
		keyword  string
		want     bool
	}{
		{"APPROVED", "APPROVED", true},
		{"this is approved now", "APPROVED", true},
		{"Approved with nits", "approved", true},
		{"not quite there", "APPROVED", false},
		{"anything", "", false},
	}
	for _, tc := range cases {
		if got := Approved(tc.feedback, tc.keyword); got != tc.want {
			t.Errorf("Approved(%q, %q) = %v, want %v", tc.feedback, tc.keyword, got, tc.want)
		}
	}
}
