package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner returns scripted results keyed by command.
type fakeRunner struct {
	outputs map[string]string
	codes   map[string]int
	errs    map[string]error
	ran     []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, command string) (string, int, error) {
	f.ran = append(f.ran, command)
	if err := f.errs[command]; err != nil {
		return "", -1, err
	}
	return f.outputs[command], f.codes[command], nil
}

func TestRunAllCollectsEveryResult(t *testing.T) {
	fake := &fakeRunner{
		outputs: map[string]string{
			"go build ./...": "",
			"go test ./...":  "FAIL: TestFoo",
		},
		codes: map[string]int{
			"go build ./...": 0,
			"go test ./...":  1,
		},
	}
	r := NewRunner(fake, time.Minute)

	results, err := r.RunAll(context.Background(), ".", []string{"go build ./...", "go test ./..."})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Passed {
		t.Error("build should have passed")
	}
	if results[1].Passed || results[1].ExitCode != 1 {
		t.Errorf("test result = %+v, want failed with exit 1", results[1])
	}
	// A failing command must not stop later ones.
	if len(fake.ran) != 2 {
		t.Errorf("ran = %v, want both commands", fake.ran)
	}
	if AllPassed(results) {
		t.Error("AllPassed = true with a failing result")
	}
	if failed := Failures(results); len(failed) != 1 || failed[0].Command != "go test ./..." {
		t.Errorf("Failures = %+v", failed)
	}
}

func TestRunAllExecErrorAborts(t *testing.T) {
	fake := &fakeRunner{
		errs: map[string]error{"go build ./...": errors.New("sh: not found")},
	}
	r := NewRunner(fake, time.Minute)

	_, err := r.RunAll(context.Background(), ".", []string{"go build ./...", "go test ./..."})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.ran) != 1 {
		t.Errorf("ran = %v, want only the first command", fake.ran)
	}
}

func TestTruncateLongOutput(t *testing.T) {
	fake := &fakeRunner{
		outputs: map[string]string{"go test ./...": strings.Repeat("x", maxOutputBytes+100)},
		codes:   map[string]int{"go test ./...": 1},
	}
	r := NewRunner(fake, time.Minute)

	results, err := r.RunAll(context.Background(), ".", []string{"go test ./..."})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if !strings.HasSuffix(results[0].Output, "(output truncated)") {
		t.Error("long output not truncated")
	}
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetect(t *testing.T) {
	t.Run("go project", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "go.mod")
		got := Detect(dir)
		if len(got) != 2 || got[0] != "go build ./..." {
			t.Errorf("Detect = %v", got)
		}
	})

	t.Run("node project", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "package.json")
		got := Detect(dir)
		if len(got) != 1 || got[0] != "npm test" {
			t.Errorf("Detect = %v", got)
		}
	})

	t.Run("go.mod wins over Makefile", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "go.mod")
		touch(t, dir, "Makefile")
		got := Detect(dir)
		if len(got) == 0 || got[0] != "go build ./..." {
			t.Errorf("Detect = %v", got)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		if got := Detect(t.TempDir()); got != nil {
			t.Errorf("Detect = %v, want nil", got)
		}
	})
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "go.mod")

	if got := Resolve(dir, []string{"make ci"}, []string{"npm test"}); got[0] != "make ci" {
		t.Errorf("override should win, got %v", got)
	}
	if got := Resolve(dir, nil, []string{"npm test"}); got[0] != "npm test" {
		t.Errorf("configured should win over detection, got %v", got)
	}
	if got := Resolve(dir, nil, nil); len(got) == 0 || got[0] != "go build ./..." {
		t.Errorf("detection fallback, got %v", got)
	}
}
