package db

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tables := []string{"schema_version", "run_events", "agent_calls", "verify_runs"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	// Migrate again should be idempotent
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRunEvents(t *testing.T) {
	d := testDB(t)

	if err := d.LogRunEvent("run-1", "run_started", "", ""); err != nil {
		t.Fatalf("log run_started: %v", err)
	}
	if err := d.LogRunEvent("run-1", "phase_started", "spec-0", ""); err != nil {
		t.Fatalf("log phase_started: %v", err)
	}
	if err := d.LogRunEvent("run-1", "phase_completed", "spec-0", "2 review iterations"); err != nil {
		t.Fatalf("log phase_completed: %v", err)
	}
	if err := d.LogRunEvent("run-2", "run_started", "", ""); err != nil {
		t.Fatalf("log other run: %v", err)
	}

	events, err := d.GetRunEvents("run-1")
	if err != nil {
		t.Fatalf("get run events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Event != "phase_completed" || events[0].Detail != "2 review iterations" {
		t.Errorf("unexpected first event: %+v", events[0])
	}

	latest, err := d.LatestRunEvent("run-1")
	if err != nil {
		t.Fatalf("latest run event: %v", err)
	}
	if latest == nil || latest.Event != "phase_completed" {
		t.Errorf("latest = %+v", latest)
	}

	missing, err := d.LatestRunEvent("no-such-run")
	if err != nil {
		t.Fatalf("latest for missing run: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing run, got %+v", missing)
	}
}

func TestRunEventRejectsUnknownKind(t *testing.T) {
	d := testDB(t)
	if err := d.LogRunEvent("run-1", "made_up_event", "", ""); err == nil {
		t.Error("expected CHECK constraint violation")
	}
}

func TestAgentCalls(t *testing.T) {
	d := testDB(t)

	if err := d.LogAgentCall("run-1", "spec-0", "architect", 1, 1200, 0, 450, "empty response"); err != nil {
		t.Fatalf("log failed call: %v", err)
	}
	if err := d.LogAgentCall("run-1", "spec-0", "architect", 2, 1200, 8300, 6100, ""); err != nil {
		t.Fatalf("log successful call: %v", err)
	}

	calls, err := d.GetAgentCalls("run-1")
	if err != nil {
		t.Fatalf("get agent calls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Attempt != 1 || calls[0].Error != "empty response" {
		t.Errorf("unexpected first call: %+v", calls[0])
	}
	if calls[1].Attempt != 2 || calls[1].ResponseChars != 8300 || calls[1].Error != "" {
		t.Errorf("unexpected second call: %+v", calls[1])
	}
}

func TestVerifyRuns(t *testing.T) {
	d := testDB(t)

	if err := d.LogVerifyRun("run-1", 0, "go test ./...", false, 1, 14000, "FAIL: TestFoo"); err != nil {
		t.Fatalf("log failed verify: %v", err)
	}
	if err := d.LogVerifyRun("run-1", 0, "go build ./...", true, 0, 2000, ""); err != nil {
		t.Fatalf("log passing verify: %v", err)
	}
	if err := d.LogVerifyRun("run-1", 1, "go test ./...", true, 0, 13000, ""); err != nil {
		t.Fatalf("log fixed verify: %v", err)
	}

	runs, err := d.GetVerifyRuns("run-1")
	if err != nil {
		t.Fatalf("get verify runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 verify runs, got %d", len(runs))
	}

	// The test command failed in round 0 but passed in round 1, so no
	// command should report as currently failing.
	failed, err := d.GetFailedVerifyRuns("run-1")
	if err != nil {
		t.Fatalf("get failed verify runs: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("expected no failing commands, got %+v", failed)
	}
}

func TestGetFailedVerifyRuns(t *testing.T) {
	d := testDB(t)

	if err := d.LogVerifyRun("run-1", 0, "npm test", false, 1, 9000, "2 failing"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := d.LogVerifyRun("run-1", 1, "npm test", false, 1, 9100, "1 failing"); err != nil {
		t.Fatalf("log: %v", err)
	}

	failed, err := d.GetFailedVerifyRuns("run-1")
	if err != nil {
		t.Fatalf("get failed verify runs: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failing command, got %d", len(failed))
	}
	if failed[0].FixRound != 1 || failed[0].Output != "1 failing" {
		t.Errorf("expected latest round's record, got %+v", failed[0])
	}
}

func TestListRuns(t *testing.T) {
	d := testDB(t)

	for _, id := range []string{"run-a", "run-b", "run-a", "run-c"} {
		if err := d.LogRunEvent(id, "run_started", "", ""); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	ids, err := d.ListRuns(10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	want := []string{"run-c", "run-a", "run-b"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}
