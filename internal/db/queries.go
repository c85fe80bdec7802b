package db

import (
	"database/sql"
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Phase     string
	Detail    string
	Timestamp string
}

// AgentCall represents a row in the agent_calls table.
type AgentCall struct {
	ID            int
	RunID         string
	Phase         string
	Agent         string
	Attempt       int
	PromptChars   int
	ResponseChars int
	DurationMs    int
	Error         string
	Timestamp     string
}

// VerifyRun represents a row in the verify_runs table.
type VerifyRun struct {
	ID         int
	RunID      string
	FixRound   int
	Command    string
	Passed     bool
	ExitCode   int
	DurationMs int
	Output     string
	Timestamp  string
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(runID, event, phase, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, phase, detail) VALUES (?, ?, ?, ?)`,
		runID, event, phase, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogAgentCall inserts an agent call record.
func (d *DB) LogAgentCall(runID, phase, agent string, attempt, promptChars, responseChars, durationMs int, callErr string) error {
	_, err := d.conn.Exec(
		`INSERT INTO agent_calls (run_id, phase, agent, attempt, prompt_chars, response_chars, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, phase, agent, attempt, promptChars, responseChars, durationMs, callErr,
	)
	if err != nil {
		return fmt.Errorf("log agent call: %w", err)
	}
	return nil
}

// LogVerifyRun inserts a verify command record.
func (d *DB) LogVerifyRun(runID string, fixRound int, command string, passed bool, exitCode, durationMs int, output string) error {
	_, err := d.conn.Exec(
		`INSERT INTO verify_runs (run_id, fix_round, command, passed, exit_code, duration_ms, output)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, fixRound, command, passed, exitCode, durationMs, output,
	)
	if err != nil {
		return fmt.Errorf("log verify run: %w", err)
	}
	return nil
}

// GetRunEvents returns all events for a run, newest first.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, phase, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY timestamp DESC, id DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var phase, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &phase, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if phase.Valid {
			e.Phase = phase.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestRunEvent returns the most recent event for a run, or nil if none.
func (d *DB) LatestRunEvent(runID string) (*RunEvent, error) {
	row := d.conn.QueryRow(
		`SELECT id, run_id, event, phase, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		runID,
	)
	var e RunEvent
	var phase, detail sql.NullString
	err := row.Scan(&e.ID, &e.RunID, &e.Event, &phase, &detail, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run event: %w", err)
	}
	if phase.Valid {
		e.Phase = phase.String
	}
	if detail.Valid {
		e.Detail = detail.String
	}
	return &e, nil
}

// GetAgentCalls returns agent calls for a run, oldest first.
func (d *DB) GetAgentCalls(runID string) ([]AgentCall, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, phase, agent, attempt, prompt_chars, response_chars, duration_ms, error, timestamp
		 FROM agent_calls WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get agent calls: %w", err)
	}
	defer rows.Close()

	var calls []AgentCall
	for rows.Next() {
		var c AgentCall
		var durationMs sql.NullInt64
		var callErr sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &c.Phase, &c.Agent, &c.Attempt, &c.PromptChars, &c.ResponseChars, &durationMs, &callErr, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan agent call: %w", err)
		}
		if durationMs.Valid {
			c.DurationMs = int(durationMs.Int64)
		}
		if callErr.Valid {
			c.Error = callErr.String
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// GetVerifyRuns returns verify command records for a run, oldest first.
func (d *DB) GetVerifyRuns(runID string) ([]VerifyRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, fix_round, command, passed, exit_code, duration_ms, output, timestamp
		 FROM verify_runs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get verify runs: %w", err)
	}
	defer rows.Close()

	var runs []VerifyRun
	for rows.Next() {
		var r VerifyRun
		var exitCode, durationMs sql.NullInt64
		var output sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.FixRound, &r.Command, &r.Passed, &exitCode, &durationMs, &output, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan verify run: %w", err)
		}
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int64)
		}
		if durationMs.Valid {
			r.DurationMs = int(durationMs.Int64)
		}
		if output.Valid {
			r.Output = output.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetFailedVerifyRuns returns the failed verify commands for a run's most
// recent fix round.
func (d *DB) GetFailedVerifyRuns(runID string) ([]VerifyRun, error) {
	rows, err := d.conn.Query(`
		SELECT vr.id, vr.run_id, vr.fix_round, vr.command, vr.passed, vr.exit_code, vr.duration_ms, vr.output, vr.timestamp
		FROM verify_runs vr
		INNER JOIN (
			SELECT command, MAX(id) as max_id
			FROM verify_runs
			WHERE run_id = ?
			GROUP BY command
		) latest ON vr.id = latest.max_id
		WHERE vr.passed = 0
		ORDER BY vr.command`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get failed verify runs: %w", err)
	}
	defer rows.Close()

	var runs []VerifyRun
	for rows.Next() {
		var r VerifyRun
		var exitCode, durationMs sql.NullInt64
		var output sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.FixRound, &r.Command, &r.Passed, &exitCode, &durationMs, &output, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan failed verify run: %w", err)
		}
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int64)
		}
		if durationMs.Valid {
			r.DurationMs = int(durationMs.Int64)
		}
		if output.Valid {
			r.Output = output.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRuns returns the distinct run ids seen in run_events, newest first.
func (d *DB) ListRuns(limit int) ([]string, error) {
	rows, err := d.conn.Query(
		`SELECT run_id FROM run_events GROUP BY run_id ORDER BY MAX(id) DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
