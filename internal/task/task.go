// Package task models decomposed work items and schedules them into
// dependency-ordered execution waves.
package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task is a single unit of work produced by the decompose phase.
type Task struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	DependsOn   []int  `json:"dependsOn,omitempty"`
}

// ParseError indicates the decomposition output did not contain a usable
// task list. Parse failures are structural: the agent ignored the required
// output format, so callers treat them as fatal rather than retrying.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse tasks: %s", e.Reason)
}

// Parse extracts a task list from free-form agent output. The output is
// expected to contain a JSON array somewhere in the text; surrounding prose
// and markdown fences are tolerated. Two array shapes are accepted and
// normalized at this boundary:
//
//   - list of strings:  ["do A", "do B"]
//   - list of objects:  [{"id":1,"description":"do A","dependsOn":[]}]
//
// Tasks without an id get one assigned sequentially (1-based). Duplicate or
// unresolvable dependency ids are kept as-is here; the wave scheduler drops
// ids it cannot resolve.
func Parse(text string) ([]Task, error) {
	raw, err := extractArray(text)
	if err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON array: %v", err)}
	}
	if len(entries) == 0 {
		return nil, &ParseError{Reason: "task list is empty"}
	}

	tasks := make([]Task, 0, len(entries))
	for i, entry := range entries {
		t, err := parseEntry(entry, i)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	assignIDs(tasks)
	return tasks, nil
}

// parseEntry normalizes a single array element into a Task.
func parseEntry(entry json.RawMessage, index int) (Task, error) {
	// Flat string form.
	var desc string
	if err := json.Unmarshal(entry, &desc); err == nil {
		if strings.TrimSpace(desc) == "" {
			return Task{}, &ParseError{Reason: fmt.Sprintf("task %d has an empty description", index)}
		}
		return Task{Description: desc}, nil
	}

	// Object form.
	var obj struct {
		ID          *int        `json:"id"`
		Description string      `json:"description"`
		Task        string      `json:"task"`
		DependsOn   []int       `json:"dependsOn"`
		DependsOnLC []int       `json:"depends_on"`
		Deps        interface{} `json:"deps"`
	}
	if err := json.Unmarshal(entry, &obj); err != nil {
		return Task{}, &ParseError{Reason: fmt.Sprintf("task %d is neither a string nor an object: %v", index, err)}
	}

	description := obj.Description
	if description == "" {
		description = obj.Task
	}
	if strings.TrimSpace(description) == "" {
		return Task{}, &ParseError{Reason: fmt.Sprintf("task %d has no description", index)}
	}

	t := Task{Description: description}
	if obj.ID != nil {
		t.ID = *obj.ID
	}
	switch {
	case obj.DependsOn != nil:
		t.DependsOn = obj.DependsOn
	case obj.DependsOnLC != nil:
		t.DependsOn = obj.DependsOnLC
	}
	return t, nil
}

// assignIDs fills in missing ids sequentially, skipping values already taken.
func assignIDs(tasks []Task) {
	taken := make(map[int]bool, len(tasks))
	for _, t := range tasks {
		if t.ID != 0 {
			taken[t.ID] = true
		}
	}
	next := 1
	for i := range tasks {
		if tasks[i].ID != 0 {
			continue
		}
		for taken[next] {
			next++
		}
		tasks[i].ID = next
		taken[next] = true
	}
}

// extractArray locates the first top-level JSON array in the text, honoring
// string literals and escapes so brackets inside descriptions don't confuse
// the scan.
func extractArray(text string) (string, error) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return "", &ParseError{Reason: "no JSON array found in output"}
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", &ParseError{Reason: "unterminated JSON array in output"}
}
