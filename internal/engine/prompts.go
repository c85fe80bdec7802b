package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conveyordev/conveyor/internal/task"
	"github.com/conveyordev/conveyor/internal/verify"
)

func specPrompt(intent, repoContext string) string {
	var b strings.Builder
	b.WriteString("Write a detailed specification for the following request.\n\n")
	b.WriteString("Request:\n")
	b.WriteString(intent)
	if repoContext != "" {
		b.WriteString("\n\nRepository context:\n")
		b.WriteString(repoContext)
	}
	return b.String()
}

func specReviewPrompt(content string) string {
	return "Review this specification for gaps, ambiguity, and missing edge cases. " +
		"If it is ready, reply with the approval keyword. Otherwise list the problems.\n\n" + content
}

func designReviewPrompt(content string) string {
	return "Review this technical design for soundness and completeness. " +
		"If it is ready, reply with the approval keyword. Otherwise list the problems.\n\n" + content
}

func revisePrompt(content, feedback string) string {
	return "Revise the content below to address the reviewer feedback. " +
		"Return the complete revised content, not a diff.\n\nContent:\n" + content +
		"\n\nFeedback:\n" + feedback
}

func decomposePrompt(spec string) string {
	return "Break this specification into independent implementation tasks. " +
		"Respond with a JSON array where each element is " +
		`{"id": <int>, "description": <string>, "dependsOn": [<ids>]}.` +
		"\n\nSpecification:\n" + spec
}

func designPrompt(spec string, tasks []task.Task) string {
	var b strings.Builder
	b.WriteString("Write a technical design covering the tasks below.\n\nSpecification:\n")
	b.WriteString(spec)
	b.WriteString("\n\nTasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%d] %s\n", t.ID, t.Description)
	}
	return b.String()
}

func implementPrompt(t task.Task, spec, design string, deps map[int]string, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement task %d: %s\n", t.ID, t.Description)
	if spec != "" {
		b.WriteString("\nSpecification:\n")
		b.WriteString(spec)
	}
	if design != "" {
		b.WriteString("\nDesign:\n")
		b.WriteString(design)
	}
	if len(deps) > 0 {
		b.WriteString("\nCompleted dependencies:\n")
		ids := make([]int, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "--- task %d ---\n%s\n", id, deps[id])
		}
	}
	if feedback != "" {
		b.WriteString("\nAdditional feedback to incorporate:\n")
		b.WriteString(feedback)
	}
	return b.String()
}

func codeReviewPrompt(t task.Task, content string) string {
	return fmt.Sprintf("Review the implementation of task %d (%s) for correctness. "+
		"If it is ready, reply with the approval keyword. Otherwise list the problems.\n\n%s",
		t.ID, t.Description, content)
}

func qaPrompt(t task.Task, content string) string {
	return fmt.Sprintf("Test the implementation of task %d (%s): probe edge cases and failure modes. "+
		"If it passes, reply with the approval keyword. Otherwise list the failures.\n\n%s",
		t.ID, t.Description, content)
}

func fixPrompt(failed []verify.Result) string {
	var b strings.Builder
	b.WriteString("The following verification commands failed. Fix the underlying problems.\n")
	for _, r := range failed {
		fmt.Fprintf(&b, "\n$ %s (exit %d)\n%s\n", r.Command, r.ExitCode, r.Output)
	}
	return b.String()
}
