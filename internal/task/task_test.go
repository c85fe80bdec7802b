package task

import (
	"errors"
	"testing"
)

func TestParseObjectList(t *testing.T) {
	text := `Here is the breakdown:

[
  {"id": 1, "description": "Build the parser", "dependsOn": []},
  {"id": 2, "description": "Wire the parser into the engine", "dependsOn": [1]}
]

Let me know if you need changes.`

	tasks, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != 1 || tasks[1].ID != 2 {
		t.Errorf("ids = %d,%d, want 1,2", tasks[0].ID, tasks[1].ID)
	}
	if tasks[1].Description != "Wire the parser into the engine" {
		t.Errorf("description = %q", tasks[1].Description)
	}
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != 1 {
		t.Errorf("dependsOn = %v, want [1]", tasks[1].DependsOn)
	}
}

func TestParseStringList(t *testing.T) {
	tasks, err := Parse(`["write docs", "write tests"]`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	// Sequential ids assigned when absent.
	if tasks[0].ID != 1 || tasks[1].ID != 2 {
		t.Errorf("ids = %d,%d, want 1,2", tasks[0].ID, tasks[1].ID)
	}
	if tasks[0].DependsOn != nil {
		t.Errorf("DependsOn = %v, want nil", tasks[0].DependsOn)
	}
}

func TestParseMixedIDs(t *testing.T) {
	// Explicit id 1 is taken; the unnumbered task must not collide with it.
	tasks, err := Parse(`[{"description":"a"},{"id":1,"description":"b"}]`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tasks[0].ID == tasks[1].ID {
		t.Errorf("duplicate ids assigned: %d", tasks[0].ID)
	}
	if tasks[1].ID != 1 {
		t.Errorf("explicit id changed: got %d, want 1", tasks[1].ID)
	}
}

func TestParseSnakeCaseDeps(t *testing.T) {
	tasks, err := Parse(`[{"id":1,"task":"a"},{"id":2,"task":"b","depends_on":[1]}]`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != 1 {
		t.Errorf("dependsOn = %v, want [1]", tasks[1].DependsOn)
	}
}

func TestParseBracketsInsideStrings(t *testing.T) {
	tasks, err := Parse(`noise [ {"description": "handle [edge] cases"} ] more noise`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tasks[0].Description != "handle [edge] cases" {
		t.Errorf("description = %q", tasks[0].Description)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no array", "there are no tasks here"},
		{"unterminated", `[{"description":"a"}`},
		{"empty list", "[]"},
		{"empty description", `[{"id":1,"description":"  "}]`},
		{"wrong element type", `[42]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestComputeWavesLinearChain(t *testing.T) {
	tasks := []Task{
		{ID: 1, Description: "A"},
		{ID: 2, Description: "B", DependsOn: []int{1}},
		{ID: 3, Description: "C", DependsOn: []int{2}},
	}

	waves := ComputeWaves(tasks)
	if len(waves) != 3 {
		t.Fatalf("got %d waves, want 3: %v", len(waves), waves)
	}
	for i, wave := range waves {
		if len(wave) != 1 || wave[0] != i {
			t.Errorf("wave %d = %v, want [%d]", i, wave, i)
		}
	}
}

func TestComputeWavesDiamond(t *testing.T) {
	tasks := []Task{
		{ID: 1, Description: "root"},
		{ID: 2, Description: "left", DependsOn: []int{1}},
		{ID: 3, Description: "right", DependsOn: []int{1}},
		{ID: 4, Description: "join", DependsOn: []int{2, 3}},
	}

	waves := ComputeWaves(tasks)
	if len(waves) != 3 {
		t.Fatalf("got %d waves, want 3: %v", len(waves), waves)
	}
	if len(waves[1]) != 2 {
		t.Errorf("wave 1 = %v, want two members", waves[1])
	}
}

func TestComputeWavesCycleTolerance(t *testing.T) {
	tasks := []Task{
		{ID: 1, Description: "A", DependsOn: []int{2}},
		{ID: 2, Description: "B", DependsOn: []int{1}},
	}

	waves := ComputeWaves(tasks)
	if len(waves) != 1 {
		t.Fatalf("got %d waves, want 1 (cycle dump): %v", len(waves), waves)
	}
	if len(waves[0]) != 2 {
		t.Errorf("wave 0 = %v, want both indices", waves[0])
	}
}

func TestComputeWavesUnknownDependency(t *testing.T) {
	tasks := []Task{
		{ID: 1, Description: "A", DependsOn: []int{99}},
		{ID: 2, Description: "B"},
	}

	waves := ComputeWaves(tasks)
	if len(waves) != 1 {
		t.Fatalf("got %d waves, want 1: %v", len(waves), waves)
	}
	if len(waves[0]) != 2 {
		t.Errorf("wave 0 = %v, want [0 1]", waves[0])
	}
}

func TestComputeWavesPartition(t *testing.T) {
	// Every index appears in exactly one wave, cycle or not.
	tasks := []Task{
		{ID: 1, Description: "A"},
		{ID: 2, Description: "B", DependsOn: []int{1}},
		{ID: 3, Description: "C", DependsOn: []int{4}},
		{ID: 4, Description: "D", DependsOn: []int{3}},
		{ID: 5, Description: "E", DependsOn: []int{7}},
	}

	waves := ComputeWaves(tasks)
	seen := make(map[int]int)
	for _, wave := range waves {
		for _, idx := range wave {
			seen[idx]++
		}
	}
	if len(seen) != len(tasks) {
		t.Errorf("placed %d distinct indices, want %d", len(seen), len(tasks))
	}
	for idx, n := range seen {
		if n != 1 {
			t.Errorf("index %d placed %d times", idx, n)
		}
	}
}

func TestComputeWavesOrdering(t *testing.T) {
	tasks := []Task{
		{ID: 1, Description: "A"},
		{ID: 2, Description: "B", DependsOn: []int{1}},
		{ID: 3, Description: "C", DependsOn: []int{1, 2}},
		{ID: 4, Description: "D"},
	}

	waves := ComputeWaves(tasks)
	waveOf := make(map[int]int)
	for w, wave := range waves {
		for _, idx := range wave {
			waveOf[idx] = w
		}
	}
	for i, tk := range tasks {
		for _, dep := range tk.DependsOn {
			j := dep - 1 // ids are 1-based positions here
			if waveOf[j] >= waveOf[i] {
				t.Errorf("task %d (wave %d) depends on %d (wave %d)", i, waveOf[i], j, waveOf[j])
			}
		}
	}
}

func TestComputeWavesEmpty(t *testing.T) {
	if waves := ComputeWaves(nil); waves != nil {
		t.Errorf("ComputeWaves(nil) = %v, want nil", waves)
	}
}
