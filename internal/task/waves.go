package task

// ComputeWaves partitions task indices into execution waves. Every member of
// a wave has all of its dependencies satisfied by earlier waves, so members
// of one wave may run concurrently. Ordering within a wave carries no
// meaning.
//
// Dependency ids that don't resolve to any task are dropped. If no progress
// can be made because the remaining tasks form a cycle, all unplaced indices
// are dumped into one final wave; decompositions come from a generative
// process that can legitimately emit inconsistent cycles, and stalling the
// pipeline over one is worse than running the cycle members together.
func ComputeWaves(tasks []Task) [][]int {
	if len(tasks) == 0 {
		return nil
	}

	indexByID := make(map[int]int, len(tasks))
	for i, t := range tasks {
		indexByID[t.ID] = i
	}

	// Resolve dependency ids to indices, dropping unknowns.
	deps := make([]map[int]bool, len(tasks))
	for i, t := range tasks {
		deps[i] = make(map[int]bool)
		for _, id := range t.DependsOn {
			if j, ok := indexByID[id]; ok && j != i {
				deps[i][j] = true
			}
		}
	}

	var waves [][]int
	placed := make([]bool, len(tasks))
	remaining := len(tasks)

	for remaining > 0 {
		var wave []int
		for i := range tasks {
			if placed[i] {
				continue
			}
			ready := true
			for j := range deps[i] {
				if !placed[j] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, i)
			}
		}

		if len(wave) == 0 {
			// Cycle: dump the remainder into one final wave.
			for i := range tasks {
				if !placed[i] {
					wave = append(wave, i)
				}
			}
		}

		for _, i := range wave {
			placed[i] = true
		}
		remaining -= len(wave)
		waves = append(waves, wave)
	}

	return waves
}
