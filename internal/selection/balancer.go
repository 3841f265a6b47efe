package selection

// PickLeastLoaded returns the candidate with the fewest open tasks. Ties go
// to the candidate that appears first. candidates must be non-empty.
func PickLeastLoaded(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Workload < best.Workload {
			best = c
		}
	}
	return best
}
