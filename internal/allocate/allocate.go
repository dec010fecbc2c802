// Package allocate distributes members across capacity-bounded sections.
package allocate

import "sort"

// Section is a target with an optional capacity. A nil Capacity is unbounded.
type Section struct {
	ID           string `json:"id" yaml:"id"`
	Capacity     *int   `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	CurrentCount int    `json:"current_count" yaml:"current_count"`
}

// Assignment places one member in one section.
type Assignment[M any] struct {
	Member    M      `json:"member"`
	SectionID string `json:"section_id"`
}

// Result is the outcome of Assign.
type Result[M any] struct {
	Assignments     []Assignment[M] `json:"assignments"`
	UnassignedCount int             `json:"unassigned_count"`
}

// Assign hands members out round-robin over sections ordered by current
// occupancy (least occupied first, ties keep input order). Full sections are
// skipped. When every section is full the remaining members are counted as
// unassigned.
func Assign[M any](members []M, sections []Section) Result[M] {
	res := Result[M]{Assignments: make([]Assignment[M], 0, len(members))}

	slots := make([]Section, len(sections))
	copy(slots, sections)
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].CurrentCount < slots[j].CurrentCount
	})

	next := 0
	for i, m := range members {
		idx := nextOpen(slots, next)
		if idx < 0 {
			res.UnassignedCount = len(members) - i
			break
		}
		res.Assignments = append(res.Assignments, Assignment[M]{Member: m, SectionID: slots[idx].ID})
		slots[idx].CurrentCount++
		next = (idx + 1) % len(slots)
	}

	return res
}

// nextOpen returns the index of the first section at or after start (wrapping)
// that has spare capacity, or -1 if all are full.
func nextOpen(slots []Section, start int) int {
	for k := 0; k < len(slots); k++ {
		idx := (start + k) % len(slots)
		if hasRoom(slots[idx]) {
			return idx
		}
	}
	return -1
}

func hasRoom(s Section) bool {
	return s.Capacity == nil || s.CurrentCount < *s.Capacity
}

// Counts tallies assignments per section ID.
func Counts[M any](r Result[M]) map[string]int {
	out := make(map[string]int)
	for _, a := range r.Assignments {
		out[a.SectionID]++
	}
	return out
}
