package loadgen

import (
	"fmt"
	"math/rand/v2"
)

// Scheduler picks the next task of a session according to weights.
// A Scheduler is owned by one session and is not safe for concurrent use.
type Scheduler struct {
	tasks      []TaskKind
	cumulative []int
	total      int
	rnd        *rand.Rand
}

// NewScheduler builds a scheduler; tasks with weight 0 are never chosen
func NewScheduler(weights Weights, rnd *rand.Rand) (*Scheduler, error) {
	s := &Scheduler{rnd: rnd}
	for _, entry := range []struct {
		task   TaskKind
		weight int
	}{
		{TaskCreatePR, weights.Create},
		{TaskMergePR, weights.Merge},
		{TaskReassignPR, weights.Reassign},
	} {
		if entry.weight < 0 {
			return nil, fmt.Errorf("weight for %s cannot be negative", entry.task)
		}
		if entry.weight == 0 {
			continue
		}
		s.total += entry.weight
		s.tasks = append(s.tasks, entry.task)
		s.cumulative = append(s.cumulative, s.total)
	}
	if s.total == 0 {
		return nil, fmt.Errorf("at least one task weight must be greater than 0")
	}
	return s, nil
}

// Next returns the task to run in the next iteration
func (s *Scheduler) Next() TaskKind {
	pick := s.rnd.IntN(s.total)
	for i, bound := range s.cumulative {
		if pick < bound {
			return s.tasks[i]
		}
	}
	return s.tasks[len(s.tasks)-1]
}
