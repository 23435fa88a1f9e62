package consultation

import "clinical-scribe/internal/apperr"

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled},
	// Processing restarts only through a reprocess or a fresh upload; a cancelled or
	// missed appointment closes a failed consultation too.
	StatusFailed: {StatusInProgress, StatusCancelled},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves c to the target status or returns a StateConflict naming both states.
func (c *Consultation) Transition(to Status) error {
	if !CanTransition(c.Status, to) {
		return apperr.StateConflict("consultation", c.Status, to)
	}
	c.Status = to
	return nil
}
