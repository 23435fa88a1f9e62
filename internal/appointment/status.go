package appointment

import "clinical-scribe/internal/apperr"

// forward is the normal visit path; each status may advance to the next one.
var forward = map[Status]Status{
	StatusScheduled:  StatusCheckedIn,
	StatusCheckedIn:  StatusInProgress,
	StatusInProgress: StatusCompleted,
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransition reports whether from → to is a legal single step.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled || to == StatusNoShow {
		return true
	}
	return forward[from] == to
}

// Transition moves a to the target status or returns a StateConflict.
func (a *Appointment) Transition(to Status) error {
	if !CanTransition(a.Status, to) {
		return apperr.StateConflict("appointment", a.Status, to)
	}
	a.Status = to
	return nil
}

// AdvanceTo walks the forward path one legal step at a time until target is reached.
// It is used when a consultation closes an appointment that never went through check-in.
func (a *Appointment) AdvanceTo(target Status) error {
	if a.Status == target {
		return nil
	}
	start := a.Status
	for a.Status != target {
		next, ok := forward[a.Status]
		if !ok {
			a.Status = start
			return apperr.StateConflict("appointment", start, target)
		}
		a.Status = next
	}
	return nil
}
