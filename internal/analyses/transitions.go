package analyses

import "fmt"

// allowed lists the legal successors of each status. A worker may skip the
// PROCESSING tick, so PENDING can move straight to a terminal state.
var allowed = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func transitionLabel(from, to Status) string {
	return string(from) + "->" + string(to)
}
