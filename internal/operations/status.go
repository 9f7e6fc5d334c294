package operations

import "fmt"

// Status is the lifecycle position of one analysis kind within a run
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// transitions lists the allowed next states. Terminal states have none;
// leaving them takes a full reset.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSuccess, StatusError},
	StatusSuccess: nil,
	StatusError:   nil,
}

// Tab badges, one per status
const (
	BadgePending = "○"
	BadgeRunning = "◐"
	BadgeSuccess = "✓"
	BadgeError   = "✗"
)

// CanTransitionTo reports whether the state machine allows s -> next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the kind's lifecycle for the run
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Badge returns the symbol shown on the result tab
func (s Status) Badge() string {
	switch s {
	case StatusRunning:
		return BadgeRunning
	case StatusSuccess:
		return BadgeSuccess
	case StatusError:
		return BadgeError
	default:
		return BadgePending
	}
}

func checkTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
