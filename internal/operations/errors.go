package operations

import "errors"

var (
	// ErrAnalysisInProgress is returned by StartAnalysis while a run is active
	ErrAnalysisInProgress = errors.New("an analysis is already running")

	// ErrInvalidTransition is returned for a status change the state machine
	// does not allow
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingRunner is returned when a kind of the sequence has no runner
	ErrMissingRunner = errors.New("no runner registered for analysis kind")

	// ErrRunNotFound is returned by a RunStore for an unknown run ID
	ErrRunNotFound = errors.New("run not found")
)
