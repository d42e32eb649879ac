package engine

import (
	"errors"
	"fmt"
)

// State is a step of the per-provider protocol
type State int

const (
	Navigating State = iota
	Triggering
	AwaitingCompletion
	Extracting
	Done
	Aggregated
)

var stateNames = [...]string{
	Navigating:         "navigating",
	Triggering:         "triggering",
	AwaitingCompletion: "awaiting completion",
	Extracting:         "extracting",
	Done:               "done",
	Aggregated:         "aggregated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Error kinds. A StepError matches its kind with errors.Is.
var (
	ErrSession    = errors.New("browser session unavailable")
	ErrNavigation = errors.New("navigation failed")
	ErrExtraction = errors.New("extraction failed")
	ErrCanceled   = errors.New("run canceled")
)

// StepError reports the provider and protocol step at which a run stopped
type StepError struct {
	Provider string
	State    State
	Kind     error
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v: %v", e.Provider, e.State, e.Kind, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
