package agent

import "fmt"

// StepError records which question failed and how.
type StepError struct {
	Index    int
	Question string
	Type     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("question %d (%s): %v", e.Index+1, e.Type, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
