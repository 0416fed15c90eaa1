package extraction

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse indicates the model returned no usable text.
// Retried locally within a stage before surfacing as a StageFailedError.
var ErrEmptyResponse = errors.New("empty response from model")

// ErrErrorResponse indicates the model self-reported an error in its output
var ErrErrorResponse = errors.New("model returned an error response")

// StageFailedError is a stage that exhausted its local retries.
// Fatal for the current artifact, never for the whole batch.
type StageFailedError struct {
	Stage    string
	Attempts int
	Cause    error
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Cause)
}

func (e *StageFailedError) Unwrap() error {
	return e.Cause
}

// StageSkippedError is a stage whose precondition (a prior stage
// succeeding) was unmet
type StageSkippedError struct {
	Stage  string
	Reason string
}

func (e *StageSkippedError) Error() string {
	return fmt.Sprintf("stage %s skipped: %s", e.Stage, e.Reason)
}
