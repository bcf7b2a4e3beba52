package pipeline

import "errors"

// Cancelled is returned when shutdown was requested and the driver has
// finished draining.
var Cancelled = errors.New("pipeline: cancelled")

// ProcessError wraps a contained failure from the update/scan/publish
// stages of one message. It never escapes the per-message handler.
type ProcessError struct {
	Stage string
	Err   error
}

func (e *ProcessError) Error() string { return "pipeline: " + e.Stage + ": " + e.Err.Error() }
func (e *ProcessError) Unwrap() error { return e.Err }
