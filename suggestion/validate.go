package suggestion

import (
	"fmt"
)

const MaxDurationMinutes = 120

// ValidationError is the only failure a caller of the pipeline ever sees.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (r Request) Validate() error {
	if !r.Situation.Valid() {
		return &ValidationError{Field: "situation", Reason: fmt.Sprintf("unknown situation %q", r.Situation)}
	}
	if r.DurationMinutes <= 0 || r.DurationMinutes > MaxDurationMinutes {
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("must be in (0, %d], got %d", MaxDurationMinutes, r.DurationMinutes)}
	}
	return nil
}
