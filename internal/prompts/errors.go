package prompts

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("invalid prompt templates")

// ValidationError describes the first record that kept a store from being
// built. Position is 1-based; 0 means the list as a whole.
type ValidationError struct {
	Position int
	Field    string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Position == 0 {
		return "prompt list " + e.Reason
	}
	return fmt.Sprintf("prompt at position %d %s", e.Position, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(pos int, field, reason string) *ValidationError {
	return &ValidationError{Position: pos, Field: field, Reason: reason}
}
