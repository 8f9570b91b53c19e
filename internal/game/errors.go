package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("invalid decision")
	ErrNotReady     = errors.New("round not ready")
	ErrResolution   = errors.New("round resolution failed")
	ErrGameNotFound = errors.New("game not found")
	ErrGameExists   = errors.New("game already exists")
	ErrConflict     = errors.New("game was modified concurrently")
	ErrRoundUnknown = errors.New("round not resolved")
	ErrFinished     = errors.New("game is finished")
)

// ValidationError rejects a submission without mutating the game.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotReadyError is returned by a non-forced advance while submissions are missing.
type NotReadyError struct {
	Round   int
	Missing []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: round %d missing decisions from %s", ErrNotReady, e.Round, strings.Join(e.Missing, ", "))
}

func (e *NotReadyError) Unwrap() error { return ErrNotReady }

// ResolutionError aborts a round; the stored game is left as it was.
type ResolutionError struct {
	Round int
	Step  string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: round %d: %s: %v", ErrResolution, e.Round, e.Step, e.Err)
}

func (e *ResolutionError) Unwrap() []error { return []error{ErrResolution, e.Err} }
