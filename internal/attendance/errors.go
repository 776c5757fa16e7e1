package attendance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMember     = errors.New("unknown member")
	ErrSessionNotOpen    = errors.New("session not open")
	ErrEventNotFound     = errors.New("event not found")
	ErrRecordNotFound    = errors.New("attendance record not found")
	ErrInvalidTransition = errors.New("invalid check-in transition")
	ErrDiscardsHistory   = errors.New("roster change discards recorded attendance")
	ErrAlreadyOpen       = errors.New("event already opened")
)

// StoreWriteError is a write the store rejected.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StoreWriteError) Unwrap() error { return e.Err }

// PartialBatchError reports a roster change that was only partly applied.
type PartialBatchError struct {
	Applied []string
	Failed  []string
	Err     error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("roster partially applied, failed for [%s]: %v", strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// Severity classifies an outcome for the operator.
type Severity string

const (
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeverityError   Severity = "ERROR"
)

// Outcome is the operator-facing result of a check-in step.
type Outcome struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

func failed(err error) Outcome {
	return Outcome{Severity: SeverityError, Message: err.Error(), Err: err}
}
