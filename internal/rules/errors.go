package rules

import (
	"errors"
	"fmt"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/recurrence"
)

var (
	// ErrInvalidName is returned for empty names and names spanning lines.
	ErrInvalidName = errors.New("invalid rule name")

	// ErrInvalidDuration is returned when the duration text does not parse
	// to a positive number of seconds.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidRecurrence is returned when the recurrence does not parse or
	// never occurs.
	ErrInvalidRecurrence = recurrence.ErrInvalidRecurrence

	// ErrInfeasibleWindow is returned when a window would still be open at
	// the next occurrence of its recurrence.
	ErrInfeasibleWindow = errors.New("duration overruns the next occurrence")

	// ErrNameConflict is returned when a rule with the same name is already
	// scheduled or present in the document.
	ErrNameConflict = errors.New("a rule with this name already exists")

	// ErrBlockMalformed is returned when a rule's start border has no
	// matching end border. The document is left untouched.
	ErrBlockMalformed = codec.ErrBlockMalformed
)

// OperationError is a failed user-initiated operation. Input (add) or
// Names (remove) carry what was submitted so callers can show it again.
type OperationError struct {
	Op    string
	Input *AddRequest
	Names []string
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Reason is the document owner's rejection message, if there was one.
func (e *OperationError) Reason() string {
	reason, _ := document.ExtractReason(e.Err)
	return reason
}

// Kind names the error class for API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrInvalidRecurrence):
		return "invalid_recurrence"
	case errors.Is(err, ErrInfeasibleWindow):
		return "infeasible_window"
	case errors.Is(err, ErrNameConflict):
		return "name_conflict"
	case errors.Is(err, ErrBlockMalformed):
		return "block_malformed"
	case errors.Is(err, document.ErrSyntaxRejected):
		return "syntax_rejected"
	case errors.Is(err, document.ErrRevisionConflict):
		return "revision_conflict"
	default:
		return "internal"
	}
}
