package violation

import (
	"fmt"

	"github.com/parkapp/parkwatch/internal/errors"
)

var (
	// ErrNotCompleted is returned when the session has no result to submit.
	ErrNotCompleted = errors.NewStd("detection has not completed")

	// ErrAlreadySubmitted is returned for a second submit of the same session.
	ErrAlreadySubmitted = errors.NewStd("record for this session was already submitted")
)

// ValidationError reports a record field that failed its precondition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ErrorCategory implements errors.CategorizedError.
func (e *ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// SubmitKind classifies a submission failure.
type SubmitKind int

const (
	// NoIdentity means no logged-in user could be resolved.
	NoIdentity SubmitKind = iota + 1
	// Remote means the datastore rejected the insert.
	Remote
)

func (k SubmitKind) String() string {
	switch k {
	case NoIdentity:
		return "no_identity"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// SubmitError is returned when a valid record could not be stored. The
// session is unaffected and the submit may be retried.
type SubmitError struct {
	Kind SubmitKind
	Err  error
}

func (e *SubmitError) Error() string {
	switch e.Kind {
	case NoIdentity:
		if e.Err != nil {
			return "no logged-in user: " + e.Err.Error()
		}
		return "no logged-in user"
	default:
		if e.Err != nil {
			return "failed to save record: " + e.Err.Error()
		}
		return "failed to save record"
	}
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ErrorCategory implements errors.CategorizedError.
func (e *SubmitError) ErrorCategory() errors.ErrorCategory {
	return errors.CategorySubmission
}

func newValidationError(field, reason string) error {
	return errors.New(&ValidationError{Field: field, Reason: reason}).
		Component("violation").
		Category(errors.CategoryValidation).
		Context("field", field).
		Priority(errors.PriorityLow).
		Build()
}

func newSubmitError(kind SubmitKind, err error) error {
	return errors.New(&SubmitError{Kind: kind, Err: err}).
		Component("violation").
		Category(errors.CategorySubmission).
		Context("kind", kind.String()).
		Build()
}

func stateError(err error, sessionID string) error {
	return errors.New(err).
		Component("violation").
		Category(errors.CategoryState).
		Context("session_id", sessionID).
		Priority(errors.PriorityLow).
		Build()
}
