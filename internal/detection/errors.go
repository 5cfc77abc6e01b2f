package detection

import (
	"github.com/parkapp/parkwatch/internal/errors"
)

// Reasons a terminal payload is rejected.
const (
	ReasonMalformed    = "malformed json"
	ReasonMissingVideo = "missing video_url"
	ReasonBadCount     = "invalid tracked_objects"
	ReasonServerError  = "server reported an error"
)

var (
	errNegativeCount   = errors.NewStd("tracked_objects is negative")
	errFractionalCount = errors.NewStd("tracked_objects is not a whole number")
	errCountOverflow   = errors.NewStd("tracked_objects is too large")
)

// PayloadError means the terminal response body could not be turned into a Result.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err == nil {
		return "invalid detection payload: " + e.Reason
	}
	return "invalid detection payload: " + e.Reason + ": " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *PayloadError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryPayload
}

// ServerMessage returns the server supplied message for an {"error": ...} body.
func (e *PayloadError) ServerMessage() string {
	if e.Reason != ReasonServerError || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func newPayloadError(reason string, err error) error {
	return errors.New(&PayloadError{Reason: reason, Err: err}).
		Component("detection").
		Category(errors.CategoryPayload).
		Context("reason", reason).
		Build()
}
