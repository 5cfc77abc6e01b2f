package poller

import (
	"fmt"

	"github.com/parkapp/parkwatch/internal/errors"
)

// PollError is a failed progress query. It is logged and counted, never returned
// to the controller.
type PollError struct {
	StatusCode int // zero for transport and decode failures
	Err        error
}

func (e *PollError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("progress query returned status %d", e.StatusCode)
	}
	return "progress query failed: " + e.Err.Error()
}

func (e *PollError) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *PollError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryPoll
}

func newPollError(status int, err error) *errors.EnhancedError {
	return errors.New(&PollError{StatusCode: status, Err: err}).
		Component("poller").
		Category(errors.CategoryPoll).
		Priority(errors.PriorityLow).
		Build()
}
