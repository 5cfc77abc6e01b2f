package lifecycle

import (
	"time"

	"github.com/parkapp/parkwatch/internal/detection"
)

// Session is a snapshot of one upload-and-poll lifecycle. Result is non-nil
// exactly when Phase is PhaseCompleted.
type Session struct {
	ID                 string            `json:"id,omitempty"`
	MediaRef           string            `json:"media_ref,omitempty"`
	Phase              Phase             `json:"phase"`
	TransferProgress   int               `json:"transfer_progress"`
	ProcessingProgress int               `json:"processing_progress"`
	Result             *detection.Result `json:"result,omitempty"`
	Err                error             `json:"-"`
	StartedAt          time.Time         `json:"started_at,omitzero"`
	CompletedAt        time.Time         `json:"completed_at,omitzero"`

	// Revision increases with every mutation of the controller state.
	Revision uint64 `json:"revision"`
}

// Error returns the failure message, or an empty string.
func (s Session) Error() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// clone copies the session so callers cannot reach controller owned memory.
func (s *Session) clone() Session {
	c := *s
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	return c
}
