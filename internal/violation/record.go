// Package violation builds and submits the violation record created from a
// completed detection session.
package violation

import (
	"strings"
	"time"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/lifecycle"
)

// Record is one row of violation_history.
type Record struct {
	ProfileID     string `json:"profile"`
	RecordedCount int    `json:"recorded_number"`
	ViolationType string `json:"violation_type"`
	Location      string `json:"location"`
	TimeCaught    string `json:"time_caught"`
	Evidence      string `json:"evidence"`

	// SessionID links the record to the detection session. Not persisted.
	SessionID string `json:"-"`
	// ProcessedMediaRef and SnapshotRef are carried for hooks. Not persisted.
	ProcessedMediaRef string `json:"-"`
	SnapshotRef       string `json:"-"`
}

// Defaults pre-populate the editable fields of a draft.
type Defaults struct {
	ViolationType string
	Location      string
	Evidence      string
	TimeFormat    string
	Zone          *time.Location // zone used to format TimeCaught, nil means local
}

// DefaultsFromSettings reads draft defaults from the record settings.
func DefaultsFromSettings(s conf.RecordSettings) Defaults {
	d := Defaults{
		ViolationType: s.ViolationType,
		Location:      s.Location,
		Evidence:      s.Evidence,
		TimeFormat:    s.TimeFormat,
	}
	if d.ViolationType == "" {
		d.ViolationType = conf.DefaultViolationType
	}
	if d.Location == "" {
		d.Location = conf.DefaultLocation
	}
	if d.Evidence == "" {
		d.Evidence = conf.DefaultEvidence
	}
	if strings.TrimSpace(d.TimeFormat) == "" {
		d.TimeFormat = conf.DefaultTimeFormat
	}
	return d
}

// NewDraft creates an editable record from a completed session.
func NewDraft(s lifecycle.Session, d Defaults) (Record, error) {
	if s.Phase != lifecycle.PhaseCompleted || s.Result == nil {
		return Record{}, stateError(ErrNotCompleted, s.ID)
	}

	caught := s.CompletedAt
	if caught.IsZero() {
		caught = time.Now()
	}
	if d.Zone != nil {
		caught = caught.In(d.Zone)
	}
	layout := d.TimeFormat
	if layout == "" {
		layout = conf.DefaultTimeFormat
	}

	return Record{
		RecordedCount:     s.Result.ViolationCount,
		ViolationType:     d.ViolationType,
		Location:          d.Location,
		TimeCaught:        caught.Format(layout),
		Evidence:          d.Evidence,
		SessionID:         s.ID,
		ProcessedMediaRef: s.Result.ProcessedMediaRef,
		SnapshotRef:       s.Result.SnapshotRef,
	}, nil
}

// validate checks the user editable fields.
func (r *Record) validate() error {
	if strings.TrimSpace(r.ViolationType) == "" {
		return newValidationError("violation_type", "must not be empty")
	}
	if strings.TrimSpace(r.Location) == "" {
		return newValidationError("location", "must not be empty")
	}
	if r.RecordedCount < 0 {
		return newValidationError("recorded_number", "must not be negative")
	}
	return nil
}
