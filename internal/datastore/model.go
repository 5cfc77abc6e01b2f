// Package datastore persists violation records into the violation_history
// table. SQLite and MySQL go through GORM; a hosted table is reached through
// its PostgREST interface.
package datastore

import (
	"time"

	"github.com/parkapp/parkwatch/internal/violation"
)

// TableName is the name of the violation table on every backend.
const TableName = "violation_history"

// ViolationHistory is one row of violation_history.
type ViolationHistory struct {
	ID             uint      `gorm:"primaryKey" json:"id,omitempty"`
	Profile        string    `gorm:"column:profile;size:128;index;not null" json:"profile"`
	RecordedNumber int       `gorm:"column:recorded_number;not null;default:0" json:"recorded_number"`
	ViolationType  string    `gorm:"column:violation_type;type:text;not null" json:"violation_type"`
	Location       string    `gorm:"column:location;type:text;not null" json:"location"`
	TimeCaught     string    `gorm:"column:time_caught;size:64" json:"time_caught"`
	Evidence       string    `gorm:"column:evidence;type:text" json:"evidence"`
	CreatedAt      time.Time `gorm:"index" json:"created_at,omitzero"`
}

// TableName implements gorm's Tabler.
func (ViolationHistory) TableName() string {
	return TableName
}

// fromRecord maps a submitted record to a row. Session and media references
// are not persisted.
func fromRecord(rec *violation.Record) ViolationHistory {
	return ViolationHistory{
		Profile:        rec.ProfileID,
		RecordedNumber: rec.RecordedCount,
		ViolationType:  rec.ViolationType,
		Location:       rec.Location,
		TimeCaught:     rec.TimeCaught,
		Evidence:       rec.Evidence,
	}
}
