// Package detection maps the terminal payload returned by the detection
// service into the domain Result shown to the user and copied into a
// violation record.
package detection

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strings"

	"github.com/parkapp/parkwatch/internal/errors"
)

// Result is the reconciled outcome of one processed video.
type Result struct {
	ViolationCount    int    `json:"violation_count"`
	ProcessedMediaRef string `json:"processed_media_ref"`
	SnapshotRef       string `json:"snapshot_ref,omitempty"` // empty when the server produced no snapshot
}

// HasSnapshot reports whether the server returned a snapshot location.
func (r Result) HasSnapshot() bool {
	return r.SnapshotRef != ""
}

// payload is the wire shape of the upload response.
type payload struct {
	TrackedObjects *json.Number `json:"tracked_objects"`
	VideoURL       *string      `json:"video_url"`
	SnapshotURL    *string      `json:"snapshot_url"`
	Error          *string      `json:"error"`
}

// Reconcile parses a terminal payload. It has no side effects.
func Reconcile(body []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var p payload
	if err := dec.Decode(&p); err != nil {
		return Result{}, newPayloadError(ReasonMalformed, err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.NewStd("unexpected data after JSON value")
		}
		return Result{}, newPayloadError(ReasonMalformed, err)
	}

	if p.Error != nil {
		return Result{}, newPayloadError(ReasonServerError, errors.NewStd(*p.Error))
	}

	if p.VideoURL == nil || strings.TrimSpace(*p.VideoURL) == "" {
		return Result{}, newPayloadError(ReasonMissingVideo, nil)
	}

	count := 0
	if p.TrackedObjects != nil {
		n, err := parseCount(*p.TrackedObjects)
		if err != nil {
			return Result{}, newPayloadError(ReasonBadCount, err)
		}
		count = n
	}

	r := Result{
		ViolationCount:    count,
		ProcessedMediaRef: *p.VideoURL,
	}
	if p.SnapshotURL != nil {
		r.SnapshotRef = *p.SnapshotURL
	}
	return r, nil
}

// parseCount accepts integral JSON numbers only, including forms like 3.0.
func parseCount(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return 0, errNegativeCount
		}
		if i > math.MaxInt32 {
			return 0, errCountOverflow
		}
		return int(i), nil
	}

	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errFractionalCount
	}
	if f < 0 {
		return 0, errNegativeCount
	}
	if f > math.MaxInt32 {
		return 0, errCountOverflow
	}
	return int(f), nil
}
