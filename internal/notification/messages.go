package notification

import (
	"strings"
	"text/template"

	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/internal/privacy"
	"github.com/parkapp/parkwatch/internal/violation"
)

// Event identifies why a notification was sent.
type Event string

const (
	EventCompleted Event = "processing_complete"
	EventFailed    Event = "session_failed"
	EventSaved     Event = "record_saved"
	EventTest      Event = "test"
)

// Message is one rendered notification.
type Message struct {
	Event     Event
	SessionID string
	Title     string
	Body      string
}

var (
	completedTmpl = template.Must(template.New("completed").Parse(
		`{{.Count}} violation{{if ne .Count 1}}s{{end}} detected.` +
			`{{if .Video}}
Processed video: {{.Video}}{{end}}` +
			`{{if .Snapshot}}
Snapshot: {{.Snapshot}}{{end}}`))

	failedTmpl = template.Must(template.New("failed").Parse(
		`Detection failed{{if .Media}} for {{.Media}}{{end}}: {{.Reason}}`))

	savedTmpl = template.Must(template.New("saved").Parse(
		`{{.Type}} at {{.Location}}, {{.Count}} recorded at {{.Time}}.`))
)

func render(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return t.Name()
	}
	return b.String()
}

// sessionMessage renders the message for a settled session. ok is false for
// sessions that do not settle into Completed or Failed.
func sessionMessage(s lifecycle.Session) (Message, bool) {
	switch s.Phase {
	case lifecycle.PhaseCompleted:
		if s.Result == nil {
			return Message{}, false
		}
		return Message{
			Event:     EventCompleted,
			SessionID: s.ID,
			Title:     "Processing Complete",
			Body: render(completedTmpl, map[string]any{
				"Count":    s.Result.ViolationCount,
				"Video":    s.Result.ProcessedMediaRef,
				"Snapshot": s.Result.SnapshotRef,
			}),
		}, true
	case lifecycle.PhaseFailed:
		reason := privacy.ScrubMessage(s.Error())
		if reason == "" {
			reason = "unknown error"
		}
		return Message{
			Event:     EventFailed,
			SessionID: s.ID,
			Title:     "Processing Failed",
			Body: render(failedTmpl, map[string]any{
				"Media":  s.MediaRef,
				"Reason": reason,
			}),
		}, true
	default:
		return Message{}, false
	}
}

func recordMessage(rec *violation.Record) Message {
	return Message{
		Event:     EventSaved,
		SessionID: rec.SessionID,
		Title:     "Violation Recorded",
		Body: render(savedTmpl, map[string]any{
			"Type":     rec.ViolationType,
			"Location": rec.Location,
			"Count":    rec.RecordedCount,
			"Time":     rec.TimeCaught,
		}),
	}
}
