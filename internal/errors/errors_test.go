package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsExplicitMetadata(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("upload rejected with status %d", 502).
		Component("transfer").
		Category(CategoryTransfer).
		Priority("bogus").
		Context("status_code", 502).
		Build()

	assert.Equal(t, "transfer", ee.GetComponent())
	assert.Equal(t, CategoryTransfer, ee.Category)
	assert.Equal(t, PriorityMedium, ee.GetPriority())
	assert.Equal(t, 502, ee.GetContext()["status_code"])
	assert.True(t, IsCategory(ee, CategoryTransfer))
	assert.False(t, IsCategory(ee, CategoryPoll))
}

func TestEnhancedErrorUnwraps(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("query: %w", context.Canceled)).Build()

	assert.ErrorIs(t, ee, context.Canceled)
	assert.Equal(t, CategoryCancellation, ee.Category)

	var target *EnhancedError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", ee), &target)
	assert.Same(t, ee, target)
}

func TestReporterReceivesBuiltErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("insert failed")).Category(CategorySubmission).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
}

func TestRegexPrecompilation(t *testing.T) {
	scrubbed := basicURLScrub("Error at https://api.example.com?apikey=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicURLScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	scrubbed = basicURLScrub("no identity for user_id=42 profile=abc")
	assert.False(t, strings.Contains(scrubbed, "42"), scrubbed)
	assert.False(t, strings.Contains(scrubbed, "abc"), scrubbed)
}

func TestCustomPrivacyScrubber(t *testing.T) {
	SetPrivacyScrubber(func(string) string { return "scrubbed" })
	t.Cleanup(func() { SetPrivacyScrubber(nil) })

	assert.Equal(t, "scrubbed", scrubMessageForPrivacy("anything"))
}
