package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/errors"
)

func TestReconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    Result
	}{
		{
			name:    "all fields",
			payload: `{"tracked_objects": 3, "video_url": "u1", "snapshot_url": "s1"}`,
			want:    Result{ViolationCount: 3, ProcessedMediaRef: "u1", SnapshotRef: "s1"},
		},
		{
			name:    "tracked objects defaults to zero",
			payload: `{"video_url": "u2"}`,
			want:    Result{ViolationCount: 0, ProcessedMediaRef: "u2"},
		},
		{
			name:    "null snapshot",
			payload: `{"tracked_objects": 0, "video_url": "u3", "snapshot_url": null}`,
			want:    Result{ProcessedMediaRef: "u3"},
		},
		{
			name:    "integral float count",
			payload: `{"tracked_objects": 4.0, "video_url": "u4"}`,
			want:    Result{ViolationCount: 4, ProcessedMediaRef: "u4"},
		},
		{
			name:    "unknown fields ignored",
			payload: `{"video_url": "u5", "status": "completed"}`,
			want:    Result{ProcessedMediaRef: "u5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Reconcile([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"not json", `<html>warning</html>`, ReasonMalformed},
		{"empty body", ``, ReasonMalformed},
		{"missing video url", `{"tracked_objects": 2}`, ReasonMissingVideo},
		{"blank video url", `{"video_url": "  "}`, ReasonMissingVideo},
		{"negative count", `{"tracked_objects": -1, "video_url": "u"}`, ReasonBadCount},
		{"fractional count", `{"tracked_objects": 1.5, "video_url": "u"}`, ReasonBadCount},
		{"server error", `{"error": "No video file provided"}`, ReasonServerError},
		{"wrong type", `{"video_url": 7}`, ReasonMalformed},
		{"trailing html", `{"video_url": "u1", "tracked_objects": 2} <html>oops</html>`, ReasonMalformed},
		{"two values", `{"video_url": "u1"}{"video_url": "u2"}`, ReasonMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Reconcile([]byte(tt.payload))
			require.Error(t, err)

			var pe *PayloadError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.reason, pe.Reason)
			assert.True(t, errors.IsCategory(err, errors.CategoryPayload))
		})
	}
}

func TestPayloadError_ServerMessage(t *testing.T) {
	t.Parallel()

	_, err := Reconcile([]byte(`{"error": "model not loaded"}`))
	var pe *PayloadError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "model not loaded", pe.ServerMessage())
	assert.Contains(t, err.Error(), "model not loaded")

	_, err = Reconcile([]byte(`{}`))
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, pe.ServerMessage())
}

func TestResult_HasSnapshot(t *testing.T) {
	t.Parallel()

	assert.False(t, Result{ProcessedMediaRef: "u"}.HasSnapshot())
	assert.True(t, Result{SnapshotRef: "s"}.HasSnapshot())
}
