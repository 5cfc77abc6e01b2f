package poller

import (
	"io"
	"math"

	"github.com/antonholmquist/jason"
)

// Status is one decoded progress response. Progress is nil when the server
// did not report a value.
type Status struct {
	Progress     *int
	State        string
	CurrentFrame int64
	TotalFrames  int64
}

// decodeStatus reads a progress body. Only progress is required to be well
// formed; the other fields are informational.
func decodeStatus(r io.Reader) (Status, error) {
	obj, err := jason.NewObjectFromReader(r)
	if err != nil {
		return Status{}, err
	}

	var st Status
	st.State, _ = obj.GetString("status")
	st.CurrentFrame, _ = obj.GetInt64("current_frame")
	st.TotalFrames, _ = obj.GetInt64("total_frames")

	value, err := obj.GetValue("progress")
	if err != nil || value.Null() == nil {
		return st, nil
	}
	f, err := value.Float64()
	if err != nil {
		return Status{}, err
	}

	p := clampPercent(int(math.Round(f)))
	st.Progress = &p
	return st, nil
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
