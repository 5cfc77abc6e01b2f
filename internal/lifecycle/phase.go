package lifecycle

// Phase is the position of an upload session in its lifecycle.
type Phase int

const (
	// PhaseIdle is the initial state and the target of Reset.
	PhaseIdle Phase = iota
	// PhaseUploading means the media is being transferred.
	PhaseUploading
	// PhaseProcessing means the body was sent and the server is analysing it.
	PhaseProcessing
	// PhaseCompleted means a result is available.
	PhaseCompleted
	// PhaseFailed means the session ended with an error.
	PhaseFailed
)

const (
	phaseIdle       = "idle"
	phaseUploading  = "uploading"
	phaseProcessing = "processing"
	phaseCompleted  = "completed"
	phaseFailed     = "failed"
	phaseUnknown    = "unknown"
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return phaseIdle
	case PhaseUploading:
		return phaseUploading
	case PhaseProcessing:
		return phaseProcessing
	case PhaseCompleted:
		return phaseCompleted
	case PhaseFailed:
		return phaseFailed
	default:
		return phaseUnknown
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Active reports whether a transfer or the processing wait is in progress.
func (p Phase) Active() bool {
	return p == PhaseUploading || p == PhaseProcessing
}

// Settled reports whether the session reached an end state.
func (p Phase) Settled() bool {
	return p == PhaseCompleted || p == PhaseFailed
}
