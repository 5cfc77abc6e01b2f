package lifecycle

// trigger is an input to the state machine.
type trigger int

const (
	triggerBegin trigger = iota
	triggerProgress
	triggerSent
	triggerPoll
	triggerDone
	triggerMalformed
	triggerError
	triggerReset
)

func (t trigger) String() string {
	switch t {
	case triggerBegin:
		return "begin"
	case triggerProgress:
		return "progress"
	case triggerSent:
		return "sent"
	case triggerPoll:
		return "poll"
	case triggerDone:
		return "done"
	case triggerMalformed:
		return "malformed"
	case triggerError:
		return "error"
	case triggerReset:
		return "reset"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from Phase
	on   trigger
}

// transitions lists every accepted (phase, trigger) pair. Anything missing is
// ignored by the phase guard. Reset is accepted from every phase.
var transitions = map[transitionKey]Phase{
	{PhaseIdle, triggerBegin}:      PhaseUploading,
	{PhaseCompleted, triggerBegin}: PhaseUploading,
	{PhaseFailed, triggerBegin}:    PhaseUploading,

	{PhaseUploading, triggerProgress}: PhaseUploading,
	{PhaseUploading, triggerSent}:     PhaseProcessing,
	{PhaseUploading, triggerError}:    PhaseFailed,

	{PhaseProcessing, triggerPoll}:      PhaseProcessing,
	{PhaseProcessing, triggerDone}:      PhaseCompleted,
	{PhaseProcessing, triggerMalformed}: PhaseFailed,
	{PhaseProcessing, triggerError}:     PhaseFailed,

	{PhaseIdle, triggerReset}:       PhaseIdle,
	{PhaseUploading, triggerReset}:  PhaseIdle,
	{PhaseProcessing, triggerReset}: PhaseIdle,
	{PhaseCompleted, triggerReset}:  PhaseIdle,
	{PhaseFailed, triggerReset}:     PhaseIdle,
}

// next returns the phase reached from "from" on t, and false when the pair is
// not a valid transition.
func next(from Phase, t trigger) (Phase, bool) {
	to, ok := transitions[transitionKey{from, t}]
	return to, ok
}
