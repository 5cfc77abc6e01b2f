package transfer

import "fmt"

// Kind identifies a transfer event.
type Kind int

const (
	// KindProgress reports upload progress in percent.
	KindProgress Kind = iota
	// KindSent means the request body was fully handed to the transport.
	KindSent
	// KindDone carries the terminal response body. Always the last event on success.
	KindDone
	// KindError carries the failure. Always the last event on failure.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindSent:
		return "sent"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one item on a transfer stream.
type Event struct {
	Kind    Kind
	Percent int    // KindProgress
	Payload []byte // KindDone
	Err     error  // KindError
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

func (e Event) String() string {
	switch e.Kind {
	case KindProgress:
		return fmt.Sprintf("progress(%d)", e.Percent)
	case KindDone:
		return fmt.Sprintf("done(%d bytes)", len(e.Payload))
	case KindError:
		return fmt.Sprintf("error(%v)", e.Err)
	default:
		return e.Kind.String()
	}
}

// Percent computes round(sent/total*100) clamped to [0,100].
func Percent(sent, total int64) int {
	if total <= 0 {
		return 100
	}
	if sent <= 0 {
		return 0
	}
	if sent >= total {
		return 100
	}
	return int((sent*100 + total/2) / total)
}
