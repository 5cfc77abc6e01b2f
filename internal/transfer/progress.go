package transfer

import (
	"io"
	"sync"
	"sync/atomic"
)

// streamCapacity bounds buffered progress events. Two slots are always kept
// free for sent and the terminal event so those sends never block.
const (
	streamCapacity = 32
	reservedSlots  = 2
)

// stream serialises writes to an event channel shared by the transport's
// body reader and the request goroutine.
type stream struct {
	mu     sync.Mutex
	ch     chan Event
	last   int
	sent   bool
	closed bool
}

func newStream() *stream {
	return &stream{ch: make(chan Event, streamCapacity), last: -1}
}

// progress emits percent when it advances. A full buffer drops the update;
// a later update or sent supersedes it.
func (s *stream) progress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.sent || percent <= s.last {
		return
	}
	if len(s.ch) >= cap(s.ch)-reservedSlots {
		return
	}
	s.last = percent
	s.ch <- Event{Kind: KindProgress, Percent: percent}
}

// markSent emits KindSent once.
func (s *stream) markSent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.sent {
		return
	}
	s.sent = true
	s.ch <- Event{Kind: KindSent}
}

// finish emits the terminal event and closes the channel.
func (s *stream) finish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.ch <- ev
	close(s.ch)
}

// countingReader reports progress for every read that moves the byte count.
type countingReader struct {
	r      io.Reader
	total  int64
	read   atomic.Int64
	stream *stream
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		done := c.read.Add(int64(n))
		c.stream.progress(Percent(done, c.total))
		if done >= c.total {
			c.stream.markSent()
		}
	}
	return n, err
}
