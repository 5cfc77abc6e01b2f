// Package spinner draws a single-line progress indicator on a terminal.
package spinner

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRate is the maximum number of redraws per second.
const DefaultRate = 10

// Spinner struct holds the spinner state
type Spinner struct {
	mu      sync.Mutex
	out     io.Writer
	frames  []string
	index   int
	limiter *rate.Limiter
	width   int // length of the last status line, used to blank it
}

// New creates a spinner writing to out. Redraws are limited to perSecond,
// zero uses DefaultRate.
func New(out io.Writer, perSecond int) *Spinner {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	// Braille arrow sequence
	return &Spinner{
		out: out,
		frames: []string{
			"⣀⣀ ",
			"⣄⣀ ",
			"⣤⣀ ",
			"⣦⣄ ",
			"⣶⣤ ",
			"⣿⣦ ",
			"⣿⣷ ",
			"⣿⣿ ",
			"⣿⣿ ",
			"⣷⣿ ",
			"⣦⣿ ",
			"⣤⣷ ",
			"⣄⣦ ",
			"⣀⣤ ",
			"⣀⣄ ",
			"⣀⣀ ",
		},
		limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(perSecond)), 1),
	}
}

// Update advances to the next frame and prints status after it. Calls
// above the redraw rate are skipped and report false.
func (s *Spinner) Update(status string) bool {
	if !s.limiter.Allow() {
		return false
	}
	s.draw(status)
	return true
}

// Force redraws regardless of the rate, for state changes that must show.
func (s *Spinner) Force(status string) {
	s.draw(status)
}

func (s *Spinner) draw(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.frames[s.index] + status
	pad := max(s.width-len(line), 0)
	// Hide cursor, then overwrite the previous line
	fmt.Fprintf(s.out, "\033[?25l\r%s%*s", line, pad, "")
	s.width = len(line)

	s.index++
	if s.index >= len(s.frames) {
		s.index = 0
	}
}

// Cleanup hides the spinner and shows the cursor
func (s *Spinner) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, "\r%*s\r", s.width, "") // Clear the spinner
	fmt.Fprint(s.out, "\033[?25h")             // Show cursor
	s.width = 0
}
