// Package detect implements the detect command and the upload-and-follow
// loop shared with submit.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parkapp/parkwatch/internal/app"
	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/pkg/spinner"
)

// Command creates the detect command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		asJSON bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "detect [video.mp4]",
		Short: "Upload a video and wait for the detection result",
		Long:  "Upload a video to the detection service, report upload and processing progress, then print the number of violations found.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := NewProgress(cmd.ErrOrStderr(), quiet)
			a, err := app.New(cmd.Context(), settings, viper.ConfigFileUsed(), app.Features{Hooks: true},
				app.WithObserver(progress.Observe))
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := Run(cmd.Context(), a.Controller, args[0], progress)
			if err != nil {
				return err
			}
			return PrintResult(cmd.OutOrStdout(), snap, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show progress")

	return cmd
}

// Controller is the part of the lifecycle controller Run drives.
type Controller interface {
	Begin(ctx context.Context, mediaRef string) (lifecycle.Session, error)
	Wait(ctx context.Context) (lifecycle.Session, error)
	Reset()
}

// Run starts a session for media and blocks until it settles. A cancelled
// ctx resets the controller so the upload is abandoned.
func Run(ctx context.Context, c Controller, media string, progress *Progress) (lifecycle.Session, error) {
	if info, err := os.Stat(media); err == nil {
		progress.SetSize(info.Size())
	}
	defer progress.Done()

	if _, err := c.Begin(ctx, media); err != nil {
		return lifecycle.Session{}, err
	}

	snap, err := c.Wait(ctx)
	if err != nil {
		c.Reset()
		return snap, err
	}
	if snap.Phase == lifecycle.PhaseFailed {
		return snap, errors.Newf("detection failed: %s", snap.Error()).
			Component("cli").
			Category(errors.CategoryState).
			Context("session_id", snap.ID).
			Build()
	}
	return snap, nil
}

// PrintResult writes the outcome of a completed session.
func PrintResult(w io.Writer, snap lifecycle.Session, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	if snap.Result == nil {
		_, err := fmt.Fprintf(w, "Session %s ended in %s\n", snap.ID, snap.Phase)
		return err
	}

	fmt.Fprintf(w, "Violations detected: %d\n", snap.Result.ViolationCount)
	if snap.Result.ProcessedMediaRef != "" {
		fmt.Fprintf(w, "Processed video:     %s\n", snap.Result.ProcessedMediaRef)
	}
	if snap.Result.HasSnapshot() {
		fmt.Fprintf(w, "Snapshot:            %s\n", snap.Result.SnapshotRef)
	}
	if !snap.StartedAt.IsZero() && !snap.CompletedAt.IsZero() {
		fmt.Fprintf(w, "Elapsed:             %s\n", snap.CompletedAt.Sub(snap.StartedAt).Round(100*time.Millisecond))
	}
	return nil
}

// Progress renders session snapshots on a spinner line.
type Progress struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	size    string
	last    lifecycle.Phase
	quiet   bool
}

// NewProgress creates a renderer writing to w. A quiet renderer draws
// nothing.
func NewProgress(w io.Writer, quiet bool) *Progress {
	return &Progress{spinner: spinner.New(w, spinner.DefaultRate), quiet: quiet}
}

// SetSize records the media size shown while uploading.
func (p *Progress) SetSize(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = bytes.Format(n)
}

// Observe is registered as a lifecycle observer.
func (p *Progress) Observe(s lifecycle.Session) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	status := Status(s, p.size)
	if s.Phase != p.last {
		p.last = s.Phase
		p.spinner.Force(status)
		return
	}
	p.spinner.Update(status)
}

// Done clears the progress line.
func (p *Progress) Done() {
	if !p.quiet {
		p.spinner.Cleanup()
	}
}

// Status formats one progress line.
func Status(s lifecycle.Session, size string) string {
	switch s.Phase {
	case lifecycle.PhaseUploading:
		if size != "" {
			return fmt.Sprintf("Uploading %s... %d%%", size, s.TransferProgress)
		}
		return fmt.Sprintf("Uploading... %d%%", s.TransferProgress)
	case lifecycle.PhaseProcessing:
		return fmt.Sprintf("Processing... %d%%", s.ProcessingProgress)
	case lifecycle.PhaseCompleted:
		return "Processing complete"
	case lifecycle.PhaseFailed:
		return "Processing failed"
	default:
		return s.Phase.String()
	}
}
