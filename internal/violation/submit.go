package violation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
)

// IdentityProvider resolves the logged-in user.
type IdentityProvider interface {
	UserID(ctx context.Context) (string, error)
}

// Store persists violation records. Implementations insert exactly one row
// per call and never update.
type Store interface {
	InsertViolation(ctx context.Context, rec *Record) error
}

// Hook runs after a record was stored. Failures are logged only.
type Hook interface {
	Name() string
	RecordSaved(ctx context.Context, rec *Record) error
}

// HookFunc adapts a function to Hook.
type HookFunc struct {
	HookName string
	Fn       func(ctx context.Context, rec *Record) error
}

// Name implements Hook.
func (h HookFunc) Name() string { return h.HookName }

// RecordSaved implements Hook.
func (h HookFunc) RecordSaved(ctx context.Context, rec *Record) error { return h.Fn(ctx, rec) }

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithHooks adds post-submit hooks, run in order.
func WithHooks(hooks ...Hook) SubmitterOption {
	return func(s *Submitter) {
		for _, h := range hooks {
			if h != nil {
				s.hooks = append(s.hooks, h)
			}
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) SubmitterOption {
	return func(s *Submitter) {
		s.metrics = metrics.OrNoop(r)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) SubmitterOption {
	return func(s *Submitter) {
		if l != nil {
			s.log = l
		}
	}
}

// Submitter validates and stores violation records.
type Submitter struct {
	store    Store
	identity IdentityProvider
	hooks    []Hook
	metrics  metrics.Recorder
	log      logger.Logger

	mu sync.Mutex
	// submitted holds session ids with a stored or in-flight record.
	submitted map[string]struct{}
}

// NewSubmitter creates a Submitter.
func NewSubmitter(store Store, identity IdentityProvider, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		store:     store,
		identity:  identity,
		metrics:   metrics.NoopRecorder{},
		log:       logger.Global().Module("violation"),
		submitted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores rec for session. Preconditions are checked in order before
// any remote call: the session must be Completed, violation type and location
// must be non-empty, and a user must be logged in. On success rec.ProfileID
// holds the resolved user. A second submit for the same session fails with
// ErrAlreadySubmitted; a failed insert can be retried.
func (s *Submitter) Submit(ctx context.Context, session lifecycle.Session, rec *Record) error {
	start := time.Now()

	if session.Phase != lifecycle.PhaseCompleted || session.Result == nil {
		s.metrics.RecordOperation(metrics.OpSubmit, metrics.StatusSkipped)
		return stateError(ErrNotCompleted, session.ID)
	}
	if err := rec.validate(); err != nil {
		s.metrics.RecordError(metrics.OpSubmit, string(errors.CategoryValidation))
		return err
	}

	userID, err := s.resolveIdentity(ctx)
	if err != nil {
		s.metrics.RecordError(metrics.OpSubmit, NoIdentity.String())
		return newSubmitError(NoIdentity, err)
	}

	if !s.acquire(session.ID) {
		s.metrics.RecordOperation(metrics.OpSubmit, metrics.StatusSkipped)
		return stateError(ErrAlreadySubmitted, session.ID)
	}

	rec.ProfileID = userID
	rec.SessionID = session.ID
	rec.ViolationType = strings.TrimSpace(rec.ViolationType)
	rec.Location = strings.TrimSpace(rec.Location)

	if err := s.store.InsertViolation(ctx, rec); err != nil {
		s.release(session.ID)
		s.metrics.RecordOperation(metrics.OpSubmit, metrics.StatusError)
		s.metrics.RecordError(metrics.OpSubmit, Remote.String())
		s.log.Warn("failed to save violation record",
			logger.String("session_id", session.ID),
			logger.Error(err))
		return newSubmitError(Remote, err)
	}

	s.metrics.RecordOperation(metrics.OpSubmit, metrics.StatusSuccess)
	s.metrics.RecordDuration(metrics.OpSubmit, time.Since(start).Seconds())
	s.log.Info("violation record saved",
		logger.String("session_id", session.ID),
		logger.Int("recorded_number", rec.RecordedCount),
		logger.String("location", rec.Location))

	s.runHooks(ctx, rec)
	return nil
}

// Submitted reports whether a record for sessionID was stored.
func (s *Submitter) Submitted(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.submitted[sessionID]
	return ok
}

func (s *Submitter) resolveIdentity(ctx context.Context) (string, error) {
	if s.identity == nil {
		return "", errors.NewStd("no identity provider configured")
	}
	id, err := s.identity.UserID(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.NewStd("identity store returned an empty user id")
	}
	return id, nil
}

func (s *Submitter) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submitted[sessionID]; ok {
		return false
	}
	s.submitted[sessionID] = struct{}{}
	return true
}

func (s *Submitter) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submitted, sessionID)
}

func (s *Submitter) runHooks(ctx context.Context, rec *Record) {
	for _, h := range s.hooks {
		if err := h.RecordSaved(ctx, rec); err != nil {
			s.log.Warn("post-submit hook failed",
				logger.String("hook", h.Name()),
				logger.String("session_id", rec.SessionID),
				logger.Error(err))
		}
	}
}
