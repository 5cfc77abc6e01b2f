package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/parkapp/parkwatch/internal/api/middleware"
	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/datastore"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability"
	"github.com/parkapp/parkwatch/internal/violation"
)

// SessionController is the part of the lifecycle controller the API drives.
type SessionController interface {
	Snapshot() lifecycle.Session
	Begin(ctx context.Context, mediaRef string) (lifecycle.Session, error)
	Reset()
}

// RecordSubmitter stores the record of a completed session.
type RecordSubmitter interface {
	Submit(ctx context.Context, session lifecycle.Session, rec *violation.Record) error
}

// RecordLister lists saved records, newest first.
type RecordLister interface {
	ListViolations(ctx context.Context, limit int) ([]datastore.ViolationHistory, error)
}

// Server is the local HTTP API.
type Server struct {
	echo      *echo.Echo
	config    *Config
	log       logger.Logger
	startTime time.Time

	controller SessionController
	submitter  RecordSubmitter
	records    RecordLister
	defaults   violation.Defaults
	metrics    *observability.Metrics
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSubmitter enables POST /api/v1/session/record.
func WithSubmitter(sub RecordSubmitter, defaults violation.Defaults) ServerOption {
	return func(s *Server) {
		s.submitter = sub
		s.defaults = defaults
	}
}

// WithRecords enables GET /api/v1/records.
func WithRecords(r RecordLister) ServerOption {
	return func(s *Server) {
		s.records = r
	}
}

// WithMetrics records request metrics and serves /metrics when enabled.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates the API server for controller.
func New(cfg *Config, controller SessionController, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		log:        GetLogger(),
		startTime:  time.Now(),
		controller: controller,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = cfg.Debug
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Server.IdleTimeout = cfg.IdleTimeout
	s.echo.HTTPErrorHandler = s.handleError

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	}))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/session", s.getSession)
	v1.POST("/session", s.beginSession)
	v1.POST("/session/reset", s.resetSession)
	if s.submitter != nil {
		v1.GET("/session/draft", s.getDraft)
		v1.POST("/session/record", s.submitRecord)
	}
	if s.records != nil {
		v1.GET("/records", s.listRecords)
	}

	if s.metrics != nil && s.config.Metrics {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"phase":          s.controller.Snapshot().Phase,
		"uptime_seconds": uptime.Seconds(),
	})
}

// SessionResponse is the JSON view of a session.
type SessionResponse struct {
	lifecycle.Session
	Error string `json:"error,omitempty"`
}

func sessionResponse(snap lifecycle.Session) SessionResponse {
	return SessionResponse{Session: snap, Error: snap.Error()}
}

func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionResponse(s.controller.Snapshot()))
}

// BeginRequest starts a session for a file readable by the server.
type BeginRequest struct {
	Media string `json:"media"`
}

func (s *Server) beginSession(c echo.Context) error {
	var req BeginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Media) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "media is required")
	}

	// The session outlives the request.
	snap, err := s.controller.Begin(context.WithoutCancel(c.Request().Context()), req.Media)
	if err != nil {
		if errors.Is(err, lifecycle.ErrTransferActive) || errors.Is(err, lifecycle.ErrClosed) || errors.Is(err, conf.ErrMissingBaseURL) {
			return err
		}
		// The session failed synchronously; report it like any other failure.
		return c.JSON(http.StatusUnprocessableEntity, sessionResponse(snap))
	}
	return c.JSON(http.StatusAccepted, sessionResponse(snap))
}

func (s *Server) resetSession(c echo.Context) error {
	s.controller.Reset()
	return c.JSON(http.StatusOK, sessionResponse(s.controller.Snapshot()))
}

func (s *Server) getDraft(c echo.Context) error {
	draft, err := violation.NewDraft(s.controller.Snapshot(), s.defaults)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, draft)
}

// RecordRequest overrides fields of the draft built from the current
// session. Omitted fields keep their draft value.
type RecordRequest struct {
	ViolationType  *string `json:"violation_type"`
	Location       *string `json:"location"`
	Evidence       *string `json:"evidence"`
	TimeCaught     *string `json:"time_caught"`
	RecordedNumber *int    `json:"recorded_number"`
}

func (r RecordRequest) apply(rec *violation.Record) {
	if r.ViolationType != nil {
		rec.ViolationType = *r.ViolationType
	}
	if r.Location != nil {
		rec.Location = *r.Location
	}
	if r.Evidence != nil {
		rec.Evidence = *r.Evidence
	}
	if r.TimeCaught != nil {
		rec.TimeCaught = *r.TimeCaught
	}
	if r.RecordedNumber != nil {
		rec.RecordedCount = *r.RecordedNumber
	}
}

func (s *Server) submitRecord(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	snap := s.controller.Snapshot()
	rec, err := violation.NewDraft(snap, s.defaults)
	if err != nil {
		return err
	}
	req.apply(&rec)

	if err := s.submitter.Submit(c.Request().Context(), snap, &rec); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) listRecords(c echo.Context) error {
	limit := datastore.DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	rows, err := s.records.ListViolations(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"records": rows,
		"count":   len(rows),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		he     *echo.HTTPError
		verr   *violation.ValidationError
		suberr *violation.SubmitError
	)
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &suberr):
		if suberr.Kind == violation.NoIdentity {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, violation.ErrNotCompleted),
		errors.Is(err, violation.ErrAlreadySubmitted),
		errors.Is(err, lifecycle.ErrTransferActive):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrClosed), errors.Is(err, conf.ErrMissingBaseURL):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes {"error": message}, the same body shape the detection
// service uses.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logger.String("path", c.Path()),
			logger.Int("status", code),
			logger.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		s.log.Warn("failed to write error response", logger.Error(err))
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Listen).
			Build()
	case <-ctx.Done():
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	<-errCh
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Build()
	}
	s.log.Info("HTTP server shutdown complete")
	return nil
}
