// Package transfer uploads a media file to the detection service as a single
// multipart request and reports progress as a stream of events.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/httpclient"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
)

const (
	maxPayloadSize      = 16 << 20
	maxErrorBodySize    = 64 << 10
	maxErrorMessageSize = 300
)

// Config describes how uploads are encoded.
type Config struct {
	FieldName    string // multipart field, "video"
	FileName     string // reported filename, "input.mp4"
	ContentType  string // part content type, "video/mp4"
	BypassHeader string // header skipping an intermediary warning page
	BypassValue  string
}

// DefaultConfig returns the encoding the detection service expects.
func DefaultConfig() Config {
	return Config{
		FieldName:    "video",
		FileName:     "input.mp4",
		ContentType:  "video/mp4",
		BypassHeader: "ngrok-skip-browser-warning",
		BypassValue:  "true",
	}
}

// SizeRecorder is implemented by metrics that track upload sizes.
type SizeRecorder interface {
	RecordTransferSize(bytes int64)
}

// Channel performs uploads. Each Begin opens exactly one request and returns
// a fresh event stream.
type Channel struct {
	client  *httpclient.Client
	config  Config
	metrics metrics.Recorder
	log     logger.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Channel) { c.metrics = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Channel. A nil client gets one without timeouts since the
// server answers only after processing finishes; bound the upload with ctx.
func New(client *httpclient.Client, cfg Config, opts ...Option) *Channel {
	if client == nil {
		client = httpclient.New(&httpclient.Config{
			DefaultTimeout:        -1,
			ResponseHeaderTimeout: -1,
		})
	}
	defaults := DefaultConfig()
	if cfg.FieldName == "" {
		cfg.FieldName = defaults.FieldName
	}
	if cfg.FileName == "" {
		cfg.FileName = defaults.FileName
	}
	if cfg.ContentType == "" {
		cfg.ContentType = defaults.ContentType
	}

	c := &Channel{
		client:  client,
		config:  cfg,
		metrics: metrics.NoopRecorder{},
		log:     logger.Global().Module("transfer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts uploading mediaRef to endpoint. Missing endpoint or an
// unreadable file fail synchronously. Otherwise the returned channel yields
// progress events, sent once the body is written, and finally exactly one of
// done or error before it is closed. Cancelling ctx aborts the request.
func (c *Channel) Begin(ctx context.Context, endpoint, mediaRef string) (<-chan Event, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New(ErrMissingEndpoint).
			Component("transfer").
			Category(errors.CategoryConfiguration).
			Build()
	}

	file, err := os.Open(mediaRef) //nolint:gosec // G304: path chosen by the user
	if err != nil {
		return nil, errors.FileError(err, mediaRef, 0)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.FileError(err, mediaRef, 0)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, errors.New(errors.NewStd("media path is a directory")).
			Component("transfer").
			Category(errors.CategoryFileIO).
			FileContext(mediaRef, 0).
			Build()
	}

	head, tail, contentType, err := c.envelope()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	s := newStream()
	total := int64(len(head)) + info.Size() + int64(len(tail))
	body := &countingReader{
		r:      io.MultiReader(bytes.NewReader(head), file, bytes.NewReader(tail)),
		total:  total,
		stream: s,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, io.NopCloser(body))
	if err != nil {
		_ = file.Close()
		return nil, errors.New(err).
			Component("transfer").
			Category(errors.CategoryValidation).
			Context("operation", "build-upload-request").
			Build()
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	if c.config.BypassHeader != "" {
		req.Header.Set(c.config.BypassHeader, c.config.BypassValue)
	}

	if sr, ok := c.metrics.(SizeRecorder); ok {
		sr.RecordTransferSize(info.Size())
	}

	log := c.log.WithContext(ctx)
	log.Info("upload started",
		logger.String("endpoint", endpoint),
		logger.Int64("file_size", info.Size()),
		logger.Int64("body_size", total))

	go c.run(ctx, req, file, s, log)

	return s.ch, nil
}

func (c *Channel) run(ctx context.Context, req *http.Request, file *os.File, s *stream, log logger.Logger) {
	start := time.Now()
	defer func() {
		if err := file.Close(); err != nil {
			log.Debug("failed to close media file", logger.Error(err))
		}
	}()

	payload, err := c.exchange(ctx, req, s)
	c.metrics.RecordDuration(metrics.OpTransfer, time.Since(start).Seconds())

	if err != nil {
		status := metrics.StatusError
		if errors.IsCategory(err, errors.CategoryCancellation) {
			status = metrics.StatusCancelled
			log.Info("upload cancelled", logger.Duration("elapsed", time.Since(start)))
		} else {
			log.Warn("upload failed", logger.Error(err), logger.Duration("elapsed", time.Since(start)))
		}
		c.metrics.RecordOperation(metrics.OpTransfer, status)
		c.metrics.RecordError(metrics.OpTransfer, categoryOf(err))
		s.finish(Event{Kind: KindError, Err: err})
		return
	}

	c.metrics.RecordOperation(metrics.OpTransfer, metrics.StatusSuccess)
	log.Info("upload finished",
		logger.Int("payload_size", len(payload)),
		logger.Duration("elapsed", time.Since(start)))

	s.markSent()
	s.finish(Event{Kind: KindDone, Payload: payload})
}

// exchange performs the request and reads the terminal payload.
func (c *Channel) exchange(ctx context.Context, req *http.Request, s *stream) ([]byte, error) {
	url := req.URL.String()

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, newTransportError(url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, newStatusError(url, resp.StatusCode, errorMessage(resp.Header.Get("Content-Type"), body))
	}

	// The server only answers once it has read the whole body.
	s.markSent()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, newTransportError(url, err)
	}
	if len(payload) > maxPayloadSize {
		return nil, newTransportError(url, errors.NewStd("response payload too large"))
	}
	return payload, nil
}

// envelope renders the multipart framing around the file contents.
func (c *Channel) envelope() (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", multipart.FileContentDisposition(c.config.FieldName, c.config.FileName))
	h.Set("Content-Type", c.config.ContentType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", errors.New(err).Component("transfer").Category(errors.CategoryGeneric).Build()
	}
	head = bytes.Clone(buf.Bytes())
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, nil, "", errors.New(err).Component("transfer").Category(errors.CategoryGeneric).Build()
	}
	tail = bytes.Clone(buf.Bytes())

	return head, tail, mw.FormDataContentType(), nil
}

// errorMessage extracts a short human readable message from a failed response.
func errorMessage(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var msg string
	switch {
	case strings.Contains(contentType, "html") || bytes.HasPrefix(trimmed, []byte("<")):
		msg = html2text.HTML2Text(string(trimmed))
	case strings.Contains(contentType, "json") || bytes.HasPrefix(trimmed, []byte("{")):
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(trimmed, &e) == nil && e.Error != "" {
			msg = e.Error
		} else {
			msg = string(trimmed)
		}
	default:
		msg = string(trimmed)
	}

	msg = strings.Join(strings.Fields(msg), " ")
	if r := []rune(msg); len(r) > maxErrorMessageSize {
		msg = string(r[:maxErrorMessageSize]) + "..."
	}
	return msg
}

func categoryOf(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
