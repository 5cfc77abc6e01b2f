package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/httpclient"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
	"github.com/parkapp/parkwatch/internal/violation"
)

const (
	restTimeout      = 15 * time.Second
	maxRESTErrorBody = 4 << 10
)

// RESTStore inserts rows through a PostgREST endpoint such as a hosted
// Supabase table.
type RESTStore struct {
	client     *httpclient.Client
	ownsClient bool
	tableURL   string
	apiKey     string
	opts       options
}

// NewRESTStore creates a store for settings.Table under settings.URL.
func NewRESTStore(s conf.RESTSettings, opts ...Option) (*RESTStore, error) {
	o := buildOptions(opts)

	base := strings.TrimRight(strings.TrimSpace(s.URL), "/")
	if base == "" || s.Table == "" {
		return nil, errors.Newf("rest datastore requires url and table").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	store := &RESTStore{
		client:   o.client,
		tableURL: base + "/rest/v1/" + url.PathEscape(s.Table),
		apiKey:   s.APIKey,
		opts:     o,
	}
	if store.client == nil {
		store.client = httpclient.New(&httpclient.Config{DefaultTimeout: restTimeout})
		store.ownsClient = true
	}
	return store, nil
}

// Backend returns "rest".
func (s *RESTStore) Backend() string {
	return conf.DriverREST
}

func (s *RESTStore) authorize(req *http.Request) {
	if s.apiKey == "" {
		return
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

// InsertViolation implements violation.Store with a single POST.
func (s *RESTStore) InsertViolation(ctx context.Context, rec *violation.Record) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(conf.DriverREST, metrics.OpDbInsert, start, err) }()

	body, err := json.Marshal([]ViolationHistory{fromRecord(rec)})
	if err != nil {
		return dbError(err, conf.DriverREST, "insert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tableURL, bytes.NewReader(body))
	if err != nil {
		return dbError(err, conf.DriverREST, "insert")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	s.authorize(req)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return s.networkError(err, "insert")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.statusError(resp, "insert")
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.opts.log.Debug("violation row inserted", logger.String("backend", conf.DriverREST))
	return nil
}

// ListViolations returns the newest rows first.
func (s *RESTStore) ListViolations(ctx context.Context, limit int) (rows []ViolationHistory, err error) {
	start := time.Now()
	defer func() { s.opts.observe(conf.DriverREST, metrics.OpDbQuery, start, err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "id.desc")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, dbError(err, conf.DriverREST, "list")
	}
	req.Header.Set("Accept", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, s.networkError(err, "list")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError(resp, "list")
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, dbError(err, conf.DriverREST, "list")
	}
	return rows, nil
}

// Close releases the client when the store created it.
func (s *RESTStore) Close() error {
	if s.ownsClient {
		s.client.Close()
	}
	return nil
}

func (s *RESTStore) networkError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		NetworkContext(s.tableURL, restTimeout).
		Context("backend", conf.DriverREST).
		Context("operation", op).
		Build()
}

// statusError surfaces the PostgREST message field when present.
func (s *RESTStore) statusError(resp *http.Response, op string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxRESTErrorBody))

	msg := strings.TrimSpace(string(data))
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		msg = body.Message
		if body.Code != "" {
			msg = body.Code + ": " + msg
		}
	}

	return errors.New(fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, msg)).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("backend", conf.DriverREST).
		Context("status_code", resp.StatusCode).
		Build()
}
