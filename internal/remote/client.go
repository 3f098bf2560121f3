// Package remote talks to the tabular record store over its REST API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/sling"

	"github.com/JakeFAU/coursesync/internal/listing"
)

// MaxBatch is the largest number of records the store accepts per write.
const MaxBatch = 10

var (
	// ErrMissingCredentials is returned by New when the key, base or table is unset.
	ErrMissingCredentials = errors.New("remote: store credentials not configured")
	// ErrBatchTooLarge is returned when a write exceeds MaxBatch records.
	ErrBatchTooLarge = fmt.Errorf("remote: batch exceeds %d records", MaxBatch)
)

// Config describes how to reach one table.
type Config struct {
	Endpoint   string
	APIKey     string
	BaseID     string
	Table      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPError carries the status and store message for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("store error: %s %s status=%d message=%s", e.Method, e.URL, e.StatusCode, e.Message)
}

// Client lists, creates and deletes records in one table.
type Client struct {
	base     *sling.Sling
	tableURL string
}

// New builds a Client. It does not contact the store.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.BaseID == "" || cfg.Table == "" {
		return nil, ErrMissingCredentials
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.airtable.com/v0/"
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse store endpoint: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout > 0 {
		clone := *httpClient
		clone.Timeout = cfg.Timeout
		httpClient = &clone
	}
	base := sling.New().
		Client(httpClient).
		Set("Authorization", "Bearer "+cfg.APIKey).
		Set("Accept", "application/json")
	return &Client{
		base:     base,
		tableURL: endpoint + url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(cfg.Table),
	}, nil
}

type storeRecord struct {
	ID      string         `json:"id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Deleted bool           `json:"deleted,omitempty"`
}

type listParams struct {
	PageSize int    `url:"pageSize,omitempty"`
	Offset   string `url:"offset,omitempty"`
}

type listResponse struct {
	Records []storeRecord `json:"records"`
	Offset  string        `json:"offset"`
}

type createRequest struct {
	Records  []storeRecord `json:"records"`
	Typecast bool          `json:"typecast"`
}

type deleteParams struct {
	Records []string `url:"records[]"`
}

type recordsResponse struct {
	Records []storeRecord `json:"records"`
}

// The store reports errors either as a bare string or as {type, message}.
type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

func (e errorResponse) message() string {
	if len(e.Error) == 0 {
		return ""
	}
	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Error, &detail); err == nil {
		return strings.TrimSpace(detail.Type + " " + detail.Message)
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	return string(e.Error)
}

// Probe issues a single-record read to confirm the store is reachable.
func (c *Client) Probe(ctx context.Context) error {
	var out listResponse
	if err := c.do(ctx, c.base.New().Get(c.tableURL).QueryStruct(listParams{PageSize: 1}), &out); err != nil {
		return fmt.Errorf("probe store: %w", err)
	}
	return nil
}

// ListIDs returns the id of every record in the table, following pagination.
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		offset string
	)
	for {
		var page listResponse
		req := c.base.New().Get(c.tableURL).QueryStruct(listParams{PageSize: 100, Offset: offset})
		if err := c.do(ctx, req, &page); err != nil {
			return ids, fmt.Errorf("list records: %w", err)
		}
		for _, rec := range page.Records {
			ids = append(ids, rec.ID)
		}
		if page.Offset == "" || page.Offset == offset {
			return ids, nil
		}
		offset = page.Offset
	}
}

// Create inserts records and returns how many the store acknowledged.
func (c *Client) Create(ctx context.Context, records []listing.CanonicalRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if len(records) > MaxBatch {
		return 0, ErrBatchTooLarge
	}
	body := createRequest{Records: make([]storeRecord, 0, len(records)), Typecast: true}
	for _, rec := range records {
		body.Records = append(body.Records, storeRecord{Fields: rec.Fields()})
	}
	var out recordsResponse
	if err := c.do(ctx, c.base.New().Post(c.tableURL).BodyJSON(body), &out); err != nil {
		return 0, fmt.Errorf("create records: %w", err)
	}
	return len(out.Records), nil
}

// Delete removes records by store id and returns how many were deleted.
func (c *Client) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > MaxBatch {
		return 0, ErrBatchTooLarge
	}
	var out recordsResponse
	if err := c.do(ctx, c.base.New().Delete(c.tableURL).QueryStruct(deleteParams{Records: ids}), &out); err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	deleted := 0
	for _, rec := range out.Records {
		if rec.Deleted {
			deleted++
		}
	}
	return deleted, nil
}

func (c *Client) do(ctx context.Context, s *sling.Sling, success any) error {
	req, err := s.Request()
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req = req.WithContext(ctx)

	var failure errorResponse
	resp, err := s.Do(req, success, &failure)
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		msg := failure.message()
		if msg == "" && err != nil {
			msg = err.Error()
		}
		return &HTTPError{
			Method:     req.Method,
			URL:        redact(req.URL),
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, redact(req.URL), err)
	}
	return nil
}

// redact drops the query so record ids and offsets stay out of logs.
func redact(u *url.URL) string {
	clone := *u
	clone.RawQuery = ""
	return clone.String()
}
