package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursesync/internal/listing"
)

type fakeStore struct {
	mu       sync.Mutex
	t        *testing.T
	pages    [][]string
	created  []map[string]any
	deleted  []string
	requests []*http.Request
	status   int
	errBody  string
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)

	assert.Equal(f.t, "Bearer key", r.Header.Get("Authorization"))
	assert.Equal(f.t, "/v0/app1/Courses%20Table", r.URL.EscapedPath())

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = fmt.Fprint(w, f.errBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		idx := 0
		if off := r.URL.Query().Get("offset"); off != "" {
			_, _ = fmt.Sscanf(off, "page%d", &idx)
		}
		resp := map[string]any{"records": []map[string]any{}}
		if idx < len(f.pages) {
			recs := make([]map[string]any, 0, len(f.pages[idx]))
			for _, id := range f.pages[idx] {
				recs = append(recs, map[string]any{"id": id, "fields": map[string]any{}})
			}
			resp["records"] = recs
			if idx+1 < len(f.pages) {
				resp["offset"] = fmt.Sprintf("page%d", idx+1)
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPost:
		var body struct {
			Records []struct {
				Fields map[string]any `json:"fields"`
			} `json:"records"`
			Typecast bool `json:"typecast"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(f.t, body.Typecast)
		out := make([]map[string]any, 0, len(body.Records))
		for i, rec := range body.Records {
			f.created = append(f.created, rec.Fields)
			out = append(out, map[string]any{"id": fmt.Sprintf("rec%d", i), "fields": rec.Fields})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": out})
	case http.MethodDelete:
		ids := r.URL.Query()["records[]"]
		out := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			f.deleted = append(f.deleted, id)
			out = append(out, map[string]any{"id": id, "deleted": true})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": out})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, store *fakeStore) *Client {
	t.Helper()
	store.t = t
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Endpoint: srv.URL + "/v0",
		APIKey:   "key",
		BaseID:   "app1",
		Table:    "Courses Table",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func sampleRecords(n int) []listing.CanonicalRecord {
	out := make([]listing.CanonicalRecord, n)
	for i := range out {
		out[i] = listing.CanonicalRecord{
			ID:          fmt.Sprintf("id%02d", i),
			Title:       fmt.Sprintf("Course %d", i),
			Provider:    "P",
			LastUpdated: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{
		{},
		{APIKey: "k", BaseID: "b"},
		{APIKey: "k", Table: "t"},
		{BaseID: "b", Table: "t"},
	} {
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrMissingCredentials)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pages: [][]string{{"rec1"}}}
	c := newTestClient(t, store)

	require.NoError(t, c.Probe(context.Background()))
	require.Len(t, store.requests, 1)
	assert.Equal(t, "1", store.requests[0].URL.Query().Get("pageSize"))
}

func TestProbeReportsHTTPError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{status: http.StatusUnauthorized, errBody: `{"error":{"type":"AUTHENTICATION_REQUIRED","message":"bad key"}}`}
	c := newTestClient(t, store)

	err := c.Probe(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, http.MethodGet, httpErr.Method)
	assert.Contains(t, httpErr.Message, "bad key")
	assert.NotContains(t, httpErr.URL, "pageSize")
}

func TestHTTPErrorWithPlainBody(t *testing.T) {
	t.Parallel()

	store := &fakeStore{status: http.StatusBadGateway, errBody: "upstream down"}
	c := newTestClient(t, store)

	_, err := c.Create(context.Background(), sampleRecords(1))
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.NotEmpty(t, httpErr.Message)
}

func TestListIDsFollowsOffsets(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pages: [][]string{{"a", "b"}, {"c"}, {"d", "e"}}}
	c := newTestClient(t, store)

	ids, err := c.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Len(t, store.requests, 3)
}

func TestCreateSendsFields(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestClient(t, store)

	n, err := c.Create(context.Background(), sampleRecords(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, store.created, 3)
	assert.Equal(t, "id00", store.created[0]["id"])
	assert.Equal(t, "Course 2", store.created[2]["title"])
	assert.Nil(t, store.created[0]["date"])
}

func TestDeleteSendsIDs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestClient(t, store)

	n, err := c.Delete(context.Background(), []string{"r1", "r2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"r1", "r2"}, store.deleted)
}

func TestBatchLimits(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := newTestClient(t, store)
	ctx := context.Background()

	_, err := c.Create(ctx, sampleRecords(11))
	assert.True(t, errors.Is(err, ErrBatchTooLarge))
	_, err = c.Delete(ctx, make([]string, 11))
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	n, err := c.Create(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = c.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.requests)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, c.Probe(ctx))
}
