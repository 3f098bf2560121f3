package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := Registry()
	Init()
	if Registry() != first {
		t.Fatal("Init() replaced the registry")
	}
}

func TestObserveSource(t *testing.T) {
	Init()
	records := sourceRecordsTotal.WithLabelValues("source-a", "courses.example.com")
	failures := sourceFailuresTotal.WithLabelValues("source-a", "courses.example.com")
	before := testutil.ToFloat64(records)
	beforeFail := testutil.ToFloat64(failures)

	ObserveSource("source-a", "https://Courses.Example.com/list?page=2", 4, false)
	ObserveSource("source-a", "courses.example.com/list", 0, true)

	if got := testutil.ToFloat64(records) - before; got != 4 {
		t.Errorf("expected 4 records, got %f", got)
	}
	if got := testutil.ToFloat64(failures) - beforeFail; got != 1 {
		t.Errorf("expected 1 failure, got %f", got)
	}
}

func TestObserveBatch(t *testing.T) {
	Init()
	ok := syncBatchesTotal.WithLabelValues("insert", "ok")
	failed := syncBatchesTotal.WithLabelValues("insert", "error")
	inserted := syncRecordsTotal.WithLabelValues("insert")
	beforeOK, beforeFailed, beforeInserted := testutil.ToFloat64(ok), testutil.ToFloat64(failed), testutil.ToFloat64(inserted)

	ObserveBatch("insert", 10, nil)
	ObserveBatch("insert", 3, errors.New("boom"))

	if got := testutil.ToFloat64(ok) - beforeOK; got != 1 {
		t.Errorf("expected 1 ok batch, got %f", got)
	}
	if got := testutil.ToFloat64(failed) - beforeFailed; got != 1 {
		t.Errorf("expected 1 failed batch, got %f", got)
	}
	if got := testutil.ToFloat64(inserted) - beforeInserted; got != 10 {
		t.Errorf("expected 10 inserted records, got %f", got)
	}
}

func TestObserveRun(t *testing.T) {
	finished := time.Unix(1700000000, 0)
	ObserveRun("remote", 23, 1500*time.Millisecond, finished)

	if got := testutil.ToFloat64(runRecords); got != 23 {
		t.Errorf("expected 23 records, got %f", got)
	}
	if got := testutil.ToFloat64(runDurationSeconds); got != 1.5 {
		t.Errorf("expected 1.5s duration, got %f", got)
	}
	if got := testutil.ToFloat64(runLastSuccess); got != 1700000000 {
		t.Errorf("unexpected last success %f", got)
	}
}

func TestInstrumentRoundTripper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	Init()
	counter := storeRequestsTotal.WithLabelValues("post", "201")
	before := testutil.ToFloat64(counter)

	client := &http.Client{Transport: InstrumentRoundTripper(nil)}
	resp, err := client.Post(srv.URL, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected 1 store request, got %f", got)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ObserveRun("local-only", 2, time.Second, time.Now())
	if err := Push(context.Background(), srv.URL, ""); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotPath != "/metrics/job/coursesync" {
		t.Errorf("unexpected push path %q", gotPath)
	}
	if gotBody == "" {
		t.Error("expected a non-empty push body")
	}
}

func TestPushDisabledAndFailure(t *testing.T) {
	if err := Push(context.Background(), "", "job"); err != nil {
		t.Fatalf("expected no-op without gateway, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if err := Push(context.Background(), srv.URL, "job"); err == nil {
		t.Fatal("expected push error")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
