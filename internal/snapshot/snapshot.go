// Package snapshot writes the dated course list and its summary to the
// primary blob store and any configured mirrors.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/listing"
	"github.com/JakeFAU/coursesync/internal/storage"
)

const contentType = "application/json"

// Summary is the companion artifact written next to each snapshot.
type Summary struct {
	TotalCourses int                      `json:"totalCourses"`
	Providers    []string                 `json:"providers"`
	LastUpdated  time.Time                `json:"lastUpdated"`
	RunID        string                   `json:"runId,omitempty"`
	Sample       *listing.CanonicalRecord `json:"sample"`
}

// Mirror is a secondary sink; its failures never fail a save.
type Mirror struct {
	Name  string
	Store storage.BlobStore
}

// Result holds the URIs written to the primary store.
type Result struct {
	CoursesURI string
	SummaryURI string
	Mirrored   int
}

// Writer persists snapshots.
type Writer struct {
	primary storage.BlobStore
	mirrors []Mirror
	clock   listing.Clock
	logger  *zap.Logger
}

// New builds a Writer over primary with optional mirrors.
func New(primary storage.BlobStore, clock listing.Clock, logger *zap.Logger, mirrors ...Mirror) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		primary: primary,
		mirrors: mirrors,
		clock:   clock,
		logger:  logger.Named("snapshot"),
	}
}

// CoursesPath is the snapshot name for the UTC day of t.
func CoursesPath(t time.Time) string {
	return "courses-" + t.UTC().Format("2006-01-02") + ".json"
}

// SummaryPath is the summary name for the UTC day of t.
func SummaryPath(t time.Time) string {
	return "summary-" + t.UTC().Format("2006-01-02") + ".json"
}

// BuildSummary derives the summary for records saved at now.
func BuildSummary(records []listing.CanonicalRecord, now time.Time, runID string) Summary {
	providers := listing.Providers(records)
	sort.Strings(providers)
	s := Summary{
		TotalCourses: len(records),
		Providers:    providers,
		LastUpdated:  now.UTC(),
		RunID:        runID,
	}
	if len(records) > 0 {
		sample := records[0]
		s.Sample = &sample
	}
	return s
}

// Save writes both artifacts, replacing any from earlier runs on the same
// day. Only a primary write failure is returned.
func (w *Writer) Save(ctx context.Context, records []listing.CanonicalRecord, runID string) (Result, error) {
	now := w.clock.Now()
	if records == nil {
		records = []listing.CanonicalRecord{}
	}
	courses, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}
	summary, err := json.MarshalIndent(BuildSummary(records, now, runID), "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode summary: %w", err)
	}

	objects := []struct {
		path string
		data []byte
	}{
		{CoursesPath(now), courses},
		{SummaryPath(now), summary},
	}

	var res Result
	for i, obj := range objects {
		uri, err := w.primary.PutObject(ctx, obj.path, contentType, bytes.NewReader(obj.data))
		if err != nil {
			return res, fmt.Errorf("write %s: %w", obj.path, err)
		}
		if i == 0 {
			res.CoursesURI = uri
		} else {
			res.SummaryURI = uri
		}
	}
	w.logger.Info("snapshot saved",
		zap.String("run_id", runID),
		zap.Int("records", len(records)),
		zap.String("courses", res.CoursesURI),
		zap.String("summary", res.SummaryURI),
	)

	for _, m := range w.mirrors {
		ok := true
		for _, obj := range objects {
			uri, err := m.Store.PutObject(ctx, obj.path, contentType, bytes.NewReader(obj.data))
			if err != nil {
				w.logger.Warn("mirror write failed",
					zap.String("mirror", m.Name),
					zap.String("path", obj.path),
					zap.Error(err),
				)
				ok = false
				break
			}
			w.logger.Debug("mirrored", zap.String("mirror", m.Name), zap.String("uri", uri))
		}
		if ok {
			res.Mirrored++
		}
	}
	return res, nil
}
