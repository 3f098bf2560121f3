// Package syncer pushes canonical records to the remote store in rate-limited
// batches and always finishes with a local backup.
package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/listing"
	"github.com/JakeFAU/coursesync/internal/metrics"
	"github.com/JakeFAU/coursesync/internal/snapshot"
)

const backupTimeout = 30 * time.Second

// Mode reports which path a sync took.
type Mode string

// Sync modes.
const (
	ModeLocalOnly   Mode = "local-only"
	ModeProbeFailed Mode = "probe-failed"
	ModeRemote      Mode = "remote"
)

// Store is the subset of the remote client the syncer drives.
type Store interface {
	Probe(ctx context.Context) error
	ListIDs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, records []listing.CanonicalRecord) (int, error)
	Delete(ctx context.Context, ids []string) (int, error)
}

// Backup writes the local snapshot.
type Backup interface {
	Save(ctx context.Context, records []listing.CanonicalRecord, runID string) (snapshot.Result, error)
}

// Archive keeps an identity-keyed copy of every record.
type Archive interface {
	Upsert(ctx context.Context, runID string, records []listing.CanonicalRecord) (int, error)
}

// Sleeper enforces the inter-batch delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Options tunes batch dispatch.
type Options struct {
	BatchSize       int
	BatchDelay      time.Duration
	ReplaceExisting bool
}

// Outcome summarizes one Sync call.
type Outcome struct {
	Mode          Mode
	Deleted       int
	Inserted      int
	FailedBatches int
	TotalBatches  int
	Archived      int
	BackupURI     string
	BackupErr     error
}

// Syncer implements the remote sync with local fallback.
type Syncer struct {
	store   Store
	backup  Backup
	archive Archive
	sleeper Sleeper
	opts    Options
	logger  *zap.Logger
}

// Option customizes a Syncer.
type Option func(*Syncer)

// WithArchive adds an archive upsert before the local backup.
func WithArchive(a Archive) Option {
	return func(s *Syncer) {
		s.archive = a
	}
}

// New builds a Syncer. A nil store means credentials are absent and every
// sync goes straight to the local backup.
func New(store Store, backup Backup, sleeper Sleeper, opts Options, logger *zap.Logger, options ...Option) *Syncer {
	if opts.BatchSize <= 0 || opts.BatchSize > 10 {
		opts.BatchSize = 10
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Syncer{
		store:   store,
		backup:  backup,
		sleeper: sleeper,
		opts:    opts,
		logger:  logger.Named("sync"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Sync never returns an error: every failure is logged and reflected in the
// outcome, and the local backup is attempted on every path.
func (s *Syncer) Sync(ctx context.Context, runID string, records []listing.CanonicalRecord) Outcome {
	logger := s.logger.With(zap.String("run_id", runID))
	var out Outcome

	switch {
	case s.store == nil:
		out.Mode = ModeLocalOnly
		logger.Warn("store credentials not configured, saving locally only", zap.Int("records", len(records)))
	default:
		if err := s.store.Probe(ctx); err != nil {
			out.Mode = ModeProbeFailed
			logger.Warn("store unreachable, saving locally only", zap.Error(err))
			break
		}
		out.Mode = ModeRemote
		if s.opts.ReplaceExisting {
			s.replace(ctx, logger, &out)
		}
		s.insert(ctx, logger, records, &out)
		logger.Info("remote sync finished",
			zap.Int("deleted", out.Deleted),
			zap.Int("inserted", out.Inserted),
			zap.Int("failed_batches", out.FailedBatches),
			zap.Int("total_batches", out.TotalBatches),
		)
	}

	// Without credentials the run stays entirely offline.
	if s.archive != nil && out.Mode != ModeLocalOnly {
		n, err := s.archive.Upsert(ctx, runID, records)
		if err != nil {
			logger.Error("archive upsert failed", zap.Error(err))
		} else {
			out.Archived = n
		}
	}

	if s.backup != nil {
		// The backup outlives cancellation so an interrupted run keeps what it extracted.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backupTimeout)
		defer cancel()
		res, err := s.backup.Save(saveCtx, records, runID)
		if err != nil {
			out.BackupErr = err
			logger.Error("local backup failed", zap.Error(err))
		} else {
			out.BackupURI = res.CoursesURI
		}
	}
	return out
}

func (s *Syncer) replace(ctx context.Context, logger *zap.Logger, out *Outcome) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		// Whatever was listed before the failure is still deleted.
		logger.Error("listing existing records failed", zap.Int("listed", len(ids)), zap.Error(err))
	}
	batches := chunk(ids, s.opts.BatchSize)
	for i, batch := range batches {
		if i > 0 && !s.pause(ctx, logger) {
			out.FailedBatches += len(batches) - i
			out.TotalBatches += len(batches) - i
			return
		}
		out.TotalBatches++
		n, err := s.store.Delete(ctx, batch)
		metrics.ObserveBatch("delete", n, err)
		if err != nil {
			out.FailedBatches++
			logger.Error("delete batch failed", zap.Int("batch", i+1), zap.Int("size", len(batch)), zap.Error(err))
			continue
		}
		out.Deleted += n
	}
}

func (s *Syncer) insert(ctx context.Context, logger *zap.Logger, records []listing.CanonicalRecord, out *Outcome) {
	batches := chunk(records, s.opts.BatchSize)
	for i, batch := range batches {
		if i > 0 && !s.pause(ctx, logger) {
			out.FailedBatches += len(batches) - i
			out.TotalBatches += len(batches) - i
			return
		}
		out.TotalBatches++
		n, err := s.store.Create(ctx, batch)
		metrics.ObserveBatch("insert", n, err)
		if err != nil {
			out.FailedBatches++
			logger.Error("insert batch failed", zap.Int("batch", i+1), zap.Int("size", len(batch)), zap.Error(err))
			continue
		}
		out.Inserted += n
	}
}

// pause waits out the batch delay and reports whether dispatch may continue.
func (s *Syncer) pause(ctx context.Context, logger *zap.Logger) bool {
	if s.sleeper == nil || s.opts.BatchDelay == 0 {
		return ctx.Err() == nil
	}
	if err := s.sleeper.Sleep(ctx, s.opts.BatchDelay); err != nil {
		logger.Warn("batch dispatch interrupted", zap.Error(err))
		return false
	}
	return true
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
