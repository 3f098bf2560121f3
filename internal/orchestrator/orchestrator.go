// Package orchestrator runs every registered source against one shared
// browser session, then normalizes and syncs the aggregate.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/extract"
	"github.com/JakeFAU/coursesync/internal/listing"
	"github.com/JakeFAU/coursesync/internal/metrics"
	"github.com/JakeFAU/coursesync/internal/notify"
	"github.com/JakeFAU/coursesync/internal/syncer"
)

// Registration pairs a source name with the factory that builds its extractor.
type Registration struct {
	Name    string
	URL     string
	Factory func() (extract.Extractor, error)
}

// FromDefinitions turns the source table into registrations, preserving order.
func FromDefinitions(defs []extract.Definition, logger *zap.Logger) []Registration {
	regs := make([]Registration, 0, len(defs))
	for _, def := range defs {
		regs = append(regs, Registration{
			Name: def.Name,
			URL:  def.URL,
			Factory: func() (extract.Extractor, error) {
				return extract.Build(def, logger)
			},
		})
	}
	return regs
}

// Normalizer converts raw records into canonical ones.
type Normalizer interface {
	NormalizeAll(raws []listing.RawRecord) []listing.CanonicalRecord
}

// Syncer pushes canonical records out.
type Syncer interface {
	Sync(ctx context.Context, runID string, records []listing.CanonicalRecord) syncer.Outcome
}

// SourceResult records what one source contributed.
type SourceResult struct {
	Name    string
	Records int
	Err     error
}

// Result summarizes a run.
type Result struct {
	RunID      string
	Sources    []SourceResult
	RawTotal   int
	Records    []listing.CanonicalRecord
	Outcome    syncer.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Orchestrator owns the browser session and the aggregate record list.
type Orchestrator struct {
	opener     browser.Opener
	sources    []Registration
	normalizer Normalizer
	syncer     Syncer
	ids        listing.IDGenerator
	clock      listing.Clock
	notifier   notify.Publisher
	logger     *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier publishes a run-completed event after each Run.
func WithNotifier(pub notify.Publisher) Option {
	return func(o *Orchestrator) {
		o.notifier = pub
	}
}

// New builds an Orchestrator. syncer may be nil when only Collect is used.
func New(
	opener browser.Opener,
	sources []Registration,
	normalizer Normalizer,
	sync Syncer,
	ids listing.IDGenerator,
	clock listing.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		opener:     opener,
		sources:    sources,
		normalizer: normalizer,
		syncer:     sync,
		ids:        ids,
		clock:      clock,
		logger:     logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Collect extracts and normalizes every source. It fails only when the
// browser session cannot be acquired.
func (o *Orchestrator) Collect(ctx context.Context) (Result, error) {
	res := Result{StartedAt: o.clock.Now()}
	runID, err := o.ids.NewID()
	if err != nil {
		return res, fmt.Errorf("generate run id: %w", err)
	}
	res.RunID = runID
	logger := o.logger.With(zap.String("run_id", runID))

	session, err := o.opener(ctx)
	if err != nil {
		logger.Error("browser session unavailable", zap.Error(err))
		return res, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("browser session close failed", zap.Error(cerr))
		}
	}()

	var raws []listing.RawRecord
	for _, reg := range o.sources {
		before := len(raws)
		records, err := o.runSource(ctx, session, reg)
		raws = append(raws, records...)
		delta := len(raws) - before

		res.Sources = append(res.Sources, SourceResult{Name: reg.Name, Records: delta, Err: err})
		metrics.ObserveSource(reg.Name, reg.URL, delta, err != nil)
		if err != nil {
			logger.Warn("source failed", zap.String("source", reg.Name), zap.Error(err))
			continue
		}
		logger.Info("source extracted",
			zap.String("source", reg.Name),
			zap.Int("records", delta),
			zap.Int("total", len(raws)),
		)
	}

	res.RawTotal = len(raws)
	res.Records = o.normalizer.NormalizeAll(raws)
	logger.Info("extraction finished",
		zap.Int("sources", len(o.sources)),
		zap.Int("records", len(res.Records)),
	)
	return res, nil
}

// Run collects, then syncs, then announces the run.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	res, err := o.Collect(ctx)
	if err != nil {
		return res, err
	}
	if o.syncer != nil {
		res.Outcome = o.syncer.Sync(ctx, res.RunID, res.Records)
	}
	res.FinishedAt = o.clock.Now()
	metrics.ObserveRun(string(res.Outcome.Mode), len(res.Records), res.FinishedAt.Sub(res.StartedAt), res.FinishedAt)

	notify.Announce(ctx, o.notifier, notify.RunCompleted{
		RunID:         res.RunID,
		TotalCourses:  len(res.Records),
		SyncMode:      string(res.Outcome.Mode),
		Deleted:       res.Outcome.Deleted,
		Inserted:      res.Outcome.Inserted,
		FailedBatches: res.Outcome.FailedBatches,
		FinishedAt:    res.FinishedAt,
	}, o.logger)
	return res, nil
}

// runSource is the second safety net around an extractor: factory errors and
// panics both become an error for this source only.
func (o *Orchestrator) runSource(ctx context.Context, session browser.Session, reg Registration) (records []listing.RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	if reg.Factory == nil {
		return nil, fmt.Errorf("source %s has no extractor", reg.Name)
	}
	extractor, err := reg.Factory()
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	return extractor.Extract(ctx, session), nil
}
