// Package app initializes and holds the long-lived services of a run, acting
// as a dependency injection container for the commands.
package app

import (
	"context"
	"fmt"
	"net/http"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/archive/postgres"
	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/browser/headless"
	"github.com/JakeFAU/coursesync/internal/browser/static"
	"github.com/JakeFAU/coursesync/internal/clock/system"
	"github.com/JakeFAU/coursesync/internal/config"
	"github.com/JakeFAU/coursesync/internal/hash/sha256"
	"github.com/JakeFAU/coursesync/internal/id/uuid"
	"github.com/JakeFAU/coursesync/internal/metrics"
	"github.com/JakeFAU/coursesync/internal/normalize"
	"github.com/JakeFAU/coursesync/internal/notify"
	"github.com/JakeFAU/coursesync/internal/notify/pubsub"
	"github.com/JakeFAU/coursesync/internal/orchestrator"
	"github.com/JakeFAU/coursesync/internal/policy/ratelimit"
	"github.com/JakeFAU/coursesync/internal/remote"
	"github.com/JakeFAU/coursesync/internal/snapshot"
	"github.com/JakeFAU/coursesync/internal/storage/gcs"
	"github.com/JakeFAU/coursesync/internal/storage/local"
	"github.com/JakeFAU/coursesync/internal/storage/sftp"
	"github.com/JakeFAU/coursesync/internal/syncer"
)

const runCompletedEvent = "courses.sync.completed"

type closer struct {
	name string
	fn   func() error
}

// App holds the services shared by the sync and extract commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    *system.Clock
	opener   browser.Opener
	store    syncer.Store
	backup   *snapshot.Writer
	archive  *postgres.Store
	notifier notify.Publisher
	closers  []closer
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Backup returns the snapshot writer.
func (a *App) Backup() *snapshot.Writer {
	return a.backup
}

// NewApp builds every service the configuration enables. Optional services
// that are not configured are simply left out; a configured service that
// cannot be initialized is an error.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		opener: newOpener(cfg.Browser),
	}

	store, err := newStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.store = store
	}

	backup, err := a.newBackup(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.backup = backup

	if cfg.Archive.DSN != "" {
		archive, err := postgres.New(ctx, postgres.Config{DSN: cfg.Archive.DSN, Table: cfg.Archive.Table})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init archive: %w", err)
		}
		a.closers = append(a.closers, closer{name: "archive", fn: func() error { archive.Close(); return nil }})
		if err := archive.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.archive = archive
		logger.Info("archive enabled", zap.String("table", cfg.Archive.Table))
	}

	if cfg.Notify.PubSub.Enabled() {
		pub, closeFn, err := pubsub.Open(ctx, cfg.Notify.PubSub.ProjectID, cfg.Notify.PubSub.Topic, runCompletedEvent)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init notifier: %w", err)
		}
		a.closers = append(a.closers, closer{name: "pubsub", fn: closeFn})
		a.notifier = pub
		logger.Info("run notifications enabled", zap.String("topic", cfg.Notify.PubSub.Topic))
	}

	return a, nil
}

func newOpener(cfg config.BrowserConfig) browser.Opener {
	if cfg.Engine == "static" {
		return static.Opener(static.Config{UserAgent: cfg.UserAgent, Timeout: cfg.NavigationTimeout})
	}
	return headless.Opener(headless.Config{
		UserAgent:         cfg.UserAgent,
		ExecPath:          cfg.ExecPath,
		ShowWindow:        cfg.ShowWindow,
		NavigationTimeout: cfg.NavigationTimeout,
		EvaluateTimeout:   cfg.EvaluateTimeout,
	})
}

// newStore returns nil without error when credentials are absent.
func newStore(cfg config.StoreConfig, logger *zap.Logger) (*remote.Client, error) {
	if !cfg.HasCredentials() {
		logger.Info("store credentials not configured")
		return nil, nil
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSec, Burst: 1})
	limiter.Observe(metrics.ObserveRateLimitDelay)
	httpClient := &http.Client{
		Transport: metrics.InstrumentRoundTripper(ratelimit.NewTransport(limiter, nil)),
	}
	client, err := remote.New(remote.Config{
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		BaseID:     cfg.BaseID,
		Table:      cfg.Table,
		Timeout:    cfg.Timeout,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("init store client: %w", err)
	}
	return client, nil
}

func (a *App) newBackup(ctx context.Context) (*snapshot.Writer, error) {
	primary, err := local.New(local.Config{BaseDir: a.cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("init local output: %w", err)
	}

	var mirrors []snapshot.Mirror
	if gcsCfg := a.cfg.Mirror.GCS; gcsCfg.Bucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs", fn: client.Close})
		store, err := gcs.New(client, gcs.Config{Bucket: gcsCfg.Bucket, Prefix: gcsCfg.Prefix, Compress: gcsCfg.Compress})
		if err != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", err)
		}
		mirrors = append(mirrors, snapshot.Mirror{Name: "gcs", Store: store})
		a.logger.Info("gcs mirror enabled", zap.String("bucket", gcsCfg.Bucket))
	}
	if sftpCfg := a.cfg.Mirror.SFTP; sftpCfg.Host != "" {
		store, err := sftp.New(sftp.Config{
			Host:           sftpCfg.Host,
			Port:           sftpCfg.Port,
			User:           sftpCfg.User,
			Password:       sftpCfg.Password,
			KeyPath:        sftpCfg.KeyPath,
			KnownHostsPath: sftpCfg.KnownHostsPath,
			Dir:            sftpCfg.Dir,
			Timeout:        sftpCfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init sftp mirror: %w", err)
		}
		mirrors = append(mirrors, snapshot.Mirror{Name: "sftp", Store: store})
		a.logger.Info("sftp mirror enabled", zap.String("host", sftpCfg.Host))
	}

	return snapshot.New(primary, a.clock, a.logger, mirrors...), nil
}

// Orchestrator builds the pipeline. With dryRun set no syncer is attached,
// so only Collect is meaningful.
func (a *App) Orchestrator(dryRun bool) *orchestrator.Orchestrator {
	normalizer := normalize.New(a.cfg.Normalize, sha256.New(), a.clock)
	sources := orchestrator.FromDefinitions(a.cfg.Sources, a.logger)

	var opts []orchestrator.Option
	var sync orchestrator.Syncer
	if !dryRun {
		var syncOpts []syncer.Option
		if a.archive != nil {
			syncOpts = append(syncOpts, syncer.WithArchive(a.archive))
		}
		sync = syncer.New(a.store, a.backup, a.clock, syncer.Options{
			BatchSize:       a.cfg.Sync.BatchSize,
			BatchDelay:      a.cfg.Sync.BatchDelay,
			ReplaceExisting: a.cfg.Sync.ReplaceExisting,
		}, a.logger, syncOpts...)
		if a.notifier != nil {
			opts = append(opts, orchestrator.WithNotifier(a.notifier))
		}
	}
	return orchestrator.New(a.opener, sources, normalizer, sync, uuid.New(), a.clock, a.logger, opts...)
}

// Close shuts down every service in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
