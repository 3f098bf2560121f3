package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/config"
	"github.com/JakeFAU/coursesync/internal/hash/sha256"
	"github.com/JakeFAU/coursesync/internal/normalize"
	"github.com/JakeFAU/coursesync/internal/orchestrator"
	"github.com/JakeFAU/coursesync/internal/snapshot"
	"github.com/JakeFAU/coursesync/internal/storage/memory"
	"github.com/JakeFAU/coursesync/internal/syncer"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

type nopSession struct{}

func (nopSession) OpenPage(context.Context) (browser.Page, error) {
	return nil, errors.New("no pages")
}
func (nopSession) Close() error { return nil }

// fakeApp runs the real pipeline against an injected opener and an in-memory
// snapshot store.
type fakeApp struct {
	opener browser.Opener
	blobs  *memory.BlobStore
	closed bool
}

func (f *fakeApp) Close() { f.closed = true }
func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (f *fakeApp) Config() config.Config { return config.Config{} }

func (f *fakeApp) Backup() *snapshot.Writer {
	return snapshot.New(f.blobs, fixedClock{}, nil)
}

func (f *fakeApp) Orchestrator(dryRun bool) *orchestrator.Orchestrator {
	normalizer := normalize.New(normalize.Options{}, sha256.New(), fixedClock{})
	var sync orchestrator.Syncer
	if !dryRun {
		sync = syncer.New(nil, f.Backup(), nil, syncer.Options{}, nil)
	}
	return orchestrator.New(f.opener, nil, normalizer, sync, staticIDs{}, fixedClock{}, nil)
}

// runWith executes the root command with args against fake. Tests using it
// must not run in parallel because newApp is package state.
func runWith(t *testing.T, fake *fakeApp, args ...string) error {
	t.Helper()
	original := newApp
	t.Cleanup(func() { newApp = original })
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return fake, nil
	}

	cfgPath := filepath.Join(t.TempDir(), "coursesync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("output:\n  dir: %q\n", t.TempDir())), 0o600))

	root := newRootCmd()
	root.SetArgs(append(args, "--config", cfgPath))
	return root.ExecuteContext(context.Background())
}

func TestSyncCommandSucceedsWithNoRecords(t *testing.T) {
	fake := &fakeApp{
		opener: func(context.Context) (browser.Session, error) { return nopSession{}, nil },
		blobs:  memory.NewBlobStore(),
	}
	require.NoError(t, runWith(t, fake, "sync"))
	assert.True(t, fake.closed)
	assert.Equal(t, []string{"courses-2025-02-01.json", "summary-2025-02-01.json"}, fake.blobs.Paths())
}

func TestSyncCommandFailsWhenSessionUnavailable(t *testing.T) {
	fake := &fakeApp{
		opener: func(context.Context) (browser.Session, error) { return nil, errors.New("chrome missing") },
		blobs:  memory.NewBlobStore(),
	}
	err := runWith(t, fake, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome missing")
	assert.Empty(t, fake.blobs.Paths())
}

func TestExtractCommandWritesSnapshot(t *testing.T) {
	fake := &fakeApp{
		opener: func(context.Context) (browser.Session, error) { return nopSession{}, nil },
		blobs:  memory.NewBlobStore(),
	}
	require.NoError(t, runWith(t, fake, "extract"))
	assert.Len(t, fake.blobs.Paths(), 2)
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"sync", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
