package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursesync/internal/browser"
)

func TestValueOr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30*time.Second, valueOr(0, 30*time.Second))
	assert.Equal(t, time.Second, valueOr(time.Second, 30*time.Second))
}

func TestNavigateActionsPerWaitCondition(t *testing.T) {
	t.Parallel()

	p := &Page{}
	assert.Len(t, p.navigateActions("https://example.com", browser.WaitLoad), 2)
	assert.Len(t, p.navigateActions("https://example.com", browser.WaitDOMContentLoaded), 3)
	assert.Len(t, p.navigateActions("https://example.com", browser.WaitNetworkIdle), 4)

	p.userAgent = "coursesync-test"
	assert.Len(t, p.navigateActions("https://example.com", browser.WaitLoad), 3)
}

func TestForwardCancelPropagatesParent(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected child context to be canceled")
	}
}

func TestForwardCancelStopDetaches(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	require.NoError(t, child.Err())
}

func TestPageCloseIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	p := &Page{cancel: func() { calls++ }}
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, calls)
}
