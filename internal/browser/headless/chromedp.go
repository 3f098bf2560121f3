// Package headless implements browser.Session with headless Chrome via chromedp.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/coursesync/internal/browser"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultEvaluateTimeout   = 10 * time.Second
	networkSettleDelay       = 500 * time.Millisecond
)

// Config controls the behavior of the headless session.
type Config struct {
	UserAgent         string
	ExecPath          string
	ShowWindow        bool
	NavigationTimeout time.Duration
	EvaluateTimeout   time.Duration
}

// Session owns one Chrome process and hands out tabs as pages.
type Session struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// Open starts Chrome and verifies it is reachable. A failure here means the
// browser cannot be acquired at all.
func Open(cfg Config) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ShowWindow {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Session{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Opener adapts Open to browser.Opener.
func Opener(cfg Config) browser.Opener {
	return func(_ context.Context) (browser.Session, error) {
		return Open(cfg)
	}
}

// OpenPage creates a new tab in the shared browser.
func (s *Session) OpenPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	// Attach the target before any deadline-bound run so that a timeout on a
	// later action only aborts that action instead of closing the tab early.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Page{
		tabCtx:          tabCtx,
		cancel:          cancel,
		userAgent:       s.cfg.UserAgent,
		evaluateTimeout: valueOr(s.cfg.EvaluateTimeout, defaultEvaluateTimeout),
		navTimeout:      valueOr(s.cfg.NavigationTimeout, defaultNavigationTimeout),
	}, nil
}

// Close tears down the browser and allocator contexts.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}

// Page is a single Chrome tab.
type Page struct {
	tabCtx          context.Context
	cancel          context.CancelFunc
	userAgent       string
	evaluateTimeout time.Duration
	navTimeout      time.Duration
	closeOnce       sync.Once
}

// Navigate loads url and waits according to wait, bounded by timeout.
func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitCondition, timeout time.Duration) error {
	taskCtx, cancel := p.taskContext(ctx, valueOr(timeout, p.navTimeout))
	defer cancel()

	if err := chromedp.Run(taskCtx, p.navigateActions(url, wait)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page and decodes the result into out.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	taskCtx, cancel := p.taskContext(ctx, p.evaluateTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

func (p *Page) navigateActions(url string, wait browser.WaitCondition) chromedp.Tasks {
	tasks := chromedp.Tasks{network.Enable()}
	if p.userAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.userAgent))
	}
	// chromedp.Navigate already blocks until the load event fires.
	tasks = append(tasks, chromedp.Navigate(url))
	switch wait {
	case browser.WaitDOMContentLoaded:
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery))
	case browser.WaitNetworkIdle:
		tasks = append(tasks,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(networkSettleDelay),
		)
	}
	return tasks
}

func (p *Page) taskContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	taskCtx, cancelTask := context.WithTimeout(p.tabCtx, timeout)
	stopForward := forwardCancel(parent, cancelTask)
	return taskCtx, func() {
		stopForward()
		cancelTask()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func valueOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
