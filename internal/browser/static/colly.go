// Package static implements browser.Session with plain HTTP fetches through
// colly. It serves sources whose listings are present in the server-rendered
// HTML and hosts where Chrome is unavailable; it cannot run scripts.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/coursesync/internal/browser"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Session hands out pages that share one base collector and transport.
type Session struct {
	cfg  Config
	base *colly.Collector
}

// Open builds a Session. It never fails; the signature matches browser.Opener.
func Open(cfg Config) *Session {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Session{cfg: cfg, base: c}
}

// Opener adapts Open to browser.Opener.
func Opener(cfg Config) browser.Opener {
	return func(_ context.Context) (browser.Session, error) {
		return Open(cfg), nil
	}
}

// OpenPage returns a fresh page.
func (s *Session) OpenPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &Page{base: s.base, defaultTimeout: s.cfg.Timeout}, nil
}

// Close is a no-op; colly holds no long-lived process.
func (s *Session) Close() error {
	return nil
}

// Page holds the last fetched document.
type Page struct {
	base           *colly.Collector
	defaultTimeout time.Duration

	mu     sync.RWMutex
	html   string
	closed bool
}

// Navigate fetches url. The wait condition is irrelevant without scripts.
func (p *Page) Navigate(ctx context.Context, url string, _ browser.WaitCondition, timeout time.Duration) error {
	if p.isClosed() {
		return errors.New("page closed")
	}
	collector := p.base.Clone()
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return err
	}
	p.mu.Lock()
	p.html = string(body)
	p.mu.Unlock()
	return nil
}

// Evaluate supports only browser.DocumentHTMLExpression.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if expression != browser.DocumentHTMLExpression {
		return fmt.Errorf("%w: %q", browser.ErrUnsupportedQuery, expression)
	}
	dst, ok := out.(*string)
	if !ok {
		return fmt.Errorf("evaluate: expected *string destination, got %T", out)
	}
	p.mu.RLock()
	*dst = p.html
	p.mu.RUnlock()
	return nil
}

// Close releases the page.
func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.html = ""
	p.mu.Unlock()
	return nil
}

func (p *Page) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
