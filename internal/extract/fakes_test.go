package extract

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/coursesync/internal/browser"
)

// fakeSession hands out fakePages that serve canned HTML snapshots.
type fakeSession struct {
	mu        sync.Mutex
	snapshots []string
	navErr    error
	evalErr   error
	openErr   error
	panicMsg  string
	pages     []*fakePage
}

func (s *fakeSession) OpenPage(_ context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	p := &fakePage{
		snapshots: s.snapshots,
		navErr:    s.navErr,
		evalErr:   s.evalErr,
		panicMsg:  s.panicMsg,
	}
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) openedPages() []*fakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakePage(nil), s.pages...)
}

type fakePage struct {
	mu        sync.Mutex
	snapshots []string
	evals     int
	navErr    error
	evalErr   error
	panicMsg  string
	navigated []string
	closed    int
}

func (p *fakePage) Navigate(_ context.Context, url string, _ browser.WaitCondition, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) Evaluate(_ context.Context, expression string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.evalErr != nil {
		return p.evalErr
	}
	if expression != browser.DocumentHTMLExpression {
		return browser.ErrUnsupportedQuery
	}
	dst, ok := out.(*string)
	if !ok {
		return errors.New("unexpected destination")
	}
	idx := p.evals
	if idx >= len(p.snapshots) {
		idx = len(p.snapshots) - 1
	}
	p.evals++
	if idx < 0 {
		*dst = "<html></html>"
		return nil
	}
	*dst = p.snapshots[idx]
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
