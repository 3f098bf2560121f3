// Package browser defines the narrow page-automation contract the extractors
// depend on. Implementations live in subpackages: headless drives Chrome via
// chromedp and static fetches plain HTML via colly.
package browser

import (
	"context"
	"errors"
	"time"
)

// DocumentHTMLExpression evaluates to the rendered outer HTML of the current
// document. Every Page implementation must support it.
const DocumentHTMLExpression = "document.documentElement.outerHTML"

// ErrUnsupportedQuery is returned by pages that cannot evaluate an expression.
var ErrUnsupportedQuery = errors.New("browser: unsupported query")

// WaitCondition selects how long Navigate waits before returning.
type WaitCondition int

// Supported navigation wait conditions.
const (
	WaitLoad WaitCondition = iota
	WaitDOMContentLoaded
	WaitNetworkIdle
)

// String implements fmt.Stringer.
func (w WaitCondition) String() string {
	switch w {
	case WaitDOMContentLoaded:
		return "domcontentloaded"
	case WaitNetworkIdle:
		return "networkidle"
	default:
		return "load"
	}
}

// ParseWaitCondition maps a config string to a WaitCondition, defaulting to WaitLoad.
func ParseWaitCondition(raw string) WaitCondition {
	switch raw {
	case "domcontentloaded":
		return WaitDOMContentLoaded
	case "networkidle", "networkidle2":
		return WaitNetworkIdle
	default:
		return WaitLoad
	}
}

// Session is a long-lived browser resource shared sequentially by extractors.
type Session interface {
	OpenPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab-like resource. Close must be safe to call more than once.
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitCondition, timeout time.Duration) error
	Evaluate(ctx context.Context, expression string, out any) error
	Close() error
}

// Opener acquires a Session.
type Opener func(ctx context.Context) (Session, error)
