package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/listing"
)

// dynamicApp waits for a client-rendered listing to appear before reading it.
type dynamicApp struct {
	base
}

func newDynamicApp(def Definition, logger *zap.Logger) Extractor {
	return &dynamicApp{base: newBase(def, logger)}
}

// Extract implements Extractor.
func (d *dynamicApp) Extract(ctx context.Context, session browser.Session) []listing.RawRecord {
	return d.visit(ctx, session, func(ctx context.Context, page browser.Page) ([]listing.RawRecord, error) {
		selector, items, err := d.waitForAny(ctx, page)
		if err != nil {
			return nil, err
		}
		if items == nil {
			d.logger.Info("listing did not render before timeout",
				zap.Strings("candidates", d.def.Selectors),
				zap.Duration("wait_timeout", d.def.WaitTimeout),
			)
			return nil, nil
		}
		d.logger.Debug("listing rendered", zap.String("selector", selector), zap.Int("items", items.Length()))
		return d.recordsFrom(items), nil
	})
}

// waitForAny polls the rendered document until one candidate matches or the
// wait timeout elapses. A timeout yields a nil selection and no error.
func (d *dynamicApp) waitForAny(ctx context.Context, page browser.Page) (string, *goquery.Selection, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.def.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(d.def.PollInterval)
	defer ticker.Stop()

	for {
		doc, err := snapshot(waitCtx, page)
		switch {
		case err == nil:
			if selector, items, ok := FirstMatch(doc.Selection, d.def.Selectors); ok {
				return selector, items, nil
			}
		case waitCtx.Err() == nil:
			return "", nil, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", nil, fmt.Errorf("wait for listing: %w", ctx.Err())
			}
			return "", nil, nil
		case <-ticker.C:
		}
	}
}
