package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/listing"
)

// cardListing locates cards through the selector fallback chain.
type cardListing struct {
	base
}

func newCardListing(def Definition, logger *zap.Logger) Extractor {
	return &cardListing{base: newBase(def, logger)}
}

// Extract implements Extractor.
func (c *cardListing) Extract(ctx context.Context, session browser.Session) []listing.RawRecord {
	return c.visit(ctx, session, func(ctx context.Context, page browser.Page) ([]listing.RawRecord, error) {
		doc, err := snapshot(ctx, page)
		if err != nil {
			return nil, err
		}
		selector, cards, ok := FirstMatch(doc.Selection, c.def.Selectors)
		if !ok {
			c.logger.Info("no card selector matched", zap.Strings("candidates", c.def.Selectors))
			return nil, nil
		}
		c.logger.Debug("card selector matched", zap.String("selector", selector), zap.Int("cards", cards.Length()))
		return c.recordsFrom(cards), nil
	})
}
