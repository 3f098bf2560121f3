package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/listing"
)

// staticCatalog reads a server-rendered catalog with one fixed item selector.
type staticCatalog struct {
	base
}

func newStaticCatalog(def Definition, logger *zap.Logger) Extractor {
	return &staticCatalog{base: newBase(def, logger)}
}

// Extract implements Extractor.
func (s *staticCatalog) Extract(ctx context.Context, session browser.Session) []listing.RawRecord {
	return s.visit(ctx, session, func(ctx context.Context, page browser.Page) ([]listing.RawRecord, error) {
		doc, err := snapshot(ctx, page)
		if err != nil {
			return nil, err
		}
		selector := s.def.Selectors[0]
		items := doc.Find(selector)
		if items.Length() == 0 {
			s.logger.Info("no catalog items matched", zap.String("selector", selector))
			return nil, nil
		}
		return s.recordsFrom(items), nil
	})
}
