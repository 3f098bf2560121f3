package extract

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/listing"
)

// tableListing maps fixed cell positions of each row to fields.
type tableListing struct {
	base
}

func newTableListing(def Definition, logger *zap.Logger) Extractor {
	return &tableListing{base: newBase(def, logger)}
}

// Extract implements Extractor.
func (t *tableListing) Extract(ctx context.Context, session browser.Session) []listing.RawRecord {
	return t.visit(ctx, session, func(ctx context.Context, page browser.Page) ([]listing.RawRecord, error) {
		doc, err := snapshot(ctx, page)
		if err != nil {
			return nil, err
		}
		_, rows, ok := FirstMatch(doc.Selection, t.def.Selectors)
		if !ok {
			t.logger.Info("no table rows matched", zap.Strings("candidates", t.def.Selectors))
			return nil, nil
		}
		out := make([]listing.RawRecord, 0, rows.Length())
		skipped := 0
		rows.Each(func(_ int, row *goquery.Selection) {
			rec, ok := t.rowRecord(row)
			if !ok {
				skipped++
				return
			}
			out = append(out, rec)
		})
		if skipped > 0 {
			t.logger.Debug("skipped short rows", zap.Int("rows", skipped))
		}
		return out, nil
	})
}

// rowRecord converts one row; rows with fewer than MinCells cells are rejected.
func (t *tableListing) rowRecord(row *goquery.Selection) (listing.RawRecord, bool) {
	cells := row.Find("td")
	if cells.Length() < t.def.MinCells {
		return listing.RawRecord{}, false
	}
	cell := func(field string) string {
		idx, ok := t.def.Columns[field]
		if !ok || idx >= cells.Length() {
			return ""
		}
		return cleanText(cells.Eq(idx).Text())
	}
	rec := listing.RawRecord{
		Source:    t.def.Name,
		Title:     cell("title"),
		DateText:  cell("date"),
		TimeText:  cell("time"),
		Location:  cell("location"),
		PriceText: cell("price"),
		Link:      fieldLink(row, t.def.Fields.Link, t.baseURL),
		Provider:  firstNonEmpty(cell("provider"), t.def.Provider),
		Type:      firstNonEmpty(cell("type"), t.def.Type),
	}
	if isBlank(rec) {
		return listing.RawRecord{}, false
	}
	return rec, true
}
