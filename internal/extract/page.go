package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/listing"
)

// pageFunc extracts records from a page that has already been navigated.
type pageFunc func(ctx context.Context, page browser.Page) ([]listing.RawRecord, error)

// base carries what every variant shares: the definition, a logger, and the
// scoped page visit.
type base struct {
	def     Definition
	baseURL *url.URL
	logger  *zap.Logger
}

func newBase(def Definition, logger *zap.Logger) base {
	parsed, _ := url.Parse(def.URL)
	return base{def: def, baseURL: parsed, logger: logger}
}

// Name returns the registered source name.
func (b base) Name() string {
	return b.def.Name
}

// visit opens one page, navigates to the source URL, and runs fn. The page is
// closed on every path, including panics inside fn, and no error escapes.
func (b base) visit(ctx context.Context, session browser.Session, fn pageFunc) (records []listing.RawRecord) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("extractor panicked", zap.Any("panic", r))
			records = nil
		}
	}()

	page, err := session.OpenPage(ctx)
	if err != nil {
		b.logger.Warn("open page failed", zap.Error(err))
		return nil
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			b.logger.Warn("close page failed", zap.Error(cerr))
		}
	}()

	wait := browser.ParseWaitCondition(b.def.WaitUntil)
	if err := page.Navigate(ctx, b.def.URL, wait, b.def.NavigationTimeout); err != nil {
		b.logger.Warn("navigation failed", zap.String("url", b.def.URL), zap.Error(err))
		return nil
	}

	out, err := fn(ctx, page)
	if err != nil {
		b.logger.Warn("extraction failed", zap.Error(err))
		return nil
	}
	b.logger.Debug("extracted records", zap.Int("records", len(out)))
	return out
}

// snapshot evaluates the rendered document and parses it for querying.
func snapshot(ctx context.Context, page browser.Page) (*goquery.Document, error) {
	var html string
	if err := page.Evaluate(ctx, browser.DocumentHTMLExpression, &html); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// recordFrom reads every field from item using the definition's selectors.
func (b base) recordFrom(item *goquery.Selection) listing.RawRecord {
	f := b.def.Fields
	return listing.RawRecord{
		Source:    b.def.Name,
		Title:     fieldText(item, f.Title),
		DateText:  fieldText(item, f.Date),
		TimeText:  fieldText(item, f.Time),
		Location:  fieldText(item, f.Location),
		PriceText: fieldText(item, f.Price),
		Link:      fieldLink(item, f.Link, b.baseURL),
		Provider:  firstNonEmpty(fieldText(item, f.Provider), b.def.Provider),
		Type:      firstNonEmpty(fieldText(item, f.Type), b.def.Type),
	}
}

// recordsFrom maps every element of items through recordFrom, dropping
// elements that produced no usable text at all.
func (b base) recordsFrom(items *goquery.Selection) []listing.RawRecord {
	out := make([]listing.RawRecord, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		rec := b.recordFrom(item)
		if isBlank(rec) {
			return
		}
		out = append(out, rec)
	})
	return out
}

func isBlank(rec listing.RawRecord) bool {
	return rec.Title == "" && rec.DateText == "" && rec.TimeText == "" &&
		rec.Location == "" && rec.PriceText == "" && rec.Link == ""
}
