package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/browser"
	"github.com/JakeFAU/coursesync/internal/listing"
)

// Extractor renders one source and returns the records found on it.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, session browser.Session) []listing.RawRecord
}

// Variant names an extraction strategy.
type Variant string

// Supported variants.
const (
	VariantStaticCatalog Variant = "static_catalog"
	VariantDynamicApp    Variant = "dynamic_app"
	VariantTableListing  Variant = "table_listing"
	VariantCardListing   Variant = "card_listing"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultWaitTimeout       = 15 * time.Second
	defaultPollInterval      = 500 * time.Millisecond
	defaultMinCells          = 3
)

// FieldSelectors lists candidate selectors per field, highest priority first.
type FieldSelectors struct {
	Title    []string `mapstructure:"title"`
	Date     []string `mapstructure:"date"`
	Time     []string `mapstructure:"time"`
	Location []string `mapstructure:"location"`
	Price    []string `mapstructure:"price"`
	Link     []string `mapstructure:"link"`
	Provider []string `mapstructure:"provider"`
	Type     []string `mapstructure:"type"`
}

// Definition is one row of the source table.
type Definition struct {
	Name              string         `mapstructure:"name"`
	Variant           Variant        `mapstructure:"variant"`
	URL               string         `mapstructure:"url"`
	Provider          string         `mapstructure:"provider"`
	Type              string         `mapstructure:"type"`
	Selectors         []string       `mapstructure:"selectors"`
	Fields            FieldSelectors `mapstructure:"fields"`
	Columns           map[string]int `mapstructure:"columns"`
	MinCells          int            `mapstructure:"min_cells"`
	WaitUntil         string         `mapstructure:"wait_until"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout"`
	WaitTimeout       time.Duration  `mapstructure:"wait_timeout"`
	PollInterval      time.Duration  `mapstructure:"poll_interval"`
}

// Validate checks the fields every variant needs.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	if _, ok := builders[d.Variant]; !ok {
		return fmt.Errorf("source %s: unknown variant %q", d.Name, d.Variant)
	}
	u, err := url.Parse(d.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source %s: invalid url %q", d.Name, d.URL)
	}
	if d.MinCells < 0 {
		return fmt.Errorf("source %s: min_cells must be >= 0", d.Name)
	}
	for field, idx := range d.Columns {
		if idx < 0 {
			return fmt.Errorf("source %s: column %s must be >= 0", d.Name, field)
		}
	}
	return nil
}

// withDefaults fills variant-specific selectors and timeouts.
func (d Definition) withDefaults() Definition {
	if len(d.Selectors) == 0 {
		d.Selectors = append([]string(nil), defaultItemSelectors[d.Variant]...)
	}
	d.Fields = d.Fields.withDefaults()
	if d.Variant == VariantTableListing {
		if len(d.Columns) == 0 {
			d.Columns = map[string]int{"title": 0, "date": 1, "time": 2, "location": 3, "price": 4}
		}
		if d.MinCells == 0 {
			d.MinCells = defaultMinCells
		}
	}
	if d.NavigationTimeout <= 0 {
		d.NavigationTimeout = defaultNavigationTimeout
	}
	if d.WaitTimeout <= 0 {
		d.WaitTimeout = defaultWaitTimeout
	}
	if d.PollInterval <= 0 {
		d.PollInterval = defaultPollInterval
	}
	return d
}

var defaultItemSelectors = map[Variant][]string{
	VariantStaticCatalog: {".course-item"},
	VariantDynamicApp:    {"[data-testid='course-row']", ".course-listing", ".event-item", ".list-item"},
	VariantTableListing:  {"table tbody tr", "table tr"},
	VariantCardListing:   {".event-card", ".course-card", ".card", "article"},
}

func (f FieldSelectors) withDefaults() FieldSelectors {
	pick := func(v, fallback []string) []string {
		if len(v) > 0 {
			return v
		}
		return fallback
	}
	return FieldSelectors{
		Title:    pick(f.Title, []string{"h2", "h3", ".title", ".course-title", ".event-title"}),
		Date:     pick(f.Date, []string{".date", ".course-date", ".event-date", "time"}),
		Time:     pick(f.Time, []string{".time", ".course-time", ".event-time"}),
		Location: pick(f.Location, []string{".location", ".venue", ".address"}),
		Price:    pick(f.Price, []string{".price", ".cost", ".fee"}),
		Link:     pick(f.Link, []string{"a[href]"}),
		Provider: pick(f.Provider, []string{".provider", ".organizer"}),
		Type:     pick(f.Type, []string{".course-type", ".category"}),
	}
}

type builder func(def Definition, logger *zap.Logger) Extractor

var builders = map[Variant]builder{
	VariantStaticCatalog: newStaticCatalog,
	VariantDynamicApp:    newDynamicApp,
	VariantTableListing:  newTableListing,
	VariantCardListing:   newCardListing,
}

// Build validates def and constructs the matching extractor.
func Build(def Definition, logger *zap.Logger) (Extractor, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	named := logger.Named("extract").With(
		zap.String("source", def.Name),
		zap.String("variant", string(def.Variant)),
	)
	return builders[def.Variant](def.withDefaults(), named), nil
}
