// Package normalize converts raw extractor output into fully defaulted
// canonical records with deterministic identities.
package normalize

import (
	"encoding/hex"
	"strings"

	"github.com/JakeFAU/coursesync/internal/listing"
)

// Options holds the sentinel values used when a raw field is missing.
type Options struct {
	DefaultTitle    string `mapstructure:"default_title"`
	DefaultProvider string `mapstructure:"default_provider"`
	DefaultLocation string `mapstructure:"default_location"`
	DefaultType     string `mapstructure:"default_type"`
	Region          string `mapstructure:"region"`
	IDLength        int    `mapstructure:"id_length"`
}

// DefaultOptions returns the sentinels used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DefaultTitle:    "Untitled Course",
		DefaultProvider: "Unknown",
		DefaultLocation: "Lower Mainland",
		DefaultType:     "General",
		Region:          "Lower Mainland",
		IDLength:        12,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DefaultTitle == "" {
		o.DefaultTitle = d.DefaultTitle
	}
	if o.DefaultProvider == "" {
		o.DefaultProvider = d.DefaultProvider
	}
	if o.DefaultLocation == "" {
		o.DefaultLocation = d.DefaultLocation
	}
	if o.DefaultType == "" {
		o.DefaultType = d.DefaultType
	}
	if o.Region == "" {
		o.Region = d.Region
	}
	if o.IDLength <= 0 {
		o.IDLength = d.IDLength
	}
	return o
}

// Normalizer is a pure RawRecord -> CanonicalRecord transformation apart from
// the timestamp it reads from its clock.
type Normalizer struct {
	opts   Options
	hasher listing.Hasher
	clock  listing.Clock
}

// New builds a Normalizer. Zero-valued options fall back to DefaultOptions.
func New(opts Options, hasher listing.Hasher, clock listing.Clock) *Normalizer {
	return &Normalizer{opts: opts.withDefaults(), hasher: hasher, clock: clock}
}

// Normalize converts one raw record. It never fails.
func (n *Normalizer) Normalize(raw listing.RawRecord) listing.CanonicalRecord {
	now := n.clock.Now()
	title := orDefault(raw.Title, n.opts.DefaultTitle)
	provider := orDefault(raw.Provider, n.opts.DefaultProvider)
	date := ParseDate(raw.DateText, now)

	identityDate := strings.TrimSpace(raw.DateText)
	if date != nil {
		identityDate = *date
	}

	return listing.CanonicalRecord{
		ID:          n.identity(provider, title, identityDate),
		Title:       title,
		Provider:    provider,
		Date:        date,
		Time:        strings.TrimSpace(raw.TimeText),
		Location:    orDefault(raw.Location, n.opts.DefaultLocation),
		Price:       ParsePrice(raw.PriceText),
		Type:        orDefault(raw.Type, n.opts.DefaultType),
		Link:        strings.TrimSpace(raw.Link),
		LastUpdated: now,
		Region:      n.opts.Region,
	}
}

// NormalizeAll converts records in order; the result has the same length.
func (n *Normalizer) NormalizeAll(raws []listing.RawRecord) []listing.CanonicalRecord {
	out := make([]listing.CanonicalRecord, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw))
	}
	return out
}

// identity is the first IDLength characters of the digest of
// provider-title-date.
func (n *Normalizer) identity(provider, title, date string) string {
	return ID(n.hasher, provider, title, date, n.opts.IDLength)
}

// ID derives the record identity. Equal inputs always yield equal ids.
func ID(hasher listing.Hasher, provider, title, date string, length int) string {
	key := []byte(provider + "-" + title + "-" + date)
	digest, err := hasher.Hash(key)
	if err != nil || digest == "" {
		digest = hex.EncodeToString(key)
	}
	if length > 0 && len(digest) > length {
		return digest[:length]
	}
	return digest
}

func orDefault(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
