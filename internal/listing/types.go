// Package listing defines the record types shared by the extraction,
// normalization, and sync stages of the course listing pipeline.
package listing

import "time"

// RawRecord is the loosely structured output of a source extractor. Every
// field is free text exactly as it appeared on the page and may be empty.
type RawRecord struct {
	Source    string `json:"source,omitempty"`
	Title     string `json:"title,omitempty"`
	DateText  string `json:"dateText,omitempty"`
	TimeText  string `json:"timeText,omitempty"`
	Location  string `json:"location,omitempty"`
	PriceText string `json:"priceText,omitempty"`
	Link      string `json:"link,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Type      string `json:"type,omitempty"`
}

// CanonicalRecord is the fully defaulted unit of the dataset. Date and Price
// are pointers so that absent values serialize as an explicit null.
type CanonicalRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Provider    string    `json:"provider"`
	Date        *string   `json:"date"`
	Time        string    `json:"time"`
	Location    string    `json:"location"`
	Price       *float64  `json:"price"`
	Type        string    `json:"type"`
	Link        string    `json:"link"`
	LastUpdated time.Time `json:"lastUpdated"`
	Region      string    `json:"region"`
}

// Fields renders the record as the column map sent to the remote store.
func (r CanonicalRecord) Fields() map[string]any {
	fields := map[string]any{
		"id":          r.ID,
		"title":       r.Title,
		"provider":    r.Provider,
		"date":        nil,
		"time":        r.Time,
		"location":    r.Location,
		"price":       nil,
		"type":        r.Type,
		"link":        r.Link,
		"lastUpdated": r.LastUpdated.UTC().Format(time.RFC3339),
		"region":      r.Region,
	}
	if r.Date != nil {
		fields["date"] = *r.Date
	}
	if r.Price != nil {
		fields["price"] = *r.Price
	}
	return fields
}

// Providers returns the distinct provider names of records in first-seen order.
func Providers(records []CanonicalRecord) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, rec := range records {
		if _, ok := seen[rec.Provider]; ok {
			continue
		}
		seen[rec.Provider] = struct{}{}
		out = append(out, rec.Provider)
	}
	return out
}
