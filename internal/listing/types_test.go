package listing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRecordSerializesNulls(t *testing.T) {
	t.Parallel()

	rec := CanonicalRecord{
		ID:          "abc123def456",
		Title:       "Standard First Aid",
		Provider:    "Unknown",
		LastUpdated: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Region:      "Lower Mainland",
	}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	for _, key := range []string{"id", "title", "provider", "date", "time", "location", "price", "type", "link", "lastUpdated", "region"} {
		_, ok := decoded[key]
		assert.True(t, ok, "missing key %s", key)
	}
	assert.Nil(t, decoded["date"])
	assert.Nil(t, decoded["price"])
}

func TestCanonicalRecordFields(t *testing.T) {
	t.Parallel()

	date := "2025-03-15"
	price := 45.0
	rec := CanonicalRecord{
		ID:          "id",
		Date:        &date,
		Price:       &price,
		LastUpdated: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fields := rec.Fields()
	assert.Equal(t, "2025-03-15", fields["date"])
	assert.Equal(t, 45.0, fields["price"])
	assert.Equal(t, "2025-03-01T12:00:00Z", fields["lastUpdated"])
}

func TestProvidersDistinctInOrder(t *testing.T) {
	t.Parallel()

	got := Providers([]CanonicalRecord{
		{Provider: "Red Cross"},
		{Provider: "St. John"},
		{Provider: "Red Cross"},
	})
	assert.Equal(t, []string{"Red Cross", "St. John"}, got)
}
