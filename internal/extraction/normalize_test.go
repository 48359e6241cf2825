package extraction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
)

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$450,000", 450000, true},
		{"450k", 450000, true},
		{"1.2M", 1.2e6, true},
		{"3 beds", 3, true},
		{"2.5", 2.5, true},
		{"-500", -500, true},
		{"-$1,200", -1200, true},
		{"USD 99", 99, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := extraction.ParseNumber(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-6, tt.in)
	}
}

func TestCanonicalField(t *testing.T) {
	t.Parallel()

	for key, want := range map[string]string{
		"ListPrice":      domain.FieldPrice,
		"bedrooms":       domain.FieldBeds,
		"Bath_rooms":     domain.FieldBaths,
		"square-footage": domain.FieldSqft,
		"Lot Size":       domain.FieldLotSqft,
		"postalCode":     domain.FieldZip,
		"@type":          domain.FieldPropertyType,
	} {
		got, ok := extraction.CanonicalField(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok := extraction.CanonicalField("garage")
	assert.False(t, ok)
}

func TestNormalizeFields(t *testing.T) {
	t.Parallel()

	got := extraction.NormalizeFields(map[string]any{
		"Price":         1.0,
		"price":         2.0,
		"floor_size":    "120 m2",
		"zip":           2134.0,
		"state":         "tx",
		"property_type": "Condo/Co-op",
		"city":          "  Santa Fe ",
		"garage":        "2 car",
		"beds":          "n/a",
		"lot":           map[string]any{"value": 5000.0},
	})

	assert.Equal(t, domain.Fields{
		"price":         1.0,
		"sqft":          1292.0,
		"zip":           "02134",
		"state":         "TX",
		"property_type": extraction.TypeCondo,
		"city":          "Santa Fe",
	}, got)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	got, cut := extraction.Truncate("héllo wörld", 1)
	assert.True(t, cut)
	assert.Equal(t, "héll", got)

	got, cut = extraction.Truncate("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", got)

	got, cut = extraction.Truncate("anything at all", 0)
	assert.False(t, cut)
	assert.Equal(t, "anything at all", got)
}

func TestDetectKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, extraction.KindJSON, extraction.DetectKind("{}", "application/json; charset=utf-8"))
	assert.Equal(t, extraction.KindJSON, extraction.DetectKind(` [{"a":1}]`, ""))
	assert.Equal(t, extraction.KindHTML, extraction.DetectKind("<p>x</p>", "text/html"))
	assert.Equal(t, extraction.KindHTML, extraction.DetectKind("<!doctype html><html><body></body></html>", ""))
	assert.Equal(t, extraction.KindText, extraction.DetectKind("{not json", ""))
	assert.Equal(t, extraction.KindText, extraction.DetectKind("3 bed house", "text/plain"))
}

func TestTypeDetector(t *testing.T) {
	t.Parallel()

	d := extraction.NewTypeDetector()
	for text, want := range map[string]string{
		"Charming townhouse near the park": extraction.TypeTownhouse,
		"A lovely house":                   extraction.TypeSingleFamily,
		"Condo/Co-op":                      extraction.TypeCondo,
		"Multi-family duplex, great rents": extraction.TypeMultiFamily,
		"5 acres of vacant land":           extraction.TypeLand,
	} {
		got, ok := d.Detect(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}

	_, ok := d.Detect("greenhouse supplies for sale")
	assert.False(t, ok)
}
