package extraction

import (
	"strings"
)

const systemPrompt = "You extract structured real-estate listing data from web pages and documents. " +
	"Reply with exactly one JSON object placed between " + StartDelimiter + " and " + EndDelimiter + ". " +
	"Use null for anything the content does not state. Never guess and never add commentary."

type schemaField struct {
	name string
	desc string
}

var promptSchema = []schemaField{
	{"price", "number, asking or sale price in US dollars"},
	{"beds", "number of bedrooms"},
	{"baths", "number of bathrooms, halves as .5"},
	{"sqft", "interior living area in square feet"},
	{"lot_sqft", "lot size in square feet (1 acre = 43560)"},
	{"year_built", "four-digit year"},
	{"address", "street address line"},
	{"city", "city name"},
	{"state", "two-letter US state code"},
	{"zip", "five-digit ZIP code, as a string"},
	{"property_type", "one of single_family, condo, townhouse, multi_family, manufactured, land, apartment"},
	{"url", "canonical listing URL if present"},
	{"description", "one-sentence summary of the listing"},
}

// BuildPrompt renders the user prompt for content already truncated to the
// token budget.
func BuildPrompt(content string) string {
	var b strings.Builder
	b.WriteString("Extract these fields:\n")
	for _, f := range promptSchema {
		b.WriteString("- ")
		b.WriteString(f.name)
		b.WriteString(": ")
		b.WriteString(f.desc)
		b.WriteByte('\n')
	}
	b.WriteString("\nRespond in this form:\n")
	b.WriteString(StartDelimiter)
	b.WriteString(`{"price": 450000, "beds": 3, ...}`)
	b.WriteString(EndDelimiter)
	b.WriteString("\n\nContent:\n")
	b.WriteString(content)
	return b.String()
}

// SystemPrompt returns the instruction sent with every extraction call.
func SystemPrompt() string { return systemPrompt }
