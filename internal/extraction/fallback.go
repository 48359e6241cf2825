package extraction

import (
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// selectorRule reads one field from an HTML document.
type selectorRule struct {
	field    string
	selector string
	attr     string
}

// htmlRules are tried in order; the first non-empty hit per field wins.
var htmlRules = []selectorRule{
	{domain.FieldPrice, `[itemprop="price"]`, "content"},
	{domain.FieldPrice, `meta[property="product:price:amount"]`, "content"},
	{domain.FieldPrice, `meta[property="og:price:amount"]`, "content"},
	{domain.FieldPrice, `.listing-price, .price, [data-testid="price"]`, ""},
	{domain.FieldBeds, `[itemprop="numberOfBedrooms"], [itemprop="numberOfRooms"]`, "content"},
	{domain.FieldBeds, `.beds, .bedrooms, [data-testid="bed-value"]`, ""},
	{domain.FieldBaths, `[itemprop="numberOfBathroomsTotal"]`, "content"},
	{domain.FieldBaths, `.baths, .bathrooms, [data-testid="bath-value"]`, ""},
	{domain.FieldSqft, `[itemprop="floorSize"]`, "content"},
	{domain.FieldSqft, `.sqft, .square-feet, [data-testid="sqft-value"]`, ""},
	{domain.FieldYearBuilt, `[itemprop="yearBuilt"]`, "content"},
	{domain.FieldAddress, `[itemprop="streetAddress"]`, "content"},
	{domain.FieldAddress, `.street-address, .address-line`, ""},
	{domain.FieldCity, `[itemprop="addressLocality"]`, "content"},
	{domain.FieldState, `[itemprop="addressRegion"]`, "content"},
	{domain.FieldZip, `[itemprop="postalCode"]`, "content"},
	{domain.FieldURL, `meta[property="og:url"]`, "content"},
	{domain.FieldURL, `link[rel="canonical"]`, "href"},
	{domain.FieldDescription, `meta[property="og:description"]`, "content"},
	{domain.FieldDescription, `meta[name="description"]`, "content"},
}

// Free-text patterns. Inputs are NFKC-normalized first, so "m²" arrives as
// "m2" and non-breaking spaces as plain spaces.
var (
	pricePattern   = regexp.MustCompile(`(?i)(?:\$\s?|\busd\s?)(-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?)\s*(k|m|million)?\b`)
	bedsPattern    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:-\s*)?(?:bed(?:room)?s?|bd|br)\b`)
	bathsPattern   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:-\s*)?(?:bath(?:room)?s?|ba)\b`)
	sqftPattern    = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)\s*(?:sq\.?\s*ft\.?|square\s+f(?:ee|oo)t|sqft|sf)\b`)
	sqmPattern     = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(?:m2|sq\.?\s*m|sqm|square\s+met(?:er|re)s?)\b`)
	lotPattern     = regexp.MustCompile(`(?i)\blot(?:\s+size)?:?\s*(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(acres?|sq\.?\s*ft\.?|sqft)`)
	yearPattern    = regexp.MustCompile(`(?i)\b(?:built(?:\s+in)?|year\s+built:?)\s*((?:18|19|20)\d{2})\b`)
	stateZip       = regexp.MustCompile(`\b([A-Z]{2})\s+(\d{5}(?:-\d{4})?)\b`)
	addressPattern = regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][A-Za-z0-9.']*\s+){1,4}(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Dr|Drive|Ln|Lane|Ct|Court|Way|Pl|Place|Ter|Terrace|Cir|Circle|Pkwy|Parkway|Hwy|Highway)\b\.?`)
	cityStateZip   = regexp.MustCompile(`\b((?:[A-Z][a-z.'-]+\s?){1,3}),\s*([A-Z]{2})\s+\d{5}`)
)

const sqftPerAcre = 43560

// Fallback extracts fields deterministically with selectors and patterns.
type Fallback struct {
	types *TypeDetector
}

// NewFallback creates a Fallback extractor.
func NewFallback() *Fallback {
	return &Fallback{types: defaultDetector}
}

// Extract returns whatever fields the patterns can find in doc. The result
// may be empty.
func (f *Fallback) Extract(doc Document) domain.Fields {
	fields := domain.Fields{}

	if doc.Kind == KindHTML && doc.html != nil {
		f.fromJSONLD(doc.html, fields)
		f.fromSelectors(doc.html, fields)
	}

	text := doc.FullText
	if text == "" {
		text = doc.Text
	}
	f.fromText(text, fields)

	if _, ok := fields[domain.FieldPropertyType]; !ok {
		if label, found := f.types.Detect(doc.Title + " " + text); found {
			fields[domain.FieldPropertyType] = label
		}
	}
	return fields
}

func (f *Fallback) fromJSONLD(doc *goquery.Document, fields domain.Fields) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found := DecodeJSONContent(s.Text())
		for k, v := range found {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
		return len(found) == 0
	})
}

func (f *Fallback) fromSelectors(doc *goquery.Document, fields domain.Fields) {
	for _, rule := range htmlRules {
		if _, exists := fields[rule.field]; exists {
			continue
		}
		sel := doc.Find(rule.selector).First()
		if sel.Length() == 0 {
			continue
		}
		var raw string
		if rule.attr != "" {
			raw, _ = sel.Attr(rule.attr)
		}
		if raw == "" {
			raw = sel.Text()
		}
		setField(fields, rule.field, raw)
	}
}

func setField(fields domain.Fields, field, raw string) {
	if numericFields[field] {
		if n, ok := toNumber(field, raw); ok {
			fields[field] = n
		}
		return
	}
	if s, ok := toText(field, raw); ok {
		fields[field] = s
	}
}

func (f *Fallback) fromText(text string, fields domain.Fields) {
	missing := func(field string) bool {
		_, exists := fields[field]
		return !exists
	}

	if m := pricePattern.FindStringSubmatch(text); m != nil && missing(domain.FieldPrice) {
		setField(fields, domain.FieldPrice, m[1]+m[2])
	}
	if m := bedsPattern.FindStringSubmatch(text); m != nil && missing(domain.FieldBeds) {
		setField(fields, domain.FieldBeds, m[1])
	}
	if m := bathsPattern.FindStringSubmatch(text); m != nil && missing(domain.FieldBaths) {
		setField(fields, domain.FieldBaths, m[1])
	}
	if missing(domain.FieldSqft) {
		if m := sqftPattern.FindStringSubmatch(text); m != nil {
			setField(fields, domain.FieldSqft, m[1])
		} else if m := sqmPattern.FindStringSubmatch(text); m != nil {
			if n, ok := ParseNumber(m[1]); ok {
				fields[domain.FieldSqft] = math.Round(n * sqftPerSquareMetre)
			}
		}
	}
	if m := lotPattern.FindStringSubmatch(text); m != nil && missing(domain.FieldLotSqft) {
		if n, ok := ParseNumber(m[1]); ok {
			if strings.HasPrefix(strings.ToLower(m[2]), "acre") {
				n = math.Round(n * sqftPerAcre)
			}
			fields[domain.FieldLotSqft] = n
		}
	}
	if m := yearPattern.FindStringSubmatch(text); m != nil && missing(domain.FieldYearBuilt) {
		setField(fields, domain.FieldYearBuilt, m[1])
	}
	if m := stateZip.FindStringSubmatch(text); m != nil {
		if missing(domain.FieldState) {
			fields[domain.FieldState] = m[1]
		}
		if missing(domain.FieldZip) {
			fields[domain.FieldZip] = m[2]
		}
	}
	if m := cityStateZip.FindStringSubmatch(text); m != nil && missing(domain.FieldCity) {
		fields[domain.FieldCity] = strings.TrimSpace(m[1])
	}
	if m := addressPattern.FindString(text); m != "" && missing(domain.FieldAddress) {
		fields[domain.FieldAddress] = strings.TrimSuffix(m, ".")
	}
}
