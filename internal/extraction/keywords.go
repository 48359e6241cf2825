package extraction

import (
	"strings"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Property type labels.
const (
	TypeSingleFamily = "single_family"
	TypeCondo        = "condo"
	TypeTownhouse    = "townhouse"
	TypeMultiFamily  = "multi_family"
	TypeManufactured = "manufactured"
	TypeLand         = "land"
	TypeApartment    = "apartment"
)

type typeKeyword struct {
	keyword string
	label   string
}

// propertyTypeKeywords is ordered by specificity: when several keywords
// match, the earliest entry wins, so "townhouse" beats "house".
var propertyTypeKeywords = []typeKeyword{
	{"townhouse", TypeTownhouse},
	{"townhome", TypeTownhouse},
	{"row house", TypeTownhouse},
	{"condominium", TypeCondo},
	{"condo", TypeCondo},
	{"multi family", TypeMultiFamily},
	{"multifamily", TypeMultiFamily},
	{"duplex", TypeMultiFamily},
	{"triplex", TypeMultiFamily},
	{"fourplex", TypeMultiFamily},
	{"manufactured", TypeManufactured},
	{"mobile home", TypeManufactured},
	{"vacant land", TypeLand},
	{"vacant lot", TypeLand},
	{"acreage", TypeLand},
	{"apartment", TypeApartment},
	{"single family", TypeSingleFamily},
	{"singlefamilyresidence", TypeSingleFamily},
	{"detached", TypeSingleFamily},
	{"bungalow", TypeSingleFamily},
	{"house", TypeSingleFamily},
}

// TypeDetector finds property type keywords in a single pass.
type TypeDetector struct {
	matcher  *ahocorasick.Matcher
	keywords []typeKeyword
}

// NewTypeDetector builds the keyword automaton.
func NewTypeDetector() *TypeDetector {
	padded := make([]string, len(propertyTypeKeywords))
	for i, kw := range propertyTypeKeywords {
		padded[i] = " " + kw.keyword + " "
	}
	return &TypeDetector{
		matcher:  ahocorasick.NewStringMatcher(padded),
		keywords: propertyTypeKeywords,
	}
}

// Detect returns the most specific property type mentioned in text.
func (d *TypeDetector) Detect(text string) (string, bool) {
	hits := d.matcher.Match([]byte(keywordText(text)))
	if len(hits) == 0 {
		return "", false
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h < best {
			best = h
		}
	}
	return d.keywords[best].label, true
}

// keywordText lowercases text, turns punctuation into spaces and pads it so
// that padded keywords only match whole words.
func keywordText(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

var defaultDetector = NewTypeDetector()

// normalizePropertyType maps free-form type labels ("Single Family
// Residence", "Condo/Co-op") onto the fixed label set.
func normalizePropertyType(s string) string {
	if label, ok := defaultDetector.Detect(s); ok {
		return label
	}
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}
