package extraction

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// numericFields are stored as float64; everything else is text.
var numericFields = map[string]bool{
	domain.FieldPrice:     true,
	domain.FieldBeds:      true,
	domain.FieldBaths:     true,
	domain.FieldSqft:      true,
	domain.FieldLotSqft:   true,
	domain.FieldYearBuilt: true,
}

// fieldAliases maps a squashed key (lowercase, alphanumerics only) to its
// canonical field.
var fieldAliases = map[string]string{
	"price": domain.FieldPrice, "listprice": domain.FieldPrice, "askingprice": domain.FieldPrice,
	"listingprice": domain.FieldPrice, "saleprice": domain.FieldPrice, "amount": domain.FieldPrice,

	"beds": domain.FieldBeds, "bedrooms": domain.FieldBeds, "bed": domain.FieldBeds,
	"br": domain.FieldBeds, "numberofbedrooms": domain.FieldBeds, "numberofrooms": domain.FieldBeds,

	"baths": domain.FieldBaths, "bathrooms": domain.FieldBaths, "bath": domain.FieldBaths,
	"ba": domain.FieldBaths, "numberofbathroomstotal": domain.FieldBaths,

	"sqft": domain.FieldSqft, "squarefeet": domain.FieldSqft, "squarefootage": domain.FieldSqft,
	"livingarea": domain.FieldSqft, "area": domain.FieldSqft, "floorsize": domain.FieldSqft,
	"size": domain.FieldSqft,

	"lotsqft": domain.FieldLotSqft, "lotsize": domain.FieldLotSqft, "lotarea": domain.FieldLotSqft,

	"yearbuilt": domain.FieldYearBuilt, "built": domain.FieldYearBuilt, "yearconstructed": domain.FieldYearBuilt,

	"address": domain.FieldAddress, "streetaddress": domain.FieldAddress, "street": domain.FieldAddress,
	"city": domain.FieldCity, "town": domain.FieldCity, "addresslocality": domain.FieldCity,
	"state": domain.FieldState, "addressregion": domain.FieldState,
	"zip": domain.FieldZip, "zipcode": domain.FieldZip, "postalcode": domain.FieldZip, "postcode": domain.FieldZip,

	"propertytype": domain.FieldPropertyType, "type": domain.FieldPropertyType, "hometype": domain.FieldPropertyType,
	"url": domain.FieldURL, "link": domain.FieldURL, "listingurl": domain.FieldURL,
	"description": domain.FieldDescription, "remarks": domain.FieldDescription,
}

// CanonicalField resolves a loosely named key to a canonical field name.
func CanonicalField(key string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name, ok := fieldAliases[b.String()]
	return name, ok
}

var numberPattern = regexp.MustCompile(`(?i)(-?\d[\d,]*(?:\.\d+)?)\s*(k|mm|m|million|thousand)?\b`)

// ParseNumber reads the first number in s, tolerating currency symbols,
// thousands separators and k/M suffixes: "$450,000", "1.2M", "3 beds".
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := strings.HasPrefix(s, "-") || strings.HasPrefix(s, "-$") || strings.HasPrefix(s, "$-")
	s = strings.NewReplacer("$", "", "USD", "", "usd", "").Replace(s)

	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(m[1], "-"), ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k", "thousand":
		v *= 1e3
	case "m", "mm", "million":
		v *= 1e6
	}
	if negative {
		v = -v
	}
	return v, true
}

var squareMetres = regexp.MustCompile(`(?i)(m2|sq\.?\s*m\b|sqm|square\s+met)`)

const sqftPerSquareMetre = 10.7639

func toNumber(field string, v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		n, ok := ParseNumber(x)
		if ok && field == domain.FieldSqft && squareMetres.MatchString(x) {
			n = math.Round(n * sqftPerSquareMetre)
		}
		return n, ok
	case map[string]any:
		// schema.org QuantitativeValue: {"value": 1850, "unitCode": "FTK"}
		if inner, ok := x["value"]; ok {
			return toNumber(field, inner)
		}
	}
	return 0, false
}

func toText(field string, v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = NormalizeText(x)
	case float64:
		if field == domain.FieldZip {
			s = fmt.Sprintf("%05.0f", x)
		} else {
			s = strconv.FormatFloat(x, 'f', -1, 64)
		}
	default:
		return "", false
	}
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") || strings.EqualFold(s, "unknown") {
		return "", false
	}
	switch field {
	case domain.FieldState:
		if len(s) == 2 {
			s = strings.ToUpper(s)
		}
	case domain.FieldPropertyType:
		s = normalizePropertyType(s)
	}
	return s, true
}

// NormalizeFields maps raw key/value pairs onto canonical fields with
// coerced values. Unknown keys and unusable values are dropped. When two
// raw keys map to the same field, the first in sorted key order wins.
func NormalizeFields(raw map[string]any) domain.Fields {
	out := make(domain.Fields, len(raw))
	for _, key := range sortedKeys(raw) {
		field, ok := CanonicalField(key)
		if !ok {
			continue
		}
		if _, exists := out[field]; exists {
			continue
		}
		if numericFields[field] {
			if n, ok := toNumber(field, raw[key]); ok {
				out[field] = n
			}
			continue
		}
		if s, ok := toText(field, raw[key]); ok {
			out[field] = s
		}
	}
	return out
}

// unwrapListing descends into a single wrapper object such as
// {"listing": {...}} or {"data": {...}}.
func unwrapListing(obj map[string]any) map[string]any {
	for range 3 {
		if len(obj) != 1 {
			return obj
		}
		for _, v := range obj {
			inner, ok := v.(map[string]any)
			if !ok {
				return obj
			}
			obj = inner
		}
	}
	return obj
}
