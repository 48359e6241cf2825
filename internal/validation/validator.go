// Package validation scores extracted listing fields and decides whether
// they are good enough to store.
package validation

import (
	"fmt"
	"maps"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Check family names, in evaluation order.
const (
	CheckPresence    = "presence"
	CheckRange       = "range"
	CheckConsistency = "consistency"
	CheckFormat      = "format"
)

// confidencePrecision is the rounding factor for confidence (4 decimals).
const confidencePrecision = 1e4

var (
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	statePattern = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Validator scores extracted fields. It holds no mutable state, so a
// single instance may be shared across goroutines.
type Validator struct {
	cfg   Config
	clock clock.Clock
}

// Option customises a Validator.
type Option func(*Validator)

// WithClock sets the clock used for the current year when the config does
// not pin one.
func WithClock(c clock.Clock) Option {
	return func(v *Validator) { v.clock = c }
}

// New creates a Validator with cfg's zero fields defaulted.
func New(cfg Config, opts ...Option) *Validator {
	v := &Validator{cfg: cfg.WithDefaults(), clock: clock.Real()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// check is the result of one check family before weighting.
type check struct {
	score   float64
	reasons []string
}

// Validate scores fields. Identical fields and config always produce an
// identical outcome.
func (v *Validator) Validate(itemID string, fields domain.Fields) domain.ValidationOutcome {
	presence, missing := v.presence(fields)
	checks := []struct {
		name   string
		weight float64
		result check
	}{
		{CheckPresence, v.cfg.Weights.Presence, presence},
		{CheckRange, v.cfg.Weights.Range, v.ranges(fields)},
		{CheckConsistency, v.cfg.Weights.Consistency, v.consistency(fields)},
		{CheckFormat, v.cfg.Weights.Format, format(fields)},
	}

	out := domain.ValidationOutcome{
		ItemID:          itemID,
		MissingRequired: missing,
		Reasons:         []string{},
		Checks:          make([]domain.CheckScore, 0, len(checks)),
	}
	var weighted float64
	for _, c := range checks {
		weighted += c.weight * c.result.score
		out.Reasons = append(out.Reasons, c.result.reasons...)
		out.Checks = append(out.Checks, domain.CheckScore{
			Name:   c.name,
			Score:  round(c.result.score),
			Weight: c.weight,
		})
	}
	out.Confidence = round(weighted / v.cfg.Weights.total())
	out.Accepted = len(missing) == 0 && out.Confidence >= v.cfg.Threshold
	if out.Confidence < v.cfg.Threshold {
		out.Reasons = append(out.Reasons, fmt.Sprintf("confidence %s below threshold %s",
			formatNumber(out.Confidence), formatNumber(v.cfg.Threshold)))
	}
	return out
}

func (v *Validator) presence(fields domain.Fields) (check, []string) {
	var (
		c       check
		missing []string
		absent  []string
	)
	total, present := 0, 0
	for _, field := range sortedUnique(v.cfg.Required) {
		total++
		if has(fields, field) {
			present++
			continue
		}
		missing = append(missing, field)
		c.reasons = append(c.reasons, "missing required field: "+field)
	}
	for _, field := range sortedUnique(v.cfg.Optional) {
		if slices.Contains(v.cfg.Required, field) {
			continue
		}
		total++
		if has(fields, field) {
			present++
			continue
		}
		absent = append(absent, field)
	}
	if len(absent) > 0 {
		c.reasons = append(c.reasons, "missing optional fields: "+strings.Join(absent, ", "))
	}
	c.score = 1
	if total > 0 {
		c.score = float64(present) / float64(total)
	}
	return c, missing
}

func (v *Validator) ranges(fields domain.Fields) check {
	var c check
	checked, passed := 0, 0
	for _, field := range sortedKeys(v.cfg.Bounds) {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		checked++
		n, ok := fields.Number(field)
		if !ok {
			c.reasons = append(c.reasons, fmt.Sprintf("%s is not numeric: %v", field, raw))
			continue
		}
		b := v.cfg.Bounds[field]
		if !b.contains(n) {
			c.reasons = append(c.reasons, fmt.Sprintf("%s %s outside [%s, %s]",
				field, formatNumber(n), formatNumber(b.Min), formatNumber(b.Max)))
			continue
		}
		passed++
	}
	c.score = ratio(passed, checked)
	return c
}

func (v *Validator) consistency(fields domain.Fields) check {
	var c check
	checked, passed := 0, 0

	beds, hasBeds := fields.Number(domain.FieldBeds)
	baths, hasBaths := fields.Number(domain.FieldBaths)
	if hasBeds && hasBaths {
		checked++
		if baths <= beds+maxBathsOverBeds {
			passed++
		} else {
			c.reasons = append(c.reasons, fmt.Sprintf("baths %s exceed beds %s by more than %d",
				formatNumber(baths), formatNumber(beds), maxBathsOverBeds))
		}
	}

	price, hasPrice := fields.Number(domain.FieldPrice)
	sqft, hasSqft := fields.Number(domain.FieldSqft)
	if hasPrice && hasSqft && sqft > 0 {
		checked++
		perSqft := price / sqft
		if perSqft >= v.cfg.MinPricePerSqft && perSqft <= v.cfg.MaxPricePerSqft {
			passed++
		} else {
			c.reasons = append(c.reasons, fmt.Sprintf("price per sqft %s outside [%s, %s]",
				formatNumber(math.Round(perSqft*100)/100), formatNumber(v.cfg.MinPricePerSqft), formatNumber(v.cfg.MaxPricePerSqft)))
		}
	}

	if year, ok := fields.Number(domain.FieldYearBuilt); ok {
		checked++
		current := v.currentYear()
		if year <= float64(current) {
			passed++
		} else {
			c.reasons = append(c.reasons, fmt.Sprintf("year_built %s is after current year %d", formatNumber(year), current))
		}
	}

	c.score = ratio(passed, checked)
	return c
}

func format(fields domain.Fields) check {
	var c check
	checked, passed := 0, 0

	if _, ok := fields[domain.FieldState]; ok {
		checked++
		if s, _ := fields.Text(domain.FieldState); statePattern.MatchString(s) {
			passed++
		} else {
			c.reasons = append(c.reasons, fmt.Sprintf("state %q is not a two-letter code", s))
		}
	}
	if _, ok := fields[domain.FieldURL]; ok {
		checked++
		if s, _ := fields.Text(domain.FieldURL); validURL(s) {
			passed++
		} else {
			c.reasons = append(c.reasons, fmt.Sprintf("url %q is not an absolute http(s) URL", s))
		}
	}
	if _, ok := fields[domain.FieldZip]; ok {
		checked++
		if s, _ := fields.Text(domain.FieldZip); zipPattern.MatchString(s) {
			passed++
		} else {
			c.reasons = append(c.reasons, fmt.Sprintf("zip %q does not match 5-digit or ZIP+4 format", s))
		}
	}

	c.score = ratio(passed, checked)
	return c
}

func (v *Validator) currentYear() int {
	if v.cfg.CurrentYear > 0 {
		return v.cfg.CurrentYear
	}
	return v.clock.Now().Year()
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func has(fields domain.Fields, field string) bool {
	v, ok := fields[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// ratio is passed/checked, or 1 when nothing applied.
func ratio(passed, checked int) float64 {
	if checked == 0 {
		return 1
	}
	return float64(passed) / float64(checked)
}

func round(f float64) float64 {
	return math.Round(f*confidencePrecision) / confidencePrecision
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedUnique(fields []string) []string {
	out := slices.Clone(fields)
	slices.Sort(out)
	return slices.Compact(out)
}

func sortedKeys(m map[string]Bound) []string {
	return slices.Sorted(maps.Keys(m))
}
