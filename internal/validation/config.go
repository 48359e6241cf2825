package validation

import (
	"maps"
	"slices"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Default validator settings.
const (
	defaultThreshold         = 0.6
	defaultPresenceWeight    = 0.4
	defaultRangeWeight       = 0.3
	defaultConsistencyWeight = 0.15
	defaultFormatWeight      = 0.15
	defaultMinPricePerSqft   = 10
	defaultMaxPricePerSqft   = 10000
	// maxBathsOverBeds is how many more baths than beds a listing may claim.
	maxBathsOverBeds = 3
)

// Weights are the relative contributions of each check family to the
// confidence score.
type Weights struct {
	Presence    float64 `yaml:"presence"`
	Range       float64 `yaml:"range"`
	Consistency float64 `yaml:"consistency"`
	Format      float64 `yaml:"format"`
}

func (w Weights) total() float64 {
	return w.Presence + w.Range + w.Consistency + w.Format
}

// Bound is an inclusive numeric range.
type Bound struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Bound) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Config holds validator thresholds.
type Config struct {
	// Required fields must be present or the item is rejected outright.
	Required []string `yaml:"required"`
	// Optional fields only raise the presence score.
	Optional  []string         `yaml:"optional"`
	Threshold float64          `env:"VALIDATION_THRESHOLD" yaml:"threshold"`
	Weights   Weights          `yaml:"weights"`
	Bounds    map[string]Bound `yaml:"bounds"`
	// CurrentYear pins the year used by consistency checks. Zero means the
	// validator's clock.
	CurrentYear     int     `yaml:"current_year"`
	MinPricePerSqft float64 `yaml:"min_price_per_sqft"`
	MaxPricePerSqft float64 `yaml:"max_price_per_sqft"`
}

// DefaultBounds returns the plausible range of each numeric field.
func DefaultBounds() map[string]Bound {
	return map[string]Bound{
		domain.FieldPrice:     {Min: 1000, Max: 100_000_000},
		domain.FieldBeds:      {Min: 0, Max: 50},
		domain.FieldBaths:     {Min: 0, Max: 50},
		domain.FieldSqft:      {Min: 100, Max: 100_000},
		domain.FieldLotSqft:   {Min: 100, Max: 500_000_000},
		domain.FieldYearBuilt: {Min: 1700, Max: 2100},
	}
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Required == nil {
		c.Required = []string{domain.FieldPrice}
	}
	if c.Optional == nil {
		c.Optional = []string{
			domain.FieldBeds, domain.FieldBaths, domain.FieldSqft, domain.FieldYearBuilt,
			domain.FieldAddress, domain.FieldCity, domain.FieldState, domain.FieldZip,
			domain.FieldPropertyType,
		}
	}
	if c.Threshold == 0 {
		c.Threshold = defaultThreshold
	}
	if c.Weights.total() == 0 {
		c.Weights = Weights{
			Presence:    defaultPresenceWeight,
			Range:       defaultRangeWeight,
			Consistency: defaultConsistencyWeight,
			Format:      defaultFormatWeight,
		}
	}
	bounds := DefaultBounds()
	for field, b := range c.Bounds {
		bounds[field] = b
	}
	c.Bounds = bounds
	if c.MinPricePerSqft == 0 {
		c.MinPricePerSqft = defaultMinPricePerSqft
	}
	if c.MaxPricePerSqft == 0 {
		c.MaxPricePerSqft = defaultMaxPricePerSqft
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return infraconfig.Invalid("validation.threshold", "must be in [0, 1], got %v", c.Threshold)
	}
	weights := []struct {
		name  string
		value float64
	}{
		{"presence", c.Weights.Presence},
		{"range", c.Weights.Range},
		{"consistency", c.Weights.Consistency},
		{"format", c.Weights.Format},
	}
	for _, w := range weights {
		if w.value < 0 {
			return infraconfig.Invalid("validation.weights."+w.name, "must not be negative, got %v", w.value)
		}
	}
	if c.Weights.total() <= 0 {
		return infraconfig.Invalid("validation.weights", "must not all be zero")
	}
	for _, field := range slices.Sorted(maps.Keys(c.Bounds)) {
		if b := c.Bounds[field]; b.Min > b.Max {
			return infraconfig.Invalid("validation.bounds."+field, "min %v exceeds max %v", b.Min, b.Max)
		}
	}
	return nil
}
