package domain

// Method records which strategy produced an ExtractionResult. Every
// deterministic path, including direct JSON decoding, is MethodFallback.
type Method string

const (
	MethodLLMPrimary Method = "llm_primary"
	MethodFallback   Method = "fallback"
)

// Canonical listing field names.
const (
	FieldPrice        = "price"
	FieldBeds         = "beds"
	FieldBaths        = "baths"
	FieldSqft         = "sqft"
	FieldLotSqft      = "lot_sqft"
	FieldYearBuilt    = "year_built"
	FieldAddress      = "address"
	FieldCity         = "city"
	FieldState        = "state"
	FieldZip          = "zip"
	FieldPropertyType = "property_type"
	FieldURL          = "url"
	FieldDescription  = "description"
)

// Fields maps canonical field names to extracted values. Numeric fields hold
// float64, text fields hold string.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Number returns the numeric value of key, if present and numeric.
func (f Fields) Number(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Text returns the string value of key, if present and non-empty.
func (f Fields) Text(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok && s != ""
}

// ExtractionResult is produced by the extraction engine and consumed by the
// validator.
type ExtractionResult struct {
	ItemID         string `json:"item_id"`
	Fields         Fields `json:"fields"`
	Method         Method `json:"method"`
	RawModelOutput string `json:"raw_model_output,omitempty"`
	// Notes explain why the primary path was skipped or abandoned.
	Notes []string `json:"notes,omitempty"`
}

// Empty reports whether nothing was extracted.
func (r ExtractionResult) Empty() bool {
	return len(r.Fields) == 0
}
