package extraction

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Output delimiters the model is asked to wrap its JSON in.
const (
	StartDelimiter = "<<<LISTING>>>"
	EndDelimiter   = "<<<END>>>"
)

// ErrMalformedOutput is returned when no JSON object can be recovered from
// a model reply.
var ErrMalformedOutput = errors.New("malformed model output")

// ErrNoUsableContent is returned when the reply parsed but held no known
// listing field.
var ErrNoUsableContent = errors.New("model output has no listing fields")

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// ParseModelOutput recovers listing fields from a model reply. It tries, in
// order, the delimited segment, a fenced json block and the first balanced
// object anywhere in the text.
func ParseModelOutput(raw string) (domain.Fields, error) {
	for _, candidate := range candidates(raw) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		fields := NormalizeFields(flattenListing(unwrapListing(obj)))
		if len(fields) == 0 {
			return nil, ErrNoUsableContent
		}
		return fields, nil
	}
	return nil, ErrMalformedOutput
}

func candidates(raw string) []string {
	var out []string

	if start := strings.Index(raw, StartDelimiter); start >= 0 {
		segment := raw[start+len(StartDelimiter):]
		if end := strings.Index(segment, EndDelimiter); end >= 0 {
			segment = segment[:end]
		}
		segment = strings.TrimSpace(segment)
		out = append(out, segment)
		if m := fencedJSON.FindStringSubmatch(segment); m != nil {
			out = append(out, m[1])
		}
		if obj, ok := firstObject(segment); ok {
			out = append(out, obj)
		}
	}

	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	if obj, ok := firstObject(raw); ok {
		out = append(out, obj)
	}
	return out
}

// firstObject returns the first balanced {...} in s, skipping braces inside
// JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// DecodeJSONContent reads listing fields from JSON content, such as a
// source API response. Arrays yield their first object.
func DecodeJSONContent(content string) domain.Fields {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return nil
		}
		v = arr[0]
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return NormalizeFields(flattenListing(unwrapListing(obj)))
}

// flattenListing lifts nested address and offer objects, as found in
// schema.org JSON-LD, to the top level.
func flattenListing(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, nested := range []string{"address", "offers", "location", "floorSize"} {
		inner, ok := obj[nested].(map[string]any)
		if !ok {
			continue
		}
		if nested != "floorSize" {
			delete(out, nested)
		}
		for k, v := range inner {
			if _, exists := out[k]; !exists && k != "@type" {
				out[k] = v
			}
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
