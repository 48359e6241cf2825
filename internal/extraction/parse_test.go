package extraction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
)

func TestParseModelOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    domain.Fields
		wantErr error
	}{
		{
			name: "delimited",
			raw:  "Here you go.\n<<<LISTING>>>{\"price\": 1}<<<END>>>\nThanks",
			want: domain.Fields{"price": 1.0},
		},
		{
			name: "delimited without end marker",
			raw:  "<<<LISTING>>> {\"beds\": 2}",
			want: domain.Fields{"beds": 2.0},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"beds\": \"4\"}\n```",
			want: domain.Fields{"beds": 4.0},
		},
		{
			name: "bare object with braces in strings",
			raw:  `Result: {"description": "has {braces}", "baths": 1.5} done`,
			want: domain.Fields{"description": "has {braces}", "baths": 1.5},
		},
		{
			name: "wrapped listing",
			raw:  `{"listing": {"asking_price": "450k"}}`,
			want: domain.Fields{"price": 450000.0},
		},
		{
			name: "nulls dropped",
			raw:  `{"price": null, "city": "null", "beds": 2}`,
			want: domain.Fields{"beds": 2.0},
		},
		{
			name:    "no json",
			raw:     "I could not find anything.",
			wantErr: extraction.ErrMalformedOutput,
		},
		{
			name:    "unbalanced",
			raw:     `{"price": 1`,
			wantErr: extraction.ErrMalformedOutput,
		},
		{
			name:    "no known fields",
			raw:     `{"foo": 1}`,
			wantErr: extraction.ErrNoUsableContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := extraction.ParseModelOutput(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSONContent(t *testing.T) {
	t.Parallel()

	got := extraction.DecodeJSONContent(`[{"offers": {"price": "799000"}, "address": {"addressLocality": "Boise", "addressRegion": "id"}}]`)
	assert.Equal(t, domain.Fields{"price": 799000.0, "city": "Boise", "state": "ID"}, got)

	assert.Nil(t, extraction.DecodeJSONContent(`[]`))
	assert.Nil(t, extraction.DecodeJSONContent(`"just a string"`))
	assert.Nil(t, extraction.DecodeJSONContent(`not json`))
}
