package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Listing is the typed form of an accepted extraction.
type Listing struct {
	Price        float64 `json:"price,omitempty"         mapstructure:"price"`
	Beds         float64 `json:"beds,omitempty"          mapstructure:"beds"`
	Baths        float64 `json:"baths,omitempty"         mapstructure:"baths"`
	Sqft         float64 `json:"sqft,omitempty"          mapstructure:"sqft"`
	LotSqft      float64 `json:"lot_sqft,omitempty"      mapstructure:"lot_sqft"`
	YearBuilt    int     `json:"year_built,omitempty"    mapstructure:"year_built"`
	Address      string  `json:"address,omitempty"       mapstructure:"address"`
	City         string  `json:"city,omitempty"          mapstructure:"city"`
	State        string  `json:"state,omitempty"         mapstructure:"state"`
	Zip          string  `json:"zip,omitempty"           mapstructure:"zip"`
	PropertyType string  `json:"property_type,omitempty" mapstructure:"property_type"`
	URL          string  `json:"url,omitempty"           mapstructure:"url"`
	Description  string  `json:"description,omitempty"   mapstructure:"description"`
}

// ListingFromFields decodes validated fields into a Listing. Unknown keys are
// ignored; numeric strings are accepted.
func ListingFromFields(fields Fields) (Listing, error) {
	var l Listing
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &l,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Listing{}, fmt.Errorf("create listing decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(fields)); err != nil {
		return Listing{}, fmt.Errorf("decode listing: %w", err)
	}
	return l, nil
}

// Record is what the pipeline hands to the storage repository.
type Record struct {
	ContentID   string    `db:"content_id"   json:"content_id"`
	ItemID      string    `db:"item_id"      json:"item_id"`
	Source      string    `db:"source"       json:"source"`
	Listing     Listing   `db:"-"            json:"listing"`
	Method      Method    `db:"method"       json:"method"`
	Confidence  float64   `db:"confidence"   json:"confidence"`
	ExtractedAt time.Time `db:"extracted_at" json:"extracted_at"`
}

// NewRecord builds a Record whose ContentID is stable for identical content,
// so repeated delivery of the same listing does not create duplicates.
func NewRecord(item WorkItem, result ExtractionResult, outcome ValidationOutcome, now time.Time) (Record, error) {
	listing, err := ListingFromFields(result.Fields)
	if err != nil {
		return Record{}, err
	}
	id, err := ContentID(item.Source, listing)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ContentID:   id,
		ItemID:      item.ItemID,
		Source:      item.Source,
		Listing:     listing,
		Method:      result.Method,
		Confidence:  outcome.Confidence,
		ExtractedAt: now,
	}, nil
}

// ContentID hashes the source and the canonical JSON of the listing.
func ContentID(source string, l Listing) (string, error) {
	canonical, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("marshal listing: %w", err)
	}
	sum := sha256.Sum256(append([]byte(source+"\x00"), canonical...))
	return hex.EncodeToString(sum[:]), nil
}
