package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// ListingMapping is the index mapping for listing records.
const ListingMapping = `{
  "mappings": {
    "properties": {
      "content_id":   {"type": "keyword"},
      "item_id":      {"type": "keyword"},
      "source":       {"type": "keyword"},
      "method":       {"type": "keyword"},
      "confidence":   {"type": "float"},
      "extracted_at": {"type": "date"},
      "listing": {
        "properties": {
          "price":         {"type": "double"},
          "beds":          {"type": "float"},
          "baths":         {"type": "float"},
          "sqft":          {"type": "double"},
          "lot_sqft":      {"type": "double"},
          "year_built":    {"type": "integer"},
          "address":       {"type": "text"},
          "city":          {"type": "keyword"},
          "state":         {"type": "keyword"},
          "zip":           {"type": "keyword"},
          "property_type": {"type": "keyword"},
          "url":           {"type": "keyword"},
          "description":   {"type": "text"}
        }
      }
    }
  }
}`

// ElasticsearchRepository indexes records by content id. Re-indexing the
// same id overwrites the identical document.
type ElasticsearchRepository struct {
	client *es.Client
	index  string
}

// NewElasticsearchRepository creates a repository on index.
func NewElasticsearchRepository(client *es.Client, index string) *ElasticsearchRepository {
	return &ElasticsearchRepository{client: client, index: index}
}

// Store implements Repository.
func (r *ElasticsearchRepository) Store(ctx context.Context, record domain.Record) (string, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("%w: marshal record: %w", domain.ErrStorage, err)
	}

	res, err := r.client.Index(r.index, bytes.NewReader(body),
		r.client.Index.WithDocumentID(record.ContentID),
		r.client.Index.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("%w: index %s: %w", domain.ErrStorage, record.ContentID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("%w: index %s: status %d: %s", domain.ErrStorage, record.ContentID, res.StatusCode, msg)
	}
	return record.ContentID, nil
}

type getResponse struct {
	Found  bool          `json:"found"`
	Source domain.Record `json:"_source"`
}

// Get implements Repository.
func (r *ElasticsearchRepository) Get(ctx context.Context, contentID string) (*domain.Record, error) {
	res, err := r.client.Get(r.index, contentID, r.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrStorage, contentID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: get %s: status %d", domain.ErrStorage, contentID, res.StatusCode)
	}

	var doc getResponse
	if decodeErr := json.NewDecoder(res.Body).Decode(&doc); decodeErr != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrStorage, contentID, decodeErr)
	}
	if !doc.Found {
		return nil, domain.ErrNotFound
	}
	return &doc.Source, nil
}
