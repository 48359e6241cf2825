//go:build integration

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcelasticsearch "github.com/testcontainers/testcontainers-go/modules/elasticsearch"
	"github.com/testcontainers/testcontainers-go/wait"

	infraes "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/elasticsearch"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/storage"
)

const startupTimeout = 90 * time.Second

func TestElasticsearchRepository_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := tcelasticsearch.Run(ctx,
		"docker.elastic.co/elasticsearch/elasticsearch:8.11.0",
		tcelasticsearch.WithPassword("changeme"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/").WithPort("9200/tcp").WithStartupTimeout(startupTimeout),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	client, err := infraes.NewClient(ctx, infraes.Config{
		URL:      container.Settings.Address,
		Username: "elastic",
		Password: container.Settings.Password,
		TLS:      &infraes.TLSConfig{Enabled: container.Settings.CACert != nil, InsecureSkipVerify: true},
	}, infralogger.NewNop())
	require.NoError(t, err)
	require.NoError(t, infraes.EnsureIndex(ctx, client, "listings", storage.ListingMapping, infralogger.NewNop()))

	repo := storage.NewElasticsearchRepository(client, "listings")
	rec := sampleRecord(t)

	for range 2 {
		id, storeErr := repo.Store(ctx, rec)
		require.NoError(t, storeErr)
		assert.Equal(t, rec.ContentID, id)
	}

	got, err := repo.Get(ctx, rec.ContentID)
	require.NoError(t, err)
	assert.Equal(t, rec.Listing, got.Listing)
}
