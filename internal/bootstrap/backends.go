package bootstrap

import (
	"context"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infraes "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/elasticsearch"
	infragin "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/gin"
	infraredis "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/redis"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/database"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/storage"
)

// setupBackends opens the connections the selected backends need and
// builds the dead-letter store and record repository on top of them.
func (a *App) setupBackends(ctx context.Context) error {
	cfg := a.Config

	var db *sqlx.DB
	if cfg.UsesPostgres() {
		var err error
		if db, err = database.Connect(ctx, cfg.Database); err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.addCloser(db.Close)
		a.checks["database"] = infragin.PingChecker(db.PingContext, infragin.HealthStatusUnhealthy)
	}

	switch cfg.DeadLetter.Backend {
	case deadletter.BackendRedis:
		client, err := infraredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.addCloser(client.Close)
		a.checks["redis"] = infragin.PingChecker(redisPing(client), infragin.HealthStatusUnhealthy)
		a.DeadLetter = deadletter.NewRedisStore(client, cfg.DeadLetter.KeyPrefix)
	case deadletter.BackendPostgres:
		a.DeadLetter = deadletter.NewPostgresStore(db, cfg.DeadLetter.Table)
	default:
		a.DeadLetter = deadletter.NewMemoryStore()
	}

	switch cfg.Storage.Backend {
	case storage.BackendElasticsearch:
		client, err := infraes.NewClient(ctx, infraes.FromSettings(cfg.Elasticsearch), a.Logger)
		if err != nil {
			return fmt.Errorf("connect elasticsearch: %w", err)
		}
		index := cfg.Elasticsearch.Index
		if err = infraes.EnsureIndex(ctx, client, index, storage.ListingMapping, a.Logger); err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
		a.checks["elasticsearch"] = infragin.PingChecker(esPing(client), infragin.HealthStatusUnhealthy)
		a.Repository = storage.NewElasticsearchRepository(client, index)
	case storage.BackendPostgres:
		a.Repository = storage.NewPostgresRepository(db)
	default:
		a.Repository = storage.NewMemoryRepository()
	}
	return nil
}

func redisPing(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func esPing(client *es.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := client.Ping(client.Ping.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("elasticsearch ping: %s", res.Status())
		}
		return nil
	}
}
