package core

import (
	"context"
	"fmt"
	"time"

	"escrowcore/internal/cache"
	"escrowcore/internal/config"
	"escrowcore/internal/events"
	"escrowcore/internal/infra/evidence"
	memory "escrowcore/internal/infra/persistence/memory"
	"escrowcore/internal/infra/persistence/postgres"
	"escrowcore/internal/infra/persistence/sqlite"
	"escrowcore/pkg/domain"
)

// NewServiceFromConfig assembles a fully wired service from a configuration
// document: persistent store, evidence store, event publisher, and stats
// cache. Collaborators whose configuration is absent are simply not attached.
// Explicit options are applied last and win over configured collaborators.
func NewServiceFromConfig(ctx context.Context, cfg config.Config, opts ...ServiceOption) (*Service, error) {
	engine := NewDefaultRulesEngine()

	var (
		store domain.PersistentStore
		err   error
	)
	switch StorageDriver(cfg.Storage.Driver) {
	case StorageMemory:
		store = memory.NewStore(engine)
	case StorageSQLite:
		store, err = sqlite.NewStore(cfg.Storage.SQLitePath, engine)
	case StoragePostgres:
		store, err = postgres.NewStore(cfg.Storage.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var configured []ServiceOption

	if cfg.Evidence.Driver != "" {
		var evStore evidence.Store
		switch evidence.Driver(cfg.Evidence.Driver) {
		case evidence.DriverMemory:
			evStore = evidence.NewMemory()
		case evidence.DriverFilesystem:
			evStore, err = evidence.NewFilesystem(cfg.Evidence.FSRoot)
		case evidence.DriverS3:
			evStore, err = evidence.NewS3(ctx, evidence.S3Config{
				Bucket:    cfg.Evidence.S3Bucket,
				Region:    cfg.Evidence.S3Region,
				Endpoint:  cfg.Evidence.S3Endpoint,
				PathStyle: cfg.Evidence.S3PathStyle,
			})
		default:
			return nil, fmt.Errorf("unknown evidence driver %s", cfg.Evidence.Driver)
		}
		if err != nil {
			return nil, fmt.Errorf("open evidence store: %w", err)
		}
		configured = append(configured, WithEvidenceStore(evStore))
	}

	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		configured = append(configured, WithEvents(publisher))
	}

	if cfg.Cache.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		configured = append(configured, WithStatsCache(cache.NewRedisStatsCache(client, "", ttl)))
	}

	return NewService(store, append(configured, opts...)...), nil
}
