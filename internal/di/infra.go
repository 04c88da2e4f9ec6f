package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/config"
	"github.com/prohmpiriya/crowdsense/pkg/database"
	"github.com/prohmpiriya/crowdsense/pkg/kafka"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	pkgredis "github.com/prohmpiriya/crowdsense/pkg/redis"
)

// Infra holds the external connections of a process
type Infra struct {
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer kafka.MessageProducer
	Repos    *Repositories
}

// OpenInfra connects the store, Redis and Kafka. The store is required;
// Redis and Kafka degrade to nil with a warning when unreachable.
func OpenInfra(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	infra := &Infra{}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		store := repository.NewMemoryStore()
		if cfg.Store.SeedFile != "" {
			if err := repository.LoadSeedFile(store, cfg.Store.SeedFile); err != nil {
				return nil, err
			}
			log.Info(fmt.Sprintf("Memory store seeded from %s", cfg.Store.SeedFile))
		}
		infra.Repos = MemoryRepositories(store)

	default:
		dbCfg := &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		}
		db, err := database.NewPostgres(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if _, err := db.Pool().Exec(ctx, repository.Schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		infra.DB = db
		infra.Repos = PostgresRepositories(db)
		log.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))
	}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 100 * time.Millisecond,
		})
		if err != nil {
			log.Warn(fmt.Sprintf("Redis connection failed, live occupancy cache and idempotency disabled: %v", err))
		} else {
			infra.Redis = redisClient
			cache := repository.NewRedisOccupancyCache(redisClient, cfg.Redis.OccupancyTTL)
			if err := cache.LoadScripts(ctx); err != nil {
				log.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
			}
			log.Info(fmt.Sprintf("Redis connected (%s)", cfg.Redis.Addr()))
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       cfg.Kafka.ClientID,
			MaxRetries:     3,
			RetryInterval:  time.Second,
			ProduceTimeout: 5 * time.Second,
		})
		if err != nil {
			log.Warn(fmt.Sprintf("Kafka connection failed, using no-op publishers: %v", err))
		} else {
			infra.Producer = producer
			log.Info("Kafka producer connected")
		}
	}

	return infra, nil
}

// Close releases every open connection
func (i *Infra) Close() {
	if i.Producer != nil {
		i.Producer.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
