package dealrush

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dealrush/dealrush/pkg/cache"
	"github.com/dealrush/dealrush/pkg/db"
	"github.com/dealrush/dealrush/pkg/events"
	"github.com/dealrush/dealrush/pkg/idgen"
	"github.com/dealrush/dealrush/pkg/kv"
	"github.com/dealrush/dealrush/pkg/lock"
	"github.com/dealrush/dealrush/pkg/redis"
	"github.com/dealrush/dealrush/seckill"
)

// Config holds everything needed to stand up the service core,
// populated from the environment.
type Config struct {
	// Redis connection URL (redis:// or rediss://).
	RedisURL string `env:"REDIS_URL,required"`

	// Store-of-record connection settings.
	DB db.Config

	// Kafka brokers for order-created events. Empty disables publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	OrdersTopic  string   `env:"KAFKA_ORDERS_TOPIC" envDefault:"orders.created"`
}

// Option configures the assembled service.
type Option func(*assembly)

type assembly struct {
	logger      *slog.Logger
	cacheOpts   []cache.Option
	engineOpts  []seckill.EngineOption
	catalogOpts []seckill.CatalogOption
	skipMigrate bool
}

// WithLogger sets the logger shared by all components.
// Default: discard
func WithLogger(log *slog.Logger) Option {
	return func(a *assembly) {
		a.logger = log
	}
}

// WithCacheOptions forwards options to the cache client.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(a *assembly) {
		a.cacheOpts = append(a.cacheOpts, opts...)
	}
}

// WithEngineOptions forwards options to the order engine.
func WithEngineOptions(opts ...seckill.EngineOption) Option {
	return func(a *assembly) {
		a.engineOpts = append(a.engineOpts, opts...)
	}
}

// WithCatalogOptions forwards options to the voucher catalog.
func WithCatalogOptions(opts ...seckill.CatalogOption) Option {
	return func(a *assembly) {
		a.catalogOpts = append(a.catalogOpts, opts...)
	}
}

// WithoutMigrations skips schema migration on startup, for deployments
// that migrate out of band.
func WithoutMigrations() Option {
	return func(a *assembly) {
		a.skipMigrate = true
	}
}

// Service is the assembled flash-sale core.
type Service struct {
	Engine  *seckill.Engine
	Catalog *seckill.Catalog
	Repo    *seckill.Repository

	cache     *cache.Client
	redis     goredis.UniversalClient
	pool      *pgxpool.Pool
	publisher *events.KafkaPublisher
}

// New connects to Redis and PostgreSQL, applies migrations, and wires
// the engine, catalog, lock, and id generator onto the shared stores.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	a := &assembly{}
	for _, opt := range opts {
		opt(a)
	}
	log := a.logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	redisClient, err := redis.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	if !a.skipMigrate {
		if err := seckill.Migrate(ctx, pool, cfg.DB.MigrationsTable, log); err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, err
		}
	}

	store := kv.NewRedis(redisClient)
	cacheClient := cache.New(store, append([]cache.Option{cache.WithLogger(log)}, a.cacheOpts...)...)

	repo := seckill.NewRepository(pool)
	catalog := seckill.NewCatalog(repo, cacheClient, a.catalogOpts...)

	var publisher *events.KafkaPublisher
	engineOpts := append([]seckill.EngineOption{seckill.WithEngineLogger(log)}, a.engineOpts...)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrdersTopic)
		engineOpts = append(engineOpts, seckill.WithPublisher(publisher))
	}

	engine := seckill.NewEngine(catalog, repo, lock.New(store), idgen.New(store), engineOpts...)

	return &Service{
		Engine:    engine,
		Catalog:   catalog,
		Repo:      repo,
		cache:     cacheClient,
		redis:     redisClient,
		pool:      pool,
		publisher: publisher,
	}, nil
}

// Healthcheck pings both backing stores.
func (s *Service) Healthcheck(ctx context.Context) error {
	if err := redis.Healthcheck(s.redis)(ctx); err != nil {
		return err
	}
	return s.pool.Ping(ctx)
}

// Close releases all resources: in-flight cache rebuilds are drained,
// then the publisher and both connections are closed.
func (s *Service) Close(ctx context.Context) error {
	errs := []error{s.cache.Close()}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	errs = append(errs, redis.Shutdown(s.redis)(ctx), db.Shutdown(s.pool)(ctx))
	return errors.Join(errs...)
}
