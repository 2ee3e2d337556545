package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/internal/logger"
	sqlmigrations "mailwave/migrations"
	"mailwave/pkg/health"
	"mailwave/pkg/migrations"
)

const connectTimeout = 30 * time.Second

// Stores holds the connected backends. Mongo is always present after Connect;
// Redis and Postgres are nil when not requested, not configured or unreachable.
type Stores struct {
	Mongo    *mongo.Client
	DB       *mongo.Database
	Redis    *redis.Client
	Postgres *sql.DB
}

// Close releases every connected store and reports each failure.
func (s *Stores) Close(ctx context.Context) []error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}
	return errs
}

// Optional selects the stores a service can use beyond MongoDB.
type Optional struct {
	Redis    bool
	Postgres bool
}

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{Config: cfg, Logger: log}
}

// Connect opens MongoDB, ensures indexes on collections, and then opens the
// requested optional stores. Only a MongoDB failure or a failed Postgres
// migration is fatal.
func (dc *DatabaseConnector) Connect(ctx context.Context, opt Optional, collections ...string) (*Stores, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := dc.InitMongoDB(ctx)
	if err != nil {
		return nil, err
	}
	stores := &Stores{Mongo: client, DB: dc.MongoDatabase(client)}

	if len(collections) > 0 {
		if err := migrations.EnsureMongoIndexes(ctx, stores.DB, collections...); err != nil {
			dc.Logger.WarnwCtx(ctx, "Failed to ensure MongoDB indexes", "collections", collections, "error", err)
		} else {
			dc.Logger.Infow("MongoDB indexes ensured", "collections", collections)
		}
	}

	if opt.Redis && dc.Config.Database.Redis.Enabled() {
		rdb, err := dc.InitRedis(ctx)
		if err != nil {
			dc.Logger.WarnwCtx(ctx, "Redis unavailable, continuing without product cache and tick lock", "error", err)
		} else {
			stores.Redis = rdb
		}
	}

	if opt.Postgres && dc.Config.Database.Postgres.Enabled() {
		db, err := dc.InitPostgreSQL(ctx)
		if err != nil {
			dc.Logger.WarnwCtx(ctx, "PostgreSQL unavailable, audit trail disabled", "error", err)
			return stores, nil
		}
		if err := dc.MigratePostgres(db); err != nil {
			_ = db.Close()
			_ = stores.Close(ctx)
			return nil, err
		}
		stores.Postgres = db
	}

	return stores, nil
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Database.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Infow("Redis connected", "addr", rdb.Options().Addr)
	return rdb, nil
}

// postgresDSN builds a URL DSN so credentials with reserved characters survive.
func postgresDSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.DBName,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(dc.Config.Database.Postgres))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Infow("PostgreSQL connected", "host", dc.Config.Database.Postgres.Host)
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	uri := dc.Config.Database.MongoDB.URI
	if uri == "" {
		return nil, fmt.Errorf("database.mongodb.uri is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("mailwave"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Infow("MongoDB connected", "database", dc.Config.Database.MongoDB.Database)
	return client, nil
}

// MongoDatabase selects the configured database, falling back to the default name.
func (dc *DatabaseConnector) MongoDatabase(client *mongo.Client) *mongo.Database {
	name := dc.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return client.Database(name)
}

// MigratePostgres applies the embedded SQL migrations when
// database.run_migrations is set.
func (dc *DatabaseConnector) MigratePostgres(db *sql.DB) error {
	if !dc.Config.Database.RunMigrations {
		return nil
	}
	if err := migrations.RunPostgres(db, sqlmigrations.Postgres, "postgres"); err != nil {
		return err
	}
	dc.Logger.Infow("PostgreSQL migrations applied")
	return nil
}

// HealthRegistry registers a checker for every connected store. MongoDB is
// required; the cache, the audit store and the broker only degrade the service.
func (b *Base) HealthRegistry(stores *Stores) *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()
	if stores.Mongo != nil {
		registry.Register(health.NewMongoDBChecker(stores.Mongo))
	}
	if stores.Redis != nil {
		registry.RegisterOptional(health.NewRedisChecker(stores.Redis))
	}
	if stores.Postgres != nil {
		registry.RegisterOptional(health.NewPostgreSQLChecker(stores.Postgres))
	}
	if b.Producer != nil && b.Config.Broker.Type == "kafka" {
		registry.RegisterOptional(health.NewKafkaChecker(b.Config.Broker.Kafka.Brokers))
	}
	return registry
}
