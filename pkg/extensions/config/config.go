package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions"
	"github.com/tendant/content-extensions/pkg/extensions/catalog"
	"github.com/tendant/content-extensions/pkg/extensions/lock"
	fsstorage "github.com/tendant/content-extensions/pkg/extensions/storage/fs"
	memorystorage "github.com/tendant/content-extensions/pkg/extensions/storage/memory"
	s3storage "github.com/tendant/content-extensions/pkg/extensions/storage/s3"
	"github.com/tendant/content-extensions/pkg/extensions/store/memory"
	storepg "github.com/tendant/content-extensions/pkg/extensions/store/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "content",
		AutoMigrate:  true,
		ManifestStorage: ManifestStorageConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		LockTTL:            lock.DefaultTTL,
		UpdateConcurrency:  extensions.DefaultUpdateConcurrency,
		EnableEventLogging: true,
	}
}

// ServerConfig represents configuration for the content-extensions service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Document store
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: content)
	AutoMigrate  bool   // create the documents table on startup

	// Extension manifests read by the catalog
	ManifestStorage ManifestStorageConfig

	// Per-course locking; an empty RedisURL keeps locks process-local
	RedisURL string
	LockTTL  time.Duration

	// HTTP guards
	JWTSecret    string
	APIKeySHA256 string

	UpdateConcurrency  int
	EnableEventLogging bool
}

// ManifestStorageConfig selects the blob store holding extension manifests
type ManifestStorageConfig struct {
	Type   string // "memory", "fs", "s3"
	Prefix string // only keys under this prefix are synced
	Config map[string]interface{}
}

// LoggerMode maps the environment to an internal/logger mode.
func (c *ServerConfig) LoggerMode() string {
	if c.Environment == "production" {
		return "prod"
	}
	return "dev"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.ManifestStorage.Type {
	case "memory":
	case "fs":
		if getString(c.ManifestStorage.Config, "base_dir", "") == "" {
			return errors.New("manifest storage 'fs' requires base_dir")
		}
	case "s3":
		if getString(c.ManifestStorage.Config, "bucket", "") == "" {
			return errors.New("manifest storage 's3' requires bucket")
		}
	default:
		return fmt.Errorf("unsupported manifest storage type: %s", c.ManifestStorage.Type)
	}

	if c.UpdateConcurrency < 1 {
		return fmt.Errorf("update concurrency must be positive, got: %d", c.UpdateConcurrency)
	}

	return nil
}

// Components are the wired collaborators built from a ServerConfig.
type Components struct {
	Service extensions.Service
	Store   extensions.Store
	Catalog *catalog.Catalog
	// Manifests is the blob store the catalog syncs from
	Manifests extensions.BlobStore
	Locker    lock.Locker
	JWTAuth   *jwtauth.JWTAuth // nil when no JWT secret is configured

	closers []func()
}

// Close releases database pools and Redis clients.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// BuildService wires the store, manifest storage, catalog, locker and service described by
// the configuration.
func (c *ServerConfig) BuildService(ctx context.Context, log *logger.Logger) (*Components, error) {
	if log == nil {
		log = logger.NewNop()
	}
	comps := &Components{}

	store, err := c.buildStore(ctx, comps)
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build store: %w", err)
	}
	comps.Store = store

	blobs, err := c.buildManifestStorage()
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build manifest storage: %w", err)
	}
	comps.Manifests = blobs
	comps.Catalog = catalog.New(blobs, store,
		catalog.WithPrefix(c.ManifestStorage.Prefix),
		catalog.WithLogger(log.With("component", "catalog")))

	locker, err := c.buildLocker(ctx, comps, log)
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build locker: %w", err)
	}
	comps.Locker = locker

	options := []extensions.Option{
		extensions.WithStore(store),
		extensions.WithLogger(log.With("component", "extensions")),
		extensions.WithUpdateConcurrency(c.UpdateConcurrency),
	}
	if c.EnableEventLogging {
		options = append(options, extensions.WithEventSink(extensions.NewLoggingEventSink(log.With("component", "events"))))
	} else {
		options = append(options, extensions.WithEventSink(extensions.NewNoopEventSink()))
	}

	svc, err := extensions.New(options...)
	if err != nil {
		comps.Close()
		return nil, err
	}
	comps.Service = svc

	if c.JWTSecret != "" {
		comps.JWTAuth = jwtauth.New("HS256", []byte(c.JWTSecret), nil)
	}

	return comps, nil
}

// buildStore creates a document Store based on the configuration
func (c *ServerConfig) buildStore(ctx context.Context, comps *Components) (extensions.Store, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, pool.Close)

		store := storepg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// buildManifestStorage creates the manifest BlobStore
func (c *ServerConfig) buildManifestStorage() (extensions.BlobStore, error) {
	cfg := c.ManifestStorage.Config
	switch c.ManifestStorage.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(cfg, "base_dir", "./data/manifests"),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(cfg, "region", "us-east-1"),
			Bucket:                 getString(cfg, "bucket", ""),
			Prefix:                 getString(cfg, "key_prefix", ""),
			AccessKeyID:            getString(cfg, "access_key_id", ""),
			SecretAccessKey:        getString(cfg, "secret_access_key", ""),
			Endpoint:               getString(cfg, "endpoint", ""),
			UsePathStyle:           getBool(cfg, "use_path_style", false),
			CreateBucketIfNotExist: getBool(cfg, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported manifest storage type: %s", c.ManifestStorage.Type)
	}
}

// buildLocker returns a Redis locker when RedisURL is set, otherwise a process-local one
func (c *ServerConfig) buildLocker(ctx context.Context, comps *Components, log *logger.Logger) (lock.Locker, error) {
	if c.RedisURL == "" {
		return lock.NewMemory(), nil
	}

	opts, err := goredis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	comps.closers = append(comps.closers, func() { _ = rdb.Close() })

	return lock.NewRedis(rdb, c.LockTTL, lock.WithLogger(log.With("component", "lock"))), nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
