package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the document store backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate toggles creating the documents table on startup
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithManifestStorage selects where extension manifests are read from.
//
//	memory: no settings
//	fs:     base_dir
//	s3:     bucket, region, endpoint, key_prefix, access_key_id, secret_access_key,
//	        use_path_style, create_bucket_if_not_exist
func WithManifestStorage(storageType string, settings map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		switch storageType {
		case "memory", "fs", "s3":
		default:
			return fmt.Errorf("manifest storage type must be 'memory', 'fs' or 's3', got: %s", storageType)
		}
		cfg := make(map[string]interface{}, len(settings))
		for k, v := range settings {
			cfg[k] = v
		}
		c.ManifestStorage.Type = storageType
		c.ManifestStorage.Config = cfg
		return nil
	}
}

// WithManifestPrefix limits catalog syncs to manifest keys under prefix
func WithManifestPrefix(prefix string) Option {
	return func(c *ServerConfig) error {
		c.ManifestStorage.Prefix = prefix
		return nil
	}
}

// WithRedis shares per-course locks through Redis
func WithRedis(url string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.RedisURL = url
		if ttl > 0 {
			c.LockTTL = ttl
		}
		return nil
	}
}

// WithJWTSecret requires HS256 bearer tokens signed with secret on the API
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithAPIKeySHA256 requires an API key whose SHA-256 matches sha
func WithAPIKeySHA256(sha string) Option {
	return func(c *ServerConfig) error {
		c.APIKeySHA256 = sha
		return nil
	}
}

// WithUpdateConcurrency bounds concurrent document updates within one location
func WithUpdateConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		if n < 1 {
			return fmt.Errorf("update concurrency must be positive, got: %d", n)
		}
		c.UpdateConcurrency = n
		return nil
	}
}

// WithEventLogging toggles logging of extension and content events
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
