package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig is the environment surface read by WithEnv. Empty values leave the current
// configuration untouched.
type EnvConfig struct {
	Port              string        `env:"PORT" env-description:"HTTP port"`
	Environment       string        `env:"ENVIRONMENT" env-description:"development, production or testing"`
	DatabaseURL       string        `env:"DATABASE_URL" env-description:"memory or postgres://..."`
	DatabaseSchema    string        `env:"DATABASE_SCHEMA" env-description:"Postgres search_path"`
	ManifestURL       string        `env:"MANIFEST_URL" env-description:"memory://, file:///dir or s3://bucket?region=..."`
	ManifestPrefix    string        `env:"MANIFEST_PREFIX" env-description:"only sync manifests under this key prefix"`
	RedisURL          string        `env:"REDIS_URL" env-description:"redis://host:6379/0 for shared course locks"`
	LockTTL           time.Duration `env:"LOCK_TTL" env-description:"course lock expiry"`
	JWTSecret         string        `env:"JWT_SECRET" env-description:"HS256 secret guarding the API"`
	APIKeySHA256      string        `env:"API_KEY_SHA256" env-description:"SHA-256 of the accepted API key"`
	UpdateConcurrency int           `env:"UPDATE_CONCURRENCY" env-description:"parallel document updates per location"`
}

// ReadEnv reads EnvConfig with every variable name prefixed by prefix.
func ReadEnv(prefix string) (EnvConfig, error) {
	// cleanenv applies env-prefix to nested structs, so wrap EnvConfig in one.
	wrapper := reflect.StructOf([]reflect.StructField{{
		Name: "Env",
		Type: reflect.TypeOf(EnvConfig{}),
		Tag:  reflect.StructTag(fmt.Sprintf(`env-prefix:"%s"`, prefix)),
	}})
	v := reflect.New(wrapper)
	if err := cleanenv.ReadEnv(v.Interface()); err != nil {
		return EnvConfig{}, fmt.Errorf("read environment: %w", err)
	}
	return v.Elem().Field(0).Interface().(EnvConfig), nil
}

// WithEnv applies environment variable overrides using the provided prefix.
//
// Database:
//
//	DATABASE_URL - "memory" (default) or "postgres://..." / "postgresql://..."
//
// Manifests:
//
//	MANIFEST_URL - one of:
//	               - "memory://" (default)
//	               - "file:///path/to/manifests"
//	               - "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&prefix=catalog&path_style=true"
//
// Locks:
//
//	REDIS_URL - "redis://host:6379/0"; unset keeps locks process-local
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		env, err := ReadEnv(prefix)
		if err != nil {
			return err
		}

		if env.Port != "" {
			c.Port = env.Port
		}
		if env.Environment != "" {
			c.Environment = env.Environment
		}
		if env.DatabaseSchema != "" {
			c.DBSchema = env.DatabaseSchema
		}
		if err := applyDatabaseURL(env.DatabaseURL, c); err != nil {
			return err
		}
		if err := applyManifestURL(env.ManifestURL, c); err != nil {
			return err
		}
		if env.ManifestPrefix != "" {
			c.ManifestStorage.Prefix = env.ManifestPrefix
		}
		if env.RedisURL != "" {
			c.RedisURL = env.RedisURL
		}
		if env.LockTTL > 0 {
			c.LockTTL = env.LockTTL
		}
		if env.JWTSecret != "" {
			c.JWTSecret = env.JWTSecret
		}
		if env.APIKeySHA256 != "" {
			c.APIKeySHA256 = env.APIKeySHA256
		}
		if env.UpdateConcurrency != 0 {
			c.UpdateConcurrency = env.UpdateConcurrency
		}
		return nil
	}
}

// applyDatabaseURL auto-detects the store type from the URL
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "" || dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyManifestURL configures manifest storage from a URL
func applyManifestURL(manifestURL string, c *ServerConfig) error {
	switch {
	case manifestURL == "" || manifestURL == "memory" || manifestURL == "memory://":
		c.ManifestStorage.Type = "memory"
		c.ManifestStorage.Config = map[string]interface{}{}
		return nil
	case strings.HasPrefix(manifestURL, "file://"):
		path := strings.TrimPrefix(manifestURL, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in MANIFEST_URL")
		}
		c.ManifestStorage.Type = "fs"
		c.ManifestStorage.Config = map[string]interface{}{"base_dir": path}
		return nil
	case strings.HasPrefix(manifestURL, "s3://"):
		return applyS3ManifestURL(manifestURL, c)
	}
	return fmt.Errorf("unsupported MANIFEST_URL format: %s (use 'memory://', 'file://...', or 's3://...')", manifestURL)
}

// applyS3ManifestURL parses s3://bucket?region=..&endpoint=..&prefix=..&path_style=..
func applyS3ManifestURL(raw string, c *ServerConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid MANIFEST_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in MANIFEST_URL")
	}

	q := u.Query()
	cfg := map[string]interface{}{
		"bucket": u.Host,
		"region": "us-east-1",
	}
	if v := q.Get("region"); v != "" {
		cfg["region"] = v
	}
	if v := q.Get("endpoint"); v != "" {
		cfg["endpoint"] = v
	}
	if v := q.Get("prefix"); v != "" {
		cfg["key_prefix"] = v
	}
	if v := q.Get("path_style"); v != "" {
		cfg["use_path_style"] = v
	}
	if v := q.Get("create_bucket"); v != "" {
		cfg["create_bucket_if_not_exist"] = v
	}

	// Credentials and region from the standard AWS variables
	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		cfg["access_key_id"] = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		cfg["secret_access_key"] = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && q.Get("region") == "" {
		cfg["region"] = region
	}

	c.ManifestStorage.Type = "s3"
	c.ManifestStorage.Config = cfg
	return nil
}
