// Package config loads deployment configuration for the escrow engine from a
// YAML file with environment variable overrides. Environment variables always
// win, so containerized deployments can run without a file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and parameterizes the persistent store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EvidenceConfig selects and parameterizes the dispute evidence store.
type EvidenceConfig struct {
	Driver      string `yaml:"driver"` // fs|s3|memory
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// EventsConfig parameterizes the AMQP lifecycle event publisher. Publishing
// is disabled when the URL is empty.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// CacheConfig parameterizes the redis registry statistics cache. Caching is
// disabled when the address is empty.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// Config is the root configuration document.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Evidence EvidenceConfig `yaml:"evidence"`
	Events   EventsConfig   `yaml:"events"`
	Cache    CacheConfig    `yaml:"cache"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Storage:  StorageConfig{Driver: "sqlite", SQLitePath: "escrowcore.db"},
		Evidence: EvidenceConfig{Driver: "fs", FSRoot: "./evidencedata"},
		Events:   EventsConfig{Exchange: "escrow.events"},
		Cache:    CacheConfig{TTLSeconds: 30},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), layered over defaults, then applies environment variable
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env overrides
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	overrideFromEnv(&cfg)
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	setString(&cfg.Storage.Driver, "ESCROWCORE_STORAGE_DRIVER")
	setString(&cfg.Storage.SQLitePath, "ESCROWCORE_SQLITE_PATH")
	setString(&cfg.Storage.PostgresDSN, "ESCROWCORE_POSTGRES_DSN")

	setString(&cfg.Evidence.Driver, "ESCROWCORE_EVIDENCE_DRIVER")
	setString(&cfg.Evidence.FSRoot, "ESCROWCORE_EVIDENCE_FS_ROOT")
	setString(&cfg.Evidence.S3Bucket, "ESCROWCORE_EVIDENCE_S3_BUCKET")
	setString(&cfg.Evidence.S3Region, "ESCROWCORE_EVIDENCE_S3_REGION")
	setString(&cfg.Evidence.S3Endpoint, "ESCROWCORE_EVIDENCE_S3_ENDPOINT")
	setBool(&cfg.Evidence.S3PathStyle, "ESCROWCORE_EVIDENCE_S3_PATH_STYLE")

	setString(&cfg.Events.AMQPURL, "ESCROWCORE_AMQP_URL")
	setString(&cfg.Events.Exchange, "ESCROWCORE_AMQP_EXCHANGE")

	setString(&cfg.Cache.RedisAddr, "ESCROWCORE_REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "ESCROWCORE_REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "ESCROWCORE_REDIS_DB")
	setInt(&cfg.Cache.TTLSeconds, "ESCROWCORE_CACHE_TTL_SECONDS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
