// Package config loads the console cache configuration from a YAML file
// and the environment. Environment variables win over the file; the file
// may reference variables as ${NAME}.
package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tagcache"
	"github.com/unkn0wn-root/tagcache/resource"
	"github.com/unkn0wn-root/tagcache/transport"
)

type Config struct {
	API     API     `yaml:"api"     envPrefix:"CONSOLE_API_"`
	Auth    Auth    `yaml:"auth"    envPrefix:"CONSOLE_AUTH_"`
	Cache   Cache   `yaml:"cache"   envPrefix:"CONSOLE_CACHE_"`
	Log     Log     `yaml:"log"     envPrefix:"CONSOLE_LOG_"`
	Metrics Metrics `yaml:"metrics" envPrefix:"CONSOLE_METRICS_"`
}

// API is the remote endpoint. Routes are laid over resource.DefaultRoutes.
type API struct {
	BaseURL          string           `yaml:"base_url"           env:"BASE_URL"`
	Timeout          time.Duration    `yaml:"timeout"            env:"TIMEOUT"`
	BodyEncoding     string           `yaml:"body_encoding"      env:"BODY_ENCODING"`
	MaxResponseBytes int64            `yaml:"max_response_bytes" env:"MAX_RESPONSE_BYTES"`
	MaxPayloadBytes  int              `yaml:"max_payload_bytes"  env:"MAX_PAYLOAD_BYTES"`
	CoalesceReads    bool             `yaml:"coalesce_reads"     env:"COALESCE_READS"`
	UserAgent        string           `yaml:"user_agent"         env:"USER_AGENT"`
	Routes           transport.Routes `yaml:"routes"`
}

// Auth says where the bearer token is read from.
type Auth struct {
	// Source is one of "", "static", "env", "file", "redis". Empty means
	// no token: requests go out unauthenticated.
	Source   string `yaml:"source"    env:"SOURCE"`
	Token    string `yaml:"token"     env:"TOKEN"`
	EnvVar   string `yaml:"env_var"   env:"ENV_VAR"`
	File     string `yaml:"file"      env:"FILE"`
	Redis    Redis  `yaml:"redis"     envPrefix:"REDIS_"`
	RedisKey string `yaml:"redis_key" env:"REDIS_KEY"`
}

type Redis struct {
	Addr     string `yaml:"addr"     env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db"       env:"DB"`
}

type Cache struct {
	GracePeriod     time.Duration `yaml:"grace_period"     env:"GRACE_PERIOD"`
	StaleTime       time.Duration `yaml:"stale_time"       env:"STALE_TIME"`
	GenRetention    time.Duration `yaml:"gen_retention"    env:"GEN_RETENTION"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

type Log struct {
	// Backend is "zap", "logrus" or "slog".
	Backend string `yaml:"backend" env:"BACKEND"`
	Level   string `yaml:"level"   env:"LEVEL"`
	// HookSampling logs every Nth fetch event through slog hooks; 0 disables them.
	HookSampling uint64 `yaml:"hook_sampling" env:"HOOK_SAMPLING"`
	RedactKeys   bool   `yaml:"redact_keys"   env:"REDACT_KEYS"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled"   env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	Addr      string `yaml:"addr"      env:"ADDR"`
}

func Default() *Config {
	return &Config{
		API: API{
			Timeout:          30 * time.Second,
			BodyEncoding:     "json",
			MaxResponseBytes: 8 << 20,
			MaxPayloadBytes:  resource.DefaultMaxPayload,
			UserAgent:        "consolecache",
		},
		Cache: Cache{
			GracePeriod:     60 * time.Second,
			GenRetention:    time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Log:     Log{Backend: "zap", Level: "info"},
		Metrics: Metrics{Namespace: "console", Addr: ":9102"},
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// expandEnv replaces ${NAME} with the variable's value; unset variables are left as written.
func expandEnv(in string) string {
	return envPattern.ReplaceAllStringFunc(in, func(m string) string {
		if v, ok := os.LookupEnv(m[2 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch strings.ToLower(c.API.BodyEncoding) {
	case "", "json", "msgpack", "cbor":
	default:
		return fmt.Errorf("api.body_encoding %q is not one of json, msgpack, cbor", c.API.BodyEncoding)
	}
	for res, ops := range c.API.Routes {
		for op, rt := range ops {
			if rt.Path == "" {
				return fmt.Errorf("api.routes.%s.%s: path is required", res, op)
			}
		}
	}
	switch c.Auth.Source {
	case "", "static":
	case "env":
		if c.Auth.EnvVar == "" {
			return fmt.Errorf("auth.env_var is required for source env")
		}
	case "file":
		if c.Auth.File == "" {
			return fmt.Errorf("auth.file is required for source file")
		}
	case "redis":
		if c.Auth.Redis.Addr == "" || c.Auth.RedisKey == "" {
			return fmt.Errorf("auth.redis.addr and auth.redis_key are required for source redis")
		}
	default:
		return fmt.Errorf("auth.source %q is not one of static, env, file, redis", c.Auth.Source)
	}
	switch c.Log.Backend {
	case "", "zap", "logrus", "slog":
	default:
		return fmt.Errorf("log.backend %q is not one of zap, logrus, slog", c.Log.Backend)
	}
	if c.Cache.GracePeriod < 0 || c.Cache.StaleTime < 0 {
		return fmt.Errorf("cache durations must not be negative")
	}
	return nil
}

// Tokens builds the configured token source. release closes the Redis
// client when one was opened and is never nil.
func (c *Config) Tokens(ctx context.Context) (src transport.TokenSource, release func() error, err error) {
	noop := func() error { return nil }
	switch c.Auth.Source {
	case "":
		return nil, noop, nil
	case "static":
		return transport.StaticToken(c.Auth.Token), noop, nil
	case "env":
		return transport.EnvToken(c.Auth.EnvVar), noop, nil
	case "file":
		return transport.FileToken{Path: c.Auth.File}, noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Auth.Redis.Addr,
			Password: c.Auth.Redis.Password,
			DB:       c.Auth.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("redis token store: %w", err)
		}
		return transport.RedisToken{Client: rdb, Key: c.Auth.RedisKey}, rdb.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown auth source %q", c.Auth.Source)
}

// Transport returns the request executor configuration. reg decodes payloads.
func (c *Config) Transport(reg *resource.Registry, tokens transport.TokenSource) transport.Config {
	return transport.Config{
		BaseURL:          c.API.BaseURL,
		Routes:           resource.DefaultRoutes().Merge(c.API.Routes),
		Tokens:           tokens,
		Decoder:          reg,
		Timeout:          c.API.Timeout,
		BodyEncoding:     c.API.BodyEncoding,
		MaxResponseBytes: c.API.MaxResponseBytes,
		CoalesceReads:    c.API.CoalesceReads,
		UserAgent:        c.API.UserAgent,
	}
}

// Store returns the cache options for exec; logger and hooks may be nil.
func (c *Config) Store(exec tagcache.Executor, reg *resource.Registry, logger tagcache.Logger, hooks tagcache.Hooks) tagcache.Options {
	return tagcache.Options{
		Executor:        exec,
		Logger:          logger,
		Hooks:           hooks,
		GracePeriod:     c.Cache.GracePeriod,
		StaleTime:       c.Cache.StaleTime,
		GenRetention:    c.Cache.GenRetention,
		CleanupInterval: c.Cache.CleanupInterval,
		Tags:            reg.Tags(),
	}
}
