// Package config loads service configuration from struct defaults, an
// optional YAML file and OTODOKI_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix scopes the environment variables read by Load.
	EnvPrefix = "OTODOKI_"
	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "CONFIG_PATH"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config is the full service configuration.
type Config struct {
	Server          ServerConfig          `koanf:"server" validate:"required"`
	Storage         StorageConfig         `koanf:"storage" validate:"required"`
	Catalog         CatalogConfig         `koanf:"catalog" validate:"required"`
	Queue           QueueConfig           `koanf:"queue" validate:"required"`
	Worker          WorkerConfig          `koanf:"worker" validate:"required"`
	Suggestions     SuggestionsConfig     `koanf:"suggestions" validate:"required"`
	Personalization PersonalizationConfig `koanf:"personalization" validate:"required"`
	Security        SecurityConfig        `koanf:"security"`
	Logging         LoggingConfig         `koanf:"logging" validate:"required"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	Environment       string        `koanf:"environment" validate:"oneof=development production test"`
}

// Addr is the listen address for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	Driver      string `koanf:"driver" validate:"oneof=sqlite postgres"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

type OAuthConfig struct {
	TokenURL     string   `koanf:"token_url" validate:"omitempty,url"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	Scopes       []string `koanf:"scopes"`
}

type CatalogConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	ChartsURL         string        `koanf:"charts_url" validate:"required,url"`
	Country           string        `koanf:"country" validate:"len=2"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoff      time.Duration `koanf:"retry_backoff" validate:"gte=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	ChartTTL          time.Duration `koanf:"chart_ttl" validate:"gt=0"`
	OAuth             OAuthConfig   `koanf:"oauth"`
}

type QueueConfig struct {
	Backend        string `koanf:"backend" validate:"oneof=memory redis"`
	Capacity       int    `koanf:"capacity" validate:"gte=1"`
	LowWatermark   int    `koanf:"low_watermark" validate:"gte=0"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db" validate:"gte=0"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`
}

type WorkerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Strategy     string        `koanf:"strategy" validate:"required"`
	Interval     time.Duration `koanf:"interval" validate:"gt=0"`
	BatchSize    int           `koanf:"batch_size" validate:"min=1,max=200"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"gte=1"`
	Workers      int           `koanf:"workers" validate:"gte=1"`
	JobQueueSize int           `koanf:"job_queue_size" validate:"gte=1"`
	Keywords     []string      `koanf:"keywords"`
	Genres       []string      `koanf:"genres"`
}

type SuggestionsConfig struct {
	DefaultLimit int `koanf:"default_limit" validate:"gte=1"`
	MaxLimit     int `koanf:"max_limit" validate:"gte=1"`
	// RatePerSecond and Burst size the global token bucket; zero disables it.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int     `koanf:"burst" validate:"gte=0"`
}

type PersonalizationConfig struct {
	MinLikes int `koanf:"min_likes" validate:"gte=1"`
}

type SecurityConfig struct {
	// JWTSecret signs bearer tokens. Empty disables authenticated routes.
	JWTSecret         string        `koanf:"jwt_secret" validate:"omitempty,min=32"`
	JWTIssuer         string        `koanf:"jwt_issuer"`
	JWTAudience       string        `koanf:"jwt_audience"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			Environment:       "development",
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "otodoki.db",
		},
		Catalog: CatalogConfig{
			BaseURL:           "https://itunes.apple.com",
			ChartsURL:         "https://rss.applemarketingtools.com/api/v2",
			Country:           "jp",
			Timeout:           10 * time.Second,
			MaxRetries:        3,
			RetryBackoff:      500 * time.Millisecond,
			RequestsPerSecond: 5,
			Burst:             5,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
			ChartTTL:          30 * time.Minute,
		},
		Queue: QueueConfig{
			Backend:        "memory",
			Capacity:       100,
			LowWatermark:   20,
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "otodoki:queue",
		},
		Worker: WorkerConfig{
			Enabled:      true,
			Strategy:     "chart_keyword",
			Interval:     30 * time.Second,
			BatchSize:    50,
			MaxAttempts:  3,
			Workers:      2,
			JobQueueSize: 16,
		},
		Suggestions: SuggestionsConfig{
			DefaultLimit:  10,
			MaxLimit:      50,
			RatePerSecond: 1,
			Burst:         10,
		},
		Personalization: PersonalizationConfig{
			MinLikes: 3,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file named by CONFIG_PATH, or the first of
// DefaultConfigPaths that exists, then applies the environment.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit file path. An empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps OTODOKI_QUEUE__LOW_WATERMARK to queue.low_watermark.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceFields are the paths that accept comma-separated strings from the environment.
var sliceFields = []string{
	"security.cors_origins",
	"catalog.oauth.scopes",
	"worker.keywords",
	"worker.genres",
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceFields {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the relations between fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}

	var errs []error
	if c.Queue.LowWatermark >= c.Queue.Capacity {
		errs = append(errs, fmt.Errorf("queue.low_watermark (%d) must be below queue.capacity (%d)", c.Queue.LowWatermark, c.Queue.Capacity))
	}
	if c.Queue.Backend == "redis" && c.Queue.RedisAddr == "" {
		errs = append(errs, errors.New("queue.redis_addr is required for the redis backend"))
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	}
	if c.Suggestions.DefaultLimit > c.Suggestions.MaxLimit {
		errs = append(errs, fmt.Errorf("suggestions.default_limit (%d) exceeds suggestions.max_limit (%d)", c.Suggestions.DefaultLimit, c.Suggestions.MaxLimit))
	}
	if c.Catalog.OAuth.TokenURL != "" && (c.Catalog.OAuth.ClientID == "" || c.Catalog.OAuth.ClientSecret == "") {
		errs = append(errs, errors.New("catalog.oauth requires client_id and client_secret when token_url is set"))
	}
	if c.Server.Environment == "production" && c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret is required in production"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
