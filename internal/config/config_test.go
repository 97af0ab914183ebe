package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Queue.Capacity != 100 || cfg.Queue.LowWatermark != 20 {
		t.Fatalf("queue: got %+v", cfg.Queue)
	}
	if cfg.Suggestions.DefaultLimit != 10 || cfg.Suggestions.MaxLimit != 50 {
		t.Fatalf("suggestions: got %+v", cfg.Suggestions)
	}
	if cfg.Personalization.MinLikes != 3 {
		t.Fatalf("min likes: got %d, want 3", cfg.Personalization.MinLikes)
	}
	if cfg.Worker.Strategy != "chart_keyword" {
		t.Fatalf("strategy: got %q", cfg.Worker.Strategy)
	}
}

func TestLoadFile_Layering(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9000
  shutdown_timeout: 3s
queue:
  capacity: 40
  low_watermark: 10
worker:
  strategy: genre_search
  genres: [J-Pop, Anime]
`)
	t.Setenv("OTODOKI_QUEUE__CAPACITY", "60")
	t.Setenv("OTODOKI_SECURITY__CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OTODOKI_LOGGING__LEVEL", "debug")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port: got %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("shutdown timeout: got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Queue.Capacity != 60 {
		t.Fatalf("env should override file: capacity got %d, want 60", cfg.Queue.Capacity)
	}
	if cfg.Queue.LowWatermark != 10 {
		t.Fatalf("low watermark: got %d, want 10", cfg.Queue.LowWatermark)
	}
	if cfg.Worker.Strategy != "genre_search" {
		t.Fatalf("strategy: got %q", cfg.Worker.Strategy)
	}
	if want := []string{"J-Pop", "Anime"}; !reflect.DeepEqual(cfg.Worker.Genres, want) {
		t.Fatalf("genres: got %v, want %v", cfg.Worker.Genres, want)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.Security.CORSOrigins, want) {
		t.Fatalf("cors: got %v, want %v", cfg.Security.CORSOrigins, want)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level: got %q", cfg.Logging.Level)
	}
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	path := writeFile(t, "server:\n  port: 7001\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Fatalf("port: got %d, want 7001", cfg.Server.Port)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "Defaults", mutate: func(c *Config) {}},
		{
			name:    "Watermark at capacity",
			mutate:  func(c *Config) { c.Queue.LowWatermark = c.Queue.Capacity },
			wantErr: "low_watermark",
		},
		{
			name:    "Postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "postgres_dsn",
		},
		{
			name:    "Unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mysql" },
			wantErr: "Driver",
		},
		{
			name:    "Redis without addr",
			mutate:  func(c *Config) { c.Queue.Backend = "redis"; c.Queue.RedisAddr = "" },
			wantErr: "redis_addr",
		},
		{
			name:    "Default above max",
			mutate:  func(c *Config) { c.Suggestions.DefaultLimit = 60 },
			wantErr: "default_limit",
		},
		{
			name:    "Short secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantErr: "JWTSecret",
		},
		{
			name:    "Production needs secret",
			mutate:  func(c *Config) { c.Server.Environment = "production" },
			wantErr: "jwt_secret",
		},
		{
			name:    "OAuth without credentials",
			mutate:  func(c *Config) { c.Catalog.OAuth.TokenURL = "https://auth.example/token" },
			wantErr: "client_id",
		},
		{
			name:    "Bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			c := defaultConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err: got %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"OTODOKI_QUEUE__LOW_WATERMARK":  "queue.low_watermark",
		"OTODOKI_CATALOG__OAUTH__SCOPES": "catalog.oauth.scopes",
		"OTODOKI_SERVER__PORT":           "server.port",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Fatalf("envKey(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := s.Addr(); got != "127.0.0.1:8080" {
		t.Fatalf("Addr: got %q", got)
	}
}
