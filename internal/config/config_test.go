package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
trawl:
  concurrency: 6
  user_agent: real-agent
  fetch_timeout_ms: 12000
  deadline_ms: 240000
  render_delay_ms: 1500
  max_images_per_site: 10
  max_retries: 2
  backoff_initial_ms: 250
  domain_qps: 2
render:
  enabled: false
store:
  provider: memory
images:
  gcs_bucket: bucket
  object: prints.json
pubsub:
  enabled: true
  project_id: proj
  topic_name: trawl-runs
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Trawl.Concurrency != 6 || cfg.Trawl.UserAgent != "real-agent" {
		t.Fatalf("expected trawl overrides to apply: %+v", cfg.Trawl)
	}
	if cfg.Render.Enabled {
		t.Fatalf("expected render disabled")
	}
	if cfg.Store.Provider != "memory" {
		t.Fatalf("expected memory store, got %q", cfg.Store.Provider)
	}
	if cfg.Images.GCSBucket != "bucket" || cfg.Images.Object != "prints.json" {
		t.Fatalf("expected image fingerprint overrides: %+v", cfg.Images)
	}
	if got := cfg.FetchTimeout(); got != 12*time.Second {
		t.Fatalf("expected fetch timeout 12s, got %v", got)
	}
	if got := cfg.Deadline(); got != 4*time.Minute {
		t.Fatalf("expected deadline 4m, got %v", got)
	}
	if got := cfg.RenderDelay(); got != 1500*time.Millisecond {
		t.Fatalf("expected render delay 1.5s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Trawl.Concurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.Trawl.Concurrency)
	}
	if cfg.Store.Provider != "file" {
		t.Fatalf("expected file store default, got %q", cfg.Store.Provider)
	}
	if !cfg.Render.Enabled {
		t.Fatalf("expected render enabled by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Trawl:  TrawlConfig{Concurrency: 1, FetchTimeoutMs: 10000, DeadlineMs: 180000},
		Store:  StoreConfig{Provider: "file"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Trawl.Concurrency = 0
				return c
			}(),
			want: "trawl.concurrency",
		},
		{
			name: "fetch timeout below floor",
			cfg: func() Config {
				c := base
				c.Trawl.FetchTimeoutMs = 500
				return c
			}(),
			want: "trawl.fetch_timeout_ms",
		},
		{
			name: "deadline below floor",
			cfg: func() Config {
				c := base
				c.Trawl.DeadlineMs = 2000
				return c
			}(),
			want: "trawl.deadline_ms",
		},
		{
			name: "unknown store provider",
			cfg: func() Config {
				c := base
				c.Store.Provider = "redis"
				return c
			}(),
			want: "store.provider",
		},
		{
			name: "postgres missing dsn",
			cfg: func() Config {
				c := base
				c.Store.Provider = "postgres"
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
