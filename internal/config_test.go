package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/feinschmecker/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	limits := cfg.Tasks.Limits()
	if limits.Soft.Seconds() != 20 || limits.Hard.Seconds() != 30 || limits.MaxRetries != 3 {
		t.Errorf("limits = %+v", limits)
	}
}

func TestConfigSectionErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown coord backend", func(c *Config) { c.Coord.Backend = "redis" }, "coord"},
		{"nats coord without url", func(c *Config) { c.Coord.Backend = CoordNATS }, "NATSURL"},
		{"nats tasks without url", func(c *Config) { c.Tasks.Backend = TasksNATS }, "NATSURL"},
		{"hard limit below soft", func(c *Config) { c.Tasks.HardLimit = c.Tasks.SoftLimit / 2 }, "hard_time_limit"},
		{"default page above max", func(c *Config) { c.Pagination.DefaultPerPage = 500 }, "DefaultPerPage"},
		{"no graph location", func(c *Config) { c.Graph.Location = "" }, "Location"},
		{"bad metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "Path"},
		{"bad port", func(c *Config) { c.App.HTTP.Port = 70000 }, "Port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("FEINSCHMECKER_TOKEN", "s3cret")
	data := []byte(`
app:
  log_level: debug
  http:
    port: 9090
graph:
  location: /srv/graph.nt
  placeholders: true
tasks:
  soft_time_limit: 5s
  hard_time_limit: 8s
auth:
  mode: token
  token: ${FEINSCHMECKER_TOKEN}
cors:
  allowed_origins: ["https://app.example"]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("app = %+v", cfg.App)
	}
	if !cfg.Graph.Placeholders || cfg.Graph.CacheDir != "./data/cache" {
		t.Errorf("graph = %+v", cfg.Graph)
	}
	if cfg.Tasks.SoftLimit != 5*time.Second || cfg.Tasks.Workers != 4 {
		t.Errorf("tasks = %+v", cfg.Tasks)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Errorf("cors = %+v", cfg.CORS)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	t.Setenv("PORT", "")
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join("..", "config", "config.yaml"), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.HTTP.Port != 8080 || cfg.Coord.Backend != CoordSQLite {
		t.Errorf("cfg = %+v", cfg)
	}
}
