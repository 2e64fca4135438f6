package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() error = %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "standalone"
log_level = "debug"

[server]
port = 9090
rate_limit = 100
rate_window = "2s"

[oracle]
base_url = "https://oracle.example.com"
timeout = "5s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != "standalone" {
		t.Errorf("Mode = %q, want standalone", cfg.Mode)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.RateWindow.Duration != 2*time.Second {
		t.Errorf("Server.RateWindow = %v, want 2s", cfg.Server.RateWindow.Duration)
	}
	if cfg.Oracle.Timeout.Duration != 5*time.Second {
		t.Errorf("Oracle.Timeout = %v, want 5s", cfg.Oracle.Timeout.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want default 5432", cfg.Postgres.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESOLVD_SERVER_PORT", "7777")
	t.Setenv("RESOLVD_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("RESOLVD_S3_ENABLED", "true")
	t.Setenv("RESOLVD_ARCHIVE_INTERVAL", "10m")
	t.Setenv("RESOLVD_NOTIFY_EVENTS", "pool.resolved, stake.claimed")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("Postgres.Password not overridden")
	}
	if !cfg.S3.Enabled {
		t.Error("S3.Enabled not overridden")
	}
	if cfg.Archive.Interval.Duration != 10*time.Minute {
		t.Errorf("Archive.Interval = %v, want 10m", cfg.Archive.Interval.Duration)
	}
	if got := cfg.Notify.Events; len(got) != 2 || got[0] != "pool.resolved" || got[1] != "stake.claimed" {
		t.Errorf("Notify.Events = %v", got)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"unknown log_level", "server: port", "postgres: host", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}

	cfg = Defaults()
	cfg.Mode = "warp"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Errorf("error = %v, want unknown mode", err)
	}
}

func TestStandaloneSkipsBackendChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "standalone"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	cfg.Redis.Addr = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil in standalone mode", err)
	}
}
