package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldbase.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("FIELDBASE_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/fieldbase.db" {
		t.Errorf("unexpected default db path %q", cfg.Database.Path)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.Interval.Std() != 5*time.Minute {
		t.Errorf("unexpected default sync interval %v", cfg.Sync.Interval.Std())
	}
	if cfg.Backup.KeepBackups != 10 || cfg.Backup.KeepRestoreLogs != 5 {
		t.Errorf("unexpected backup retention: %+v", cfg.Backup)
	}
	if cfg.Backup.AutoInterval.Std() != 24*time.Hour {
		t.Errorf("unexpected auto backup interval %v", cfg.Backup.AutoInterval.Std())
	}
	if cfg.Remote.Endpoint != "" {
		t.Errorf("remote endpoint must default empty, got %q", cfg.Remote.Endpoint)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
remote:
  endpoint: "https://sync.example.com/api"
  timeout: 5s
sync:
  interval: 90s
  max_attempts: 5
backup:
  dir: /var/lib/fieldbase/backups
  keep_backups: 3
legacy:
  dir: /var/lib/fieldbase/legacy
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Remote.Endpoint != "https://sync.example.com/api" {
		t.Errorf("unexpected endpoint %q", cfg.Remote.Endpoint)
	}
	if cfg.Remote.Timeout.Std() != 5*time.Second {
		t.Errorf("unexpected remote timeout %v", cfg.Remote.Timeout.Std())
	}
	if cfg.Sync.Interval.Std() != 90*time.Second || cfg.Sync.MaxAttempts != 5 {
		t.Errorf("unexpected sync config: %+v", cfg.Sync)
	}
	if cfg.Backup.Dir != "/var/lib/fieldbase/backups" || cfg.Backup.KeepBackups != 3 {
		t.Errorf("unexpected backup config: %+v", cfg.Backup)
	}
	if cfg.Legacy.Dir != "/var/lib/fieldbase/legacy" {
		t.Errorf("unexpected legacy dir %q", cfg.Legacy.Dir)
	}

	// Sections absent from the file keep their defaults
	if cfg.Sync.ProbeInterval.Std() != 10*time.Second {
		t.Errorf("unexpected probe interval %v", cfg.Sync.ProbeInterval.Std())
	}
	if cfg.Database.Path != "data/fieldbase.db" {
		t.Errorf("unexpected db path %q", cfg.Database.Path)
	}
}

func TestLoadFromFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
sync:
  max_attempts: 5
`)

	t.Setenv("FIELDBASE_PORT", "7070")
	t.Setenv("FIELDBASE_SYNC_MAX_ATTEMPTS", "2")
	t.Setenv("FIELDBASE_DB_PATH", "/tmp/override.db")
	t.Setenv("FIELDBASE_API_KEY", "s3cret")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env must win over file, got port %d", cfg.Server.Port)
	}
	if cfg.Sync.MaxAttempts != 2 {
		t.Errorf("env must win over file, got max attempts %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Auth.APIKey != "s3cret" {
		t.Errorf("API key must come from env, got %q", cfg.Auth.APIKey)
	}
	if cfg.Backup.Storage.AccessKey != "AKIAEXAMPLE" {
		t.Errorf("unexpected access key %q", cfg.Backup.Storage.AccessKey)
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
sync:
  interval: "five minutes"
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
	if !strings.Contains(err.Error(), "five minutes") {
		t.Errorf("error should name the bad value, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Sync.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "negative sync interval",
			mutate:  func(c *Config) { c.Sync.Interval = Duration(-time.Second) },
			wantErr: "intervals",
		},
		{
			name:    "zero keep backups",
			mutate:  func(c *Config) { c.Backup.KeepBackups = 0 },
			wantErr: "keep_backups",
		},
		{
			name: "bucket without endpoint",
			mutate: func(c *Config) {
				c.Backup.Storage.Bucket = "fieldbase-backups"
			},
			wantErr: "storage.endpoint",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newDefaults()
			tc.mutate(cfg)
			err := cfg.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}

	if err := newDefaults().validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	path := writeConfig(t, `
server:
  read_timeout: 1m30s
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ReadTimeout.Std() != 90*time.Second {
		t.Errorf("unexpected read timeout %v", cfg.Server.ReadTimeout.Std())
	}

	out, err := cfg.Server.ReadTimeout.MarshalYAML()
	if err != nil {
		t.Fatal(err)
	}
	if out != "1m30s" {
		t.Errorf("unexpected marshal output %v", out)
	}
}
