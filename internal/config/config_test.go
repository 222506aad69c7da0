package config

import (
	"os"
	"path/filepath"
	"testing"
)

var envKeys = []string{
	"ROUNDTABLE_PROVIDER", "ROUNDTABLE_MODEL", "OPENROUTER_API_KEY", "OPENROUTER_REFERER",
	"OPENROUTER_APP_TITLE", "PORT", "ROUNDTABLE_DB", "ROUNDTABLE_REDIS_ADDR",
	"ROUNDTABLE_LOG_LEVEL", "ROUNDTABLE_LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":4173" {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	name, prov := cfg.ActiveProvider()
	if name != DefaultProvider || prov.BaseURL != DefaultBaseURL || prov.Model != DefaultModel {
		t.Fatalf("unexpected provider %s %+v", name, prov)
	}
	if prov.Referer != DefaultReferer || prov.AppTitle != DefaultAppTitle {
		t.Fatalf("unexpected headers %+v", prov)
	}
	if prov.APIKey != "" {
		t.Fatalf("expected no credential, got %q", prov.APIKey)
	}
	if cfg.BasicConfig.MinWorkers != 2 || cfg.BasicConfig.MaxWorkers != 8 || cfg.BasicConfig.QueueSize != 64 {
		t.Fatalf("unexpected worker defaults %+v", cfg.BasicConfig)
	}
	if cfg.Databases[DefaultDatabase].DSN != DefaultSQLiteDSN {
		t.Fatalf("unexpected sqlite dsn %q", cfg.Databases[DefaultDatabase].DSN)
	}
	if cfg.RedisEnabled() {
		t.Fatalf("redis should be disabled by default")
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadFileResolvesSQLitePath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
  "basic_config": {"server_address": ":9000", "min_workers": 4, "max_workers": 2},
  "databases": {"sqlite3": {"dsn": "data/rounds.db"}},
  "redis": {"host": "cache.local"}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.MaxWorkers != 4 {
		t.Fatalf("max workers should be raised to min, got %d", cfg.BasicConfig.MaxWorkers)
	}
	if want := filepath.Join(dir, "data", "rounds.db"); cfg.Databases[DefaultDatabase].DSN != want {
		t.Fatalf("expected %s, got %s", want, cfg.Databases[DefaultDatabase].DSN)
	}
	if !cfg.RedisEnabled() || cfg.Redis.Port != 6379 {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("OPENROUTER_APP_TITLE", "Night Shift")
	t.Setenv("ROUNDTABLE_MODEL", "meta/llama")
	t.Setenv("PORT", "8081")
	t.Setenv("ROUNDTABLE_DB", "MySQL")
	t.Setenv("ROUNDTABLE_REDIS_ADDR", "10.0.0.5:6380")
	t.Setenv("ROUNDTABLE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, prov := cfg.ActiveProvider()
	if prov.APIKey != "sk-test" || prov.AppTitle != "Night Shift" || prov.Model != "meta/llama" {
		t.Fatalf("unexpected provider %+v", prov)
	}
	if cfg.BasicConfig.ServerAddress != ":8081" {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.Database != "mysql" {
		t.Fatalf("unexpected database %q", cfg.BasicConfig.Database)
	}
	if cfg.Redis.Host != "10.0.0.5" || cfg.Redis.Port != 6380 {
		t.Fatalf("unexpected redis %+v", cfg.Redis)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Handler != "text" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoadProviderSelection(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("ROUNDTABLE_PROVIDER", "Claude")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	name, _ := cfg.ActiveProvider()
	if name != "claude" {
		t.Fatalf("expected claude, got %s", name)
	}
	if cfg.Providers[DefaultProvider].BaseURL != DefaultBaseURL {
		t.Fatalf("openrouter defaults should still be filled")
	}
}
