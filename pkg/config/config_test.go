package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
environment: test
server:
  port: 8080
clickhouse:
  host: localhost
redis:
  addr: localhost:6379
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.Type != "" {
		t.Errorf("cache.type = %q, want empty (redis default)", cfg.Cache.Type)
	}
}

func TestLoadLayeredCache(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
cache:
  type: layered
  memory_max_size: 500
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Type != "layered" {
		t.Errorf("cache.type = %q, want layered", cfg.Cache.Type)
	}
	if cfg.Cache.MemoryMaxSize != 500 {
		t.Errorf("memory_max_size = %d, want 500", cfg.Cache.MemoryMaxSize)
	}
}

func TestLoadRejectsUnknownCacheType(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
cache:
  type: memcached
`))
	if err == nil {
		t.Fatal("expected error for unknown cache type")
	}
}

func TestLoadWithEnvServerPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from SERVER_PORT", cfg.Server.Port)
	}
}
