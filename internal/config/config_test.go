package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Database.Source != SourceRemote || cfg.Database.ServerMode != ModePartial {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Database.RequestChunkSize != 64*1024 {
		t.Fatalf("unexpected default chunk size: %d", cfg.Database.RequestChunkSize)
	}
	if cfg.Cache.ChunkBudgetBytes != 64*1024*1024 {
		t.Fatalf("unexpected default chunk budget: %d", cfg.Cache.ChunkBudgetBytes)
	}
	if cfg.Cache.QueryTTL != 5*time.Minute {
		t.Fatalf("unexpected default query TTL: %v", cfg.Cache.QueryTTL)
	}
	if cfg.Timeouts.EngineInit != 45*time.Second ||
		cfg.Timeouts.BulkFetch != 120*time.Second ||
		cfg.Timeouts.QueryExec != 90*time.Second ||
		cfg.Timeouts.Emergency != 180*time.Second {
		t.Fatalf("unexpected default timeouts: %+v", cfg.Timeouts)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHUNKLITE_SERVER_MODE", "full")
	t.Setenv("CHUNKLITE_URL", "https://example.com/db.sqlite")
	t.Setenv("CHUNKLITE_CHUNK_SIZE", "8192")
	t.Setenv("CHUNKLITE_CHUNK_BUDGET", "1048576")
	t.Setenv("CHUNKLITE_QUERY_TTL", "30s")
	t.Setenv("CHUNKLITE_TIMEOUT_QUERY", "10s")
	t.Setenv("CHUNKLITE_TELEMETRY", "false")
	t.Setenv("CHUNKLITE_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Database.ServerMode != ModeFull {
		t.Fatalf("server mode override not applied: %q", cfg.Database.ServerMode)
	}
	if cfg.Database.URL != "https://example.com/db.sqlite" {
		t.Fatalf("url override not applied: %q", cfg.Database.URL)
	}
	if cfg.Database.RequestChunkSize != 8192 {
		t.Fatalf("chunk size override not applied: %d", cfg.Database.RequestChunkSize)
	}
	if cfg.Cache.ChunkBudgetBytes != 1048576 {
		t.Fatalf("chunk budget override not applied: %d", cfg.Cache.ChunkBudgetBytes)
	}
	if cfg.Cache.QueryTTL != 30*time.Second {
		t.Fatalf("query TTL override not applied: %v", cfg.Cache.QueryTTL)
	}
	if cfg.Timeouts.QueryExec != 10*time.Second {
		t.Fatalf("query timeout override not applied: %v", cfg.Timeouts.QueryExec)
	}
	if cfg.Telemetry.Enabled {
		t.Fatal("telemetry override not applied")
	}
	if !cfg.Debug {
		t.Fatal("debug override not applied")
	}
}

func TestLoadRejectsMalformedOverrides(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CHUNKLITE_CHUNK_SIZE", "not-a-number"},
		{"CHUNKLITE_CHUNK_BUDGET", "64MB"},
		{"CHUNKLITE_QUERY_TTL", "soon"},
		{"CHUNKLITE_TIMEOUT_INIT", "1 minute"},
		{"CHUNKLITE_TELEMETRY", "maybe"},
		{"CHUNKLITE_DEBUG", "yep"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "https://example.com/db.sqlite"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}

	missing := cfg
	missing.Database.URL = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for missing URL")
	}

	badMode := cfg
	badMode.Database.ServerMode = "streaming"
	if err := badMode.Validate(); err == nil {
		t.Fatal("expected error for unknown server mode")
	}

	badSource := cfg
	badSource.Database.Source = "ftp"
	if err := badSource.Validate(); err == nil {
		t.Fatal("expected error for unknown source")
	}

	badChunk := cfg
	badChunk.Database.RequestChunkSize = 0
	if err := badChunk.Validate(); err == nil {
		t.Fatal("expected error for zero chunk size")
	}

	badTimeout := cfg
	badTimeout.Timeouts.QueryExec = 0
	if err := badTimeout.Validate(); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

func TestGetBaseDirHonorsExplicitOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHUNKLITE_DIR", dir)

	if got := GetBaseDir(); got != dir {
		t.Fatalf("expected %q, got %q", dir, got)
	}
	if got := GetCacheDir(); got != filepath.Join(dir, "cache") {
		t.Fatalf("unexpected cache dir %q", got)
	}
	if got := GetTelemetryDBPath(); got != filepath.Join(dir, "telemetry.db") {
		t.Fatalf("unexpected telemetry path %q", got)
	}
}

func TestGetBaseDirFallsBackToXDG(t *testing.T) {
	t.Setenv("CHUNKLITE_DIR", "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(t.TempDir(), "data"))

	got := GetBaseDir()
	if !strings.HasSuffix(got, filepath.Join("data", "chunklite")) {
		t.Fatalf("expected XDG data dir, got %q", got)
	}
}
