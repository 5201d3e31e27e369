package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PHOTO_PROVIDER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %s, want :8080", cfg.ListenAddr)
	}
	if cfg.PageSize != 30 || cfg.PriorityCount != 5 || cfg.BatchSize != 8 {
		t.Errorf("unexpected engine defaults: %+v", cfg)
	}
	if cfg.TrimInterval != 30*time.Second {
		t.Errorf("TrimInterval = %s, want 30s", cfg.TrimInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PHOTO_PROVIDER", "local")
	t.Setenv("LIBRARY_PATH", "/photos")
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("TRIM_INTERVAL", "1m")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LibraryPath != "/photos" {
		t.Errorf("LibraryPath = %s", cfg.LibraryPath)
	}
	if cfg.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.PageSize)
	}
	if cfg.TrimInterval != time.Minute {
		t.Errorf("TrimInterval = %s, want 1m", cfg.TrimInterval)
	}
	if !cfg.S3UseSSL {
		t.Error("S3UseSSL override ignored")
	}
}

func TestLoadProviderValidation(t *testing.T) {
	t.Setenv("PHOTO_PROVIDER", "local")
	t.Setenv("LIBRARY_PATH", "")
	if _, err := Load(); err == nil {
		t.Error("local provider accepted without LIBRARY_PATH")
	}

	t.Setenv("PHOTO_PROVIDER", "pg")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("pg provider accepted without DATABASE_URL")
	}

	t.Setenv("PHOTO_PROVIDER", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestLoadRejectsBadTuning(t *testing.T) {
	t.Setenv("PHOTO_PROVIDER", "memory")
	t.Setenv("KEEP_WINDOW", "1")
	if _, err := Load(); err == nil {
		t.Error("KEEP_WINDOW=1 accepted")
	}

	t.Setenv("KEEP_WINDOW", "40")
	t.Setenv("PAGE_SIZE", "-3")
	if _, err := Load(); err == nil {
		t.Error("negative PAGE_SIZE accepted")
	}
}

func TestEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("PHOTO_PROVIDER", "memory")
	t.Setenv("PAGE_SIZE", "not-a-number")
	t.Setenv("TRIM_INTERVAL", "soon")
	t.Setenv("S3_USE_SSL", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PageSize != 30 {
		t.Errorf("garbage PAGE_SIZE did not fall back: %d", cfg.PageSize)
	}
	if cfg.TrimInterval != 30*time.Second {
		t.Errorf("garbage TRIM_INTERVAL did not fall back: %s", cfg.TrimInterval)
	}
	if cfg.S3UseSSL {
		t.Error("garbage S3_USE_SSL did not fall back")
	}
}
