package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultProfile: "work",
		GatewayURL:     "wss://chat.example.com/ws",
		APIBaseURL:     "https://chat.example.com/api",
		UserID:         7,
		PageSize:       30,
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.UserID != 7 {
		t.Errorf("UserID = %d, want 7", loaded.UserID)
	}
	if loaded.PageSize != 30 {
		t.Errorf("PageSize = %d, want 30", loaded.PageSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if cfg.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want default %d", cfg.PageSize, DefaultPageSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := Save(path, &Config{DefaultProfile: "file", UserID: 1}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SYRUP_PROFILE", "env")
	t.Setenv("SYRUP_USER_ID", "42")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DefaultProfile != "env" {
		t.Errorf("DefaultProfile = %q, want env override", loaded.DefaultProfile)
	}
	if loaded.UserID != 42 {
		t.Errorf("UserID = %d, want 42 from env", loaded.UserID)
	}
	if os.Getenv("SYRUP_PROFILE") != "env" {
		t.Fatal("setenv did not take effect")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
