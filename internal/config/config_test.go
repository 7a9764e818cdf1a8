package config

import (
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)
	clearEnvOverrides(t)

	original := &Config{
		DataDir:       "/tmp/test-data",
		LogLevel:      "debug",
		MaxConcurrent: 4,
	}
	original.Telegram.Token = "bot-token-456"
	original.Google.ClientID = "client-id-789"
	original.Google.ClientSecret = "client-secret-abc"
	original.Google.Calendar = "work"

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file does not exist after Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("expected data dir %q, got %q", original.DataDir, loaded.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("expected log level %q, got %q", original.LogLevel, loaded.LogLevel)
	}
	if loaded.MaxConcurrent != original.MaxConcurrent {
		t.Errorf("expected max concurrent %d, got %d", original.MaxConcurrent, loaded.MaxConcurrent)
	}
	if loaded.Telegram.Token != original.Telegram.Token {
		t.Errorf("expected telegram token %q, got %q", original.Telegram.Token, loaded.Telegram.Token)
	}
	if loaded.Google.Calendar != original.Google.Calendar {
		t.Errorf("expected calendar %q, got %q", original.Google.Calendar, loaded.Google.Calendar)
	}
}

func TestLoad_WritesDefaultsWhenMissing(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected defaults written to disk: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("expected default max concurrent 2, got %d", cfg.MaxConcurrent)
	}
	if cfg.Google.Calendar != "primary" {
		t.Errorf("expected default calendar 'primary', got %q", cfg.Google.Calendar)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.Telegram.Token = "file-token"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("GOOGLE_CLIENT_ID", "env-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-client-secret")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Telegram.Token != "env-token" {
		t.Errorf("expected env token to win, got %q", loaded.Telegram.Token)
	}
	if loaded.Google.ClientID != "env-client-id" {
		t.Errorf("expected env client id, got %q", loaded.Google.ClientID)
	}
	if loaded.Google.ClientSecret != "env-client-secret" {
		t.Errorf("expected env client secret, got %q", loaded.Google.ClientSecret)
	}
}

func TestSetValue_GetValue(t *testing.T) {
	path := tempConfigPath(t)
	clearEnvOverrides(t)

	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "google.calendar", "work"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	val, err := GetValue(path, "google.calendar")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if val != "work" {
		t.Errorf("expected 'work', got %v", val)
	}

	// Numeric keys keep their type.
	if err := SetValue(path, "max_concurrent", "8"); err != nil {
		t.Fatalf("SetValue numeric failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.MaxConcurrent != 8 {
		t.Errorf("expected max_concurrent 8, got %d", loaded.MaxConcurrent)
	}
}

func TestSetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestListValues_MasksSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "super-secret-token"
	cfg.Google.ClientSecret = "client-secret-value"
	cfg.Google.Calendar = "primary"

	values, err := ListValues(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if values["telegram.token"] != "***oken" {
		t.Errorf("expected masked telegram token, got %v", values["telegram.token"])
	}
	if values["google.client_secret"] != "***alue" {
		t.Errorf("expected masked client secret, got %v", values["google.client_secret"])
	}
	if values["google.calendar"] != "primary" {
		t.Errorf("expected calendar unmasked, got %v", values["google.calendar"])
	}
}
