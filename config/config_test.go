package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SPOTIFY_CLIENT_ID", "test_client_id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "test_client_secret")
	t.Setenv("TIDAL_USERNAME", "test@example.com")
	t.Setenv("TIDAL_PASSWORD", "test_password")
}

func TestConfigValidation(t *testing.T) {
	// Test that validation fails when required fields are missing
	cfg := &Config{}

	err := cfg.validate()
	if err == nil {
		t.Fatal("Expected validation to fail with empty config")
	}
	if !errors.Is(err, ErrMissingConfig) {
		t.Errorf("Expected error to wrap ErrMissingConfig, got %v", err)
	}

	// Check that error message includes helpful information
	errorMsg := err.Error()
	for _, key := range []string{"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REDIRECT_URI", "TIDAL_USERNAME", "TIDAL_PASSWORD"} {
		if !strings.Contains(errorMsg, key) {
			t.Errorf("Expected error message to mention %s", key)
		}
	}

	// Test valid configuration
	cfg = &Config{}
	cfg.initializeDefaults()
	cfg.Spotify.ClientID = "test_client_id"
	cfg.Spotify.ClientSecret = "test_client_secret"
	cfg.Tidal.Username = "test@example.com"
	cfg.Tidal.Password = "test_password"

	if err := cfg.validate(); err != nil {
		t.Errorf("Expected no validation error, got %v", err)
	}

	// Test missing TIDAL password
	cfg.Tidal.Password = ""
	err = cfg.validate()
	if err == nil || !strings.Contains(err.Error(), "TIDAL_PASSWORD") {
		t.Errorf("Expected validation error for missing TIDAL_PASSWORD, got %v", err)
	}
	cfg.Tidal.Password = "test_password"

	// Test invalid worker count
	cfg.Sync.Workers = 0
	if err := cfg.validate(); err == nil {
		t.Error("Expected validation error for zero workers")
	}
	cfg.Sync.Workers = 10

	// Test unknown library error policy
	cfg.Sync.OnLibraryError = "ignore"
	err = cfg.validate()
	if err == nil || !strings.Contains(err.Error(), "SYNC_ON_LIBRARY_ERROR") {
		t.Errorf("Expected validation error for unknown policy, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.initializeDefaults()

	if cfg.Spotify.RedirectURI != "http://localhost:8080/callback" {
		t.Errorf("Expected default redirect URI, got %s", cfg.Spotify.RedirectURI)
	}
	if cfg.Sync.Workers != 10 {
		t.Errorf("Expected 10 workers by default, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.OnLibraryError != PolicyStrict {
		t.Errorf("Expected strict policy by default, got %s", cfg.Sync.OnLibraryError)
	}
	if cfg.Sync.TaskTimeout != 30*time.Second {
		t.Errorf("Expected 30s task timeout, got %s", cfg.Sync.TaskTimeout)
	}
	if cfg.Sync.Deadline != 0 {
		t.Errorf("Expected no deadline by default, got %s", cfg.Sync.Deadline)
	}
	if !cfg.SyncAll() {
		t.Error("Expected all playlists to be synced by default")
	}
	if cfg.Tidal.ClientToken != DefaultTidalClientToken {
		t.Errorf("Expected default client token, got %s", cfg.Tidal.ClientToken)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_PLAYLISTS", " Road Trip , Chill ")
	t.Setenv("SYNC_WORKERS", "4")
	t.Setenv("SYNC_TASK_TIMEOUT", "15")
	t.Setenv("SYNC_DEADLINE", "10m")
	t.Setenv("SYNC_ON_LIBRARY_ERROR", "permissive")
	t.Setenv("SPOTIFY_PLAYLIST_EXCLUDED_ID", "id1,id2")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if len(cfg.Sync.Playlists) != 2 || cfg.Sync.Playlists[0] != "Road Trip" || cfg.Sync.Playlists[1] != "Chill" {
		t.Errorf("Expected trimmed playlist names, got %q", cfg.Sync.Playlists)
	}
	if cfg.Sync.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.TaskTimeout != 15*time.Second {
		t.Errorf("Expected bare seconds to parse as 15s, got %s", cfg.Sync.TaskTimeout)
	}
	if cfg.Sync.Deadline != 10*time.Minute {
		t.Errorf("Expected 10m deadline, got %s", cfg.Sync.Deadline)
	}
	if cfg.Sync.OnLibraryError != PolicyPermissive {
		t.Errorf("Expected permissive policy, got %s", cfg.Sync.OnLibraryError)
	}
	if len(cfg.Spotify.ExcludedPlaylistIDs) != 2 {
		t.Errorf("Expected 2 excluded playlist IDs, got %d", len(cfg.Spotify.ExcludedPlaylistIDs))
	}
}

func TestLoadAllPlaylists(t *testing.T) {
	setRequiredEnv(t)

	for _, value := range []string{"all", "ALL", " All "} {
		t.Setenv("SYNC_PLAYLISTS", value)
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Expected config to load, got %v", err)
		}
		if !cfg.SyncAll() {
			t.Errorf("Expected %q to select all playlists, got %q", value, cfg.Sync.Playlists)
		}
	}
}

func TestLoadInvalidValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_WORKERS", "ten")
	t.Setenv("SYNC_DRY_RUN", "maybe")

	_, err := Load("", nil)
	if err == nil {
		t.Fatal("Expected error for invalid values")
	}
	if !strings.Contains(err.Error(), "SYNC_WORKERS") || !strings.Contains(err.Error(), "SYNC_DRY_RUN") {
		t.Errorf("Expected error to name both invalid keys, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	t.Setenv("TIDAL_USERNAME", "")
	t.Setenv("TIDAL_PASSWORD", "")

	_, err := Load("", nil)
	if !errors.Is(err, ErrMissingConfig) {
		t.Errorf("Expected ErrMissingConfig, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	t.Setenv("TIDAL_USERNAME", "")
	t.Setenv("TIDAL_PASSWORD", "env_password")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[spotify]
client_id = "file_client_id"
client_secret = "file_client_secret"

[tidal]
username = "file@example.com"
password = "file_password"
rate_limit = 2.5

[sync]
playlists = ["Road Trip"]
workers = 3
task_timeout = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if cfg.Spotify.ClientID != "file_client_id" {
		t.Errorf("Expected client ID from file, got %s", cfg.Spotify.ClientID)
	}
	if cfg.Tidal.Password != "env_password" {
		t.Errorf("Expected environment to override file, got %s", cfg.Tidal.Password)
	}
	if cfg.Tidal.RateLimit != 2.5 {
		t.Errorf("Expected rate limit 2.5, got %f", cfg.Tidal.RateLimit)
	}
	if cfg.Sync.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.TaskTimeout != 5*time.Second {
		t.Errorf("Expected 5s task timeout, got %s", cfg.Sync.TaskTimeout)
	}
	if len(cfg.Sync.Playlists) != 1 || cfg.Sync.Playlists[0] != "Road Trip" {
		t.Errorf("Expected playlist allowlist from file, got %q", cfg.Sync.Playlists)
	}
	// Untouched keys keep their defaults
	if cfg.Sync.OnLibraryError != PolicyStrict {
		t.Errorf("Expected default policy to survive file load, got %s", cfg.Sync.OnLibraryError)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	setRequiredEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestApplyOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_WORKERS", "4")

	cfg, err := Load("", map[string]string{
		"SYNC_WORKERS":   "2",
		"SYNC_PLAYLISTS": "Chill",
		"SYNC_DRY_RUN":   "true",
		"LOG_LEVEL":      "", // empty overrides are ignored
	})
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if cfg.Sync.Workers != 2 {
		t.Errorf("Expected override to win with 2 workers, got %d", cfg.Sync.Workers)
	}
	if len(cfg.Sync.Playlists) != 1 || cfg.Sync.Playlists[0] != "Chill" {
		t.Errorf("Expected playlist override, got %q", cfg.Sync.Playlists)
	}
	if !cfg.Sync.DryRun {
		t.Error("Expected dry run override to be applied")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected empty override to be ignored, got %s", cfg.Log.Level)
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	testCases := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{"a,,b,", []string{"a", "b"}},
	}

	for _, tc := range testCases {
		result := parseCommaSeparatedList(tc.input)
		if strings.Join(result, "|") != strings.Join(tc.expected, "|") {
			t.Errorf("parseCommaSeparatedList(%q): expected %q, got %q", tc.input, tc.expected, result)
		}
	}
}

func TestEnvFileOverridesEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_WORKERS", "5")
	t.Setenv("LOG_LEVEL", "warn")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SYNC_WORKERS=7\nTIDAL_PASSWORD=dotenv_password\n"), 0o600); err != nil {
		t.Fatalf("Failed to write .env file: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load("", map[string]string{"SYNC_WORKERS": "9"})
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if cfg.Tidal.Password != "dotenv_password" {
		t.Errorf("Expected .env to override environment, got %s", cfg.Tidal.Password)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected environment value for keys missing from .env, got %s", cfg.Log.Level)
	}
	if cfg.Sync.Workers != 9 {
		t.Errorf("Expected overrides to win over .env, got %d", cfg.Sync.Workers)
	}
}
