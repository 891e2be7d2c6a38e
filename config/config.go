package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrMissingConfig is wrapped by validation errors so callers can tell
// configuration problems apart from runtime failures.
var ErrMissingConfig = errors.New("missing required configuration values")

// Library error policies
const (
	PolicyStrict     = "strict"
	PolicyPermissive = "permissive"
)

// AllPlaylists is the SYNC_PLAYLISTS value that disables name filtering
const AllPlaylists = "all"

// DefaultTidalClientToken is the public client token used by the TIDAL web login
const DefaultTidalClientToken = "CzET4vdadNUFQ5JU"

// Config holds all configuration values
type Config struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Tidal   TidalConfig   `toml:"tidal"`
	Sync    SyncConfig    `toml:"sync"`
	Log     LogConfig     `toml:"log"`
}

// SpotifyConfig holds Spotify API configuration
type SpotifyConfig struct {
	ClientID            string   `toml:"client_id"`
	ClientSecret        string   `toml:"client_secret"`
	RedirectURI         string   `toml:"redirect_uri"`
	TokenFile           string   `toml:"token_file"`            // Cached OAuth token, optional
	ExcludedPlaylistIDs []string `toml:"excluded_playlist_ids"` // Playlist IDs to exclude from processing
	FullPlaylists       bool     `toml:"full_playlists"`        // Follow next pages when listing playlist tracks
}

// TidalConfig holds TIDAL account configuration
type TidalConfig struct {
	Username    string  `toml:"username"`
	Password    string  `toml:"password"`
	ClientToken string  `toml:"client_token"`
	APIURL      string  `toml:"api_url"`
	RateLimit   float64 `toml:"rate_limit"` // Requests per second, 0 disables pacing
}

// SyncConfig controls the sync run
type SyncConfig struct {
	Playlists      []string      `toml:"playlists"` // Name allowlist, empty means all
	Workers        int           `toml:"workers"`
	TaskTimeout    time.Duration `toml:"task_timeout"`
	Deadline       time.Duration `toml:"deadline"`
	OnLibraryError string        `toml:"on_library_error"`
	DryRun         bool          `toml:"dry_run"`
	MusicBrainz    bool          `toml:"musicbrainz"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Load loads configuration in this order, later sources winning:
// 1. Defaults
// 2. TOML file at path (skipped when path is empty)
// 3. OS environment variables
// 4. .env file (only if it exists)
// 5. CLI flag overrides
func Load(path string, overrides map[string]string) (*Config, error) {
	config := &Config{}
	config.initializeDefaults()

	if path != "" {
		if err := config.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	var invalid []string
	invalid = append(invalid, config.applyValues(os.Getenv)...)
	invalid = append(invalid, config.loadFromEnvFile()...)
	invalid = append(invalid, config.applyOverrides(overrides)...)
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid configuration values:\n%s", strings.Join(invalid, "\n"))
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// initializeDefaults sets up the initial configuration with default values
func (c *Config) initializeDefaults() {
	c.Spotify = SpotifyConfig{
		RedirectURI:   "http://localhost:8080/callback",
		FullPlaylists: true,
	}

	c.Tidal = TidalConfig{
		ClientToken: DefaultTidalClientToken,
		APIURL:      "https://api.tidal.com/v1",
	}

	c.Sync = SyncConfig{
		Workers:        10,
		TaskTimeout:    30 * time.Second,
		OnLibraryError: PolicyStrict,
	}

	c.Log = LogConfig{Level: "info"}
}

// loadFromFile decodes a TOML file over the defaults
func (c *Config) loadFromFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnvFile applies values from .env (only if it exists)
func (c *Config) loadFromEnvFile() []string {
	values, err := godotenv.Read()
	if err != nil {
		// .env file doesn't exist, skip this step
		return nil
	}
	return c.applyValues(func(key string) string { return values[key] })
}

// applyOverrides applies CLI flag overrides to the configuration (only if they exist)
func (c *Config) applyOverrides(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	return c.applyValues(func(key string) string { return overrides[key] })
}

// applyValues copies every non-empty value returned by get into the config
// and returns a description of each value that could not be parsed.
func (c *Config) applyValues(get func(string) string) []string {
	var invalid []string
	setString := func(key string, dst *string) {
		if value := get(key); value != "" {
			*dst = value
		}
	}
	setList := func(key string, dst *[]string) {
		if value := get(key); value != "" {
			*dst = parseCommaSeparatedList(value)
		}
	}
	setInt := func(key string, dst *int) {
		if value := get(key); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("%s: %q is not an integer", key, value))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if value := get(key); value != "" {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("%s: %q is not a number", key, value))
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if value := get(key); value != "" {
			b, err := strconv.ParseBool(value)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("%s: %q is not a boolean", key, value))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if value := get(key); value != "" {
			d, err := parseDuration(value)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("%s: %q is not a duration", key, value))
				return
			}
			*dst = d
		}
	}

	// Spotify configuration
	setString("SPOTIFY_CLIENT_ID", &c.Spotify.ClientID)
	setString("SPOTIFY_CLIENT_SECRET", &c.Spotify.ClientSecret)
	setString("SPOTIFY_REDIRECT_URI", &c.Spotify.RedirectURI)
	setString("SPOTIFY_TOKEN_FILE", &c.Spotify.TokenFile)
	setList("SPOTIFY_PLAYLIST_EXCLUDED_ID", &c.Spotify.ExcludedPlaylistIDs)
	setBool("SPOTIFY_FULL_PLAYLISTS", &c.Spotify.FullPlaylists)

	// TIDAL configuration
	setString("TIDAL_USERNAME", &c.Tidal.Username)
	setString("TIDAL_PASSWORD", &c.Tidal.Password)
	setString("TIDAL_CLIENT_TOKEN", &c.Tidal.ClientToken)
	setString("TIDAL_API_URL", &c.Tidal.APIURL)
	setFloat("TIDAL_RATE_LIMIT", &c.Tidal.RateLimit)

	// Sync configuration
	if value := get("SYNC_PLAYLISTS"); value != "" {
		c.Sync.Playlists = parsePlaylistNames(value)
	}
	setInt("SYNC_WORKERS", &c.Sync.Workers)
	setDuration("SYNC_TASK_TIMEOUT", &c.Sync.TaskTimeout)
	setDuration("SYNC_DEADLINE", &c.Sync.Deadline)
	setString("SYNC_ON_LIBRARY_ERROR", &c.Sync.OnLibraryError)
	setBool("SYNC_DRY_RUN", &c.Sync.DryRun)
	setBool("SYNC_MUSICBRAINZ", &c.Sync.MusicBrainz)

	// Logging
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FILE", &c.Log.File)

	return invalid
}

// parseCommaSeparatedList parses a comma-separated string into a slice of trimmed strings
func parseCommaSeparatedList(input string) []string {
	if input == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(input, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// parsePlaylistNames parses SYNC_PLAYLISTS. "all" (any case) yields nil.
func parsePlaylistNames(input string) []string {
	if strings.EqualFold(strings.TrimSpace(input), AllPlaylists) {
		return nil
	}
	return parseCommaSeparatedList(input)
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45")
func parseDuration(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// validate checks that all required configuration values are present
func (c *Config) validate() error {
	var missingFields []string

	// Check Spotify configuration
	if c.Spotify.ClientID == "" {
		missingFields = append(missingFields, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missingFields = append(missingFields, "SPOTIFY_CLIENT_SECRET")
	}
	if c.Spotify.RedirectURI == "" {
		missingFields = append(missingFields, "SPOTIFY_REDIRECT_URI")
	}

	// Check TIDAL configuration
	if c.Tidal.Username == "" {
		missingFields = append(missingFields, "TIDAL_USERNAME")
	}
	if c.Tidal.Password == "" {
		missingFields = append(missingFields, "TIDAL_PASSWORD")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("%w:\n%s\n\nSet these values via environment variables, .env file, config file, or CLI flags", ErrMissingConfig, strings.Join(missingFields, "\n"))
	}

	var problems []string
	if c.Sync.Workers < 1 {
		problems = append(problems, fmt.Sprintf("SYNC_WORKERS must be at least 1, got %d", c.Sync.Workers))
	}
	if c.Sync.TaskTimeout < 0 {
		problems = append(problems, "SYNC_TASK_TIMEOUT must not be negative")
	}
	if c.Sync.Deadline < 0 {
		problems = append(problems, "SYNC_DEADLINE must not be negative")
	}
	if c.Tidal.RateLimit < 0 {
		problems = append(problems, "TIDAL_RATE_LIMIT must not be negative")
	}
	switch c.Sync.OnLibraryError {
	case PolicyStrict, PolicyPermissive:
	default:
		problems = append(problems, fmt.Sprintf("SYNC_ON_LIBRARY_ERROR must be %q or %q, got %q", PolicyStrict, PolicyPermissive, c.Sync.OnLibraryError))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration values:\n%s", strings.Join(problems, "\n"))
	}

	return nil
}

// SyncAll reports whether every playlist should be synced
func (c *Config) SyncAll() bool {
	return len(c.Sync.Playlists) == 0
}
