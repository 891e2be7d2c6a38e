package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/garry/tidalify/config"
	"github.com/garry/tidalify/logging"
	"github.com/garry/tidalify/music"
	"github.com/garry/tidalify/musicbrainz"
	"github.com/garry/tidalify/spotify"
	"github.com/garry/tidalify/syncer"
	"github.com/garry/tidalify/tidal"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// Version information - set during build
var version = "dev"

// Constants for display formatting
const (
	separatorLine          = "="
	separatorLength        = 80
	playlistSeparator      = "🎵"
	playlistSeparatorCount = 40
	defaultConfigFile      = "config.toml"
)

// Exit codes
const (
	exitCodeSuccess        = 0
	exitCodeConfigError    = 2
	exitCodeClientError    = 3
	exitCodePlaylistFailed = 4
)

// exitError carries the process exit code for an error returned by the command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by the root command to a process exit code
func exitCode(err error) int {
	if err == nil {
		return exitCodeSuccess
	}
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	if errors.Is(err, config.ErrMissingConfig) {
		return exitCodeConfigError
	}
	return exitCodeClientError
}

// Application represents the main application state
type Application struct {
	config            *config.Config
	logger            *zap.Logger
	spotifyClient     *spotify.Client
	tidalClient       *tidal.Client
	musicBrainzClient *musicbrainz.Client
	out               io.Writer
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config, logger *zap.Logger, out io.Writer) *Application {
	app := &Application{
		config:        cfg,
		logger:        logger,
		spotifyClient: spotify.NewClient(cfg, logger),
		tidalClient:   tidal.NewClient(cfg, logger),
		out:           out,
	}

	if cfg.Sync.MusicBrainz {
		app.musicBrainzClient = musicbrainz.NewClient(version)
	}

	return app
}

// Login authenticates with both services
func (app *Application) Login(ctx context.Context) error {
	if err := app.spotifyClient.Login(ctx); err != nil {
		return err
	}
	return app.tidalClient.Login(ctx)
}

// Run syncs every selected playlist and prints the report
func (app *Application) Run(ctx context.Context) error {
	policy, err := syncer.ParseLibraryErrorPolicy(app.config.Sync.OnLibraryError)
	if err != nil {
		return withExitCode(exitCodeConfigError, err)
	}

	orchestrator := syncer.New(app.spotifyClient, app.tidalClient, syncer.Options{
		Playlists:      app.config.Sync.Playlists,
		ExcludedIDs:    app.config.Spotify.ExcludedPlaylistIDs,
		Workers:        app.config.Sync.Workers,
		TaskTimeout:    app.config.Sync.TaskTimeout,
		Deadline:       app.config.Sync.Deadline,
		OnLibraryError: policy,
		DryRun:         app.config.Sync.DryRun,
	}, app.logger.Named("sync"))

	result, err := orchestrator.Run(ctx)
	if errors.Is(err, syncer.ErrNoMatchingPlaylists) {
		app.printNoPlaylistsMessage()
		return nil
	}
	if err != nil {
		return withExitCode(exitCodeClientError, err)
	}

	app.report(ctx, result)

	if len(result.Failed) > 0 {
		return withExitCode(exitCodePlaylistFailed, fmt.Errorf("%d playlist(s) failed to sync", len(result.Failed)))
	}
	return nil
}

// report prints the per-playlist results followed by the failures
func (app *Application) report(ctx context.Context, result *syncer.RunResult) {
	for i := range result.Playlists {
		playlist := &result.Playlists[i]
		app.displayPlaylistResult(playlist)

		missing := playlist.Missing()
		if len(missing) > 0 {
			app.displayMissingTracksSummary(missing, app.lookupMusicBrainzIDs(ctx, missing))
		}

		// Add separator between playlists
		if i < len(result.Playlists)-1 {
			fmt.Fprintln(app.out, "\n"+strings.Repeat(playlistSeparator, playlistSeparatorCount))
		}
	}

	if len(result.Failed) > 0 {
		app.displayFailures(result.Failed)
	}

	if app.config.Sync.DryRun {
		fmt.Fprintf(app.out, "\n🎉 All playlists processed! %d tracks would be added to TIDAL.\n", result.TotalAdded())
		return
	}
	fmt.Fprintf(app.out, "\n🎉 All playlists processed! %d tracks added to TIDAL.\n", result.TotalAdded())
}

// displayPlaylistResult displays the outcomes and summary of one playlist
func (app *Application) displayPlaylistResult(result *syncer.PlaylistResult) {
	fmt.Fprintf(app.out, "\n📋 Playlist: %s (Owner: %s)\n", result.Playlist.Name, result.Playlist.Owner)
	fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))

	for i, outcome := range result.Outcomes {
		fmt.Fprintf(app.out, "%3d. %s\n", i+1, outcomeLine(outcome))
	}

	app.displaySummary(result)
}

// outcomeLine formats one outcome with a status marker
func outcomeLine(outcome syncer.Outcome) string {
	switch outcome.Status {
	case syncer.StatusAdded:
		return "✅ " + outcome.String()
	case syncer.StatusSkipped:
		return "⏭️  " + outcome.String()
	case syncer.StatusNotFound:
		return "❌ " + outcome.String()
	default:
		return "⚠️  " + outcome.String()
	}
}

// displaySummary displays a summary of the sync results
func (app *Application) displaySummary(result *syncer.PlaylistResult) {
	total := len(result.Outcomes)

	fmt.Fprintln(app.out, "\n"+strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintln(app.out, "SUMMARY")
	fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintf(app.out, "Total songs: %d\n", total)
	if app.config.Sync.DryRun {
		fmt.Fprintf(app.out, "Would add: %d (%.1f%%)\n", result.Added, percent(result.Added, total))
	} else {
		fmt.Fprintf(app.out, "Added: %d (%.1f%%)\n", result.Added, percent(result.Added, total))
	}
	fmt.Fprintf(app.out, "Already in TIDAL: %d (%.1f%%)\n", result.Skipped, percent(result.Skipped, total))
	fmt.Fprintf(app.out, "Not found: %d (%.1f%%)\n", result.NotFound, percent(result.NotFound, total))
	fmt.Fprintf(app.out, "Errors: %d (%.1f%%)\n", result.Errors, percent(result.Errors, total))
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// displayMissingTracksSummary displays the tracks that could not be found on TIDAL
func (app *Application) displayMissingTracksSummary(missingTracks []music.Track, musicBrainzIDs map[string]string) {
	fmt.Fprintln(app.out, "\n"+strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintln(app.out, "MISSING TRACKS SUMMARY")
	fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintf(app.out, "Tracks not found on TIDAL (%d total):\n", len(missingTracks))
	fmt.Fprintln(app.out, strings.Repeat("-", 80))

	for i, track := range missingTracks {
		fmt.Fprintf(app.out, "%3d. %s - %s\n", i+1, track.Artist, track.Name)
		fmt.Fprintf(app.out, "     Spotify track ID: %s\n", track.ID)
		if track.ISRC != "" {
			fmt.Fprintf(app.out, "     ISRC: %s\n", track.ISRC)
		} else {
			fmt.Fprintf(app.out, "     ISRC: (not available)\n")
		}
		if musicBrainzIDs != nil {
			if id := musicBrainzIDs[track.ID]; id != "" {
				fmt.Fprintf(app.out, "     MusicBrainz ID: %s - https://musicbrainz.org/recording/%s\n", id, id)
			} else {
				fmt.Fprintf(app.out, "     MusicBrainz ID: (not found)\n")
			}
		}
		if i < len(missingTracks)-1 {
			fmt.Fprintln(app.out)
		}
	}
}

// displayFailures lists the playlists that could not be synced
func (app *Application) displayFailures(failures []syncer.PlaylistFailure) {
	fmt.Fprintln(app.out, "\n"+strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintln(app.out, "FAILED PLAYLISTS")
	fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))
	for i, failure := range failures {
		fmt.Fprintf(app.out, "%3d. %s: %v\n", i+1, failure.Playlist.Name, failure.Err)
	}
}

// lookupMusicBrainzIDs resolves recording IDs for the missing tracks, keyed by
// Spotify track ID. It returns nil when lookups are disabled.
func (app *Application) lookupMusicBrainzIDs(ctx context.Context, tracks []music.Track) map[string]string {
	if app.musicBrainzClient == nil {
		return nil
	}

	fmt.Fprintln(app.out, "\n🔍 Looking up MusicBrainz IDs for missing tracks...")

	ids := make(map[string]string, len(tracks))
	for _, track := range tracks {
		id, err := app.musicBrainzClient.LookupRecordingID(ctx, track)
		if err != nil {
			app.logger.Debug("MusicBrainz lookup failed", zap.String("track", track.String()), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		ids[track.ID] = id
	}
	return ids
}

// printNoPlaylistsMessage displays a helpful message when the name filter matched nothing
func (app *Application) printNoPlaylistsMessage() {
	fmt.Fprintln(app.out, "❌ No matching playlists found!")
	fmt.Fprintln(app.out, "Check the playlist names in either:")
	fmt.Fprintln(app.out, "  - SYNC_PLAYLISTS environment variable (comma-separated names, or \"all\")")
	fmt.Fprintln(app.out, "  - -playlists command line flag")
	fmt.Fprintln(app.out, "\nExample:")
	fmt.Fprintln(app.out, "  ./tidalify --playlists \"Road Trip,Chill\"")
	fmt.Fprintln(app.out, "  ./tidalify --dry-run --playlists all")
}

// buildOverrides turns the flags that were set into config override keys
func buildOverrides(cmd *cli.Command) map[string]string {
	overrides := map[string]string{}
	if cmd.IsSet("playlists") {
		value := cmd.String("playlists")
		if strings.TrimSpace(value) == "" {
			value = config.AllPlaylists
		}
		overrides["SYNC_PLAYLISTS"] = value
	}
	if cmd.IsSet("exclude") {
		overrides["SPOTIFY_PLAYLIST_EXCLUDED_ID"] = cmd.String("exclude")
	}
	if cmd.IsSet("workers") {
		overrides["SYNC_WORKERS"] = strconv.Itoa(cmd.Int("workers"))
	}
	if cmd.IsSet("dry-run") {
		overrides["SYNC_DRY_RUN"] = strconv.FormatBool(cmd.Bool("dry-run"))
	}
	if cmd.IsSet("musicbrainz") {
		overrides["SYNC_MUSICBRAINZ"] = strconv.FormatBool(cmd.Bool("musicbrainz"))
	}
	if cmd.Bool("debug") {
		overrides["LOG_LEVEL"] = "debug"
	}
	return overrides
}

// configPath returns the --config value, falling back to config.toml in the
// working directory when it exists
func configPath(cmd *cli.Command) string {
	if path := cmd.String("config"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(configPath(cmd), buildOverrides(cmd))
	if err != nil {
		return withExitCode(exitCodeConfigError, fmt.Errorf("failed to load config: %w", err))
	}

	logger, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Debug: cmd.Bool("debug"),
	})
	if err != nil {
		return withExitCode(exitCodeConfigError, err)
	}
	defer func() { _ = logger.Sync() }()

	app := NewApplication(cfg, logger, os.Stdout)
	if err := app.Login(ctx); err != nil {
		logger.Error("Login failed", zap.Error(err))
		return withExitCode(exitCodeClientError, err)
	}

	return app.Run(ctx)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "tidalify",
		Usage:   "Add the tracks of your Spotify playlists to your TIDAL favorites",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (defaults to config.toml when present)",
			},
			&cli.StringFlag{
				Name:  "playlists",
				Usage: "Comma-separated playlist names to sync, or \"all\" (overrides SYNC_PLAYLISTS)",
			},
			&cli.StringFlag{
				Name:  "exclude",
				Usage: "Comma-separated playlist IDs to skip (overrides SPOTIFY_PLAYLIST_EXCLUDED_ID)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent search-and-add workers (overrides SYNC_WORKERS)",
				Value: syncer.DefaultWorkers,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Search TIDAL but do not add any favorites",
			},
			&cli.BoolFlag{
				Name:  "musicbrainz",
				Usage: "Look up MusicBrainz IDs for tracks missing from TIDAL",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: runSync,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newCommand().Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tidalify: %v\n", err)
	}

	stop()
	os.Exit(exitCode(err))
}
