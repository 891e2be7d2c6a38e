package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garry/tidalify/music"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the fan-out concurrency bound
const DefaultWorkers = 10

// ErrNoMatchingPlaylists is returned by Run when a name allowlist is set and
// no source playlist matches it. Nothing is synced in that case.
var ErrNoMatchingPlaylists = errors.New("no matching playlists found")

// LibraryErrorPolicy decides what happens when the destination favorites
// cannot be fetched for a playlist
type LibraryErrorPolicy int

const (
	// PolicyStrict aborts the playlist and moves on to the next one
	PolicyStrict LibraryErrorPolicy = iota
	// PolicyPermissive logs the failure and syncs against an empty snapshot
	PolicyPermissive
)

// ParseLibraryErrorPolicy maps "strict" or "permissive" to a policy
func ParseLibraryErrorPolicy(s string) (LibraryErrorPolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return PolicyStrict, nil
	case "permissive":
		return PolicyPermissive, nil
	default:
		return PolicyStrict, fmt.Errorf("unknown library error policy %q", s)
	}
}

// Options configures an Orchestrator
type Options struct {
	Playlists      []string      // Name allowlist; empty syncs all playlists
	ExcludedIDs    []string      // Playlist IDs never synced
	Workers        int           // Concurrent search-and-add workers
	TaskTimeout    time.Duration // Per-track timeout, 0 disables
	Deadline       time.Duration // Whole-run deadline, 0 disables
	OnLibraryError LibraryErrorPolicy
	DryRun         bool
}

// PlaylistResult aggregates the outcomes of one playlist
type PlaylistResult struct {
	Playlist music.Playlist
	Outcomes []Outcome // in completion order
	Added    int
	Skipped  int
	NotFound int
	Errors   int
}

func (r *PlaylistResult) record(outcome Outcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	switch outcome.Status {
	case StatusAdded:
		r.Added++
	case StatusSkipped:
		r.Skipped++
	case StatusNotFound:
		r.NotFound++
	default:
		r.Errors++
	}
}

// Missing returns the tracks that could not be found on the destination
func (r *PlaylistResult) Missing() []music.Track {
	var tracks []music.Track
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusNotFound {
			tracks = append(tracks, outcome.Track)
		}
	}
	return tracks
}

// PlaylistFailure records a playlist that could not be synced
type PlaylistFailure struct {
	Playlist music.Playlist
	Err      error
}

// RunResult is everything one Run produced
type RunResult struct {
	Playlists []PlaylistResult
	Failed    []PlaylistFailure
}

// TotalAdded returns the number of Added outcomes across all playlists
func (r *RunResult) TotalAdded() int {
	total := 0
	for _, playlist := range r.Playlists {
		total += playlist.Added
	}
	return total
}

// Orchestrator drives a sync run from a Catalog into a Library
type Orchestrator struct {
	catalog Catalog
	library Library
	matcher *Matcher
	opts    Options
	logger  *zap.Logger
}

// New creates an Orchestrator
func New(catalog Catalog, library Library, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		catalog: catalog,
		library: library,
		matcher: NewMatcher(library, opts.TaskTimeout, opts.DryRun),
		opts:    opts,
		logger:  logger,
	}
}

// Run lists the source playlists, applies the filters and syncs each selected
// playlist in turn. Playlist-level failures are recorded in the result and do
// not stop the run; only a failure to list playlists is returned as an error.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if o.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Deadline)
		defer cancel()
	}

	result := &RunResult{}

	o.logger.Info("Fetching all saved Spotify playlists...")
	playlists, err := o.catalog.ListPlaylists(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list playlists: %w", err)
	}

	named := FilterPlaylists(playlists, o.opts.Playlists, nil)
	if len(o.opts.Playlists) > 0 && len(named) == 0 {
		o.logger.Warn("No matching playlists found. Check your SYNC_PLAYLISTS variable.",
			zap.Strings("playlists", o.opts.Playlists))
		return result, ErrNoMatchingPlaylists
	}

	selected := FilterPlaylists(named, nil, o.opts.ExcludedIDs)
	if len(selected) == 0 && len(named) > 0 {
		o.logger.Warn("All matching playlists are excluded. Check your SPOTIFY_PLAYLIST_EXCLUDED_ID variable.",
			zap.Int("matched", len(named)), zap.Strings("excluded_ids", o.opts.ExcludedIDs))
	}

	o.logger.Info("Found playlists to process.", zap.Int("count", len(selected)))
	for i, playlist := range selected {
		if err := ctx.Err(); err != nil {
			for _, skipped := range selected[i:] {
				result.Failed = append(result.Failed, PlaylistFailure{Playlist: skipped, Err: err})
			}
			o.logger.Error("Sync interrupted", zap.Int("remaining_playlists", len(selected)-i), zap.Error(err))
			break
		}

		playlistResult, err := o.SyncPlaylist(ctx, playlist)
		if err != nil {
			o.logger.Error("Failed to sync playlist", zap.String("playlist", playlist.Name), zap.Error(err))
			result.Failed = append(result.Failed, PlaylistFailure{Playlist: playlist, Err: err})
			continue
		}
		result.Playlists = append(result.Playlists, *playlistResult)
	}

	return result, nil
}

// SyncPlaylist reads the playlist tracks, snapshots the destination library
// and fans out one ProcessOne per track, waiting for all of them.
func (o *Orchestrator) SyncPlaylist(ctx context.Context, playlist music.Playlist) (*PlaylistResult, error) {
	o.logger.Info("Processing playlist", zap.String("playlist", playlist.Name), zap.String("owner", playlist.Owner))
	tracks, err := o.catalog.ListTracks(ctx, playlist.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist tracks: %w", err)
	}

	o.logger.Info("Fetching existing TIDAL tracks...")
	existing, err := ExistingKeys(ctx, o.library)
	if err != nil {
		if o.opts.OnLibraryError == PolicyStrict {
			return nil, fmt.Errorf("failed to fetch existing TIDAL tracks: %w", err)
		}
		o.logger.Error("Error fetching TIDAL tracks, syncing against an empty library", zap.Error(err))
		existing = KeySet{}
	}

	o.logger.Info("Syncing playlist to TIDAL...",
		zap.String("playlist", playlist.Name), zap.Int("tracks", len(tracks)), zap.Int("existing", len(existing)))

	result := &PlaylistResult{Playlist: playlist}
	o.FanOut(ctx, tracks, existing, func(outcome Outcome) {
		result.record(outcome)
		o.logOutcome(outcome)
	})

	if o.opts.DryRun {
		o.logger.Info("Dry run complete.", zap.String("playlist", playlist.Name), zap.Int("would_add", result.Added))
	} else {
		o.logger.Info("Sync complete.", zap.String("playlist", playlist.Name), zap.Int("added", result.Added))
	}

	return result, nil
}

// FanOut runs ProcessOne for every track on a pool bounded by Options.Workers
// and calls emit for each outcome as it completes. emit is always called from
// the calling goroutine. FanOut returns once all tracks have an outcome.
func (o *Orchestrator) FanOut(ctx context.Context, tracks []music.Track, existing KeySet, emit func(Outcome)) {
	outcomes := make(chan Outcome, len(tracks))

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)

	go func() {
		for _, track := range tracks {
			g.Go(func() error {
				outcomes <- o.matcher.ProcessOne(ctx, track, existing)
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		emit(outcome)
	}
}

func (o *Orchestrator) logOutcome(outcome Outcome) {
	if outcome.Status == StatusError {
		o.logger.Warn(outcome.String())
		return
	}
	if outcome.MatchID != "" {
		o.logger.Info(outcome.String(), zap.String("tidal_id", outcome.MatchID))
		return
	}
	o.logger.Info(outcome.String())
}
