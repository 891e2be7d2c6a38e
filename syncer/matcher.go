// Package syncer implements the Spotify to TIDAL favorites sync: building the
// destination key snapshot, matching source tracks against it and fanning out
// search-and-add calls for the tracks that are missing.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/garry/tidalify/music"
)

// Catalog is the source service
type Catalog interface {
	ListPlaylists(ctx context.Context) ([]music.Playlist, error)
	ListTracks(ctx context.Context, playlistID string) ([]music.Track, error)
}

// Library is the destination service. Implementations must be safe for
// concurrent SearchTracks and AddFavorite calls.
type Library interface {
	ListFavoriteTracks(ctx context.Context) ([]music.Track, error)
	SearchTracks(ctx context.Context, query string) ([]music.Track, error)
	AddFavorite(ctx context.Context, trackID string) error
}

// ExistingKeys fetches the destination favorites and returns their key snapshot
func ExistingKeys(ctx context.Context, library Library) (KeySet, error) {
	tracks, err := library.ListFavoriteTracks(ctx)
	if err != nil {
		return nil, err
	}
	return NewKeySet(tracks), nil
}

// Matcher processes one source track at a time against a key snapshot
type Matcher struct {
	library Library
	timeout time.Duration
	dryRun  bool
}

// NewMatcher creates a Matcher. A zero timeout disables the per-track timeout.
// With dryRun set, matches are reported but never added.
func NewMatcher(library Library, timeout time.Duration, dryRun bool) *Matcher {
	return &Matcher{
		library: library,
		timeout: timeout,
		dryRun:  dryRun,
	}
}

// ProcessOne syncs a single track. Tracks already in existing are skipped
// without any network call; otherwise the first search result is added.
// Failures are returned as an Error outcome, never as a panic or error value.
func (m *Matcher) ProcessOne(ctx context.Context, track music.Track, existing KeySet) Outcome {
	if existing.Contains(track) {
		return Skipped(track)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return Failed(track, err)
	}

	results, err := m.library.SearchTracks(ctx, SearchQuery(track))
	if err != nil {
		return Failed(track, fmt.Errorf("search failed: %w", err))
	}
	if len(results) == 0 {
		return NotFound(track)
	}

	match := results[0]
	if m.dryRun {
		outcome := Added(track, match.ID)
		outcome.DryRun = true
		return outcome
	}

	if err := m.library.AddFavorite(ctx, match.ID); err != nil {
		return Failed(track, fmt.Errorf("add favorite %s failed: %w", match.ID, err))
	}

	return Added(track, match.ID)
}
