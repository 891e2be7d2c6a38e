package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/garry/tidalify/config"
	"github.com/garry/tidalify/music"
	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
)

// PlaylistPageSize is the page size used when listing playlists
const PlaylistPageSize = 50

// ErrNotLoggedIn is returned by calls made before Login
var ErrNotLoggedIn = errors.New("spotify: not logged in")

// Client wraps the Spotify API client
type Client struct {
	client *spotify.Client
	config *config.Config
	logger *zap.Logger
}

// NewClient creates a Spotify client. Call Login before any other method.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: cfg,
		logger: logger.Named("spotify"),
	}
}

// NewClientWithHTTPClient creates a client that is already authorized through
// httpClient, skipping the OAuth flow
func NewClientWithHTTPClient(cfg *config.Config, logger *zap.Logger, httpClient *http.Client, opts ...spotify.ClientOption) *Client {
	c := NewClient(cfg, logger)
	c.client = spotify.New(httpClient, opts...)
	return c
}

// ListPlaylists fetches every playlist of the current user, following pages
// until there are none left
func (c *Client) ListPlaylists(ctx context.Context) ([]music.Playlist, error) {
	if c.client == nil {
		return nil, ErrNotLoggedIn
	}

	page, err := c.client.CurrentUsersPlaylists(ctx, spotify.Limit(PlaylistPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to get current user playlists: %w", err)
	}

	var playlists []music.Playlist
	for {
		for _, playlist := range page.Playlists {
			playlists = append(playlists, music.Playlist{
				ID:         string(playlist.ID),
				Name:       playlist.Name,
				Owner:      playlist.Owner.DisplayName,
				TrackCount: int(playlist.Tracks.Total),
			})
		}

		err := c.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get next playlist page: %w", err)
		}
	}

	c.logger.Debug("Fetched playlists", zap.Int("count", len(playlists)))
	return playlists, nil
}

// ListTracks fetches the tracks of a playlist. Items without a track (removed
// tracks, podcast episodes) are skipped. Only the first page is read unless
// full playlist listing is enabled in the config.
func (c *Client) ListTracks(ctx context.Context, playlistID string) ([]music.Track, error) {
	if c.client == nil {
		return nil, ErrNotLoggedIn
	}

	page, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist tracks: %w", err)
	}

	tracks := tracksFromItems(page.Items)
	for pageNumber := 2; c.config.Spotify.FullPlaylists; pageNumber++ {
		err := c.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist tracks (page %d): %w", pageNumber, err)
		}
		tracks = append(tracks, tracksFromItems(page.Items)...)
	}

	return tracks, nil
}

// tracksFromItems converts playlist items, dropping items with no track
func tracksFromItems(items []spotify.PlaylistItem) []music.Track {
	tracks := make([]music.Track, 0, len(items))
	for _, item := range items {
		if item.Track.Track == nil {
			continue
		}
		tracks = append(tracks, convertTrack(item.Track.Track))
	}
	return tracks
}

// convertTrack converts a Spotify track, keeping only the first listed artist
func convertTrack(track *spotify.FullTrack) music.Track {
	artist := ""
	if len(track.Artists) > 0 {
		artist = track.Artists[0].Name
	}

	return music.Track{
		ID:     string(track.ID),
		Name:   track.Name,
		Artist: artist,
		Album:  track.Album.Name,
		ISRC:   track.ExternalIDs["isrc"],
	}
}
