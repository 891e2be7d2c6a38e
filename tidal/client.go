// Package tidal is a small client for the TIDAL v1 REST API covering what the
// sync needs: username/password login, the favorite tracks list, track search
// and adding a favorite.
package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/garry/tidalify/config"
	"github.com/garry/tidalify/music"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Constants for the TIDAL API
const (
	// HTTP timeouts
	DefaultHTTPTimeout = 30 * time.Second

	// Page sizes
	FavoritesPageSize = 100
	SearchLimit       = 10

	sessionHeader = "X-Tidal-SessionId"
	tokenHeader   = "X-Tidal-Token"
)

// ErrNotLoggedIn is returned by calls that need a session before Login succeeded
var ErrNotLoggedIn = errors.New("tidal: not logged in")

// APIError is returned for non-2xx responses
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tidal API %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Session is the authenticated TIDAL session
type Session struct {
	UserID      int64  `json:"userId"`
	SessionID   string `json:"sessionId"`
	CountryCode string `json:"countryCode"`
}

// Track is a TIDAL track as returned by the API
type Track struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	ISRC    string   `json:"isrc"`
	Artist  Artist   `json:"artist"`
	Artists []Artist `json:"artists"`
	Album   struct {
		Title string `json:"title"`
	} `json:"album"`
}

// Artist is a TIDAL artist reference
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type favoritesPage struct {
	Limit              int `json:"limit"`
	Offset             int `json:"offset"`
	TotalNumberOfItems int `json:"totalNumberOfItems"`
	Items              []struct {
		Created string `json:"created"`
		Item    Track  `json:"item"`
	} `json:"items"`
}

type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

// Client wraps the TIDAL API. It is safe for concurrent use once Login has
// returned.
type Client struct {
	baseURL     string
	clientToken string
	username    string
	password    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger

	mu      sync.RWMutex
	session *Session
}

// NewClient creates a new TIDAL client
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		baseURL:     strings.TrimRight(cfg.Tidal.APIURL, "/"),
		clientToken: cfg.Tidal.ClientToken,
		username:    cfg.Tidal.Username,
		password:    cfg.Tidal.Password,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		logger:      logger.Named("tidal"),
	}

	if cfg.Tidal.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.Tidal.RateLimit), 1)
	}

	return client
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// Login authenticates with username and password and stores the session
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("token", c.clientToken)
	form.Set("clientUniqueKey", clientUniqueKey())

	var session Session
	if err := c.do(ctx, http.MethodPost, "/login/username", nil, form, nil, &session); err != nil {
		return fmt.Errorf("failed to log into TIDAL: %w", err)
	}
	if session.SessionID == "" || session.UserID == 0 {
		return fmt.Errorf("failed to log into TIDAL: login response did not contain a session")
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()

	c.logger.Info("Logged into TIDAL successfully.", zap.Int64("user_id", session.UserID), zap.String("country", session.CountryCode))
	return nil
}

// Session returns the current session, or nil before Login
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// ListFavoriteTracks returns every favorited track, following pages until the
// reported total is reached
func (c *Client) ListFavoriteTracks(ctx context.Context) ([]music.Track, error) {
	session := c.Session()
	if session == nil {
		return nil, ErrNotLoggedIn
	}

	path := fmt.Sprintf("/users/%d/favorites/tracks", session.UserID)
	var tracks []music.Track
	for offset := 0; ; {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(FavoritesPageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("order", "DATE")
		params.Set("orderDirection", "DESC")

		var page favoritesPage
		if err := c.do(ctx, http.MethodGet, path, params, nil, session, &page); err != nil {
			return nil, fmt.Errorf("failed to get favorite tracks (offset %d): %w", offset, err)
		}

		for _, item := range page.Items {
			tracks = append(tracks, item.Item.toTrack())
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			break
		}
	}

	c.logger.Debug("Fetched favorite tracks", zap.Int("count", len(tracks)))
	return tracks, nil
}

// SearchTracks searches the catalog for query. The query is sent as-is.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]music.Track, error) {
	session := c.Session()
	if session == nil {
		return nil, ErrNotLoggedIn
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("types", "TRACKS")
	params.Set("limit", strconv.Itoa(SearchLimit))

	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/search", params, nil, session, &resp); err != nil {
		return nil, fmt.Errorf("failed to search tracks for %q: %w", query, err)
	}

	tracks := make([]music.Track, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		tracks = append(tracks, item.toTrack())
	}

	c.logger.Debug("Searched tracks", zap.String("query", query), zap.Int("results", len(tracks)))
	return tracks, nil
}

// AddFavorite adds a track to the user's favorites
func (c *Client) AddFavorite(ctx context.Context, trackID string) error {
	session := c.Session()
	if session == nil {
		return ErrNotLoggedIn
	}
	if trackID == "" {
		return fmt.Errorf("track ID cannot be empty")
	}

	form := url.Values{}
	form.Set("trackIds", trackID)
	form.Set("onArtifactNotFound", "FAIL")

	path := fmt.Sprintf("/users/%d/favorites/tracks", session.UserID)
	if err := c.do(ctx, http.MethodPost, path, nil, form, session, nil); err != nil {
		return fmt.Errorf("failed to add track %s to favorites: %w", trackID, err)
	}

	return nil
}

// do performs one API request. form, when set, is sent as a urlencoded body.
// out, when set, receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, params, form url.Values, session *Session, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if params == nil {
		params = url.Values{}
	}
	if session != nil {
		params.Set("countryCode", session.CountryCode)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, c.clientToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if session != nil {
		req.Header.Set(sessionHeader, session.SessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode JSON response: %w", err)
	}

	return nil
}

// toTrack converts a TIDAL track to the shared track type
func (t Track) toTrack() music.Track {
	artist := t.Artist.Name
	if artist == "" && len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	return music.Track{
		ID:     strconv.FormatInt(t.ID, 10),
		Name:   t.Title,
		Artist: artist,
		Album:  t.Album.Title,
		ISRC:   t.ISRC,
	}
}

// clientUniqueKey returns a random 16 character hex key identifying this client
func clientUniqueKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
