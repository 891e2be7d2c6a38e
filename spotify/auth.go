package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/garry/tidalify/config"
	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// newAuthenticator builds the authorization code authenticator for cfg
func newAuthenticator(cfg *config.Config) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithRedirectURL(cfg.Spotify.RedirectURI),
		spotifyauth.WithClientID(cfg.Spotify.ClientID),
		spotifyauth.WithClientSecret(cfg.Spotify.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		),
	)
}

// Login authorizes the client as the current user. A cached token from the
// configured token file is tried first; otherwise the authorization code flow
// runs with a local callback server on the redirect URI.
func (c *Client) Login(ctx context.Context) error {
	auth := newAuthenticator(c.config)
	tokenFile := c.config.Spotify.TokenFile

	if token, err := LoadToken(tokenFile); err == nil && token != nil {
		c.client = spotify.New(auth.Client(ctx, token))
		user, err := c.client.CurrentUser(ctx)
		if err == nil {
			c.persistRefreshedToken(tokenFile, token)
			c.logger.Info("Logged into Spotify successfully.", zap.String("user", user.ID), zap.String("token_file", tokenFile))
			return nil
		}
		c.logger.Warn("Cached Spotify token rejected, authorizing again", zap.Error(err))
	}

	token, err := c.authorize(ctx, auth)
	if err != nil {
		return fmt.Errorf("failed to log into Spotify: %w", err)
	}

	c.client = spotify.New(auth.Client(ctx, token))
	user, err := c.client.CurrentUser(ctx)
	if err != nil {
		c.client = nil
		return fmt.Errorf("failed to log into Spotify: %w", err)
	}

	if tokenFile != "" {
		if err := SaveToken(tokenFile, token); err != nil {
			c.logger.Warn("Failed to cache Spotify token", zap.String("token_file", tokenFile), zap.Error(err))
		}
	}

	c.logger.Info("Logged into Spotify successfully.", zap.String("user", user.ID))
	return nil
}

// persistRefreshedToken writes the client's current token back to path when the
// oauth2 source refreshed the cached one
func (c *Client) persistRefreshedToken(path string, cached *oauth2.Token) {
	current, err := c.client.Token()
	if err != nil {
		c.logger.Debug("Could not read current Spotify token", zap.Error(err))
		return
	}

	saved, err := saveIfRefreshed(path, cached, current)
	if err != nil {
		c.logger.Warn("Failed to cache refreshed Spotify token", zap.String("token_file", path), zap.Error(err))
		return
	}
	if saved {
		c.logger.Debug("Cached refreshed Spotify token", zap.String("token_file", path))
	}
}

// saveIfRefreshed saves current to path unless it is the cached token
func saveIfRefreshed(path string, cached, current *oauth2.Token) (bool, error) {
	if path == "" || current == nil {
		return false, nil
	}
	if cached != nil && current.AccessToken == cached.AccessToken && current.RefreshToken == cached.RefreshToken {
		return false, nil
	}
	return true, SaveToken(path, current)
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// authorize runs the authorization code flow and returns the token
func (c *Client) authorize(ctx context.Context, auth *spotifyauth.Authenticator) (*oauth2.Token, error) {
	redirect, err := url.Parse(c.config.Spotify.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI %q: %w", c.config.Spotify.RedirectURI, err)
	}
	if redirect.Host == "" {
		return nil, fmt.Errorf("redirect URI %q has no host", c.config.Spotify.RedirectURI)
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, callbackHandler(auth, state, results))

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for OAuth callback on %s: %w", redirect.Host, err)
	}

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("OAuth callback server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	c.logger.Info("Please log in to Spotify by visiting the following page in your browser",
		zap.String("url", auth.AuthURL(state)))

	select {
	case result := <-results:
		return result.token, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// callbackHandler completes the code exchange for the OAuth redirect. Only the
// first result is delivered.
func callbackHandler(auth *spotifyauth.Authenticator, state string, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Couldn't get token", http.StatusForbidden)
		} else {
			fmt.Fprintln(w, "Login completed, you can close this window.")
		}

		select {
		case results <- callbackResult{token: token, err: err}:
		default:
		}
	}
}

// LoadToken reads a cached token. An empty path or a missing file returns a
// nil token and no error.
func LoadToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s contains no token", path)
	}

	return &token, nil
}

// SaveToken writes token to path, readable only by the current user
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}
