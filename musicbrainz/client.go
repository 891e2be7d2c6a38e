package musicbrainz

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garry/tidalify/music"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the MusicBrainz web service root
const DefaultBaseURL = "https://musicbrainz.org/ws/2"

// ErrNoRecording is returned when a lookup finds nothing
var ErrNoRecording = errors.New("no MusicBrainz recording found")

// Client wraps the MusicBrainz API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// Recording represents a MusicBrainz recording
type Recording struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title"`
}

// searchResponse represents the response from the recording search API
type searchResponse struct {
	RecordingList struct {
		Recordings []Recording `xml:"recording"`
	} `xml:"recording-list"`
}

// isrcResponse represents the response from the ISRC API
type isrcResponse struct {
	ISRC struct {
		RecordingList struct {
			Recordings []Recording `xml:"recording"`
		} `xml:"recording-list"`
	} `xml:"isrc"`
}

// NewClient creates a new MusicBrainz client. Requests are paced to one per
// second as the MusicBrainz rate limiting rules require.
func NewClient(version string) *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: fmt.Sprintf("Tidalify/%s (https://github.com/garry/tidalify)", version),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SetBaseURL points the client at another web service root
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// SetRateLimit replaces the request pacing
func (c *Client) SetRateLimit(limit rate.Limit) {
	c.limiter.SetLimit(limit)
}

// LookupRecordingID returns the MusicBrainz recording ID for a track, trying
// the ISRC first and falling back to an artist/title search
func (c *Client) LookupRecordingID(ctx context.Context, track music.Track) (string, error) {
	if track.ISRC != "" {
		id, err := c.RecordingIDByISRC(ctx, track.ISRC)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return c.RecordingIDByArtistAndTitle(ctx, track.Artist, track.Name)
}

// RecordingIDByISRC looks a recording up by ISRC
func (c *Client) RecordingIDByISRC(ctx context.Context, isrc string) (string, error) {
	if isrc == "" {
		return "", fmt.Errorf("ISRC cannot be empty")
	}

	var resp isrcResponse
	if err := c.get(ctx, "/isrc/"+url.PathEscape(isrc), url.Values{}, &resp); err != nil {
		return "", err
	}

	if len(resp.ISRC.RecordingList.Recordings) == 0 {
		return "", fmt.Errorf("%w for ISRC %s", ErrNoRecording, isrc)
	}

	return resp.ISRC.RecordingList.Recordings[0].ID, nil
}

// RecordingIDByArtistAndTitle searches for a recording by artist and title
func (c *Client) RecordingIDByArtistAndTitle(ctx context.Context, artist, title string) (string, error) {
	if artist == "" || title == "" {
		return "", fmt.Errorf("artist and title cannot be empty")
	}

	query := fmt.Sprintf("artist:\"%s\" AND recording:\"%s\"",
		strings.ReplaceAll(artist, "\"", "\\\""),
		strings.ReplaceAll(title, "\"", "\\\""))

	params := url.Values{}
	params.Add("query", query)
	params.Add("limit", "1")

	var resp searchResponse
	if err := c.get(ctx, "/recording/", params, &resp); err != nil {
		return "", err
	}

	if len(resp.RecordingList.Recordings) == 0 {
		return "", fmt.Errorf("%w for artist: %s, title: %s", ErrNoRecording, artist, title)
	}

	return resp.RecordingList.Recordings[0].ID, nil
}

// get performs a paced GET and decodes the XML body into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("fmt", "xml")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers for MusicBrainz API
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoRecording
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("MusicBrainz API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode XML response: %w", err)
	}

	return nil
}
