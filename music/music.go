// Package music holds the service-neutral catalog types shared by the
// Spotify reader, the TIDAL client and the sync engine.
package music

import "fmt"

// Playlist represents a source playlist
type Playlist struct {
	ID         string
	Name       string
	Owner      string
	TrackCount int
}

// Track represents a single track as reported by either service
type Track struct {
	ID     string
	Name   string
	Artist string
	Album  string
	ISRC   string
}

// String returns "Name by Artist".
func (t Track) String() string {
	return fmt.Sprintf("%s by %s", t.Name, t.Artist)
}
