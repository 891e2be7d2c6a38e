package syncer

import (
	"strings"

	"github.com/garry/tidalify/music"
)

// NormalizeKey returns the identity used to decide whether two tracks are the
// same: lowercase(name) + ":" + lowercase(artist). Both sides of every
// comparison must go through this function.
func NormalizeKey(name, artist string) string {
	return strings.ToLower(name) + ":" + strings.ToLower(artist)
}

// KeyOf returns the normalized key of a track
func KeyOf(track music.Track) string {
	return NormalizeKey(track.Name, track.Artist)
}

// SearchQuery returns the destination search query for a track. The name and
// artist are joined with a single space and otherwise passed through verbatim.
func SearchQuery(track music.Track) string {
	return track.Name + " " + track.Artist
}

// KeySet is a snapshot of normalized keys present in the destination library.
// It is built once and only read afterwards, so it is safe to share between
// workers without locking.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from tracks
func NewKeySet(tracks []music.Track) KeySet {
	set := make(KeySet, len(tracks))
	for _, track := range tracks {
		set[KeyOf(track)] = struct{}{}
	}
	return set
}

// Contains reports whether the track's normalized key is in the set
func (s KeySet) Contains(track music.Track) bool {
	_, ok := s[KeyOf(track)]
	return ok
}
