package syncer

import (
	"strings"

	"github.com/garry/tidalify/music"
)

// FilterPlaylists keeps playlists whose name matches one of names
// (case-insensitive, exact) and drops those whose ID is in excludedIDs.
// An empty names list keeps every playlist.
func FilterPlaylists(playlists []music.Playlist, names, excludedIDs []string) []music.Playlist {
	allowed := make(map[string]struct{}, len(names))
	for _, name := range names {
		allowed[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}

	var filtered []music.Playlist
	for _, playlist := range playlists {
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(playlist.Name)]; !ok {
				continue
			}
		}
		if _, ok := excluded[playlist.ID]; ok {
			continue
		}
		filtered = append(filtered, playlist)
	}

	return filtered
}
