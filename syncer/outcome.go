package syncer

import (
	"fmt"

	"github.com/garry/tidalify/music"
)

// Status is the kind of a per-track sync outcome
type Status int

const (
	StatusAdded Status = iota
	StatusSkipped
	StatusNotFound
	StatusError
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusSkipped:
		return "skipped"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of processing one source track
type Outcome struct {
	Status  Status
	Track   music.Track
	MatchID string // destination track ID that was (or would be) added
	DryRun  bool   // the add call was skipped
	Err     error  // set for StatusError
}

// Added returns an Added outcome
func Added(track music.Track, matchID string) Outcome {
	return Outcome{Status: StatusAdded, Track: track, MatchID: matchID}
}

// Skipped returns a Skipped outcome
func Skipped(track music.Track) Outcome {
	return Outcome{Status: StatusSkipped, Track: track}
}

// NotFound returns a NotFound outcome
func NotFound(track music.Track) Outcome {
	return Outcome{Status: StatusNotFound, Track: track}
}

// Failed returns an Error outcome
func Failed(track music.Track, err error) Outcome {
	return Outcome{Status: StatusError, Track: track, Err: err}
}

// String returns the human-readable outcome line
func (o Outcome) String() string {
	switch o.Status {
	case StatusAdded:
		if o.DryRun {
			return fmt.Sprintf("Would add to TIDAL: %s by %s", o.Track.Name, o.Track.Artist)
		}
		return fmt.Sprintf("Added to TIDAL: %s by %s", o.Track.Name, o.Track.Artist)
	case StatusSkipped:
		return fmt.Sprintf("Skipping (already in TIDAL): %s by %s", o.Track.Name, o.Track.Artist)
	case StatusNotFound:
		return fmt.Sprintf("Track not found on TIDAL: %s by %s", o.Track.Name, o.Track.Artist)
	default:
		return fmt.Sprintf("Error adding track: %s - %v", o.Track.Name, o.Err)
	}
}
