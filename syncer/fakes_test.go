package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garry/tidalify/music"
)

// fakeLibrary is an in-memory destination. Added tracks become favorites so a
// second run sees them in its snapshot.
type fakeLibrary struct {
	mu        sync.Mutex
	favorites []music.Track
	results   map[string][]music.Track // search query -> results
	searchErr map[string]error
	addErr    map[string]error
	listErr   error
	delay     time.Duration

	searches []string
	added    []string
	listed   int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		results:   map[string][]music.Track{},
		searchErr: map[string]error{},
		addErr:    map[string]error{},
	}
}

func (f *fakeLibrary) ListFavoriteTracks(ctx context.Context) ([]music.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]music.Track(nil), f.favorites...), nil
}

func (f *fakeLibrary) SearchTracks(ctx context.Context, query string) ([]music.Track, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

func (f *fakeLibrary) AddFavorite(ctx context.Context, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, trackID)
	if err := f.addErr[trackID]; err != nil {
		return err
	}
	for _, tracks := range f.results {
		for _, track := range tracks {
			if track.ID == trackID {
				f.favorites = append(f.favorites, track)
				return nil
			}
		}
	}
	return nil
}

func (f *fakeLibrary) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeLibrary) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

// blockingLibrary never answers a search until its context is done
type blockingLibrary struct {
	*fakeLibrary
}

func (b *blockingLibrary) SearchTracks(ctx context.Context, query string) ([]music.Track, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeCatalog struct {
	playlists []music.Playlist
	tracks    map[string][]music.Track
	trackErr  map[string]error
	listErr   error

	mu          sync.Mutex
	trackCalls  []string
	listedCalls int
}

func (f *fakeCatalog) ListPlaylists(ctx context.Context) ([]music.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.playlists, nil
}

func (f *fakeCatalog) ListTracks(ctx context.Context, playlistID string) ([]music.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackCalls = append(f.trackCalls, playlistID)
	if err := f.trackErr[playlistID]; err != nil {
		return nil, err
	}
	return f.tracks[playlistID], nil
}

var errBoom = errors.New("boom")
