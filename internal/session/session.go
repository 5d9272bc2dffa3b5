// Package session defines the surface of the external media engine the
// bridge drives. The bridge only ever talks to these interfaces; the real
// engine lives in internal/spotify.
package session

import "time"

// Session is an active connection to the remote service. Implementations
// may invoke Listener callbacks from their own goroutines; callers must not
// assume any method is safe to call concurrently with itself.
type Session interface {
	// ProcessEvents drains all currently pending engine events and returns
	// the recommended delay before the next drain. It returns an error once
	// the session has been torn down, which ends the caller's pump cycle.
	ProcessEvents() (time.Duration, error)

	// TrackCreate, AlbumCreate and ImageCreate return unloaded objects whose
	// data the engine fetches in the background. Poll IsLoaded while pumping
	// events to observe completion.
	TrackCreate(l Link) *Track
	AlbumCreate(l Link) *Album
	ImageCreate(id string) *Image

	// Load binds a loaded track for playback. Play toggles delivery of that
	// track's audio to the listener's MusicDelivery.
	Load(t *Track) error
	Play(on bool) error

	// BrowseAlbum and BrowseArtist return a browse handle immediately and
	// invoke cb from the event queue once the handle is loaded.
	BrowseAlbum(a *Album, cb func(*AlbumBrowse)) *AlbumBrowse
	BrowseArtist(a *Artist, cb func(*ArtistBrowse)) *ArtistBrowse

	Search(query string, cb func(*SearchResults))

	// PlaylistContainer returns the logged-in user's playlists.
	PlaylistContainer() []*Playlist

	IsLocal(t *Track) bool
	IsAvailable(t *Track) bool

	// Logout tears the session down. The listener's LoggedOut fires once
	// teardown completes; the session must not be used afterwards.
	Logout()
}

// Listener receives the session's asynchronous notifications. All methods
// except MusicDelivery may be invoked from an engine goroutine and should
// marshal onto the host context before touching shared state. MusicDelivery
// is invoked on the delivery goroutine and returns the number of frames
// accepted; frames beyond that count are resubmitted by the engine.
type Listener interface {
	LoggedIn(s Session, err error)
	LoggedOut(s Session)
	EndOfTrack(s Session)
	Wake(s Session)
	MetadataUpdated(s Session)
	LogMessage(s Session, msg string)
	ConnectionError(s Session, err error)
	MessageToUser(s Session, msg string)
	MusicDelivery(s Session, format AudioFormat, frames []byte, numFrames int) int
}

// Connector establishes a session for the given credentials. The returned
// session exists before login completes; the listener's LoggedIn callback
// reports the outcome.
type Connector func(creds Credentials, l Listener) (Session, error)
