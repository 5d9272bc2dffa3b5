package session

import "sync/atomic"

// Loadable is anything obtained from a session whose data arrives
// asynchronously. IsLoaded reports whether the data has been populated yet.
type Loadable interface {
	IsLoaded() bool
}

// loadedFlag is embedded by session objects to implement Loadable.
// Fields are written by the engine before the flag flips.
type loadedFlag struct {
	v atomic.Bool
}

func (f *loadedFlag) IsLoaded() bool { return f.v.Load() }

// MarkLoaded flips the object to loaded. Engine use only.
func (f *loadedFlag) MarkLoaded() { f.v.Store(true) }

type Track struct {
	loadedFlag
	URI        string
	Name       string
	Artist     string
	Album      string
	DurationMS int
	PreviewURL string
	Available  bool
	Local      bool
}

type Album struct {
	loadedFlag
	URI       string
	Name      string
	Artist    string
	CoverID   string
	Available bool
}

type Artist struct {
	loadedFlag
	URI  string
	Name string
}

type Playlist struct {
	loadedFlag
	URI    string
	Name   string
	Tracks []*Track
}

type Image struct {
	loadedFlag
	ID   string
	data []byte
}

// Data returns the raw image bytes. Empty until loaded.
func (i *Image) Data() []byte { return i.data }

// SetData stores the image bytes. Engine use only.
func (i *Image) SetData(b []byte) { i.data = b }

// AlbumBrowse is the result handle of an album browse. The album's own
// fields and the track list are populated by the time it is loaded.
type AlbumBrowse struct {
	loadedFlag
	Album  *Album
	Tracks []*Track
}

// ArtistBrowse is the result handle of an artist browse.
type ArtistBrowse struct {
	loadedFlag
	Artist    *Artist
	TopTracks []*Track
}

type SearchResults struct {
	Query  string
	Tracks []*Track
	Albums []*Album
}

// Credentials identify one account for the lifetime of a bridge instance.
type Credentials struct {
	Username string
	Password string
}

type SampleType int

const (
	// SampleTypeInt16NativeEndian is interleaved signed 16-bit PCM in the
	// machine's byte order, the only sample type engines deliver today.
	SampleTypeInt16NativeEndian SampleType = iota
)

// AudioFormat describes the raw frames handed to Listener.MusicDelivery.
type AudioFormat struct {
	SampleType SampleType
	SampleRate int
	Channels   int
}
