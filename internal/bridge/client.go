// Package bridge adapts an asynchronous, callback-driven media session to a
// single-threaded host. All commands and session notifications run on the
// host run loop; the one exception is MusicDelivery, which arrives on an
// engine goroutine and synchronizes through the playback mutex.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/s4b3rt0oth/spotify2/internal/config"
	"github.com/s4b3rt0oth/spotify2/internal/repository"
	"github.com/s4b3rt0oth/spotify2/internal/runloop"
	"github.com/s4b3rt0oth/spotify2/internal/session"
)

// Converter turns raw session PCM into the output container format.
type Converter interface {
	// Convert consumes numFrames of raw PCM and returns how many frames it
	// actually accepted.
	Convert(frames []byte, numFrames int, format session.AudioFormat) (int, error)
	// PendingData drains the fully-encoded output bytes produced so far.
	PendingData() []byte
	Close()
}

// ConverterFactory builds a fresh converter for each played track.
type ConverterFactory func() (Converter, error)

type Client struct {
	cfg          *config.Config
	loop         *runloop.Loop
	repo         *repository.Repo
	connector    session.Connector
	newConverter ConverterFactory

	// Run-loop context state. Only touched from loop callbacks.
	sess      session.Session
	loggingIn bool
	loginErr  error
	pumping   bool
	timer     *runloop.Timer

	// Active playback context. Shared with the delivery goroutine.
	mu      sync.Mutex
	track   *session.Track
	conv    Converter
	audioCb func([]byte) bool
	stopCb  func()
}

// New builds a bridge for one set of credentials. repo may be nil to skip
// history recording.
func New(cfg *config.Config, loop *runloop.Loop, repo *repository.Repo, connector session.Connector, factory ConverterFactory) *Client {
	return &Client{
		cfg:          cfg,
		loop:         loop,
		repo:         repo,
		connector:    connector,
		newConverter: factory,
	}
}

func (c *Client) IsLoggingIn() bool { return c.loggingIn }

func (c *Client) IsLoggedIn() bool { return c.sess != nil }

// LoginError reports the outcome of the last login attempt; nil while a
// login is in flight or after a successful one.
func (c *Client) LoginError() error { return c.loginErr }

// NeedsRestart reports whether the bridge must be discarded and rebuilt
// because the credentials changed.
func (c *Client) NeedsRestart(username, password string) bool {
	return c.cfg.Username != username || c.cfg.Password != password
}

// Connect starts a login. The outcome arrives asynchronously: poll
// IsLoggingIn/IsLoggedIn/LoginError while the event pump runs.
func (c *Client) Connect() error {
	slog.Info("connecting", "username", c.cfg.Username)
	c.loggingIn = true
	c.loginErr = nil
	sess, err := c.connector(session.Credentials{Username: c.cfg.Username, Password: c.cfg.Password}, c)
	if err != nil {
		c.loggingIn = false
		return err
	}
	c.pumping = true
	c.schedulePeriodicCheck(sess, 0)
	return nil
}

func (c *Client) Disconnect() {
	if c.sess == nil {
		return
	}
	slog.Info("logging out")
	c.sess.Logout()
}

// WaitUntilLoaded polls obj until it reports loaded, pumping the session's
// event queue between polls so the load can actually progress. Returns a
// NotLoadedError on timeout; at least one readiness check happens even when
// the timeout is zero.
func (c *Client) WaitUntilLoaded(obj session.Loadable, timeout time.Duration) error {
	start := time.Now()
	for {
		if obj.IsLoaded() {
			return nil
		}
		if time.Since(start) >= timeout {
			return &NotLoadedError{Object: obj}
		}
		slog.Debug("waiting for session object", "object", fmt.Sprintf("%T", obj))
		if s := c.sess; s != nil {
			if _, err := s.ProcessEvents(); err != nil {
				return &NotLoadedError{Object: obj}
			}
		}
		time.Sleep(c.cfg.PollInterval)
	}
}

// GetPlaylists returns the user's playlists ordered by name. Empty when
// logged out.
func (c *Client) GetPlaylists() ([]*session.Playlist, error) {
	slog.Info("get playlists")
	if c.sess == nil {
		return nil, nil
	}
	lists := c.sess.PlaylistContainer()
	for _, pl := range lists {
		if !pl.IsLoaded() {
			return nil, &NotLoadedError{Object: pl}
		}
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].Name < lists[j].Name })
	return lists, nil
}

func (c *Client) Search(query string, cb func(*session.SearchResults)) error {
	slog.Info("search", "query", query)
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	c.sess.Search(query, cb)
	return nil
}

// BrowseAlbum browses an album, invoking cb from the event pump when the
// returned handle is loaded.
func (c *Client) BrowseAlbum(album *session.Album, cb func(*session.AlbumBrowse)) (*session.AlbumBrowse, error) {
	slog.Info("browse album", "uri", album.URI)
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	return c.sess.BrowseAlbum(album, func(b *session.AlbumBrowse) {
		slog.Info("album browse complete", "uri", album.URI)
		cb(b)
	}), nil
}

// BrowseArtist browses an artist, waiting until the artist object itself is
// loaded before returning the browse handle.
func (c *Client) BrowseArtist(artist *session.Artist) (*session.ArtistBrowse, error) {
	slog.Info("browse artist", "uri", artist.URI)
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	browse := c.sess.BrowseArtist(artist, func(*session.ArtistBrowse) {})
	if err := c.WaitUntilLoaded(artist, c.cfg.PollTimeout); err != nil {
		return nil, err
	}
	return browse, nil
}

// GetArt fetches album artwork. Only album references carry artwork; any
// other link type is rejected before contacting the session.
func (c *Client) GetArt(uri string, cb func(data []byte)) error {
	slog.Info("get artwork", "uri", uri)
	link, err := session.ParseLink(uri)
	if err != nil {
		return err
	}
	if link.Type != session.LinkAlbum {
		return fmt.Errorf("%w: non-album artwork", ErrUnsupportedOperation)
	}
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	album := c.sess.AlbumCreate(link)
	_, err = c.BrowseAlbum(album, func(*session.AlbumBrowse) {
		img, err := c.loadImage(album.CoverID)
		if err != nil {
			slog.Error("artwork load failed", "uri", uri, "err", err)
			return
		}
		slog.Info("artwork loaded", "uri", uri)
		cb(img.Data())
	})
	return err
}

func (c *Client) loadImage(imageID string) (*session.Image, error) {
	img := c.sess.ImageCreate(imageID)
	if err := c.WaitUntilLoaded(img, c.cfg.PollTimeout); err != nil {
		return nil, err
	}
	return img, nil
}

func (c *Client) loadTrack(uri string) (*session.Track, error) {
	link, err := session.ParseLink(uri)
	if err != nil {
		return nil, err
	}
	if link.Type != session.LinkTrack {
		return nil, fmt.Errorf("%w: %s is not a track", ErrUnsupportedOperation, uri)
	}
	track := c.sess.TrackCreate(link)
	if err := c.WaitUntilLoaded(track, c.cfg.PollTimeout); err != nil {
		return nil, err
	}
	return track, nil
}

// IsTrackPlayable reports whether a loaded track can actually be played.
func (c *Client) IsTrackPlayable(t *session.Track) (bool, error) {
	if !t.IsLoaded() {
		return false, &NotLoadedError{Object: t}
	}
	if c.sess.IsLocal(t) || !c.sess.IsAvailable(t) {
		return false, nil
	}
	return true, nil
}

func (c *Client) IsAlbumPlayable(a *session.Album) (bool, error) {
	if !a.IsLoaded() {
		return false, &NotLoadedError{Object: a}
	}
	return a.Available, nil
}

// PlayTrack starts playing uri. audioCb receives encoded output bytes and
// returns whether it can accept more; it runs under the playback lock and
// must not call back into the bridge. stopCb fires exactly once when
// playback ends for any reason and may re-enter freely. Any previous
// playback context is torn down before the new one is installed.
func (c *Client) PlayTrack(uri string, audioCb func([]byte) bool, stopCb func()) error {
	slog.Info("play track", "uri", uri)
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	track, err := c.loadTrack(uri)
	if err != nil {
		return err
	}
	c.StopPlayback()
	if err := c.sess.Load(track); err != nil {
		return err
	}
	if err := c.sess.Play(true); err != nil {
		return err
	}
	conv, err := c.newConverter()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.track = track
	c.conv = conv
	c.audioCb = audioCb
	c.stopCb = stopCb
	c.mu.Unlock()

	c.recordHistory(track)
	return nil
}

// StopPlayback stops the current stream. No-op when nothing is playing.
// The track is deliberately never unloaded from the session: explicit
// unload is crash-prone in some engines, and end-of-track or the next load
// supersedes the state anyway.
func (c *Client) StopPlayback() {
	c.mu.Lock()
	active := c.conv != nil
	c.mu.Unlock()
	if !active {
		return
	}
	slog.Info("stop playback")
	c.cleanup()
}

// cleanup tears down the active playback context. Idempotent: the stop
// callback fires at most once per installed context, and the converter
// reference is dropped unconditionally. Converged on from StopPlayback,
// end-of-track and the delivery error path.
func (c *Client) cleanup() {
	c.mu.Lock()
	stop := c.cleanupLocked()
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// cleanupLocked clears the playback context and returns the stop callback
// for the caller to invoke outside the lock.
func (c *Client) cleanupLocked() func() {
	stop := c.stopCb
	if c.conv != nil {
		c.conv.Close()
	}
	c.stopCb = nil
	c.audioCb = nil
	c.conv = nil
	c.track = nil
	return stop
}

func (c *Client) recordHistory(t *session.Track) {
	if c.repo == nil {
		return
	}
	err := c.repo.AddHistory(context.Background(), &repository.HistoryEntry{
		URI:    t.URI,
		Title:  t.Name,
		Artist: t.Artist,
	})
	if err != nil {
		slog.Warn("history record failed", "uri", t.URI, "err", err)
	}
}

// schedulePeriodicCheck arms the single outstanding pump timer. Re-arming
// replaces any armed timer, and becomes a no-op once the session has logged
// out.
func (c *Client) schedulePeriodicCheck(s session.Session, delay time.Duration) {
	if !c.pumping {
		return
	}
	c.loop.CancelTimer(c.timer)
	c.timer = c.loop.ScheduleTimer(delay, func() { c.periodicCheck(s) })
}

// periodicCheck drains pending session events and re-arms itself with the
// delay the session recommends. The cycle ends silently once the session is
// gone.
func (c *Client) periodicCheck(s session.Session) {
	if !c.pumping {
		return
	}
	slog.Debug("processing events")
	next, err := s.ProcessEvents()
	if err != nil {
		slog.Debug("event pump stopped", "err", err)
		return
	}
	c.schedulePeriodicCheck(s, next)
}

// Session notification callbacks. Everything except MusicDelivery marshals
// onto the run loop before touching bridge state.

func (c *Client) LoggedIn(s session.Session, err error) {
	c.loop.Post(func() {
		c.loggingIn = false
		if err != nil {
			c.loginErr = err
			slog.Error("login failed", "err", err)
			return
		}
		slog.Info("logged in")
		c.sess = s
	})
}

func (c *Client) LoggedOut(session.Session) {
	c.loop.Post(func() {
		slog.Info("logged out")
		c.sess = nil
		c.pumping = false
		c.loop.CancelTimer(c.timer)
		c.timer = nil
	})
}

func (c *Client) EndOfTrack(session.Session) {
	c.loop.Post(func() {
		slog.Info("track ended")
		c.cleanup()
	})
}

func (c *Client) Wake(s session.Session) {
	c.loop.Post(func() {
		slog.Debug("waking run loop")
		c.schedulePeriodicCheck(s, 0)
	})
}

func (c *Client) MetadataUpdated(session.Session) {
	slog.Debug("metadata updated")
}

func (c *Client) LogMessage(_ session.Session, msg string) {
	slog.Info("session message", "msg", strings.TrimSpace(msg))
}

func (c *Client) ConnectionError(_ session.Session, err error) {
	if err != nil {
		slog.Error("connection error", "err", err)
	}
}

func (c *Client) MessageToUser(_ session.Session, msg string) {
	slog.Info("user message", "msg", msg)
}

// MusicDelivery receives raw frames from the session, possibly on an engine
// goroutine. It returns the number of frames accepted; 0 tells the engine
// nothing is consuming audio right now. The playback mutex serializes the
// whole call, including the audio callback, against context swaps and
// concurrent deliveries; stop callbacks alone run after the lock is
// released, so only they may re-enter the bridge.
func (c *Client) MusicDelivery(_ session.Session, format session.AudioFormat, frames []byte, numFrames int) int {
	c.mu.Lock()
	if c.conv == nil {
		c.mu.Unlock()
		return 0
	}
	consumed, err := c.conv.Convert(frames, numFrames, format)
	if err != nil {
		stop := c.cleanupLocked()
		c.mu.Unlock()
		slog.Error("playback error", "err", err)
		if stop != nil {
			stop()
		}
		return 0
	}
	if !c.audioCb(c.conv.PendingData()) {
		stop := c.cleanupLocked()
		c.mu.Unlock()
		slog.Info("stop playback")
		if stop != nil {
			stop()
		}
		return 0
	}
	c.mu.Unlock()
	return consumed
}
