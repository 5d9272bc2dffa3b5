// Package spotify implements session.Session on top of the Spotify Web API.
// Object loads, browses and searches run on background goroutines and post
// completion thunks into an internal event queue; ProcessEvents drains that
// queue on whatever context the host pumps it from, which is how loaded
// flags flip and callbacks fire.
package spotify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/s4b3rt0oth/spotify2/internal/cache"
	"github.com/s4b3rt0oth/spotify2/internal/config"
	"github.com/s4b3rt0oth/spotify2/internal/session"
)

// tickInterval is the drain delay recommended to the event pump when the
// queue is quiet; posts wake the pump early anyway.
const tickInterval = 250 * time.Millisecond

const eventQueueSize = 256

type Engine struct {
	cfg      *config.Config
	auth     *clientcredentials.Config
	raw      *spotifyapi.Client
	http     *http.Client
	files    *cache.FileCache
	listener session.Listener

	events chan func()
	closed atomic.Bool

	// Populated by the login event; read from the pump context.
	playlists []*session.Playlist

	playMu     sync.Mutex
	loaded     *session.Track
	playCancel context.CancelFunc
	playDone   chan struct{}
}

// Connector returns a session.Connector backed by the Web API using the
// configured client credentials. The returned session exists immediately;
// LoggedIn fires through the event queue once token validation completes.
func Connector(cfg *config.Config, files *cache.FileCache) session.Connector {
	return func(creds session.Credentials, l session.Listener) (session.Session, error) {
		auth := &clientcredentials.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		e := &Engine{
			cfg:      cfg,
			auth:     auth,
			raw:      spotifyapi.New(auth.Client(context.Background()), spotifyapi.WithRetry(true)),
			http:     &http.Client{Timeout: 30 * time.Second},
			files:    files,
			listener: l,
			events:   make(chan func(), eventQueueSize),
		}
		go e.login(creds)
		return e, nil
	}
}

func (e *Engine) login(creds session.Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := e.auth.Token(ctx); err != nil {
		e.post(func() { e.listener.LoggedIn(e, err) })
		return
	}

	// Public playlists of the logged-in user; their absence is not a login
	// failure.
	var lists []*session.Playlist
	if page, err := e.raw.GetPlaylistsForUser(ctx, creds.Username); err != nil {
		e.listener.LogMessage(e, "playlist container unavailable: "+err.Error())
	} else {
		for _, p := range page.Playlists {
			pl := &session.Playlist{
				URI:  "spotify:playlist:" + string(p.ID),
				Name: p.Name,
			}
			pl.MarkLoaded()
			lists = append(lists, pl)
		}
	}

	e.post(func() {
		e.playlists = lists
		e.listener.LoggedIn(e, nil)
	})
}

// post enqueues fn for the next ProcessEvents drain and wakes the host.
// Events are dropped once the session is closed.
func (e *Engine) post(fn func()) {
	if e.closed.Load() {
		return
	}
	select {
	case e.events <- fn:
	default:
		slog.Warn("engine event queue full, dropping event")
		return
	}
	e.listener.Wake(e)
}

func (e *Engine) ProcessEvents() (time.Duration, error) {
	if e.closed.Load() {
		return 0, errors.New("session closed")
	}
	for {
		select {
		case fn := <-e.events:
			fn()
		default:
			return tickInterval, nil
		}
	}
}

func (e *Engine) PlaylistContainer() []*session.Playlist {
	return e.playlists
}

func (e *Engine) IsLocal(t *session.Track) bool {
	return t.Local
}

func (e *Engine) IsAvailable(t *session.Track) bool {
	return t.Available
}

func (e *Engine) Load(t *session.Track) error {
	if !t.IsLoaded() {
		return errors.New("track not loaded")
	}
	if t.Local {
		return errors.New("local tracks cannot be streamed")
	}
	if t.PreviewURL == "" {
		return errors.New("track has no playable stream")
	}
	e.playMu.Lock()
	defer e.playMu.Unlock()
	e.stopDeliveryLocked()
	e.loaded = t
	return nil
}

func (e *Engine) Play(on bool) error {
	e.playMu.Lock()
	defer e.playMu.Unlock()
	if !on {
		e.stopDeliveryLocked()
		return nil
	}
	if e.loaded == nil {
		return errors.New("no track loaded")
	}
	e.stopDeliveryLocked()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.playCancel = cancel
	e.playDone = done
	go e.deliver(ctx, e.loaded, done)
	return nil
}

// stopDeliveryLocked cancels the delivery goroutine and waits briefly for it
// to exit. Caller holds playMu.
func (e *Engine) stopDeliveryLocked() {
	if e.playCancel == nil {
		return
	}
	e.playCancel()
	e.playCancel = nil
	select {
	case <-e.playDone:
	case <-time.After(2 * time.Second):
	}
	e.playDone = nil
}

func (e *Engine) Logout() {
	e.playMu.Lock()
	e.stopDeliveryLocked()
	e.loaded = nil
	e.playMu.Unlock()
	e.closed.Store(true)
	e.listener.LoggedOut(e)
}
