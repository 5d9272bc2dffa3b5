package spotify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/s4b3rt0oth/spotify2/internal/session"
)

const fetchTimeout = 30 * time.Second

// topTracksMarket scopes artist top-track lookups; the Web API requires one.
const topTracksMarket = "US"

func fetchContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), fetchTimeout)
}

// TrackCreate returns an unloaded track and starts a metadata fetch for it.
func (e *Engine) TrackCreate(l session.Link) *session.Track {
	t := &session.Track{URI: l.String(), Local: l.Type == session.LinkLocal}
	if t.Local {
		// Local files have no remote metadata to wait for.
		t.MarkLoaded()
		return t
	}
	go func() {
		ctx, cancel := fetchContext()
		defer cancel()
		full, err := e.raw.GetTrack(ctx, spotifyapi.ID(l.ID))
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("track load failed: %s: %v", l, err))
			})
			return
		}
		e.post(func() {
			fillTrack(t, &full.SimpleTrack, full.Album.Name)
			e.listener.MetadataUpdated(e)
		})
	}()
	return t
}

// AlbumCreate returns an unloaded album and starts a metadata fetch for it.
func (e *Engine) AlbumCreate(l session.Link) *session.Album {
	a := &session.Album{URI: l.String()}
	go func() {
		ctx, cancel := fetchContext()
		defer cancel()
		full, err := e.raw.GetAlbum(ctx, spotifyapi.ID(l.ID))
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("album load failed: %s: %v", l, err))
			})
			return
		}
		e.post(func() {
			fillAlbum(a, full)
			e.listener.MetadataUpdated(e)
		})
	}()
	return a
}

// ImageCreate returns an unloaded image and starts downloading imageID,
// which is the artwork URL reported by album metadata.
func (e *Engine) ImageCreate(imageID string) *session.Image {
	img := &session.Image{ID: imageID}
	go func() {
		ctx, cancel := fetchContext()
		defer cancel()
		path, err := e.files.Fetch(ctx, imageID, func(w io.Writer) error {
			return e.download(ctx, imageID, w)
		})
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("image load failed: %s: %v", imageID, err))
			})
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("image read failed: %s: %v", imageID, err))
			})
			return
		}
		e.post(func() {
			img.SetData(data)
			img.MarkLoaded()
		})
	}()
	return img
}

func (e *Engine) BrowseAlbum(a *session.Album, cb func(*session.AlbumBrowse)) *session.AlbumBrowse {
	browse := &session.AlbumBrowse{Album: a}
	go func() {
		ctx, cancel := fetchContext()
		defer cancel()
		link, err := session.ParseLink(a.URI)
		if err != nil {
			e.post(func() { e.listener.LogMessage(e, "album browse failed: "+err.Error()) })
			return
		}
		full, err := e.raw.GetAlbum(ctx, spotifyapi.ID(link.ID))
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("album browse failed: %s: %v", a.URI, err))
			})
			return
		}
		page, err := e.raw.GetAlbumTracks(ctx, spotifyapi.ID(link.ID))
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("album browse failed: %s: %v", a.URI, err))
			})
			return
		}
		var tracks []*session.Track
		add := func(items []spotifyapi.SimpleTrack) {
			for i := range items {
				t := &session.Track{URI: "spotify:track:" + string(items[i].ID)}
				fillTrack(t, &items[i], full.Name)
				tracks = append(tracks, t)
			}
		}
		add(page.Tracks)
		for page.Next != "" {
			if err := e.raw.NextPage(ctx, page); err != nil {
				break
			}
			add(page.Tracks)
		}
		e.post(func() {
			if !a.IsLoaded() {
				fillAlbum(a, full)
			}
			browse.Tracks = tracks
			browse.MarkLoaded()
			cb(browse)
		})
	}()
	return browse
}

func (e *Engine) BrowseArtist(ar *session.Artist, cb func(*session.ArtistBrowse)) *session.ArtistBrowse {
	browse := &session.ArtistBrowse{Artist: ar}
	go func() {
		ctx, cancel := fetchContext()
		defer cancel()
		link, err := session.ParseLink(ar.URI)
		if err != nil {
			e.post(func() { e.listener.LogMessage(e, "artist browse failed: "+err.Error()) })
			return
		}
		full, err := e.raw.GetArtist(ctx, spotifyapi.ID(link.ID))
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("artist browse failed: %s: %v", ar.URI, err))
			})
			return
		}
		top, err := e.raw.GetArtistsTopTracks(ctx, spotifyapi.ID(link.ID), topTracksMarket)
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("artist browse failed: %s: %v", ar.URI, err))
			})
			return
		}
		var tracks []*session.Track
		for i := range top {
			t := &session.Track{URI: "spotify:track:" + string(top[i].ID)}
			fillTrack(t, &top[i].SimpleTrack, top[i].Album.Name)
			tracks = append(tracks, t)
		}
		e.post(func() {
			ar.Name = full.Name
			ar.MarkLoaded()
			browse.TopTracks = tracks
			browse.MarkLoaded()
			cb(browse)
		})
	}()
	return browse
}

func (e *Engine) Search(query string, cb func(*session.SearchResults)) {
	go func() {
		ctx, cancel := fetchContext()
		defer cancel()
		res, err := e.raw.Search(ctx, query, spotifyapi.SearchTypeTrack|spotifyapi.SearchTypeAlbum)
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("search failed: %q: %v", query, err))
			})
			return
		}
		out := &session.SearchResults{Query: query}
		if res.Tracks != nil {
			for i := range res.Tracks.Tracks {
				ft := &res.Tracks.Tracks[i]
				t := &session.Track{URI: "spotify:track:" + string(ft.ID)}
				fillTrack(t, &ft.SimpleTrack, ft.Album.Name)
				out.Tracks = append(out.Tracks, t)
			}
		}
		if res.Albums != nil {
			for i := range res.Albums.Albums {
				sa := &res.Albums.Albums[i]
				a := &session.Album{
					URI:       "spotify:album:" + string(sa.ID),
					Name:      sa.Name,
					Available: true,
				}
				if len(sa.Artists) > 0 {
					a.Artist = sa.Artists[0].Name
				}
				if len(sa.Images) > 0 {
					a.CoverID = sa.Images[0].URL
				}
				a.MarkLoaded()
				out.Albums = append(out.Albums, a)
			}
		}
		e.post(func() { cb(out) })
	}()
}

func fillTrack(t *session.Track, st *spotifyapi.SimpleTrack, albumName string) {
	t.Name = st.Name
	if len(st.Artists) > 0 {
		t.Artist = st.Artists[0].Name
	}
	t.Album = albumName
	t.DurationMS = int(st.Duration)
	t.PreviewURL = st.PreviewURL
	t.Available = st.PreviewURL != ""
	t.MarkLoaded()
}

func fillAlbum(a *session.Album, full *spotifyapi.FullAlbum) {
	a.Name = full.Name
	if len(full.Artists) > 0 {
		a.Artist = full.Artists[0].Name
	}
	if len(full.Images) > 0 {
		a.CoverID = full.Images[0].URL
	}
	a.Available = true
	a.MarkLoaded()
}
