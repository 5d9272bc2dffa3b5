package session

import (
	"fmt"
	"net/url"
	"strings"
)

type LinkType int

const (
	LinkInvalid LinkType = iota
	LinkTrack
	LinkAlbum
	LinkArtist
	LinkPlaylist
	LinkLocal
)

// Link is a parsed spotify reference (URI or open.spotify.com URL).
type Link struct {
	Type LinkType
	ID   string
}

func (t LinkType) String() string {
	switch t {
	case LinkTrack:
		return "track"
	case LinkAlbum:
		return "album"
	case LinkArtist:
		return "artist"
	case LinkPlaylist:
		return "playlist"
	case LinkLocal:
		return "local"
	}
	return "invalid"
}

func (l Link) String() string {
	return "spotify:" + l.Type.String() + ":" + l.ID
}

func linkTypeFromString(s string) LinkType {
	switch s {
	case "track":
		return LinkTrack
	case "album":
		return LinkAlbum
	case "artist":
		return LinkArtist
	case "playlist":
		return LinkPlaylist
	case "local":
		return LinkLocal
	}
	return LinkInvalid
}

// ParseLink accepts "spotify:<type>:<id>" URIs and open.spotify.com URLs.
func ParseLink(raw string) (Link, error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			return Link{}, fmt.Errorf("invalid spotify URI %q", raw)
		}
		typ := linkTypeFromString(parts[1])
		if typ == LinkInvalid {
			return Link{}, fmt.Errorf("unsupported spotify type %q", parts[1])
		}
		return Link{Type: typ, ID: parts[2]}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return Link{}, fmt.Errorf("not a spotify link: %q", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return Link{}, fmt.Errorf("invalid spotify URL path %q", u.Path)
	}
	typ := linkTypeFromString(parts[0])
	if typ == LinkInvalid || typ == LinkLocal {
		return Link{}, fmt.Errorf("unsupported spotify type %q", parts[0])
	}
	return Link{Type: typ, ID: parts[1]}, nil
}
