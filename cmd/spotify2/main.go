package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/s4b3rt0oth/spotify2/internal/bridge"
	"github.com/s4b3rt0oth/spotify2/internal/cache"
	"github.com/s4b3rt0oth/spotify2/internal/config"
	"github.com/s4b3rt0oth/spotify2/internal/repository"
	"github.com/s4b3rt0oth/spotify2/internal/runloop"
	"github.com/s4b3rt0oth/spotify2/internal/session"
	"github.com/s4b3rt0oth/spotify2/internal/spotify"
	"github.com/s4b3rt0oth/spotify2/internal/stream"
	"github.com/s4b3rt0oth/spotify2/internal/utils"
)

const usage = `usage: spotify2 <command> [args]

commands:
  playlists                 list the user's playlists
  search <query>            search tracks and albums
  artist <artist-uri>       list an artist's top tracks
  art <album-uri> <file>    save album artwork
  play <track-uri> <file>   stream a track to an AIFF file
  history                   show recently played tracks
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)
	files := cache.NewFileCache(cfg, repo)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loop := runloop.New()
	go func() { _ = loop.Run(ctx) }()

	client := bridge.New(cfg, loop, repo, spotify.Connector(cfg, files), func() (bridge.Converter, error) {
		return stream.NewAIFFConverter()
	})

	if os.Args[1] == "history" {
		showHistory(ctx, repo)
		return
	}

	loop.Do(func() { err = client.Connect() })
	if err != nil {
		log.Fatal(err)
	}
	if err := waitLoggedIn(ctx, loop, client); err != nil {
		log.Fatal(err)
	}
	defer loop.Do(client.Disconnect)

	switch os.Args[1] {
	case "playlists":
		err = runPlaylists(loop, client)
	case "search":
		err = runSearch(ctx, loop, client, strings.Join(os.Args[2:], " "))
	case "artist":
		err = runArtist(loop, client, os.Args[2:])
	case "art":
		err = runArt(ctx, loop, client, os.Args[2:])
	case "play":
		err = runPlay(ctx, loop, client, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func waitLoggedIn(ctx context.Context, loop *runloop.Loop, c *bridge.Client) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		var loggedIn, loggingIn bool
		var loginErr error
		loop.Do(func() {
			loggedIn = c.IsLoggedIn()
			loggingIn = c.IsLoggingIn()
			loginErr = c.LoginError()
		})
		if loggedIn {
			return nil
		}
		if !loggingIn {
			if loginErr != nil {
				return loginErr
			}
			return errors.New("login did not complete")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errors.New("login timed out")
}

func runPlaylists(loop *runloop.Loop, c *bridge.Client) error {
	var err error
	loop.Do(func() {
		pls, e := c.GetPlaylists()
		err = e
		for _, pl := range pls {
			fmt.Printf("%s\t%s\n", pl.URI, pl.Name)
		}
	})
	return err
}

func runSearch(ctx context.Context, loop *runloop.Loop, c *bridge.Client, query string) error {
	if query == "" {
		return errors.New("search: missing query")
	}
	done := make(chan struct{})
	var err error
	loop.Do(func() {
		err = c.Search(query, func(res *session.SearchResults) {
			for _, t := range res.Tracks {
				fmt.Printf("%s\t%s - %s\t%s\n", t.URI, t.Artist, t.Name, utils.PrettyTimeMS(t.DurationMS))
			}
			for _, a := range res.Albums {
				fmt.Printf("%s\t%s - %s\n", a.URI, a.Artist, a.Name)
			}
			close(done)
		})
	})
	if err != nil {
		return err
	}
	return waitDone(ctx, done, 30*time.Second, "search")
}

func runArtist(loop *runloop.Loop, c *bridge.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("artist: want <artist-uri>")
	}
	var err error
	loop.Do(func() {
		browse, e := c.BrowseArtist(&session.Artist{URI: args[0]})
		if e != nil {
			err = e
			return
		}
		for _, t := range browse.TopTracks {
			fmt.Printf("%s\t%s - %s\t%s\n", t.URI, t.Artist, t.Name, utils.PrettyTimeMS(t.DurationMS))
		}
	})
	return err
}

func runArt(ctx context.Context, loop *runloop.Loop, c *bridge.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("art: want <album-uri> <file>")
	}
	uri, out := args[0], args[1]
	done := make(chan struct{})
	var err error
	loop.Do(func() {
		err = c.GetArt(uri, func(data []byte) {
			if werr := os.WriteFile(out, data, 0o644); werr != nil {
				log.Print(werr)
			}
			close(done)
		})
	})
	if err != nil {
		return err
	}
	return waitDone(ctx, done, 60*time.Second, "artwork")
}

func runPlay(ctx context.Context, loop *runloop.Loop, c *bridge.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("play: want <track-uri> <file>")
	}
	uri, out := args[0], args[1]
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	done := make(chan struct{})
	loop.Do(func() {
		err = c.PlayTrack(uri,
			func(data []byte) bool {
				_, werr := f.Write(data)
				return werr == nil
			},
			func() { close(done) },
		)
	})
	if err != nil {
		return err
	}
	return waitDone(ctx, done, 5*time.Minute, "playback")
}

func showHistory(ctx context.Context, repo *repository.Repo) {
	entries, err := repo.RecentHistory(ctx, 20)
	if err != nil {
		log.Fatal(err)
	}
	for _, h := range entries {
		fmt.Printf("%s\t%s - %s\t%s\n",
			h.URI, h.Artist, h.Title, time.Unix(h.PlayedAt, 0).Format(time.RFC3339))
	}
}

func waitDone(ctx context.Context, done <-chan struct{}, timeout time.Duration, what string) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("%s timed out", what)
	}
}
