package spotify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/s4b3rt0oth/spotify2/internal/session"
	"github.com/s4b3rt0oth/spotify2/internal/stream"
)

const (
	deliveryRate     = 44100
	deliveryChannels = 2
	frameBytes       = deliveryChannels * 2
	// chunkFrames keeps each MusicDelivery call comfortably under the
	// listener's buffering granularity.
	chunkFrames = 2048

	// resubmitDelay paces resubmission of frames the listener did not
	// accept; maxStalledResubmits bounds how long a listener that accepts
	// nothing at all is retried before delivery gives up.
	resubmitDelay       = 50 * time.Millisecond
	maxStalledResubmits = 40
)

// deliver streams a track's audio to the listener. It downloads the preview
// through the file cache, decodes it to PCM and pushes bounded chunks into
// MusicDelivery, resubmitting whatever the listener does not accept.
func (e *Engine) deliver(ctx context.Context, t *session.Track, done chan struct{}) {
	defer close(done)

	path, err := e.files.Fetch(ctx, t.PreviewURL, func(w io.Writer) error {
		return e.download(ctx, t.PreviewURL, w)
	})
	if err != nil {
		e.post(func() {
			e.listener.LogMessage(e, fmt.Sprintf("stream download failed: %s: %v", t.URI, err))
		})
		return
	}

	ps, err := stream.StartPreviewStream(ctx, path)
	if err != nil {
		e.post(func() {
			e.listener.LogMessage(e, fmt.Sprintf("stream decode failed: %s: %v", t.URI, err))
		})
		return
	}
	defer ps.Close()

	format := session.AudioFormat{
		SampleType: session.SampleTypeInt16NativeEndian,
		SampleRate: deliveryRate,
		Channels:   deliveryChannels,
	}
	buf := make([]byte, chunkFrames*frameBytes)
	reader := ps.PCM()

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			if !e.pushChunk(ctx, format, buf[:n-(n%frameBytes)]) {
				return
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			e.post(func() {
				e.listener.LogMessage(e, fmt.Sprintf("stream read failed: %s: %v", t.URI, err))
			})
			return
		}
	}

	if decErr := ps.Err(); decErr != nil && ctx.Err() == nil {
		e.post(func() {
			e.listener.LogMessage(e, fmt.Sprintf("stream decode failed: %s: %v", t.URI, decErr))
		})
	}
	if ctx.Err() == nil {
		e.listener.EndOfTrack(e)
	}
}

// pushChunk delivers pcm to the listener, resubmitting unaccepted frames.
// Returns false once ctx is cancelled or the listener has stopped accepting
// frames entirely, which is how delivery notices a torn-down playback
// context on the other side.
func (e *Engine) pushChunk(ctx context.Context, format session.AudioFormat, pcm []byte) bool {
	frames := len(pcm) / frameBytes
	off := 0
	stalled := 0
	for frames > 0 {
		if ctx.Err() != nil {
			return false
		}
		accepted := e.listener.MusicDelivery(e, format, pcm[off:off+frames*frameBytes], frames)
		if accepted >= frames {
			return true
		}
		if accepted == 0 {
			stalled++
			if stalled >= maxStalledResubmits {
				slog.Debug("listener stopped accepting frames, ending delivery")
				return false
			}
		} else {
			stalled = 0
		}
		off += accepted * frameBytes
		frames -= accepted
		// Listener is saturated (or has no playback context); pace the
		// resubmission instead of spinning.
		select {
		case <-ctx.Done():
			return false
		case <-time.After(resubmitDelay):
		}
	}
	return true
}

func (e *Engine) download(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d fetching %s", resp.StatusCode, url)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
