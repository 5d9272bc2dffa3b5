package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/asticode/go-astiav"

	"github.com/s4b3rt0oth/spotify2/internal/session"
)

const (
	aiffSampleRate = 44100
	aiffChannels   = 2
)

// AIFFConverter accumulates raw PCM frames delivered by a session and
// re-encodes them as a streamed AIFF byte sequence. Input frames may arrive
// at any rate/channel count; they are resampled to 16-bit 44.1kHz stereo.
//
// The chunk sizes in the emitted header are placeholders: total length is
// unknown while streaming, and AIFF consumers of a live stream ignore them.
type AIFFConverter struct {
	swr      *astiav.SoftwareResampleContext
	srcFrame *astiav.Frame
	dstFrame *astiav.Frame

	headerWritten bool
	pending       bytes.Buffer
	closed        bool
}

func NewAIFFConverter() (*AIFFConverter, error) {
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, errors.New("alloc swr")
	}
	srcFrame := astiav.AllocFrame()
	dstFrame := astiav.AllocFrame()
	if srcFrame == nil || dstFrame == nil {
		if srcFrame != nil {
			srcFrame.Free()
		}
		if dstFrame != nil {
			dstFrame.Free()
		}
		swr.Free()
		return nil, errors.New("alloc frames")
	}
	return &AIFFConverter{swr: swr, srcFrame: srcFrame, dstFrame: dstFrame}, nil
}

func (c *AIFFConverter) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.dstFrame != nil {
		c.dstFrame.Free()
	}
	if c.srcFrame != nil {
		c.srcFrame.Free()
	}
	if c.swr != nil {
		c.swr.Free()
	}
}

func channelLayout(channels int) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	}
	return astiav.ChannelLayout{}, fmt.Errorf("unsupported channel count %d", channels)
}

// Convert feeds numFrames of raw PCM into the converter and returns how many
// input frames were consumed. Frames must match the declared format.
func (c *AIFFConverter) Convert(frames []byte, numFrames int, format session.AudioFormat) (int, error) {
	if c.closed {
		return 0, errors.New("converter closed")
	}
	if numFrames == 0 {
		return 0, nil
	}
	if format.SampleType != session.SampleTypeInt16NativeEndian {
		return 0, fmt.Errorf("unsupported sample type %d", format.SampleType)
	}
	inLayout, err := channelLayout(format.Channels)
	if err != nil {
		return 0, err
	}
	want := numFrames * format.Channels * 2
	if len(frames) < want {
		return 0, fmt.Errorf("short PCM buffer: want %d bytes, got %d", want, len(frames))
	}

	c.srcFrame.Unref()
	c.srcFrame.SetChannelLayout(inLayout)
	c.srcFrame.SetSampleRate(format.SampleRate)
	c.srcFrame.SetSampleFormat(astiav.SampleFormatS16)
	c.srcFrame.SetNbSamples(numFrames)
	if err := c.srcFrame.AllocBuffer(0); err != nil {
		return 0, fmt.Errorf("src alloc buffer: %w", err)
	}
	if err := c.srcFrame.Data().SetBytes(frames[:want], 0); err != nil {
		return 0, fmt.Errorf("src set bytes: %w", err)
	}

	c.dstFrame.Unref()
	c.dstFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	c.dstFrame.SetSampleRate(aiffSampleRate)
	c.dstFrame.SetSampleFormat(astiav.SampleFormatS16)
	c.dstFrame.SetNbSamples(numFrames)
	if err := c.dstFrame.AllocBuffer(0); err != nil {
		return 0, fmt.Errorf("dst alloc buffer: %w", err)
	}

	if err := c.swr.ConvertFrame(c.srcFrame, c.dstFrame); err != nil {
		return 0, fmt.Errorf("swr convert: %w", err)
	}

	b, err := c.dstFrame.Data().Bytes(0)
	if err != nil {
		return 0, fmt.Errorf("dst bytes: %w", err)
	}
	if !c.headerWritten {
		c.pending.Write(aiffHeader())
		c.headerWritten = true
	}
	c.pending.Write(swapToBigEndian(b))
	return numFrames, nil
}

// PendingData drains and returns all fully-encoded output bytes produced so
// far. The first call includes the AIFF header.
func (c *AIFFConverter) PendingData() []byte {
	if c.pending.Len() == 0 {
		return nil
	}
	out := make([]byte, c.pending.Len())
	copy(out, c.pending.Bytes())
	c.pending.Reset()
	return out
}

// swapToBigEndian converts interleaved s16le samples to s16be.
func swapToBigEndian(b []byte) []byte {
	n := len(b) &^ 1
	out := make([]byte, n)
	for i := 0; i < n; i += 2 {
		out[i] = b[i+1]
		out[i+1] = b[i]
	}
	return out
}

// float80BE encodes f as an 80-bit IEEE extended float, the representation
// AIFF's COMM chunk uses for the sample rate.
func float80BE(f float64) [10]byte {
	var b [10]byte
	if f == 0 {
		return b
	}
	e := math.Ilogb(f)
	mant := uint64(math.Ldexp(f, 63-e))
	binary.BigEndian.PutUint16(b[0:2], uint16(16383+e))
	binary.BigEndian.PutUint64(b[2:10], mant)
	return b
}

func aiffHeader() []byte {
	const unknown = 0xFFFFFFFF

	var buf bytes.Buffer
	buf.WriteString("FORM")
	binary.Write(&buf, binary.BigEndian, uint32(unknown))
	buf.WriteString("AIFF")

	buf.WriteString("COMM")
	binary.Write(&buf, binary.BigEndian, uint32(18))
	binary.Write(&buf, binary.BigEndian, uint16(aiffChannels))
	binary.Write(&buf, binary.BigEndian, uint32(unknown)) // numSampleFrames
	binary.Write(&buf, binary.BigEndian, uint16(16))      // bits per sample
	rate := float80BE(aiffSampleRate)
	buf.Write(rate[:])

	buf.WriteString("SSND")
	binary.Write(&buf, binary.BigEndian, uint32(unknown))
	binary.Write(&buf, binary.BigEndian, uint32(0)) // offset
	binary.Write(&buf, binary.BigEndian, uint32(0)) // block size
	return buf.Bytes()
}
