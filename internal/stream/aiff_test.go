package stream

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat80BE(t *testing.T) {
	// 44100 Hz as an 80-bit extended float, the canonical AIFF value.
	want := [10]byte{0x40, 0x0E, 0xAC, 0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.Equal(t, want, float80BE(44100))

	assert.Equal(t, [10]byte{}, float80BE(0))

	// 48000 = 1.46484375 * 2^15
	want48k := [10]byte{0x40, 0x0E, 0xBB, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.Equal(t, want48k, float80BE(48000))
}

func TestSwapToBigEndian(t *testing.T) {
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, swapToBigEndian([]byte{0x34, 0x12, 0x78, 0x56}))
	assert.Empty(t, swapToBigEndian(nil))
	// Odd trailing byte is dropped rather than swapped with garbage.
	assert.Equal(t, []byte{0x02, 0x01}, swapToBigEndian([]byte{0x01, 0x02, 0x03}))
}

func TestAIFFHeaderLayout(t *testing.T) {
	h := aiffHeader()
	require.Len(t, h, 54)

	assert.Equal(t, "FORM", string(h[0:4]))
	assert.Equal(t, uint32(0xFFFFFFFF), binary.BigEndian.Uint32(h[4:8]))
	assert.Equal(t, "AIFF", string(h[8:12]))

	assert.Equal(t, "COMM", string(h[12:16]))
	assert.Equal(t, uint32(18), binary.BigEndian.Uint32(h[16:20]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(h[20:22]), "channels")
	assert.Equal(t, uint32(0xFFFFFFFF), binary.BigEndian.Uint32(h[22:26]), "numSampleFrames placeholder")
	assert.Equal(t, uint16(16), binary.BigEndian.Uint16(h[26:28]), "bits per sample")
	rate := float80BE(44100)
	assert.Equal(t, rate[:], h[28:38], "sample rate")

	assert.Equal(t, "SSND", string(h[38:42]))
	assert.Equal(t, uint32(0xFFFFFFFF), binary.BigEndian.Uint32(h[42:46]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(h[46:50]), "offset")
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(h[50:54]), "block size")
}

func TestChannelLayout(t *testing.T) {
	_, err := channelLayout(1)
	assert.NoError(t, err)
	_, err = channelLayout(2)
	assert.NoError(t, err)
	_, err = channelLayout(6)
	assert.Error(t, err)
}
