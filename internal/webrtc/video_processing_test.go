package webrtc

import (
	"encoding/binary"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 640x480 keyframe header.
var keyframe = []byte{0x50, 0x42, 0x00, 0x9d, 0x01, 0x2a, 0x80, 0x02, 0xe0, 0x01, 0x00, 0x00}

func TestIsVP8Keyframe(t *testing.T) {
	assert.True(t, isVP8Keyframe(keyframe))

	delta := append([]byte(nil), keyframe...)
	delta[0] |= 0x1
	assert.False(t, isVP8Keyframe(delta))

	badStart := append([]byte(nil), keyframe...)
	badStart[4] = 0x00
	assert.False(t, isVP8Keyframe(badStart))

	assert.False(t, isVP8Keyframe(keyframe[:6]))
}

func TestGetVP8KeyframeDims(t *testing.T) {
	w, h, err := getVP8KeyframeDims(keyframe)
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	scaled := append([]byte(nil), keyframe...)
	scaled[7] |= 0xC0 // scaling bits are ignored
	w, _, err = getVP8KeyframeDims(scaled)
	require.NoError(t, err)
	assert.Equal(t, 640, w)

	zero := append([]byte(nil), keyframe...)
	zero[6], zero[7] = 0, 0
	_, _, err = getVP8KeyframeDims(zero)
	assert.ErrorContains(t, err, "zero dimension")

	_, _, err = getVP8KeyframeDims([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "too small")
}

func TestDecodeSize(t *testing.T) {
	tests := []struct {
		name             string
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{"fits", 640, 480, 640, 480, 640, 480},
		{"hd", 1280, 720, 640, 480, 640, 360},
		{"portrait", 720, 1280, 640, 480, 270, 480},
		{"odd result rounded down", 1001, 1001, 333, 333, 332, 332},
		{"no limit", 1920, 1080, 0, 0, 1920, 1080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := decodeSize(tt.w, tt.h, tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestIVFFrame(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	data := ivfFrame(payload, 640, 480)

	require.Len(t, data, 32+12+len(payload))
	assert.Equal(t, "DKIF", string(data[0:4]))
	assert.Equal(t, uint16(32), binary.LittleEndian.Uint16(data[6:8]))
	assert.Equal(t, "VP80", string(data[8:12]))
	assert.Equal(t, uint16(640), binary.LittleEndian.Uint16(data[12:14]))
	assert.Equal(t, uint16(480), binary.LittleEndian.Uint16(data[14:16]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(data[32:36]))
	assert.Equal(t, payload, data[44:])
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs(640, 480, 640, 480)
	assert.NotContains(t, args, "-vf")
	assert.Contains(t, args, "bgr24")

	args = ffmpegArgs(1280, 720, 640, 360)
	assert.Contains(t, args, "scale=640:360:flags=fast_bilinear")
}

func TestBGRToRGBA(t *testing.T) {
	raw := []byte{
		10, 20, 30, 40, 50, 60,
		70, 80, 90, 100, 110, 120,
	}
	img := bgrToRGBA(raw, 2, 2)

	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 60, G: 50, B: 40, A: 255}, img.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{R: 120, G: 110, B: 100, A: 255}, img.RGBAAt(1, 1))
}
