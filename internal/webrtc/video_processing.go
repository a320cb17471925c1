package webrtc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"time"
)

// ============================================================
// VP8 KEYFRAME DETECTION
// ============================================================

func isVP8Keyframe(frame []byte) bool {
	if len(frame) < 10 {
		return false
	}
	frameTag := uint32(frame[0]) | (uint32(frame[1]) << 8) | (uint32(frame[2]) << 16)
	if (frameTag & 0x1) != 0 {
		return false
	}
	return frame[3] == 0x9d && frame[4] == 0x01 && frame[5] == 0x2a
}

// ============================================================
// VP8 DIMENSION EXTRACTION
// ============================================================

func getVP8KeyframeDims(frame []byte) (int, int, error) {
	if len(frame) < 10 {
		return 0, 0, fmt.Errorf("frame too small: %d bytes", len(frame))
	}

	frameTag := uint32(frame[0]) | (uint32(frame[1]) << 8) | (uint32(frame[2]) << 16)
	if (frameTag & 0x1) != 0 {
		return 0, 0, fmt.Errorf("not a keyframe (tag: 0x%x)", frameTag)
	}

	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return 0, 0, fmt.Errorf("invalid start code: %02x %02x %02x", frame[3], frame[4], frame[5])
	}

	// Top two bits of each field carry the scaling mode.
	width := (int(frame[6]) | (int(frame[7]) << 8)) & 0x3FFF
	height := (int(frame[8]) | (int(frame[9]) << 8)) & 0x3FFF

	if width == 0 || height == 0 {
		return 0, 0, fmt.Errorf("zero dimension: %dx%d", width, height)
	}
	if width > 3840 || height > 2160 {
		return 0, 0, fmt.Errorf("dimension too large: %dx%d", width, height)
	}

	return width, height, nil
}

// ============================================================
// DECODE SIZE
// ============================================================

// decodeSize fits the stream into maxW x maxH, keeping the aspect ratio and
// even dimensions.
func decodeSize(origWidth, origHeight, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || (origWidth <= maxW && origHeight <= maxH) {
		return origWidth, origHeight
	}

	scale := min(float64(maxW)/float64(origWidth), float64(maxH)/float64(origHeight))

	newWidth := int(float64(origWidth)*scale) / 2 * 2
	newHeight := int(float64(origHeight)*scale) / 2 * 2

	return max(newWidth, 2), max(newHeight, 2)
}

// ============================================================
// IVF CONTAINER
// ============================================================

// ivfFrame wraps a single VP8 frame in a one-frame IVF file so ffmpeg can
// read it from a pipe.
func ivfFrame(frameData []byte, width, height int) []byte {
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	header[6] = 32 // header length
	copy(header[8:12], "VP80")
	header[12] = byte(width)
	header[13] = byte(width >> 8)
	header[14] = byte(height)
	header[15] = byte(height >> 8)
	header[16] = 30 // timebase denominator
	header[20] = 1  // timebase numerator
	header[24] = 1  // frame count

	frameSize := uint32(len(frameData))
	frameHeader := make([]byte, 12)
	frameHeader[0] = byte(frameSize)
	frameHeader[1] = byte(frameSize >> 8)
	frameHeader[2] = byte(frameSize >> 16)
	frameHeader[3] = byte(frameSize >> 24)

	out := make([]byte, 0, len(header)+len(frameHeader)+len(frameData))
	out = append(out, header...)
	out = append(out, frameHeader...)
	return append(out, frameData...)
}

// ============================================================
// VP8 TO IMAGE
// ============================================================

// ffmpegDecoder turns VP8 keyframes into RGBA images by piping them through
// an ffmpeg process.
type ffmpegDecoder struct {
	binary    string
	maxWidth  int
	maxHeight int
	timeout   time.Duration
	pool      *bufferPool
}

func (d *ffmpegDecoder) Decode(frameData []byte) (image.Image, error) {
	origWidth, origHeight, err := getVP8KeyframeDims(frameData)
	if err != nil {
		return nil, fmt.Errorf("parse dims: %w", err)
	}

	decodeWidth, decodeHeight := decodeSize(origWidth, origHeight, d.maxWidth, d.maxHeight)
	args := ffmpegArgs(origWidth, origHeight, decodeWidth, decodeHeight)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stdin = bytes.NewReader(ivfFrame(frameData, origWidth, origHeight))

	buf := d.pool.Get()
	defer d.pool.Put(buf)

	var stderrBuf bytes.Buffer
	cmd.Stdout = buf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		stderr := stderrBuf.String()
		if len(stderr) > 200 {
			stderr = stderr[:200] + "..."
		}
		return nil, fmt.Errorf("decode: %w (%s)", err, stderr)
	}

	expectedSize := decodeWidth * decodeHeight * 3
	if buf.Len() < expectedSize {
		return nil, fmt.Errorf("short frame: %d < %d", buf.Len(), expectedSize)
	}

	return bgrToRGBA(buf.Bytes()[:expectedSize], decodeWidth, decodeHeight), nil
}

func ffmpegArgs(origWidth, origHeight, decodeWidth, decodeHeight int) []string {
	args := []string{
		"-loglevel", "error",
		"-nostdin",
		"-f", "ivf",
		"-i", "pipe:0",
	}

	if decodeWidth != origWidth || decodeHeight != origHeight {
		args = append(args,
			"-vf", fmt.Sprintf("scale=%d:%d:flags=fast_bilinear", decodeWidth, decodeHeight),
		)
	}

	return append(args,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-threads", "1",
		"pipe:1",
	)
}

// bgrToRGBA copies packed bgr24 pixels into a new image.
func bgrToRGBA(raw []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(raw) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = raw[i+2]
		img.Pix[j+1] = raw[i+1]
		img.Pix[j+2] = raw[i]
		img.Pix[j+3] = 0xff
	}
	return img
}
