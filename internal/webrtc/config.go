package webrtc

import (
	"bytes"
	"sync"
	"time"

	"goodzwork-checkin/models"
)

// ============================================================
// DEFAULT CONFIGURATION
// ============================================================

func DefaultConfig() models.WebRTCConfig {
	return models.WebRTCConfig{
		ICEServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		PLIInterval:     1 * time.Second,
		SampleBufferMax: 128,
		MaxDecodeWidth:  640,
		MaxDecodeHeight: 480,
		DecodeTimeout:   2 * time.Second,
		FFmpegPath:      "ffmpeg",
	}
}

// Answer bandwidth hints, kbps.
const (
	answerBandwidth  = 2500
	answerMinBitrate = 1500
	answerMaxBitrate = 3000
)

// ============================================================
// BUFFER POOL
// ============================================================

const (
	maxPooledBufferSize = 10 * 1024 * 1024 // 10MB
	initialBufferCap    = 512 * 1024       // 512KB
)

type bufferPool struct {
	pool sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := new(bytes.Buffer)
				buf.Grow(initialBufferCap)
				return buf
			},
		},
	}
}

func (p *bufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	// Only pool buffers < 10MB to prevent memory bloat
	if buf.Cap() < maxPooledBufferSize {
		p.pool.Put(buf)
	}
}
