package webrtc

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// ============================================================
// TRACK READER
// ============================================================

// readTrack reassembles VP8 frames from RTP and decodes keyframes into the
// latest-frame slot until the track ends or ctx is cancelled.
func (in *Ingest) readTrack(ctx context.Context, track *webrtc.TrackRemote) {
	in.log.Info("📸 Receiving camera frames...")
	defer in.log.Debug("🧹 Track reader stopped")

	sampleBuilder := samplebuilder.New(
		in.cfg.SampleBufferMax,
		&codecs.VP8Packet{},
		track.Codec().ClockRate,
	)

	for {
		if ctx.Err() != nil {
			return
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				in.log.Debugf("⚠️  RTP error: %v", err)
			}
			return
		}

		sampleBuilder.Push(pkt)
		for sample := sampleBuilder.Pop(); sample != nil; sample = sampleBuilder.Pop() {
			in.handleFrame(sample.Data)
		}
	}
}

// handleFrame decodes keyframes; delta frames are skipped.
func (in *Ingest) handleFrame(data []byte) {
	if !isVP8Keyframe(data) {
		return
	}

	img, err := in.decoder.Decode(data)
	if err != nil {
		in.log.Debugf("⚠️  Keyframe decode failed: %v", err)
		return
	}

	in.mu.Lock()
	first := in.frame == nil
	in.frame = img
	in.keyframes++
	in.mu.Unlock()

	if first {
		in.log.Infof("✅ First keyframe decoded (%dx%d)", img.Bounds().Dx(), img.Bounds().Dy())
	}
}
