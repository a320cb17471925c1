// Package webrtc receives a browser camera over WHIP and exposes its most
// recent keyframe as a camera source.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/models"
)

var ErrInvalidOffer = errors.New("invalid SDP offer")

type decoder interface {
	Decode(frame []byte) (image.Image, error)
}

// Ingest holds at most one publishing peer. A new offer replaces the
// current one.
type Ingest struct {
	cfg     models.WebRTCConfig
	decoder decoder
	log     logrus.FieldLogger

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	cancel    context.CancelFunc
	frame     image.Image
	keyframes int
	closed    bool
}

var _ camera.Source = (*Ingest)(nil)

func NewIngest(cfg models.WebRTCConfig, log logrus.FieldLogger) *Ingest {
	defaults := DefaultConfig()
	if cfg.PLIInterval <= 0 {
		cfg.PLIInterval = defaults.PLIInterval
	}
	if cfg.SampleBufferMax == 0 {
		cfg.SampleBufferMax = defaults.SampleBufferMax
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = defaults.DecodeTimeout
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaults.FFmpegPath
	}

	return &Ingest{
		cfg: cfg,
		decoder: &ffmpegDecoder{
			binary:    cfg.FFmpegPath,
			maxWidth:  cfg.MaxDecodeWidth,
			maxHeight: cfg.MaxDecodeHeight,
			timeout:   cfg.DecodeTimeout,
			pool:      newBufferPool(),
		},
		log: log,
	}
}

// ============================================================
// OFFER HANDLING
// ============================================================

// HandleOffer answers a WHIP offer. The answer carries all gathered ICE
// candidates, so no trickle endpoint is needed.
func (in *Ingest) HandleOffer(ctx context.Context, offerSDP string) (string, error) {
	if offerSDP == "" {
		return "", ErrInvalidOffer
	}

	in.mu.Lock()
	closed := in.closed
	in.mu.Unlock()
	if closed {
		return "", camera.ErrClosed
	}

	in.log.Info("📝 Processing offer...")

	pc, err := in.createPeerConnection()
	if err != nil {
		return "", fmt.Errorf("failed to create peer connection: %w", err)
	}

	peerCtx, cancel := context.WithCancel(context.Background())
	in.setupPeerConnectionHandlers(peerCtx, pc)

	fail := func(err error) (string, error) {
		cancel()
		_ = pc.Close()
		return "", err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrInvalidOffer, err))
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create answer: %w", err))
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("failed to set local description: %w", err))
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return fail(fmt.Errorf("ice gathering: %w", ctx.Err()))
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return fail(camera.ErrClosed)
	}
	prevPC, prevCancel := in.pc, in.cancel
	in.pc, in.cancel = pc, cancel
	in.mu.Unlock()

	if prevPC != nil {
		in.log.Info("🔁 Replacing previous camera stream")
		prevCancel()
		_ = prevPC.Close()
	}

	local := pc.LocalDescription()
	in.log.Info("✅ Answer ready")
	return patchSDPForQuality(local.SDP, answerBandwidth, answerMinBitrate, answerMaxBitrate), nil
}

// dropPeer forgets pc if it is still the active peer.
func (in *Ingest) dropPeer(pc *webrtc.PeerConnection) {
	in.mu.Lock()
	if in.pc != pc {
		in.mu.Unlock()
		return
	}
	cancel := in.cancel
	in.pc, in.cancel = nil, nil
	in.mu.Unlock()

	cancel()
}

// ============================================================
// FRAME SOURCE
// ============================================================

func (in *Ingest) Read() (image.Image, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, camera.ErrClosed
	}
	if in.frame == nil {
		return nil, camera.ErrNoFrame
	}
	return in.frame, nil
}

// Connected reports whether a publisher is attached.
func (in *Ingest) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pc != nil
}

func (in *Ingest) Keyframes() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyframes
}

// Close tears down the active peer. It is safe to call more than once.
func (in *Ingest) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	pc, cancel := in.pc, in.cancel
	in.pc, in.cancel = nil, nil
	in.frame = nil
	in.mu.Unlock()

	if pc == nil {
		return nil
	}
	cancel()
	in.log.Info("🧹 Camera stream closed")
	return pc.Close()
}
